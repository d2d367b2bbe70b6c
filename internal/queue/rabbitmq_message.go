package queue

import (
	"errors"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrAlreadySettled is returned when a message is acked or nacked twice
var ErrAlreadySettled = errors.New("message already settled")

// Message is one consumed job together with the delivery that settles it
type Message struct {
	Job      *Job
	delivery amqp.Delivery
	settled  atomic.Bool
}

var _ MessageInterface = (*Message)(nil)

func newMessage(job *Job, delivery amqp.Delivery) *Message {
	return &Message{Job: job, delivery: delivery}
}

// Ack removes the job from the queue
func (m *Message) Ack() error {
	if !m.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return m.delivery.Ack(false)
}

// Nack returns the job to the queue, or routes it to the DLQ when requeue is false
func (m *Message) Nack(requeue bool) error {
	if !m.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return m.delivery.Nack(false, requeue)
}

// GetJob returns the decoded job
func (m *Message) GetJob() *Job {
	return m.Job
}

// Redelivered reports whether the broker already handed this job to a consumer
func (m *Message) Redelivered() bool {
	return m.delivery.Redelivered
}
