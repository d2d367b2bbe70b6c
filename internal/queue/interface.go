package queue

import (
	"context"
	"time"
)

// MessageInterface is a consumed job the worker must settle exactly once
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// Enqueuer publishes jobs
type Enqueuer interface {
	Enqueue(ctx context.Context, job *Job) error
}

// JobQueue is the broker side of embedding and backfill jobs
type JobQueue interface {
	Enqueuer

	// Consume streams jobs until ctx is done. At most prefetchCount messages
	// are unsettled at once; the error channel reports a lost consumer.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)
	Close() error
	HealthCheck(ctx context.Context) error
}

// DLQPurger removes dead-lettered messages past their retention
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
