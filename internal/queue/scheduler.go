package queue

import (
	"context"
	"fmt"
)

// Scheduler turns domain requests into queued jobs
type Scheduler struct {
	queue Enqueuer
}

// NewScheduler creates a scheduler publishing to q
func NewScheduler(q Enqueuer) *Scheduler {
	return &Scheduler{queue: q}
}

// EnqueueContactEmbedding schedules a re-embed of a contact's preferences
func (s *Scheduler) EnqueueContactEmbedding(ctx context.Context, tenantID, contactID int64) error {
	return s.enqueue(ctx, NewJob(JobTypeEmbedContact, tenantID, contactID))
}

// EnqueuePropertyEmbedding schedules a re-embed of a property
func (s *Scheduler) EnqueuePropertyEmbedding(ctx context.Context, tenantID, propertyID int64) error {
	return s.enqueue(ctx, NewJob(JobTypeEmbedProperty, tenantID, propertyID))
}

// EnqueueDevelopmentEmbedding schedules a re-embed of a development
func (s *Scheduler) EnqueueDevelopmentEmbedding(ctx context.Context, tenantID, developmentID int64) error {
	return s.enqueue(ctx, NewJob(JobTypeEmbedDevelopment, tenantID, developmentID))
}

// EnqueueSweep schedules a backfill sweep and returns its job ID
func (s *Scheduler) EnqueueSweep(ctx context.Context) (string, error) {
	job := NewSweepJob()
	if err := s.enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.ID.String(), nil
}

func (s *Scheduler) enqueue(ctx context.Context, job *Job) error {
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", job.Type, err)
	}
	return nil
}
