package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeEmbedProperty recomputes one property's search vector
	JobTypeEmbedProperty JobType = "embed_property"
	// JobTypeEmbedDevelopment recomputes one development's search vector
	JobTypeEmbedDevelopment JobType = "embed_development"
	// JobTypeEmbedContact recomputes one contact's preference vector
	JobTypeEmbedContact JobType = "embed_contact"
	// JobTypeBackfillSweep embeds every record still missing a vector
	JobTypeBackfillSweep JobType = "backfill_sweep"
)

// DefaultMaxRetries bounds redeliveries before a job is dead-lettered
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID      `json:"id"`
	Type       JobType        `json:"type"`
	TenantID   int64          `json:"tenant_id,omitempty"`
	EntityID   int64          `json:"entity_id,omitempty"`
	NotBefore  *time.Time     `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter   *time.Time     `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
}

// NewJob creates a job for one tenant record
func NewJob(jobType JobType, tenantID, entityID int64) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		TenantID:   tenantID,
		EntityID:   entityID,
		Metadata:   make(map[string]any),
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// NewSweepJob creates a backfill sweep job; sweeps span all tenants
func NewSweepJob() *Job {
	return NewJob(JobTypeBackfillSweep, 0, 0)
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
