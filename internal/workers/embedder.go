package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/metrics"
	"github.com/propcrm/realty-agent/internal/queue"
	"github.com/propcrm/realty-agent/internal/services/ai"
	"github.com/propcrm/realty-agent/internal/services/embedding"
	"github.com/propcrm/realty-agent/internal/services/semantic"
)

// Indexer is the embedding work a job can request
type Indexer interface {
	EmbedProperty(ctx context.Context, tenantID, id int64) error
	EmbedDevelopment(ctx context.Context, tenantID, id int64) error
	EmbedContact(ctx context.Context, tenantID, id int64) error
	Sweep(ctx context.Context) (semantic.SweepStats, error)
}

var _ Indexer = (*semantic.Indexer)(nil)

// EmbeddingWorker processes embedding and backfill jobs
type EmbeddingWorker struct {
	indexer  Indexer
	jobQueue queue.Enqueuer // For re-enqueueing jobs with delays
	logger   *zap.Logger
	now      func() time.Time
}

// NewEmbeddingWorker creates a worker. jobQueue may be nil, in which case
// failed jobs are requeued immediately and their retry count is not tracked.
func NewEmbeddingWorker(indexer Indexer, jobQueue queue.Enqueuer, logger *zap.Logger) *EmbeddingWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingWorker{
		indexer:  indexer,
		jobQueue: jobQueue,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessJob runs one job and settles its message
func (w *EmbeddingWorker) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	err := w.run(ctx, job)
	if err == nil {
		metrics.RecordJob(string(job.Type), "ok")
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil
	}

	if permanent(err) {
		// Nothing to retry: the record is gone or has nothing to embed
		metrics.RecordJob(string(job.Type), "skipped")
		w.logger.Info("job_skipped",
			zap.String("job_id", job.ID.String()),
			zap.String("type", string(job.Type)),
			zap.Int64("tenant_id", job.TenantID),
			zap.Int64("entity_id", job.EntityID),
			zap.Error(err),
		)
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil
	}

	return w.handleJobError(ctx, msg, job, err)
}

func (w *EmbeddingWorker) run(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeEmbedProperty:
		return w.indexer.EmbedProperty(ctx, job.TenantID, job.EntityID)
	case queue.JobTypeEmbedDevelopment:
		return w.indexer.EmbedDevelopment(ctx, job.TenantID, job.EntityID)
	case queue.JobTypeEmbedContact:
		return w.indexer.EmbedContact(ctx, job.TenantID, job.EntityID)
	case queue.JobTypeBackfillSweep:
		stats, err := w.indexer.Sweep(ctx)
		w.logger.Info("backfill_sweep_finished",
			zap.String("job_id", job.ID.String()),
			zap.Int("embedded", stats.Embedded),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped),
		)
		return err
	default:
		return fmt.Errorf("%w: %s", errUnknownJobType, job.Type)
	}
}

var errUnknownJobType = errors.New("unknown job type")

// permanent excludes database.ErrStaleRecord: a later attempt reads the newer row
func permanent(err error) bool {
	return errors.Is(err, database.ErrNotFound) ||
		errors.Is(err, semantic.ErrNothingToEmbed) ||
		errors.Is(err, embedding.ErrEmptyInput)
}

// handleJobError decides between a delayed retry, an immediate requeue and the DLQ
func (w *EmbeddingWorker) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(job.Type)),
		zap.Int("attempt", job.RetryCount+1),
		zap.Int("max_retries", job.MaxRetries),
		zap.Error(err),
	}

	if errors.Is(err, errUnknownJobType) {
		metrics.RecordJob(string(job.Type), "dead_lettered")
		w.logger.Error("unknown_job_type", fields...)
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Error("failed_to_nack_job", zap.Error(nackErr))
		}
		return err
	}

	// Quota exhaustion keeps retrying on the long delay; it is not the job's fault.
	// Redeliveries go through a fresh publish so the retry count travels with the job.
	retry := job.CanRetry() || ai.IsQuotaError(err)
	if retry && w.jobQueue != nil {
		delay := ai.GetRetryDelay(err, job.RetryCount)
		notBefore := w.now().Add(delay)
		delayed := *job
		delayed.NotBefore = &notBefore
		delayed.RetryCount++

		if enqueueErr := w.jobQueue.Enqueue(ctx, &delayed); enqueueErr != nil {
			w.logger.Error("failed_to_reenqueue_job", append(fields, zap.NamedError("enqueue_error", enqueueErr))...)
			if nackErr := msg.Nack(true); nackErr != nil {
				w.logger.Error("failed_to_nack_job", zap.Error(nackErr))
			}
			return fmt.Errorf("job failed, re-enqueue failed: %w", enqueueErr)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Warn("failed_to_ack_job_after_reenqueue", zap.Error(ackErr))
		}
		metrics.RecordJob(string(job.Type), "retry")
		w.logger.Warn("job_failed_reenqueued", append(fields, zap.Duration("delay", delay))...)
		return nil
	}

	if retry {
		metrics.RecordJob(string(job.Type), "retry")
		w.logger.Warn("job_failed_requeued", fields...)
		if nackErr := msg.Nack(true); nackErr != nil {
			w.logger.Error("failed_to_nack_job", zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	metrics.RecordJob(string(job.Type), "dead_lettered")
	w.logger.Error("job_failed_sending_to_dlq", fields...)
	if nackErr := msg.Nack(false); nackErr != nil {
		w.logger.Error("failed_to_nack_job", zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}
