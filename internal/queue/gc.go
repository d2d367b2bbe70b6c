package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/metrics"
)

// purgeTimeout bounds one pass over the dead-letter queue
const purgeTimeout = 2 * time.Minute

// GarbageCollector drops dead-lettered embedding jobs once they are older than
// retention. Jobs that exhausted their retries stay inspectable until then; the
// next backfill sweep picks their records up again anyway.
type GarbageCollector struct {
	purger    DLQPurger
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
}

// NewGarbageCollector returns a collector; a nil purger turns it into a no-op
func NewGarbageCollector(purger DLQPurger, interval, retention time.Duration, logger *zap.Logger) *GarbageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GarbageCollector{purger: purger, interval: interval, retention: retention, logger: logger}
}

// Start purges once right away, then every interval, until ctx is done
func (gc *GarbageCollector) Start(ctx context.Context) error {
	if gc.purger == nil || gc.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	gc.runPass(ctx)

	ticker := time.NewTicker(gc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			gc.runPass(ctx)
		}
	}
}

func (gc *GarbageCollector) runPass(ctx context.Context) {
	n, err := gc.purgeExpired(ctx)
	if err != nil {
		gc.logger.Error("dlq_gc_failed", zap.Int("purged", n), zap.Error(err))
		return
	}
	if n > 0 {
		gc.logger.Info("dlq_gc_purged", zap.Int("count", n), zap.Duration("retention", gc.retention))
	}
}

// purgeExpired returns how many dead letters were dropped, also on partial failure
func (gc *GarbageCollector) purgeExpired(ctx context.Context) (int, error) {
	if gc.purger == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	n, err := gc.purger.PurgeOlderThan(ctx, gc.retention)
	metrics.RecordDeadLettersPurged(n)
	if err != nil {
		return n, fmt.Errorf("failed to purge dead letters: %w", err)
	}
	return n, nil
}
