package database

import (
	"context"
	"fmt"
	"time"

	"github.com/propcrm/realty-agent/internal/models"
)

// ActivityLogRepository writes the audit trail
type ActivityLogRepository struct {
	db *DB
}

// NewActivityLogRepository creates a new activity log repository
func NewActivityLogRepository(db *DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Log appends an entry
func (r *ActivityLogRepository) Log(ctx context.Context, entry *models.ActivityLog) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO activity_log (tenant_id, user_id, action, entity_type, entity_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		entry.TenantID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, entry.Description, time.Now(),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}
	return nil
}

// ExistsSince reports whether an identical entry was written after since
func (r *ActivityLogRepository) ExistsSince(ctx context.Context, entry *models.ActivityLog, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM activity_log
			WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
				AND action = $4 AND description = $5 AND created_at >= $6
		)`,
		entry.TenantID, entry.EntityType, entry.EntityID, entry.Action, entry.Description, since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check activity log: %w", err)
	}
	return exists, nil
}
