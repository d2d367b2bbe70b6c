package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/propcrm/realty-agent/internal/models"
)

// DealRepository handles deal and pipeline database operations
type DealRepository struct {
	db *DB
}

// NewDealRepository creates a new deal repository
func NewDealRepository(db *DB) *DealRepository {
	return &DealRepository{db: db}
}

// InitialStage returns the first stage of the tenant's default pipeline,
// falling back to the oldest pipeline when none is flagged default
func (r *DealRepository) InitialStage(ctx context.Context, tenantID int64) (*models.PipelineStage, error) {
	s := &models.PipelineStage{}
	err := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.pipeline_id, s.name, s.position
		FROM pipeline_stages s
		JOIN pipelines p ON p.id = s.pipeline_id
		WHERE p.tenant_id = $1
		ORDER BY p.is_default DESC, p.id, s.position, s.id
		LIMIT 1`, tenantID).Scan(&s.ID, &s.PipelineID, &s.Name, &s.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pipeline stage: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get initial pipeline stage: %w", err)
	}
	return s, nil
}

// Create inserts a deal
func (r *DealRepository) Create(ctx context.Context, d *models.Deal) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO deals (tenant_id, title, contact_id, property_id, agent_id, pipeline_stage_id,
			value, currency, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		d.TenantID, d.Title, d.ContactID, d.PropertyID, d.AgentID, d.PipelineStageID,
		d.Value, d.Currency, d.Source, time.Now(),
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create deal: %w", err)
	}
	return nil
}
