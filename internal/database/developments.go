package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/propcrm/realty-agent/internal/models"
)

// DevelopmentRepository handles development database operations
type DevelopmentRepository struct {
	db *DB
}

// NewDevelopmentRepository creates a new development repository
func NewDevelopmentRepository(db *DB) *DevelopmentRepository {
	return &DevelopmentRepository{db: db}
}

const developmentColumns = `
	id, tenant_id, code, name, address, status, description, amenities, typologies,
	search_content, embedding::text, created_at, updated_at`

func scanDevelopment(row rowScanner) (*models.Development, error) {
	d := &models.Development{}
	var amenities, typologies []byte
	var embedding sql.NullString
	err := row.Scan(&d.ID, &d.TenantID, &d.Code, &d.Name, &d.Address, &d.Status, &d.Description,
		&amenities, &typologies, &d.SearchContent, &embedding, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(amenities) > 0 {
		if err := json.Unmarshal(amenities, &d.Amenities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal amenities: %w", err)
		}
	}
	if len(typologies) > 0 {
		if err := json.Unmarshal(typologies, &d.Typologies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal typologies: %w", err)
		}
	}
	if d.Embedding, err = decodeVector(embedding); err != nil {
		return nil, err
	}
	return d, nil
}

// GetByID returns a development belonging to the tenant
func (r *DevelopmentRepository) GetByID(ctx context.Context, tenantID, id int64) (*models.Development, error) {
	d, err := scanDevelopment(r.db.QueryRowContext(ctx,
		`SELECT`+developmentColumns+` FROM developments WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("development %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get development: %w", err)
	}
	return d, nil
}

// RankBySimilarity orders the tenant's embedded developments by cosine
// similarity to vec, most similar first and most recent on ties
func (r *DevelopmentRepository) RankBySimilarity(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]Ranked[*models.Development], error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+developmentColumns+`, 1 - (embedding <=> $2::vector)
		FROM developments
		WHERE tenant_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2::vector, created_at DESC, id DESC
		LIMIT $3`, tenantID, encodeVector(vec), sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to rank developments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Ranked[*models.Development]
	for rows.Next() {
		var similarity float64
		d, err := scanDevelopment(withTrailing(rows, &similarity))
		if err != nil {
			return nil, fmt.Errorf("failed to scan development: %w", err)
		}
		out = append(out, Ranked[*models.Development]{Item: d, Similarity: similarity})
	}
	return out, rows.Err()
}

// ListMissingEmbedding returns developments without a vector
func (r *DevelopmentRepository) ListMissingEmbedding(ctx context.Context, limit int) ([]RecordRef, error) {
	return listRefs(ctx, r.db, `
		SELECT id, tenant_id FROM developments
		WHERE embedding IS NULL
		ORDER BY id
		LIMIT $1`, limit)
}

// UpdateEmbedding stores the search text and vector computed from d, unless
// the row was edited after d was read (ErrStaleRecord)
func (r *DevelopmentRepository) UpdateEmbedding(ctx context.Context, d *models.Development, content string, vec models.Vector) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE developments SET search_content = $1, embedding = $2::vector
		WHERE id = $3 AND tenant_id = $4 AND updated_at = $5`,
		content, encodeVector(vec), d.ID, d.TenantID, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update development embedding: %w", err)
	}
	return expectCurrentRow(ctx, r.db, res, "developments", d.TenantID, d.ID)
}
