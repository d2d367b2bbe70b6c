package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/propcrm/realty-agent/internal/models"
)

// PropertyRepository handles property database operations
type PropertyRepository struct {
	db *DB
}

// NewPropertyRepository creates a new property repository
func NewPropertyRepository(db *DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// ListingFilter holds the hard filters applied before any ranking.
// TenantID is always applied.
type ListingFilter struct {
	TenantID  int64
	Operation models.Operation
	Type      string
	BudgetMax *float64
	Zone      string
	MinRooms  *int
	Limit     int
}

const propertyColumns = `
	p.id, p.tenant_id, p.code, p.title, p.address, p.city, p.neighborhood, p.type, p.operation,
	p.status, p.price, p.currency, p.rooms, p.bedrooms, p.surface, p.description, p.attributes,
	p.lat, p.lng, p.assigned_agent_id,
	COALESCE(TRIM(CONCAT(u.first_name, ' ', u.last_name)), ''), COALESCE(u.phone_mobile, ''),
	p.visit_duration, p.max_simultaneous_visits, p.visit_availability, p.transaction_requirements,
	p.search_content, p.embedding::text, p.created_at, p.updated_at`

const propertyFrom = `
	FROM properties p
	LEFT JOIN users u ON u.id = p.assigned_agent_id`

func scanProperty(row rowScanner) (*models.Property, error) {
	p := &models.Property{}
	var (
		price, surface, lat, lng        sql.NullFloat64
		rooms, bedrooms, agentID        sql.NullInt64
		visitDuration, maxVisits        sql.NullInt64
		attributesJSON, availabilityRaw []byte
		embedding                       sql.NullString
		operation, status               string
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Code, &p.Title, &p.Address, &p.City, &p.Neighborhood, &p.Type, &operation,
		&status, &price, &p.Currency, &rooms, &bedrooms, &surface, &p.Description, &attributesJSON,
		&lat, &lng, &agentID,
		&p.AgentName, &p.AgentPhone,
		&visitDuration, &maxVisits, &availabilityRaw, &p.TransactionRequirements,
		&p.SearchContent, &embedding, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Operation = models.Operation(operation)
	p.Status = models.PropertyStatus(status)
	p.Price = nullableFloat(price)
	p.Surface = nullableFloat(surface)
	p.Lat = nullableFloat(lat)
	p.Lng = nullableFloat(lng)
	p.Rooms = nullableInt(rooms)
	p.Bedrooms = nullableInt(bedrooms)
	p.AssignedAgentID = nullableInt64(agentID)
	p.VisitDuration = nullableInt(visitDuration)
	p.MaxSimultaneousVisits = nullableInt(maxVisits)

	if len(attributesJSON) > 0 {
		if err := json.Unmarshal(attributesJSON, &p.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	if len(availabilityRaw) > 0 {
		if err := json.Unmarshal(availabilityRaw, &p.VisitAvailability); err != nil {
			return nil, fmt.Errorf("failed to unmarshal visit availability: %w", err)
		}
	}
	if p.Embedding, err = decodeVector(embedding); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID returns an active property belonging to the tenant
func (r *PropertyRepository) GetByID(ctx context.Context, tenantID, id int64) (*models.Property, error) {
	query := `SELECT` + propertyColumns + propertyFrom + `
		WHERE p.id = $1 AND p.tenant_id = $2 AND p.status <> $3`

	p, err := scanProperty(r.db.QueryRowContext(ctx, query, id, tenantID, models.PropertyStatusDeleted))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return p, nil
}

// Search returns active properties matching the filter, most recent first
func (r *PropertyRepository) Search(ctx context.Context, f ListingFilter) ([]*models.Property, error) {
	where, args := f.where()
	query := `SELECT` + propertyColumns + propertyFrom + where + " ORDER BY p.created_at DESC, p.id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search properties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate properties: %w", err)
	}
	return out, nil
}

// RankBySimilarity orders every property passing the filter by cosine
// similarity to vec inside Postgres, most similar first and most recent on
// ties. Properties without a vector are never returned.
func (r *PropertyRepository) RankBySimilarity(ctx context.Context, f ListingFilter, vec models.Vector) ([]Ranked[*models.Property], error) {
	query, args := f.rankQuery(vec)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to rank properties: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Ranked[*models.Property]
	for rows.Next() {
		var similarity float64
		p, err := scanProperty(withTrailing(rows, &similarity))
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		out = append(out, Ranked[*models.Property]{Item: p, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate properties: %w", err)
	}
	return out, nil
}

// where renders the hard filters; the returned args are numbered from $1
// rankQuery orders every filtered listing by cosine distance to vec. Limit is
// applied after the ordering, never before.
func (f ListingFilter) rankQuery(vec models.Vector) (string, []any) {
	where, args := f.where()
	args = append(args, encodeVector(vec))
	vecArg := len(args)
	query := `SELECT` + propertyColumns + fmt.Sprintf(`, 1 - (p.embedding <=> $%d::vector)`, vecArg) + propertyFrom + where +
		fmt.Sprintf(" AND p.embedding IS NOT NULL ORDER BY p.embedding <=> $%d::vector, p.created_at DESC, p.id DESC", vecArg)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (f ListingFilter) where() (string, []any) {
	clause := `
		WHERE p.tenant_id = $1 AND p.status = $2`
	args := []any{f.TenantID, models.PropertyStatusActive}
	next := func(v any) int {
		args = append(args, v)
		return len(args)
	}

	if f.Operation != "" {
		clause += fmt.Sprintf(" AND p.operation = $%d", next(string(f.Operation)))
	}
	if f.Type != "" {
		clause += fmt.Sprintf(" AND LOWER(p.type) = LOWER($%d)", next(f.Type))
	}
	if f.BudgetMax != nil {
		clause += fmt.Sprintf(" AND p.price IS NOT NULL AND p.price <= $%d", next(*f.BudgetMax))
	}
	if zone := strings.TrimSpace(f.Zone); zone != "" {
		n := next(likePattern(zone))
		clause += fmt.Sprintf(" AND (p.neighborhood ILIKE $%d OR p.city ILIKE $%d OR p.address ILIKE $%d)", n, n, n)
	}
	if f.MinRooms != nil {
		clause += fmt.Sprintf(" AND p.rooms >= $%d", next(*f.MinRooms))
	}
	return clause, args
}

// ListMissingEmbedding returns active properties without a vector
func (r *PropertyRepository) ListMissingEmbedding(ctx context.Context, limit int) ([]RecordRef, error) {
	return listRefs(ctx, r.db, `
		SELECT id, tenant_id FROM properties
		WHERE embedding IS NULL AND status = 'Active'
		ORDER BY id
		LIMIT $1`, limit)
}

// UpdateEmbedding stores the search text and vector computed from p. The write
// only lands while the row still carries p.UpdatedAt; an edit in between
// yields ErrStaleRecord and the job recomputes from the fresh row.
func (r *PropertyRepository) UpdateEmbedding(ctx context.Context, p *models.Property, content string, vec models.Vector) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE properties SET search_content = $1, embedding = $2::vector
		WHERE id = $3 AND tenant_id = $4 AND updated_at = $5`,
		content, encodeVector(vec), p.ID, p.TenantID, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update property embedding: %w", err)
	}
	return expectCurrentRow(ctx, r.db, res, "properties", p.TenantID, p.ID)
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func listRefs(ctx context.Context, db *DB, query string, args ...any) ([]RecordRef, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []RecordRef
	for rows.Next() {
		var ref RecordRef
		if err := rows.Scan(&ref.ID, &ref.TenantID); err != nil {
			return nil, fmt.Errorf("failed to scan record ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func expectOneRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return nil
}

// expectCurrentRow tells a guarded update that matched nothing apart: the row
// is gone (ErrNotFound) or it changed since it was read (ErrStaleRecord).
func expectCurrentRow(ctx context.Context, db *DB, res sql.Result, table string, tenantID, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	err = db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1 AND tenant_id = $2)`, id, tenantID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s %d: %w", table, id, err)
	}
	if !exists {
		return fmt.Errorf("%s %d: %w", table, id, ErrNotFound)
	}
	return fmt.Errorf("%s %d: %w", table, id, ErrStaleRecord)
}
