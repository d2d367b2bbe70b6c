package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/propcrm/realty-agent/internal/models"
)

// PhoneSuffixDigits is how many trailing digits identify a phone across formats
const PhoneSuffixDigits = 8

// ContactRepository handles contact database operations
type ContactRepository struct {
	db *DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `
	id, tenant_id, name, alias, phone, email, status, type, source, notes, lead_score,
	embedding_preferences::text, last_contact_date, created_by_id, created_at, updated_at`

func scanContact(row rowScanner) (*models.Contact, error) {
	c := &models.Contact{}
	var (
		status      string
		embedding   sql.NullString
		lastContact sql.NullTime
		createdBy   sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Alias, &c.Phone, &c.Email, &status, &c.Type,
		&c.Source, &c.Notes, &c.LeadScore, &embedding, &lastContact, &createdBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = models.ContactStatus(status)
	c.LastContactDate = nullableTime(lastContact)
	c.CreatedByID = nullableInt64(createdBy)
	if c.EmbeddingPreferences, err = decodeVector(embedding); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ContactRepository) getOne(ctx context.Context, query string, args ...any) (*models.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contact: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return c, nil
}

// GetByID returns a contact belonging to the tenant
func (r *ContactRepository) GetByID(ctx context.Context, tenantID, id int64) (*models.Contact, error) {
	return r.getOne(ctx, `SELECT`+contactColumns+` FROM contacts WHERE id = $1 AND tenant_id = $2`, id, tenantID)
}

// PhoneKey reduces a phone in any format to the trailing digits that identify it
func PhoneKey(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) > PhoneSuffixDigits {
		digits = digits[len(digits)-PhoneSuffixDigits:]
	}
	return digits
}

// FindByPhoneSuffix resolves a contact by PhoneKey, so "+54 9 341 555-1234"
// and the bare JID number 5493415551234 find the same row
func (r *ContactRepository) FindByPhoneSuffix(ctx context.Context, tenantID int64, phone string) (*models.Contact, error) {
	key := PhoneKey(phone)
	if key == "" {
		return nil, ErrNotFound
	}
	return r.getOne(ctx, `SELECT`+contactColumns+`
		FROM contacts
		WHERE tenant_id = $1 AND RIGHT(regexp_replace(phone, '\D', '', 'g'), $2) = $3
		ORDER BY id LIMIT 1`, tenantID, PhoneSuffixDigits, key)
}

// Create inserts a contact
func (r *ContactRepository) Create(ctx context.Context, c *models.Contact) error {
	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO contacts (tenant_id, name, alias, phone, email, status, type, source, notes,
			lead_score, last_contact_date, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING id, created_at, updated_at`,
		c.TenantID, c.Name, c.Alias, c.Phone, c.Email, string(c.Status), c.Type, c.Source, c.Notes,
		c.LeadScore, c.LastContactDate, c.CreatedByID, now,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// UpdateProfile persists notes and lead score. The preference vector no longer
// matches the notes, so it is cleared until the next embed.
func (r *ContactRepository) UpdateProfile(ctx context.Context, c *models.Contact) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET notes = $1, lead_score = $2, embedding_preferences = NULL, updated_at = $3
		WHERE id = $4 AND tenant_id = $5`,
		c.Notes, c.LeadScore, time.Now(), c.ID, c.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update contact profile: %w", err)
	}
	return expectOneRow(res, "contact", c.ID)
}

// TouchLastContact records the time of the latest inbound or outbound message
func (r *ContactRepository) TouchLastContact(ctx context.Context, tenantID, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET last_contact_date = $1, updated_at = $1
		WHERE id = $2 AND tenant_id = $3`, at, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update last contact date: %w", err)
	}
	return nil
}

// UpdateAlias stores the chat display name
func (r *ContactRepository) UpdateAlias(ctx context.Context, tenantID, id int64, alias string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET alias = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4`, alias, time.Now(), id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to update contact alias: %w", err)
	}
	return nil
}

// UpdateEmbedding stores the preference vector computed from c. The lead
// context only reads type and notes, so the write is guarded on those rather
// than updated_at, which every inbound message bumps. A profile update in
// between yields ErrStaleRecord.
func (r *ContactRepository) UpdateEmbedding(ctx context.Context, c *models.Contact, vec models.Vector) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts SET embedding_preferences = $1::vector, updated_at = $2
		WHERE id = $3 AND tenant_id = $4 AND type = $5 AND notes = $6`,
		encodeVector(vec), time.Now(), c.ID, c.TenantID, c.Type, c.Notes)
	if err != nil {
		return fmt.Errorf("failed to update contact embedding: %w", err)
	}
	return expectCurrentRow(ctx, r.db, res, "contacts", c.TenantID, c.ID)
}

// ListMissingEmbedding returns contacts with notes but no preference vector
func (r *ContactRepository) ListMissingEmbedding(ctx context.Context, limit int) ([]RecordRef, error) {
	return listRefs(ctx, r.db, `
		SELECT id, tenant_id FROM contacts
		WHERE embedding_preferences IS NULL AND notes <> ''
		ORDER BY id
		LIMIT $1`, limit)
}

// RankByPreferences orders the tenant's leads by cosine similarity between
// their preference vector and vec, most similar first
func (r *ContactRepository) RankByPreferences(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]Ranked[*models.Contact], error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+contactColumns+`, 1 - (embedding_preferences <=> $2::vector)
		FROM contacts
		WHERE tenant_id = $1 AND embedding_preferences IS NOT NULL
		ORDER BY embedding_preferences <=> $2::vector, updated_at DESC, id DESC
		LIMIT $3`, tenantID, encodeVector(vec), sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to rank contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Ranked[*models.Contact]
	for rows.Next() {
		var similarity float64
		c, err := scanContact(withTrailing(rows, &similarity))
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		out = append(out, Ranked[*models.Contact]{Item: c, Similarity: similarity})
	}
	return out, rows.Err()
}
