package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/propcrm/realty-agent/internal/models"
)

// CredentialRepository stores linked external calendar accounts
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetForAgent returns the agent's own calendar credential
func (r *CredentialRepository) GetForAgent(ctx context.Context, tenantID, agentID int64) (*models.CalendarCredential, error) {
	return r.get(ctx, `WHERE tenant_id = $1 AND owner_type = 'agent' AND owner_id = $2`, tenantID, agentID)
}

// GetForAgency returns the tenant-wide agency calendar credential
func (r *CredentialRepository) GetForAgency(ctx context.Context, tenantID int64) (*models.CalendarCredential, error) {
	return r.get(ctx, `WHERE tenant_id = $1 AND owner_type = 'agency' ORDER BY id LIMIT 1`, tenantID)
}

func (r *CredentialRepository) get(ctx context.Context, where string, args ...any) (*models.CalendarCredential, error) {
	c := &models.CalendarCredential{}
	var owner string
	var expiry sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, owner_type, owner_id, email, access_token, refresh_token, token_expiry, updated_at
		FROM calendar_credentials `+where, args...).Scan(
		&c.ID, &c.TenantID, &owner, &c.OwnerID, &c.Email, &c.AccessToken, &c.RefreshToken, &expiry, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calendar credential: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar credential: %w", err)
	}
	c.OwnerType = models.CredentialOwner(owner)
	c.TokenExpiry = nullableTime(expiry)
	return c, nil
}

// UpdateToken persists a refreshed access token
func (r *CredentialRepository) UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calendar_credentials
		SET access_token = $1, refresh_token = COALESCE(NULLIF($2, ''), refresh_token), token_expiry = $3, updated_at = $4
		WHERE id = $5`, accessToken, refreshToken, expiry, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update calendar token: %w", err)
	}
	return nil
}

// Clear removes a credential that can no longer be refreshed
func (r *CredentialRepository) Clear(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM calendar_credentials WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear calendar credential: %w", err)
	}
	return nil
}
