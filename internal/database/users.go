package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/propcrm/realty-agent/internal/models"
)

// UserRepository handles agent account lookups
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns an agent belonging to the tenant
func (r *UserRepository) GetByID(ctx context.Context, tenantID, id int64) (*models.User, error) {
	u := &models.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, first_name, last_name, email, phone_mobile, timezone, created_at
		FROM users WHERE id = $1 AND tenant_id = $2`, id, tenantID).Scan(
		&u.ID, &u.TenantID, &u.FirstName, &u.LastName, &u.Email, &u.PhoneMobile, &u.Timezone, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}
