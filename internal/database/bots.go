package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/propcrm/realty-agent/internal/models"
)

// BotRepository handles bot configuration
type BotRepository struct {
	db *DB
}

// NewBotRepository creates a new bot repository
func NewBotRepository(db *DB) *BotRepository {
	return &BotRepository{db: db}
}

// GetByInstance resolves a bot and its owner's tenant from the messaging instance name
func (r *BotRepository) GetByInstance(ctx context.Context, instance string) (*models.Bot, error) {
	b := &models.Bot{}
	var hours, tags []byte
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT b.id, b.user_id, u.tenant_id, b.platform, b.instance_name, b.system_prompt,
			b.business_hours, b.tags, b.status, b.is_active, u.timezone, b.created_at, b.updated_at
		FROM bots b
		JOIN users u ON u.id = b.user_id
		WHERE b.instance_name = $1`, instance).Scan(
		&b.ID, &b.UserID, &b.TenantID, &b.Platform, &b.InstanceName, &b.SystemPrompt,
		&hours, &tags, &status, &b.IsActive, &b.Timezone, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bot %q: %w", instance, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	b.Status = models.BotStatus(status)
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &b.BusinessHours); err != nil {
			return nil, fmt.Errorf("failed to unmarshal business hours: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &b.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bot tags: %w", err)
		}
	}
	return b, nil
}

// Upsert creates or replaces the bot for (user, platform)
func (r *BotRepository) Upsert(ctx context.Context, b *models.Bot) error {
	var hours any
	if len(b.BusinessHours) > 0 {
		raw, err := json.Marshal(b.BusinessHours)
		if err != nil {
			return fmt.Errorf("failed to marshal business hours: %w", err)
		}
		hours = raw
	}
	tags, err := json.Marshal(b.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal bot tags: %w", err)
	}
	if b.Tags == nil {
		tags = []byte("[]")
	}
	if b.Status == "" {
		b.Status = models.BotStatusDisconnected
	}

	now := time.Now()
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO bots (user_id, platform, instance_name, system_prompt, business_hours, tags, status, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (user_id, platform) DO UPDATE
		SET instance_name = EXCLUDED.instance_name,
		    system_prompt = EXCLUDED.system_prompt,
		    business_hours = EXCLUDED.business_hours,
		    tags = EXCLUDED.tags,
		    is_active = EXCLUDED.is_active,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`,
		b.UserID, b.Platform, b.InstanceName, b.SystemPrompt, hours, tags, string(b.Status), b.IsActive, now,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert bot: %w", err)
	}
	return nil
}

// SetStatus records the messaging connection state
func (r *BotRepository) SetStatus(ctx context.Context, id int64, status models.BotStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bots SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update bot status: %w", err)
	}
	return nil
}
