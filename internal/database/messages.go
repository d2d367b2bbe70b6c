package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/propcrm/realty-agent/internal/models"
)

// MessageRepository is the append-only conversation log
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append stores a message and bumps the conversation metadata in one transaction
func (r *MessageRepository) Append(ctx context.Context, msg *models.Message) error {
	parts, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("failed to marshal message parts: %w", err)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO chat_history (conversation_id, bot_instance, role, parts, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			msg.ConversationID, msg.BotInstance, string(msg.Role), parts, msg.CreatedAt,
		).Scan(&msg.ID)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bot_conversations (bot_instance, conversation_id, last_message_at, last_sender)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (bot_instance, conversation_id) DO UPDATE
			SET last_message_at = EXCLUDED.last_message_at, last_sender = EXCLUDED.last_sender`,
			msg.BotInstance, msg.ConversationID, msg.CreatedAt, string(msg.Role))
		if err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		return nil
	})
}

// Recent returns up to limit messages of a conversation, oldest first
func (r *MessageRepository) Recent(ctx context.Context, botInstance, conversationID string, limit int) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, bot_instance, role, parts, created_at
		FROM chat_history
		WHERE bot_instance = $1 AND conversation_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, botInstance, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var role string
		var parts []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.BotInstance, &role, &parts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = models.Role(role)
		if err := json.Unmarshal(parts, &m.Parts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message parts: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}
