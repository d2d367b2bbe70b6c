package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/propcrm/realty-agent/internal/models"
)

// CalendarEventRepository handles calendar event database operations
type CalendarEventRepository struct {
	db *DB
}

// NewCalendarEventRepository creates a new calendar event repository
func NewCalendarEventRepository(db *DB) *CalendarEventRepository {
	return &CalendarEventRepository{db: db}
}

// EventWindow selects the events that compete for a time range.
// With PropertyID set only that property's events count, otherwise the agent's.
type EventWindow struct {
	TenantID   int64
	AgentID    int64
	PropertyID *int64
	Start      time.Time
	End        time.Time
}

func (w EventWindow) scope() (string, any) {
	if w.PropertyID != nil {
		return "property_id", *w.PropertyID
	}
	return "agent_id", w.AgentID
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ListOverlapping returns non-cancelled events intersecting the window
func (r *CalendarEventRepository) ListOverlapping(ctx context.Context, w EventWindow) ([]*models.CalendarEvent, error) {
	return listOverlapping(ctx, r.db, w)
}

func listOverlapping(ctx context.Context, q queryer, w EventWindow) ([]*models.CalendarEvent, error) {
	column, value := w.scope()
	query := fmt.Sprintf(`
		SELECT id, tenant_id, title, description, type, source, start_time, end_time, agent_id,
			contact_id, contact_name, property_id, property_address, status, external_event_id, created_at
		FROM calendar_events
		WHERE tenant_id = $1 AND %s = $2 AND status <> $3
			AND start_time < $4 AND end_time > $5
		ORDER BY start_time`, column)

	rows, err := q.QueryContext(ctx, query, w.TenantID, value, models.EventStatusCancelled, w.End, w.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.CalendarEvent
	for rows.Next() {
		e := &models.CalendarEvent{}
		var contactID, propertyID sql.NullInt64
		var status string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Title, &e.Description, &e.Type, &e.Source,
			&e.StartTime, &e.EndTime, &e.AgentID, &contactID, &e.ContactName, &propertyID,
			&e.PropertyAddress, &status, &e.ExternalEventID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan calendar event: %w", err)
		}
		e.ContactID = nullableInt64(contactID)
		e.PropertyID = nullableInt64(propertyID)
		e.Status = models.EventStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CreateWithCapacity inserts the event unless the slot already holds capacity
// overlapping events. Bookings for the same property (or agent) are serialized
// by a transaction-scoped advisory lock, so the count and insert are atomic.
func (r *CalendarEventRepository) CreateWithCapacity(ctx context.Context, e *models.CalendarEvent, capacity int) error {
	if capacity <= 0 {
		capacity = models.DefaultMaxSimultaneousVisits
	}
	w := EventWindow{TenantID: e.TenantID, AgentID: e.AgentID, PropertyID: e.PropertyID, Start: e.StartTime, End: e.EndTime}
	column, value := w.scope()
	lockKey := fmt.Sprintf("visit:%s:%v", column, value)

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
			return fmt.Errorf("failed to acquire booking lock: %w", err)
		}
		existing, err := listOverlapping(ctx, tx, w)
		if err != nil {
			return err
		}
		if len(existing) >= capacity {
			return ErrSlotUnavailable
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO calendar_events (tenant_id, title, description, type, source, start_time, end_time,
				agent_id, contact_id, contact_name, property_id, property_address, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			RETURNING id, created_at`,
			e.TenantID, e.Title, e.Description, e.Type, e.Source, e.StartTime, e.EndTime,
			e.AgentID, e.ContactID, e.ContactName, e.PropertyID, e.PropertyAddress, string(e.Status), time.Now(),
		).Scan(&e.ID, &e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create calendar event: %w", err)
		}
		return nil
	})
}

// SetExternalID records the id assigned by the external calendar
func (r *CalendarEventRepository) SetExternalID(ctx context.Context, tenantID, id int64, externalID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE calendar_events SET external_event_id = $1 WHERE id = $2 AND tenant_id = $3`,
		externalID, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to set external event id: %w", err)
	}
	return nil
}
