package models

import "time"

// EventStatus is the lifecycle state of a calendar event
type EventStatus string

const (
	EventStatusPending   EventStatus = "PENDING"
	EventStatusConfirmed EventStatus = "CONFIRMED"
	EventStatusCancelled EventStatus = "CANCELLED"
	EventStatusCompleted EventStatus = "COMPLETED"
)

// EventTypeVisit marks a property visit
const EventTypeVisit = "VISIT"

// CalendarEvent is an agent's appointment
type CalendarEvent struct {
	ID              int64       `json:"id"`
	TenantID        int64       `json:"tenant_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description,omitempty"`
	Type            string      `json:"type"`
	Source          string      `json:"source,omitempty"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	AgentID         int64       `json:"agent_id"`
	ContactID       *int64      `json:"contact_id,omitempty"`
	ContactName     string      `json:"contact_name,omitempty"`
	PropertyID      *int64      `json:"property_id,omitempty"`
	PropertyAddress string      `json:"property_address,omitempty"`
	Status          EventStatus `json:"status"`
	ExternalEventID string      `json:"external_event_id,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Overlaps reports whether the event intersects [start, end)
func (e *CalendarEvent) Overlaps(start, end time.Time) bool {
	return e.StartTime.Before(end) && e.EndTime.After(start)
}

// CredentialOwner says whose account a calendar credential belongs to
type CredentialOwner string

const (
	CredentialOwnerAgent  CredentialOwner = "agent"
	CredentialOwnerAgency CredentialOwner = "agency"
)

// CalendarCredential holds OAuth tokens for an external calendar account
type CalendarCredential struct {
	ID           int64           `json:"id"`
	TenantID     int64           `json:"tenant_id"`
	OwnerType    CredentialOwner `json:"owner_type"`
	OwnerID      int64           `json:"owner_id"`
	Email        string          `json:"email"`
	AccessToken  string          `json:"-"`
	RefreshToken string          `json:"-"`
	TokenExpiry  *time.Time      `json:"token_expiry,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
