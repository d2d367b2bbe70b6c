package models

import "time"

// Deal tracks a commercial opportunity through a pipeline
type Deal struct {
	ID              int64     `json:"id"`
	TenantID        int64     `json:"tenant_id"`
	Title           string    `json:"title"`
	ContactID       int64     `json:"contact_id"`
	PropertyID      *int64    `json:"property_id,omitempty"`
	AgentID         int64     `json:"agent_id"`
	PipelineStageID int64     `json:"pipeline_stage_id"`
	Value           *float64  `json:"value,omitempty"`
	Currency        string    `json:"currency,omitempty"`
	Source          string    `json:"source,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// PipelineStage is one column of a sales pipeline
type PipelineStage struct {
	ID         int64  `json:"id"`
	PipelineID int64  `json:"pipeline_id"`
	Name       string `json:"name"`
	Position   int    `json:"position"`
}

// Activity actions written to the audit trail
const (
	ActionVisitScheduled   = "VISIT_SCHEDULED"
	ActionWhatsAppReceived = "WHATSAPP_RECEIVED"
	ActionWhatsAppSent     = "WHATSAPP_SENT"
	ActionLeadUpdated      = "LEAD_PROFILE_UPDATED"
)

// ActivityLog is an audit trail entry
type ActivityLog struct {
	ID          int64     `json:"id"`
	TenantID    int64     `json:"tenant_id"`
	UserID      *int64    `json:"user_id,omitempty"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    int64     `json:"entity_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
