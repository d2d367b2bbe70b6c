package models

import "time"

// ContactStatus is the lead temperature
type ContactStatus string

const (
	ContactStatusHot  ContactStatus = "HOT"
	ContactStatusWarm ContactStatus = "WARM"
	ContactStatusCold ContactStatus = "COLD"
)

// MaxLeadScore caps Contact.LeadScore
const MaxLeadScore = 100

// Contact is a lead or client of a tenant
type Contact struct {
	ID                   int64         `json:"id"`
	TenantID             int64         `json:"tenant_id"`
	Name                 string        `json:"name"`
	Alias                string        `json:"alias,omitempty"`
	Phone                string        `json:"phone"`
	Email                string        `json:"email,omitempty"`
	Status               ContactStatus `json:"status"`
	Type                 string        `json:"type,omitempty"`
	Source               string        `json:"source,omitempty"`
	Notes                string        `json:"notes,omitempty"`
	LeadScore            int           `json:"lead_score"`
	EmbeddingPreferences Vector        `json:"-"`
	LastContactDate      *time.Time    `json:"last_contact_date,omitempty"`
	CreatedByID          *int64        `json:"created_by_id,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// DisplayName prefers the stored name, then the chat alias
func (c *Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Alias != "" {
		return c.Alias
	}
	return c.Phone
}
