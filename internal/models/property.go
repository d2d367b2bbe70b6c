package models

import "time"

// PropertyStatus marks whether a listing is live
type PropertyStatus string

const (
	PropertyStatusActive  PropertyStatus = "Active"
	PropertyStatusDeleted PropertyStatus = "Deleted"
)

// Operation is the commercial operation a listing is offered under
type Operation string

const (
	OperationSale Operation = "Sale"
	OperationRent Operation = "Rent"
)

// Default visit settings used when a property leaves them unset
const (
	DefaultVisitDuration         = 30
	DefaultMaxSimultaneousVisits = 1
)

// Property represents a listing owned by a tenant
type Property struct {
	ID                      int64          `json:"id"`
	TenantID                int64          `json:"tenant_id"`
	Code                    string         `json:"code,omitempty"`
	Title                   string         `json:"title"`
	Address                 string         `json:"address,omitempty"`
	City                    string         `json:"city,omitempty"`
	Neighborhood            string         `json:"neighborhood,omitempty"`
	Type                    string         `json:"type,omitempty"`
	Operation               Operation      `json:"operation,omitempty"`
	Status                  PropertyStatus `json:"status"`
	Price                   *float64       `json:"price,omitempty"`
	Currency                string         `json:"currency,omitempty"`
	Rooms                   *int           `json:"rooms,omitempty"`
	Bedrooms                *int           `json:"bedrooms,omitempty"`
	Surface                 *float64       `json:"surface,omitempty"`
	Description             string         `json:"description,omitempty"`
	Attributes              []string       `json:"attributes,omitempty"`
	Lat                     *float64       `json:"lat,omitempty"`
	Lng                     *float64       `json:"lng,omitempty"`
	AssignedAgentID         *int64         `json:"assigned_agent_id,omitempty"`
	AgentName               string         `json:"agent_name,omitempty"`
	AgentPhone              string         `json:"agent_phone,omitempty"`
	VisitDuration           *int           `json:"visit_duration,omitempty"`
	MaxSimultaneousVisits   *int           `json:"max_simultaneous_visits,omitempty"`
	VisitAvailability       WeeklySchedule `json:"visit_availability,omitempty"`
	TransactionRequirements string         `json:"transaction_requirements,omitempty"`
	SearchContent           string         `json:"-"`
	Embedding               Vector         `json:"-"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// SlotMinutes returns the visit length in minutes, falling back to the default
func (p *Property) SlotMinutes() int {
	if p.VisitDuration == nil || *p.VisitDuration <= 0 {
		return DefaultVisitDuration
	}
	return *p.VisitDuration
}

// Capacity returns how many visits may share a slot
func (p *Property) Capacity() int {
	if p.MaxSimultaneousVisits == nil || *p.MaxSimultaneousVisits <= 0 {
		return DefaultMaxSimultaneousVisits
	}
	return *p.MaxSimultaneousVisits
}

// Zone is the most specific location label available
func (p *Property) Zone() string {
	switch {
	case p.Neighborhood != "":
		return p.Neighborhood
	case p.City != "":
		return p.City
	default:
		return p.Address
	}
}

// Development is a multi-unit project listed by a tenant
type Development struct {
	ID            int64     `json:"id"`
	TenantID      int64     `json:"tenant_id"`
	Code          string    `json:"code,omitempty"`
	Name          string    `json:"name"`
	Address       string    `json:"address,omitempty"`
	Status        string    `json:"status,omitempty"`
	Description   string    `json:"description,omitempty"`
	Amenities     []string  `json:"amenities,omitempty"`
	Typologies    []string  `json:"typologies,omitempty"`
	SearchContent string    `json:"-"`
	Embedding     Vector    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
