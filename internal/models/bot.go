package models

import "time"

// BotStatus tracks the messaging instance connection
type BotStatus string

const (
	BotStatusConnected    BotStatus = "connected"
	BotStatusDisconnected BotStatus = "disconnected"
)

// Bot is the conversational agent bound to one messaging instance
type Bot struct {
	ID            int64          `json:"id"`
	UserID        int64          `json:"user_id"`
	TenantID      int64          `json:"tenant_id"`
	Platform      string         `json:"platform"`
	InstanceName  string         `json:"instance_name"`
	SystemPrompt  string         `json:"system_prompt,omitempty"`
	BusinessHours WeeklySchedule `json:"business_hours,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Status        BotStatus      `json:"status"`
	IsActive      bool           `json:"is_active"`
	Timezone      string         `json:"timezone,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// EffectiveBusinessHours returns the configured hours or the all-day default
func (b *Bot) EffectiveBusinessHours() WeeklySchedule {
	if len(b.BusinessHours) == 0 {
		return DefaultBusinessHours()
	}
	return b.BusinessHours
}
