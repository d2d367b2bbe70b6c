package models

import "time"

// Role identifies the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation log
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	BotInstance    string    `json:"bot_instance"`
	Role           Role      `json:"role"`
	Parts          []string  `json:"parts"`
	CreatedAt      time.Time `json:"created_at"`
}

// Text joins the message parts
func (m *Message) Text() string {
	switch len(m.Parts) {
	case 0:
		return ""
	case 1:
		return m.Parts[0]
	}
	out := m.Parts[0]
	for _, p := range m.Parts[1:] {
		out += "\n" + p
	}
	return out
}

// Conversation is the per-chat metadata row
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	BotInstance    string    `json:"bot_instance"`
	LastMessageAt  time.Time `json:"last_message_at"`
	LastSender     Role      `json:"last_sender"`
}
