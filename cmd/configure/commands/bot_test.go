package commands

import (
	"strings"
	"testing"
)

func TestParseBotFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		yaml       string
		wantErr    string
		wantActive bool
		wantDays   int
	}{
		{
			name: "full document",
			yaml: `
user_id: 3
instance_name: inmobiliaria-centro
system_prompt: |
  Sos el asistente de Inmobiliaria Centro.
business_hours:
  Mon: {enabled: true, start: "09:00", end: "18:00"}
  Sat: {enabled: true, start: "10:00", end: "13:00"}
  Sun: {enabled: false}
tags: [ventas, alquileres]
`,
			wantActive: true,
			wantDays:   3,
		},
		{
			name:       "paused bot without hours",
			yaml:       "user_id: 3\ninstance_name: bot-1\nactive: false\n",
			wantActive: false,
		},
		{name: "missing owner", yaml: "instance_name: bot-1\n", wantErr: "user_id (required)"},
		{name: "unknown field", yaml: "user_id: 3\ninstance_name: bot-1\nhours: {}\n", wantErr: "field hours not found"},
		{name: "unsupported platform", yaml: "user_id: 3\ninstance_name: bot-1\nplatform: telegram\n", wantErr: "platform (oneof=whatsapp)"},
		{
			name:    "bad weekday",
			yaml:    "user_id: 3\ninstance_name: bot-1\nbusiness_hours:\n  Lunes: {enabled: true, start: \"09:00\", end: \"18:00\"}\n",
			wantErr: `unknown weekday "Lunes"`,
		},
		{
			name:    "bad clock",
			yaml:    "user_id: 3\ninstance_name: bot-1\nbusiness_hours:\n  Mon: {enabled: true, start: \"9am\", end: \"18:00\"}\n",
			wantErr: "Mon hours must be HH:MM",
		},
		{
			name:    "closes before opening",
			yaml:    "user_id: 3\ninstance_name: bot-1\nbusiness_hours:\n  Mon: {enabled: true, start: \"18:00\", end: \"09:00\"}\n",
			wantErr: "Mon opens at 18:00 but closes at 09:00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bot, err := parseBotFile([]byte(tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parseBotFile() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseBotFile() unexpected error: %v", err)
			}
			if bot.Platform != "whatsapp" || bot.IsActive != tt.wantActive || len(bot.BusinessHours) != tt.wantDays {
				t.Errorf("bot = %+v", bot)
			}
		})
	}
}
