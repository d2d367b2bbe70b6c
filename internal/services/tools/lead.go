package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/logger"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/semantic"
	"github.com/propcrm/realty-agent/internal/validation"
)

// LeadScoreIncrement is added to a contact's score on every profile update
const LeadScoreIncrement = 5

const (
	msgProfileUpdated   = "Listo, registré las preferencias del cliente."
	msgProfileUnchanged = "Esas preferencias ya estaban registradas."
	noteTimestampLayout = "2006-01-02 15:04"
)

type leadArgs struct {
	Budget       *float64 `json:"budget,omitempty" validate:"omitempty,gt=0"`
	Zone         string   `json:"zone,omitempty" validate:"max=100"`
	PropertyType string   `json:"property_type,omitempty" validate:"max=32"`
	Operation    string   `json:"operation,omitempty" validate:"max=32"`
	Notes        string   `json:"notes,omitempty" validate:"max=500"`
}

// serialize renders the preference line without its timestamp; it is the dedup key
func (a leadArgs) serialize() string {
	var parts []string
	if a.Budget != nil {
		parts = append(parts, "presupuesto="+strconv.FormatFloat(*a.Budget, 'f', -1, 64))
	}
	if z := strings.TrimSpace(a.Zone); z != "" {
		parts = append(parts, "zona="+z)
	}
	if t := semantic.NormalizeType(a.PropertyType); t != "" {
		parts = append(parts, "tipo="+t)
	}
	if op := semantic.NormalizeOperation(a.Operation); op != "" {
		parts = append(parts, "operación="+string(op))
	}
	if n := validation.SanitizeText(a.Notes); n != "" {
		parts = append(parts, "notas="+strings.ReplaceAll(n, "\n", " "))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Preferencias: " + strings.Join(parts, "; ")
}

func (ts *toolset) updateLeadProfile() Tool {
	params := object(nil, map[string]any{
		"budget":        prop("number", "Presupuesto máximo del cliente."),
		"zone":          prop("string", "Zona o barrio de interés."),
		"property_type": prop("string", "Tipo de propiedad buscada."),
		"operation":     prop("string", "Compra o alquiler."),
		"notes":         prop("string", "Otras preferencias relevantes (mascotas, cochera, etc)."),
	})
	return newTool(UpdateLeadProfile,
		"Guarda en la ficha del cliente las preferencias que mencionó en la conversación.",
		params, ts.runUpdateLead)
}

func (ts *toolset) runUpdateLead(ctx context.Context, sess Session, args leadArgs) (string, error) {
	line := args.serialize()
	if line == "" {
		return "", &ArgumentError{Tool: UpdateLeadProfile, Detail: "indicá al menos un dato (budget, zone, property_type, operation o notes)"}
	}
	contact, err := ts.contact(ctx, sess)
	if errors.Is(err, database.ErrNotFound) {
		return MsgContactUnknown, nil
	}
	if err != nil {
		return "", err
	}

	if containsLine(contact.Notes, line) {
		return msgProfileUnchanged, nil
	}

	stamped := fmt.Sprintf("[%s] %s", ts.now().In(ts.location()).Format(noteTimestampLayout), line)
	if contact.Notes == "" {
		contact.Notes = stamped
	} else {
		contact.Notes = contact.Notes + "\n" + stamped
	}
	contact.LeadScore = min(contact.LeadScore+LeadScoreIncrement, models.MaxLeadScore)

	if err := ts.Contacts.UpdateProfile(ctx, contact); err != nil {
		return "", err
	}

	if ts.Embeds != nil {
		if err := ts.Embeds.EnqueueContactEmbedding(ctx, contact.TenantID, contact.ID); err != nil {
			ts.logger.Warn("failed_to_enqueue_contact_embedding",
				zap.Int64("contact_id", contact.ID),
				zap.Error(err),
			)
		}
	}
	if ts.Activity != nil {
		entry := &models.ActivityLog{
			TenantID:    sess.TenantID,
			Action:      models.ActionLeadUpdated,
			EntityType:  "CONTACT",
			EntityID:    contact.ID,
			Description: line,
		}
		if sess.AgentID != 0 {
			entry.UserID = &sess.AgentID
		}
		if err := ts.Activity.Log(ctx, entry); err != nil {
			ts.logger.Warn("failed_to_log_activity", zap.String("action", entry.Action), zap.Error(err))
		}
	}

	ts.logger.Info("lead_profile_updated",
		zap.Int64("contact_id", contact.ID),
		zap.String("phone", logger.MaskPhone(sess.Phone)),
		zap.Int("lead_score", contact.LeadScore),
	)
	return msgProfileUpdated, nil
}

// containsLine reports whether any stored note line carries exactly this content
func containsLine(notes, line string) bool {
	for _, stored := range strings.Split(notes, "\n") {
		stored = strings.TrimSpace(stored)
		if i := strings.Index(stored, "] "); strings.HasPrefix(stored, "[") && i > 0 {
			stored = stored[i+2:]
		}
		if stored == line {
			return true
		}
	}
	return false
}
