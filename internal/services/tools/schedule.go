package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/availability"
	"github.com/propcrm/realty-agent/internal/services/calendarsync"
	"github.com/propcrm/realty-agent/internal/validation"
)

// SourceWhatsAppBot marks records created by the agent
const SourceWhatsAppBot = "WHATSAPP_BOT"

const (
	msgBadDateTime = "No entendí la fecha u hora. Usá el formato AAAA-MM-DD para la fecha y HH:MM para la hora."
	msgPastSlot    = "Ese horario ya pasó. Elegí una fecha y hora futuras."
)

type scheduleArgs struct {
	PropertyID int64  `json:"property_id" validate:"required,gt=0"`
	Date       string `json:"date" validate:"required"`
	Time       string `json:"time" validate:"required"`
}

func (ts *toolset) scheduleVisit() Tool {
	params := object([]string{"property_id", "date", "time"}, map[string]any{
		"property_id": prop("integer", "ID de la propiedad a visitar."),
		"date":        prop("string", "Fecha de la visita, formato AAAA-MM-DD."),
		"time":        prop("string", "Hora de inicio, formato HH:MM (24 hs)."),
	})
	return newTool(ScheduleVisit,
		"Agenda una visita confirmada a una propiedad para el cliente de esta conversación.",
		params, ts.runSchedule)
}

func (ts *toolset) runSchedule(ctx context.Context, sess Session, args scheduleArgs) (string, error) {
	contact, err := ts.contact(ctx, sess)
	if errors.Is(err, database.ErrNotFound) {
		return MsgContactUnknown, nil
	}
	if err != nil {
		return "", err
	}

	property, err := ts.Properties.GetByID(ctx, sess.TenantID, args.PropertyID)
	if errors.Is(err, database.ErrNotFound) {
		return MsgPropertyNotFound, nil
	}
	if err != nil {
		return "", err
	}

	loc := ts.location()
	start, err := time.ParseInLocation(validation.DateLayout+" "+validation.TimeLayout, args.Date+" "+args.Time, loc)
	if err != nil {
		return msgBadDateTime, nil
	}
	if start.Before(ts.now()) {
		return msgPastSlot, nil
	}
	end := start.Add(time.Duration(property.SlotMinutes()) * time.Minute)

	agentID := sess.AgentID
	if property.AssignedAgentID != nil {
		agentID = *property.AssignedAgentID
	}
	event := &models.CalendarEvent{
		TenantID:        sess.TenantID,
		Title:           "Visita: " + property.Title,
		Description:     fmt.Sprintf("Visita agendada por WhatsApp con %s (%s).", contact.DisplayName(), contact.Phone),
		Type:            models.EventTypeVisit,
		Source:          SourceWhatsAppBot,
		StartTime:       start,
		EndTime:         end,
		AgentID:         agentID,
		ContactID:       &contact.ID,
		ContactName:     contact.DisplayName(),
		PropertyID:      &property.ID,
		PropertyAddress: property.Address,
		Status:          models.EventStatusConfirmed,
	}

	err = ts.Events.CreateWithCapacity(ctx, event, property.Capacity())
	if errors.Is(err, database.ErrSlotUnavailable) {
		return ts.slotTaken(ctx, sess, property, start)
	}
	if err != nil {
		return "", err
	}

	ts.logger.Info("visit_scheduled",
		zap.Int64("event_id", event.ID),
		zap.Int64("property_id", property.ID),
		zap.Int64("contact_id", contact.ID),
		zap.Time("start", start),
	)

	// The booking is committed; everything below is best effort.
	ts.openDeal(ctx, property, contact, agentID)
	ts.audit(ctx, event, contact, agentID)
	ts.syncCalendar(ctx, event)

	return fmt.Sprintf("Visita confirmada para el %s %s a las %s en %s.",
		weekdayES[start.Weekday()], start.Format("02/01"), start.Format(validation.TimeLayout), addressOf(property)), nil
}

func (ts *toolset) slotTaken(ctx context.Context, sess Session, property *models.Property, start time.Time) (string, error) {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	slots, err := ts.Availability.Available(ctx, availability.Query{
		TenantID:      sess.TenantID,
		AgentID:       sess.AgentID,
		PropertyID:    &property.ID,
		From:          day,
		Days:          1,
		BusinessHours: sess.BusinessHours,
	})
	if err != nil {
		ts.logger.Warn("failed_to_compute_alternatives", zap.Int64("property_id", property.ID), zap.Error(err))
		return "Ese horario ya no está disponible. Consultá otros horarios con get_availability.", nil
	}
	if len(slots) == 0 {
		return fmt.Sprintf("Ese horario ya no está disponible y no quedan horarios libres el %s.", day.Format(validation.DateLayout)), nil
	}
	return fmt.Sprintf("Ese horario ya no está disponible. Horarios libres el %s: %s.", day.Format(validation.DateLayout), formatTimes(slots)), nil
}

func (ts *toolset) openDeal(ctx context.Context, property *models.Property, contact *models.Contact, agentID int64) {
	if ts.Deals == nil {
		return
	}
	stage, err := ts.Deals.InitialStage(ctx, property.TenantID)
	if err != nil {
		ts.logger.Warn("failed_to_resolve_pipeline_stage", zap.Int64("tenant_id", property.TenantID), zap.Error(err))
		return
	}
	deal := &models.Deal{
		TenantID:        property.TenantID,
		Title:           fmt.Sprintf("%s - %s", property.Title, contact.DisplayName()),
		ContactID:       contact.ID,
		PropertyID:      &property.ID,
		AgentID:         agentID,
		PipelineStageID: stage.ID,
		Value:           property.Price,
		Currency:        property.Currency,
		Source:          SourceWhatsAppBot,
	}
	if err := ts.Deals.Create(ctx, deal); err != nil {
		ts.logger.Warn("failed_to_create_deal",
			zap.Int64("property_id", property.ID),
			zap.Int64("contact_id", contact.ID),
			zap.Error(err),
		)
	}
}

func (ts *toolset) audit(ctx context.Context, event *models.CalendarEvent, contact *models.Contact, agentID int64) {
	if ts.Activity == nil {
		return
	}
	entry := &models.ActivityLog{
		TenantID:    event.TenantID,
		UserID:      &agentID,
		Action:      models.ActionVisitScheduled,
		EntityType:  "EVENT",
		EntityID:    event.ID,
		Description: fmt.Sprintf("Visita agendada por el bot con %s: %s", contact.DisplayName(), event.StartTime.Format(noteTimestampLayout)),
	}
	if err := ts.Activity.Log(ctx, entry); err != nil {
		ts.logger.Warn("failed_to_log_activity", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (ts *toolset) syncCalendar(ctx context.Context, event *models.CalendarEvent) {
	if ts.Calendar == nil {
		return
	}
	res := ts.Calendar.Sync(ctx, event)
	if res.Status != calendarsync.StatusSynced || res.ExternalEventID == "" {
		return
	}
	event.ExternalEventID = res.ExternalEventID
	if err := ts.Events.SetExternalID(ctx, event.TenantID, event.ID, res.ExternalEventID); err != nil {
		ts.logger.Warn("failed_to_store_external_event_id", zap.Int64("event_id", event.ID), zap.Error(err))
	}
}

func addressOf(p *models.Property) string {
	if p.Address != "" {
		return p.Address
	}
	return p.Title
}
