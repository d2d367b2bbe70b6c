package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/propcrm/realty-agent/internal/services/availability"
	"github.com/propcrm/realty-agent/internal/validation"
)

var weekdayES = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "lunes",
	time.Tuesday:   "martes",
	time.Wednesday: "miércoles",
	time.Thursday:  "jueves",
	time.Friday:    "viernes",
	time.Saturday:  "sábado",
}

// WeekdayName returns the Spanish weekday name used in replies
func WeekdayName(d time.Weekday) string {
	return weekdayES[d]
}

type availabilityArgs struct {
	PropertyID int64  `json:"property_id" validate:"required,gt=0"`
	Date       string `json:"date,omitempty" validate:"omitempty,isodate"`
	Days       int    `json:"days,omitempty" validate:"omitempty,min=1,max=14"`
}

// DaySlots groups the free start times of one date
type DaySlots struct {
	Date  string   `json:"date"`
	Day   string   `json:"day"`
	Times []string `json:"times"`
}

type availabilityResult struct {
	PropertyID  int64      `json:"property_id"`
	SlotMinutes int        `json:"slot_minutes"`
	Days        []DaySlots `json:"days"`
}

func (ts *toolset) getAvailability() Tool {
	params := object([]string{"property_id"}, map[string]any{
		"property_id": prop("integer", "ID de la propiedad a visitar."),
		"date":        prop("string", "Fecha puntual a consultar, formato AAAA-MM-DD."),
		"days":        prop("integer", "Cantidad de días a consultar desde la fecha (por defecto 3, o 1 si se indica fecha)."),
	})
	return newTool(GetAvailability,
		"Consulta los días y horarios libres para visitar una propiedad.",
		params, ts.runAvailability)
}

func (ts *toolset) runAvailability(ctx context.Context, sess Session, args availabilityArgs) (string, error) {
	loc := ts.location()
	q := availability.Query{
		TenantID:      sess.TenantID,
		AgentID:       sess.AgentID,
		PropertyID:    &args.PropertyID,
		Days:          args.Days,
		BusinessHours: sess.BusinessHours,
	}
	if args.Date != "" {
		from, err := time.ParseInLocation(validation.DateLayout, args.Date, loc)
		if err != nil {
			return "", &ArgumentError{Tool: GetAvailability, Detail: "date (isodate)"}
		}
		q.From = from
		if q.Days == 0 {
			q.Days = 1
		}
	}

	slots, err := ts.Availability.Available(ctx, q)
	if errors.Is(err, availability.ErrPropertyNotFound) {
		return MsgPropertyNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		days := q.Days
		if days == 0 {
			days = availability.DefaultDays
		}
		if args.Date != "" && days == 1 {
			return fmt.Sprintf("No hay horarios disponibles para visitar la propiedad %d el %s.", args.PropertyID, args.Date), nil
		}
		return fmt.Sprintf("No hay horarios disponibles para visitar la propiedad %d en los próximos %d días.", args.PropertyID, days), nil
	}

	res := availabilityResult{PropertyID: args.PropertyID, Days: groupSlots(slots)}
	start, errStart := time.Parse(validation.TimeLayout, slots[0].Start)
	end, errEnd := time.Parse(validation.TimeLayout, slots[0].End)
	if errStart == nil && errEnd == nil {
		res.SlotMinutes = int(end.Sub(start).Minutes())
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode availability: %w", err)
	}
	return string(raw), nil
}

func groupSlots(slots []availability.Slot) []DaySlots {
	var out []DaySlots
	for _, s := range slots {
		if len(out) == 0 || out[len(out)-1].Date != s.Date {
			day := s.Day
			if d, err := time.Parse(validation.DateLayout, s.Date); err == nil {
				day = weekdayES[d.Weekday()]
			}
			out = append(out, DaySlots{Date: s.Date, Day: day})
		}
		out[len(out)-1].Times = append(out[len(out)-1].Times, s.Start)
	}
	return out
}

// formatTimes lists start times for a sentence
func formatTimes(slots []availability.Slot) string {
	times := make([]string, len(slots))
	for i, s := range slots {
		times[i] = s.Start
	}
	return strings.Join(times, ", ")
}
