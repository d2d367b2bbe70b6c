// Package availability computes bookable visit slots from weekly schedules and existing events.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultDays is the horizon used when a query does not set one
	DefaultDays = 3
	// MaxDays bounds the horizon of a single query
	MaxDays = 14

	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// ErrPropertyNotFound is returned for a missing, deleted, or out-of-tenant property
var ErrPropertyNotFound = errors.New("property not found")

// Slot is a bookable window in the engine's timezone
type Slot struct {
	Date  string `json:"date"`
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// StartTime parses the slot start in loc
func (s Slot) StartTime(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout+" "+clockLayout, s.Date+" "+s.Start, loc)
}

// Query selects whose calendar to inspect and over which days.
// BusinessHours is the agent's general schedule, used for weekdays the property leaves unset.
type Query struct {
	TenantID      int64
	AgentID       int64
	PropertyID    *int64
	From          time.Time
	Days          int
	BusinessHours models.WeeklySchedule
}

// PropertyGetter loads a tenant's property
type PropertyGetter interface {
	GetByID(ctx context.Context, tenantID, id int64) (*models.Property, error)
}

// EventLister loads the non-cancelled events competing for a window
type EventLister interface {
	ListOverlapping(ctx context.Context, w database.EventWindow) ([]*models.CalendarEvent, error)
}

// Engine computes free slots
type Engine struct {
	properties PropertyGetter
	events     EventLister
	loc        *time.Location
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source used to drop past slots
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an availability engine computing in loc
func NewEngine(properties PropertyGetter, events EventLister, loc *time.Location, logger *zap.Logger, opts ...Option) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{properties: properties, events: events, loc: loc, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location is the timezone slots are expressed in
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Available returns free slots in chronological order
func (e *Engine) Available(ctx context.Context, q Query) ([]Slot, error) {
	var property *models.Property
	if q.PropertyID != nil {
		p, err := e.properties.GetByID(ctx, q.TenantID, *q.PropertyID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrPropertyNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load property: %w", err)
		}
		property = p
	}

	days := q.Days
	if days <= 0 {
		days = DefaultDays
	}
	days = min(days, MaxDays)

	from := q.From
	if from.IsZero() {
		from = e.now()
	}
	from = from.In(e.loc)
	firstDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, e.loc)
	now := e.now()

	slots := []Slot{}
	for i := range days {
		day := firstDay.AddDate(0, 0, i)
		daySlots, err := e.daySlots(ctx, q, property, day, now)
		if err != nil {
			return nil, err
		}
		slots = append(slots, daySlots...)
	}
	return slots, nil
}

func (e *Engine) daySlots(ctx context.Context, q Query, property *models.Property, day, now time.Time) ([]Slot, error) {
	schedule, ok := e.scheduleFor(property, q.BusinessHours, day.Weekday())
	if !ok || !schedule.Enabled {
		return nil, nil
	}

	start, errStart := atClock(day, schedule.Start)
	end, errEnd := atClock(day, schedule.End)
	if errStart != nil || errEnd != nil {
		e.logger.Warn("invalid_schedule_entry",
			zap.String("day", models.WeekdayKey(day.Weekday())),
			zap.String("start", schedule.Start),
			zap.String("end", schedule.End),
		)
		return nil, nil
	}
	if !end.After(start) {
		return nil, nil
	}

	length := time.Duration(models.DefaultVisitDuration) * time.Minute
	capacity := 1
	window := database.EventWindow{TenantID: q.TenantID, AgentID: q.AgentID, Start: start, End: end}
	if property != nil {
		length = time.Duration(property.SlotMinutes()) * time.Minute
		capacity = property.Capacity()
		window.PropertyID = &property.ID
	}

	events, err := e.events.ListOverlapping(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to load calendar events: %w", err)
	}

	var out []Slot
	for slotStart := start; !slotStart.Add(length).After(end); slotStart = slotStart.Add(length) {
		slotEnd := slotStart.Add(length)
		if slotStart.Before(now) {
			continue
		}
		if countOverlapping(events, slotStart, slotEnd) >= capacity {
			continue
		}
		out = append(out, Slot{
			Date:  slotStart.Format(dateLayout),
			Day:   models.WeekdayKey(slotStart.Weekday()),
			Start: slotStart.Format(clockLayout),
			End:   slotEnd.Format(clockLayout),
		})
	}
	return out, nil
}

// scheduleFor prefers the property's entry for the weekday, even a disabled one
func (e *Engine) scheduleFor(property *models.Property, hours models.WeeklySchedule, d time.Weekday) (models.DaySchedule, bool) {
	if property != nil {
		if entry, ok := property.VisitAvailability.Lookup(d); ok {
			return entry, true
		}
	}
	return hours.Lookup(d)
}

func atClock(day time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse(clockLayout, hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func countOverlapping(events []*models.CalendarEvent, start, end time.Time) int {
	n := 0
	for _, ev := range events {
		if ev.Status == models.EventStatusCancelled {
			continue
		}
		if ev.Overlaps(start, end) {
			n++
		}
	}
	return n
}
