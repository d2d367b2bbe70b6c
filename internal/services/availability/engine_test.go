package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
)

type mockPropertyGetter struct {
	GetByIDFunc func(ctx context.Context, tenantID, id int64) (*models.Property, error)
}

func (m *mockPropertyGetter) GetByID(ctx context.Context, tenantID, id int64) (*models.Property, error) {
	return m.GetByIDFunc(ctx, tenantID, id)
}

type mockEventLister struct {
	ListOverlappingFunc func(ctx context.Context, w database.EventWindow) ([]*models.CalendarEvent, error)
	windows             []database.EventWindow
}

func (m *mockEventLister) ListOverlapping(ctx context.Context, w database.EventWindow) ([]*models.CalendarEvent, error) {
	m.windows = append(m.windows, w)
	if m.ListOverlappingFunc == nil {
		return nil, nil
	}
	return m.ListOverlappingFunc(ctx, w)
}

var (
	_ PropertyGetter = (*mockPropertyGetter)(nil)
	_ EventLister    = (*mockEventLister)(nil)
)

var loc = time.FixedZone("ART", -3*60*60)

// Monday 2026-02-16
var monday = time.Date(2026, 2, 16, 0, 0, 0, 0, loc)

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
}

func ptr[T any](v T) *T { return &v }

func newEngine(props PropertyGetter, events EventLister) *Engine {
	return NewEngine(props, events, loc, nil, WithClock(func() time.Time { return monday.Add(-24 * time.Hour) }))
}

func propertyRepo(p *models.Property) *mockPropertyGetter {
	return &mockPropertyGetter{GetByIDFunc: func(_ context.Context, tenantID, id int64) (*models.Property, error) {
		if p == nil || id != p.ID || tenantID != p.TenantID {
			return nil, database.ErrNotFound
		}
		return p, nil
	}}
}

func starts(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Date + " " + s.Start
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAvailable_PropertyNotFoundFirst(t *testing.T) {
	t.Parallel()

	events := &mockEventLister{}
	e := newEngine(propertyRepo(&models.Property{ID: 42, TenantID: 1}), events)

	for _, q := range []Query{
		{TenantID: 1, PropertyID: ptr(int64(7)), From: monday},
		{TenantID: 2, PropertyID: ptr(int64(42)), From: monday},
	} {
		_, err := e.Available(context.Background(), q)
		if !errors.Is(err, ErrPropertyNotFound) {
			t.Errorf("Available(%+v) error = %v, want ErrPropertyNotFound", q, err)
		}
	}
	if len(events.windows) != 0 {
		t.Error("no event lookups should run before the property check")
	}
}

func TestAvailable_GridAndTrailingSlotDropped(t *testing.T) {
	t.Parallel()

	p := &models.Property{
		ID: 42, TenantID: 1,
		VisitDuration:     ptr(45),
		VisitAvailability: models.WeeklySchedule{"Mon": {Enabled: true, Start: "09:00", End: "11:00"}},
	}
	e := newEngine(propertyRepo(p), &mockEventLister{})

	slots, err := e.Available(context.Background(), Query{TenantID: 1, PropertyID: ptr(int64(42)), From: monday, Days: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2026-02-16 09:00", "2026-02-16 09:45"}
	if !equal(starts(slots), want) {
		t.Errorf("slots = %v, want %v", starts(slots), want)
	}
	if slots[1].End != "10:30" || slots[1].Day != "Mon" {
		t.Errorf("second slot = %+v", slots[1])
	}
}

func TestAvailable_ScheduleFallback(t *testing.T) {
	t.Parallel()

	hours := models.WeeklySchedule{
		"Mon": {Enabled: true, Start: "09:00", End: "10:00"},
		"Tue": {Enabled: true, Start: "14:00", End: "15:00"},
	}
	tuesday := monday.AddDate(0, 0, 1)

	tests := []struct {
		name     string
		schedule models.WeeklySchedule
		want     []string
	}{
		{
			name:     "missing Tue falls back to business hours",
			schedule: models.WeeklySchedule{"Mon": {Enabled: true, Start: "10:00", End: "11:00"}},
			want:     []string{"2026-02-17 14:00", "2026-02-17 14:30"},
		},
		{
			name:     "explicit disabled Tue yields nothing",
			schedule: models.WeeklySchedule{"Tue": {Enabled: false, Start: "14:00", End: "15:00"}},
			want:     []string{},
		},
		{
			name:     "malformed Tue skips only that day",
			schedule: models.WeeklySchedule{"Tue": {Enabled: true, Start: "2pm", End: "15:00"}, "Wed": {Enabled: true, Start: "08:00", End: "08:30"}},
			want:     []string{"2026-02-18 08:00"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &models.Property{ID: 42, TenantID: 1, VisitAvailability: tt.schedule}
			e := newEngine(propertyRepo(p), &mockEventLister{})
			slots, err := e.Available(context.Background(), Query{
				TenantID: 1, PropertyID: ptr(int64(42)), From: tuesday, Days: 2, BusinessHours: hours,
			})
			if err != nil {
				t.Fatal(err)
			}
			if !equal(starts(slots), tt.want) {
				t.Errorf("slots = %v, want %v", starts(slots), tt.want)
			}
		})
	}
}

func TestAvailable_Capacity(t *testing.T) {
	t.Parallel()

	p := &models.Property{
		ID: 42, TenantID: 1,
		MaxSimultaneousVisits: ptr(2),
		VisitAvailability:     models.WeeklySchedule{"Mon": {Enabled: true, Start: "09:00", End: "10:00"}},
	}
	visit := func(id int64, status models.EventStatus) *models.CalendarEvent {
		return &models.CalendarEvent{ID: id, PropertyID: ptr(int64(42)), StartTime: at(monday, 9, 0), EndTime: at(monday, 9, 30), Status: status}
	}

	tests := []struct {
		name   string
		events []*models.CalendarEvent
		want   []string
	}{
		{name: "one booking leaves room", events: []*models.CalendarEvent{visit(1, models.EventStatusConfirmed)}, want: []string{"2026-02-16 09:00", "2026-02-16 09:30"}},
		{name: "two bookings fill the slot", events: []*models.CalendarEvent{visit(1, models.EventStatusConfirmed), visit(2, models.EventStatusPending)}, want: []string{"2026-02-16 09:30"}},
		{name: "cancelled does not count", events: []*models.CalendarEvent{visit(1, models.EventStatusConfirmed), visit(2, models.EventStatusCancelled)}, want: []string{"2026-02-16 09:00", "2026-02-16 09:30"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			events := &mockEventLister{ListOverlappingFunc: func(context.Context, database.EventWindow) ([]*models.CalendarEvent, error) {
				return tt.events, nil
			}}
			e := newEngine(propertyRepo(p), events)
			slots, err := e.Available(context.Background(), Query{TenantID: 1, PropertyID: ptr(int64(42)), From: monday, Days: 1})
			if err != nil {
				t.Fatal(err)
			}
			if !equal(starts(slots), tt.want) {
				t.Errorf("slots = %v, want %v", starts(slots), tt.want)
			}
			if w := events.windows[0]; w.PropertyID == nil || *w.PropertyID != 42 {
				t.Errorf("property scope not applied: %+v", w)
			}
		})
	}
}

func TestAvailable_AgentScope(t *testing.T) {
	t.Parallel()

	events := &mockEventLister{ListOverlappingFunc: func(_ context.Context, w database.EventWindow) ([]*models.CalendarEvent, error) {
		return []*models.CalendarEvent{{AgentID: w.AgentID, StartTime: at(monday, 9, 15), EndTime: at(monday, 9, 45), Status: models.EventStatusConfirmed}}, nil
	}}
	e := newEngine(propertyRepo(nil), events)
	slots, err := e.Available(context.Background(), Query{
		TenantID: 1, AgentID: 3, From: monday, Days: 1,
		BusinessHours: models.WeeklySchedule{"Mon": {Enabled: true, Start: "09:00", End: "10:30"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2026-02-16 10:00"}
	if !equal(starts(slots), want) {
		t.Errorf("slots = %v, want %v", starts(slots), want)
	}
	if w := events.windows[0]; w.PropertyID != nil || w.AgentID != 3 {
		t.Errorf("agent scope not applied: %+v", w)
	}
}

func TestAvailable_DefaultHorizonAndPastSlots(t *testing.T) {
	t.Parallel()

	hours := models.DefaultBusinessHours()
	for k := range hours {
		hours[k] = models.DaySchedule{Enabled: true, Start: "09:00", End: "10:00"}
	}
	clock := at(monday, 9, 10)
	e := NewEngine(propertyRepo(nil), &mockEventLister{}, loc, nil, WithClock(func() time.Time { return clock }))

	slots, err := e.Available(context.Background(), Query{TenantID: 1, AgentID: 3, BusinessHours: hours})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2026-02-16 09:30", "2026-02-17 09:00", "2026-02-17 09:30", "2026-02-18 09:00", "2026-02-18 09:30"}
	if !equal(starts(slots), want) {
		t.Errorf("slots = %v, want %v", starts(slots), want)
	}
}

func TestAvailable_EventStoreError(t *testing.T) {
	t.Parallel()

	events := &mockEventLister{ListOverlappingFunc: func(context.Context, database.EventWindow) ([]*models.CalendarEvent, error) {
		return nil, errors.New("connection refused")
	}}
	e := newEngine(propertyRepo(nil), events)
	_, err := e.Available(context.Background(), Query{TenantID: 1, AgentID: 3, From: monday, Days: 1, BusinessHours: models.DefaultBusinessHours()})
	if err == nil {
		t.Error("expected storage error to propagate")
	}
}
