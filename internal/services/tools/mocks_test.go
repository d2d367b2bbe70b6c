package tools

import (
	"context"
	"sync"
	"time"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/availability"
	"github.com/propcrm/realty-agent/internal/services/calendarsync"
	"github.com/propcrm/realty-agent/internal/services/semantic"
)

type mockSearcher struct {
	SearchPropertiesFunc func(ctx context.Context, tenantID int64, query string, f semantic.Filters, limit int) ([]semantic.PropertyHit, error)
}

func (m *mockSearcher) SearchProperties(ctx context.Context, tenantID int64, query string, f semantic.Filters, limit int) ([]semantic.PropertyHit, error) {
	return m.SearchPropertiesFunc(ctx, tenantID, query, f, limit)
}

type mockSlots struct {
	AvailableFunc func(ctx context.Context, q availability.Query) ([]availability.Slot, error)
	queries       []availability.Query
}

func (m *mockSlots) Available(ctx context.Context, q availability.Query) ([]availability.Slot, error) {
	m.queries = append(m.queries, q)
	return m.AvailableFunc(ctx, q)
}

func (m *mockSlots) Location() *time.Location { return testLoc }

type mockProperties struct {
	props map[int64]*models.Property
}

func (m *mockProperties) GetByID(_ context.Context, tenantID, id int64) (*models.Property, error) {
	p, ok := m.props[id]
	if !ok || p.TenantID != tenantID {
		return nil, database.ErrNotFound
	}
	return p, nil
}

type mockContacts struct {
	mu       sync.Mutex
	contacts []*models.Contact
	updates  int
	byID     int
	byPhone  int
	err      error
}

func (m *mockContacts) GetByID(_ context.Context, tenantID, id int64) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID++
	if m.err != nil {
		return nil, m.err
	}
	for _, c := range m.contacts {
		if c.TenantID == tenantID && c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *mockContacts) FindByPhoneSuffix(_ context.Context, tenantID int64, phone string) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPhone++
	if m.err != nil {
		return nil, m.err
	}
	key := database.PhoneKey(phone)
	for _, c := range m.contacts {
		if c.TenantID == tenantID && key != "" && database.PhoneKey(c.Phone) == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *mockContacts) UpdateProfile(_ context.Context, c *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	for i, stored := range m.contacts {
		if stored.ID == c.ID {
			cp := *c
			m.contacts[i] = &cp
		}
	}
	return nil
}

type mockEvents struct {
	CreateWithCapacityFunc func(ctx context.Context, e *models.CalendarEvent, capacity int) error
	created                []*models.CalendarEvent
	externalIDs            map[int64]string
}

func (m *mockEvents) CreateWithCapacity(ctx context.Context, e *models.CalendarEvent, capacity int) error {
	if m.CreateWithCapacityFunc != nil {
		if err := m.CreateWithCapacityFunc(ctx, e, capacity); err != nil {
			return err
		}
	}
	e.ID = int64(len(m.created) + 1)
	m.created = append(m.created, e)
	return nil
}

func (m *mockEvents) SetExternalID(_ context.Context, _, id int64, externalID string) error {
	if m.externalIDs == nil {
		m.externalIDs = map[int64]string{}
	}
	m.externalIDs[id] = externalID
	return nil
}

type mockDeals struct {
	CreateFunc func(ctx context.Context, d *models.Deal) error
	created    []*models.Deal
}

func (m *mockDeals) InitialStage(_ context.Context, _ int64) (*models.PipelineStage, error) {
	return &models.PipelineStage{ID: 100, Name: "Nuevo", Position: 0}, nil
}

func (m *mockDeals) Create(ctx context.Context, d *models.Deal) error {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, d); err != nil {
			return err
		}
	}
	m.created = append(m.created, d)
	return nil
}

type mockActivity struct {
	entries []*models.ActivityLog
}

func (m *mockActivity) Log(_ context.Context, e *models.ActivityLog) error {
	m.entries = append(m.entries, e)
	return nil
}

type mockCalendar struct {
	result calendarsync.Result
	calls  int
}

func (m *mockCalendar) Sync(context.Context, *models.CalendarEvent) calendarsync.Result {
	m.calls++
	return m.result
}

type mockEmbeds struct {
	err   error
	calls []int64
}

func (m *mockEmbeds) EnqueueContactEmbedding(_ context.Context, _, contactID int64) error {
	m.calls = append(m.calls, contactID)
	return m.err
}

var (
	_ ListingSearcher           = (*mockSearcher)(nil)
	_ SlotFinder                = (*mockSlots)(nil)
	_ PropertyGetter            = (*mockProperties)(nil)
	_ ContactStore              = (*mockContacts)(nil)
	_ EventStore                = (*mockEvents)(nil)
	_ DealStore                 = (*mockDeals)(nil)
	_ ActivityLogger            = (*mockActivity)(nil)
	_ calendarsync.Synchronizer = (*mockCalendar)(nil)
	_ EmbedQueue                = (*mockEmbeds)(nil)
)

var (
	testLoc = time.FixedZone("ART", -3*60*60)
	testNow = time.Date(2026, 2, 12, 10, 0, 0, 0, testLoc)
)

const testPhone = "5493415550000"

func testSession() Session {
	return Session{TenantID: 1, AgentID: 3, BotInstance: "bot-1", Phone: testPhone}
}

func ptr[T any](v T) *T { return &v }

// fixture wires a registry over fresh mocks
type fixture struct {
	search   *mockSearcher
	slots    *mockSlots
	props    *mockProperties
	contacts *mockContacts
	events   *mockEvents
	deals    *mockDeals
	activity *mockActivity
	calendar *mockCalendar
	embeds   *mockEmbeds
	registry *Registry
}

func newFixture() *fixture {
	f := &fixture{
		search: &mockSearcher{SearchPropertiesFunc: func(context.Context, int64, string, semantic.Filters, int) ([]semantic.PropertyHit, error) {
			return nil, nil
		}},
		slots: &mockSlots{AvailableFunc: func(context.Context, availability.Query) ([]availability.Slot, error) {
			return nil, nil
		}},
		props: &mockProperties{props: map[int64]*models.Property{
			42: {ID: 42, TenantID: 1, Title: "Depto 2 amb Centro", Address: "San Martín 100", Price: ptr(120000.0), Currency: "USD", AssignedAgentID: ptr(int64(3))},
			77: {ID: 77, TenantID: 2, Title: "Casa de otro tenant"},
		}},
		contacts: &mockContacts{contacts: []*models.Contact{{ID: 9, TenantID: 1, Name: "Lucía", Phone: testPhone, LeadScore: 10}}},
		events:   &mockEvents{},
		deals:    &mockDeals{},
		activity: &mockActivity{},
		calendar: &mockCalendar{result: calendarsync.Result{Status: calendarsync.StatusSkipped}},
		embeds:   &mockEmbeds{},
	}
	f.registry = NewRegistry(Deps{
		Search:       f.search,
		Availability: f.slots,
		Properties:   f.props,
		Contacts:     f.contacts,
		Events:       f.events,
		Deals:        f.deals,
		Activity:     f.activity,
		Calendar:     f.calendar,
		Embeds:       f.embeds,
	}, Options{Timeout: time.Second, Now: func() time.Time { return testNow }}, nil)
	return f
}
