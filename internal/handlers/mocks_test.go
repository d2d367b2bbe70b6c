package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/agent"
	"github.com/propcrm/realty-agent/internal/services/availability"
	"github.com/propcrm/realty-agent/internal/services/semantic"
)

type mockBots struct {
	bots map[string]*models.Bot
	err  error
}

func (m *mockBots) GetByInstance(_ context.Context, instance string) (*models.Bot, error) {
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.bots[instance]
	if !ok {
		return nil, database.ErrNotFound
	}
	return b, nil
}

type mockContacts struct {
	mu       sync.Mutex
	contacts []*models.Contact
	touched  []int64
	aliases  map[int64]string
	findErr  error
}

func (m *mockContacts) FindByPhoneSuffix(_ context.Context, tenantID int64, phone string) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	key := database.PhoneKey(phone)
	for _, c := range m.contacts {
		if c.TenantID == tenantID && key != "" && database.PhoneKey(c.Phone) == key {
			return c, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *mockContacts) Create(_ context.Context, c *models.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = int64(100 + len(m.contacts))
	m.contacts = append(m.contacts, c)
	return nil
}

func (m *mockContacts) TouchLastContact(_ context.Context, _, id int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, id)
	return nil
}

func (m *mockContacts) UpdateAlias(_ context.Context, _, id int64, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aliases == nil {
		m.aliases = map[int64]string{}
	}
	m.aliases[id] = alias
	return nil
}

type mockActivity struct {
	mu      sync.Mutex
	entries []*models.ActivityLog
	recent  bool
	since   time.Time
}

func (m *mockActivity) Log(_ context.Context, entry *models.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockActivity) ExistsSince(_ context.Context, _ *models.ActivityLog, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = since
	return m.recent, nil
}

type dispatched struct {
	botID int64
	in    agent.TurnInput
}

type mockDispatcher struct {
	mu    sync.Mutex
	turns []dispatched
}

func (m *mockDispatcher) Dispatch(botID int64, in agent.TurnInput) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, dispatched{botID: botID, in: in})
}

type mockSlots struct {
	query availability.Query
	slots []availability.Slot
	err   error
}

func (m *mockSlots) Available(_ context.Context, q availability.Query) ([]availability.Slot, error) {
	m.query = q
	return m.slots, m.err
}

func (m *mockSlots) Location() *time.Location { return time.UTC }

type mockMessages struct {
	instance, conversation string
	limit                  int
	msgs                   []*models.Message
}

func (m *mockMessages) Recent(_ context.Context, botInstance, conversationID string, limit int) ([]*models.Message, error) {
	m.instance, m.conversation, m.limit = botInstance, conversationID, limit
	return m.msgs, nil
}

type mockMatcher struct {
	MatchListingsFunc func(tenantID int64, query string, limit int) ([]semantic.ListingMatch, error)
	ReverseMatchFunc  func(tenantID int64, kind semantic.ListingKind, id int64, limit int) ([]semantic.LeadMatch, error)
}

func (m *mockMatcher) MatchListings(_ context.Context, tenantID int64, query string, limit int) ([]semantic.ListingMatch, error) {
	return m.MatchListingsFunc(tenantID, query, limit)
}

func (m *mockMatcher) ReverseMatch(_ context.Context, tenantID int64, kind semantic.ListingKind, id int64, limit int) ([]semantic.LeadMatch, error) {
	return m.ReverseMatchFunc(tenantID, kind, id, limit)
}

type mockJobs struct {
	err          error
	sweeps       int
	properties   []int64
	developments []int64
	tenantID     int64
}

func (m *mockJobs) EnqueueSweep(context.Context) (string, error) {
	m.sweeps++
	return "job-7", m.err
}

func (m *mockJobs) EnqueuePropertyEmbedding(_ context.Context, tenantID, id int64) error {
	m.tenantID = tenantID
	m.properties = append(m.properties, id)
	return m.err
}

func (m *mockJobs) EnqueueDevelopmentEmbedding(_ context.Context, tenantID, id int64) error {
	m.tenantID = tenantID
	m.developments = append(m.developments, id)
	return m.err
}

var (
	_ BotLookup                               = (*mockBots)(nil)
	_ WebhookContacts                         = (*mockContacts)(nil)
	_ database.ActivityLogRepositoryInterface = (*mockActivity)(nil)
	_ TurnDispatcher                          = (*mockDispatcher)(nil)
	_ AvailabilityFinder                      = (*mockSlots)(nil)
	_ ConversationReader                      = (*mockMessages)(nil)
	_ ListingMatcher                          = (*mockMatcher)(nil)
	_ JobEnqueuer                             = (*mockJobs)(nil)
)
