package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/ai"
	"github.com/propcrm/realty-agent/internal/services/locks"
	"github.com/propcrm/realty-agent/internal/services/messaging"
	"github.com/propcrm/realty-agent/internal/services/tools"
)

var (
	testLoc = time.FixedZone("ART", -3*60*60)
	testNow = time.Date(2026, 2, 12, 10, 0, 0, 0, testLoc)
)

const (
	testInstance = "bot-1"
	testJID      = "5493415550000@s.whatsapp.net"
	testPhone    = "5493415550000"
)

func testBot() *models.Bot {
	return &models.Bot{ID: 1, UserID: 3, TenantID: 1, InstanceName: testInstance, IsActive: true}
}

// scriptStep is one canned model response
type scriptStep struct {
	completion *ai.Completion
	err        error
}

func answer(text string) scriptStep {
	return scriptStep{completion: &ai.Completion{Content: text}}
}

func call(id, name, args string) scriptStep {
	return scriptStep{completion: &ai.Completion{ToolCalls: []ai.ToolCall{{ID: id, Name: name, Arguments: args}}}}
}

// scriptedModel replays steps in order across every turn it starts
type scriptedModel struct {
	mu       sync.Mutex
	script   []scriptStep
	requests []ai.TurnRequest
	results  map[string]string
}

func newScriptedModel(steps ...scriptStep) *scriptedModel {
	return &scriptedModel{script: steps, results: map[string]string{}}
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) NewTurn(req ai.TurnRequest) ai.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return &scriptedTurn{model: m}
}

type scriptedTurn struct {
	model *scriptedModel
}

func (t *scriptedTurn) Step(ctx context.Context) (*ai.Completion, error) {
	m := t.model
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := m.script[0]
	m.script = m.script[1:]
	return next.completion, next.err
}

func (t *scriptedTurn) SubmitToolResult(callID, content string) {
	t.model.mu.Lock()
	defer t.model.mu.Unlock()
	t.model.results[callID] = content
}

// memMessages is an in-memory conversation store
type memMessages struct {
	mu        sync.Mutex
	msgs      []*models.Message
	appendErr error
	recentErr error
}

func (m *memMessages) Append(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	cp := *msg
	cp.ID = int64(len(m.msgs) + 1)
	m.msgs = append(m.msgs, &cp)
	return nil
}

func (m *memMessages) Recent(_ context.Context, botInstance, conversationID string, limit int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	var out []*models.Message
	for _, msg := range m.msgs {
		if msg.BotInstance == botInstance && msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memMessages) roles() []models.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Role, 0, len(m.msgs))
	for _, msg := range m.msgs {
		out = append(out, msg.Role)
	}
	return out
}

type memBots struct {
	mu       sync.Mutex
	bots     map[string]*models.Bot
	statuses map[int64]models.BotStatus
}

func newMemBots(bots ...*models.Bot) *memBots {
	m := &memBots{bots: map[string]*models.Bot{}, statuses: map[int64]models.BotStatus{}}
	for _, b := range bots {
		m.bots[b.InstanceName] = b
	}
	return m
}

func (m *memBots) GetByInstance(_ context.Context, instance string) (*models.Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[instance]
	if !ok {
		return nil, database.ErrNotFound
	}
	return b, nil
}

func (m *memBots) SetStatus(_ context.Context, id int64, status models.BotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = status
	return nil
}

// fakeTools records the calls it receives
type fakeTools struct {
	mu          sync.Mutex
	ExecuteFunc func(sess tools.Session, name, args string) string
	calls       []string
	sessions    []tools.Session
}

func (f *fakeTools) Definitions() []ai.ToolDefinition {
	return []ai.ToolDefinition{{Name: "search_listings", Parameters: map[string]any{"type": "object"}}}
}

func (f *fakeTools) Execute(_ context.Context, sess tools.Session, name, args string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.sessions = append(f.sessions, sess)
	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(sess, name, args)
	}
	return "[]"
}

type lockerFunc func(ctx context.Context, key string) (func(), error)

func (f lockerFunc) Lock(ctx context.Context, key string) (func(), error) { return f(ctx, key) }

// fakeSender records outbound traffic
type fakeSender struct {
	mu           sync.Mutex
	SendTextFunc func(attempt int) error
	qrRequired   bool
	texts        []string
	presences    int
	reconnects   int
}

func (f *fakeSender) SendText(_ context.Context, _, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.SendTextFunc != nil {
		return f.SendTextFunc(len(f.texts))
	}
	return nil
}

func (f *fakeSender) SendPresence(context.Context, string, string, string, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presences++
	return nil
}

func (f *fakeSender) Reconnect(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
	return f.qrRequired, nil
}

var (
	_ ai.ChatModel     = (*scriptedModel)(nil)
	_ MessageStore     = (*memMessages)(nil)
	_ BotStore         = (*memBots)(nil)
	_ BotStatusSetter  = (*memBots)(nil)
	_ ToolRunner       = (*fakeTools)(nil)
	_ locks.Locker     = lockerFunc(nil)
	_ messaging.Sender = (*fakeSender)(nil)
)

func newTestOrchestrator(model ai.ChatModel, msgs *memMessages, runner ToolRunner) *Orchestrator {
	return NewOrchestrator(newMemBots(testBot()), msgs, model, runner, nil, Options{
		Location: testLoc,
		Now:      func() time.Time { return testNow },
	}, nil)
}
