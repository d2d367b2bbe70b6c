// Package agent runs conversation turns: it loads the chat history, drives the
// model and tool loop, and persists the reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/logger"
	"github.com/propcrm/realty-agent/internal/metrics"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/ai"
	"github.com/propcrm/realty-agent/internal/services/locks"
	"github.com/propcrm/realty-agent/internal/services/messaging"
	"github.com/propcrm/realty-agent/internal/services/tools"
	"github.com/propcrm/realty-agent/internal/telemetry"
)

const (
	// FallbackReply is sent whenever a turn cannot produce an answer
	FallbackReply = "Lo siento, tuve un problema técnico. ¿Podemos seguir en un ratito?"

	// DefaultPersona is used for bots without a configured system prompt
	DefaultPersona = "Sos Agustina, asesora inmobiliaria de una inmobiliaria de Rosario. " +
		"Respondés por WhatsApp en español rioplatense, con mensajes breves y cordiales. " +
		"Usá las herramientas para buscar propiedades, consultar horarios y requisitos, registrar las preferencias del cliente y agendar visitas. " +
		"Nunca inventes propiedades, precios ni horarios: si una herramienta no devuelve datos, decilo."

	MaxModelSteps        = 5
	DefaultHistoryWindow = 15
	DefaultModelTimeout  = 30 * time.Second
)

var (
	errStepLimit  = errors.New("model step limit reached without a reply")
	errEmptyReply = errors.New("model returned an empty reply")
)

// TurnInput is one inbound user message. ContactID is the contact the webhook
// resolved for the sender; zero leaves resolution to the tools.
type TurnInput struct {
	BotInstance    string
	ConversationID string
	ContactID      int64
	Text           string
}

// BotStore resolves bots by their messaging instance
type BotStore interface {
	GetByInstance(ctx context.Context, instance string) (*models.Bot, error)
}

// MessageStore is the append-only conversation log
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
	Recent(ctx context.Context, botInstance, conversationID string, limit int) ([]*models.Message, error)
}

// ToolRunner exposes the tool catalog to the model loop
type ToolRunner interface {
	Definitions() []ai.ToolDefinition
	Execute(ctx context.Context, sess tools.Session, name, rawArgs string) string
}

var _ ToolRunner = (*tools.Registry)(nil)

// Options tunes an Orchestrator. Zero values take the defaults.
type Options struct {
	HistoryWindow int
	ModelTimeout  time.Duration
	TurnTimeout   time.Duration
	Location      *time.Location
	Now           func() time.Time
}

// Orchestrator handles one conversation turn at a time per conversation
type Orchestrator struct {
	bots     BotStore
	messages MessageStore
	model    ai.ChatModel
	tools    ToolRunner
	locker   locks.Locker
	opts     Options
	logger   *zap.Logger
}

// NewOrchestrator wires an orchestrator. A nil locker serializes in process only.
func NewOrchestrator(bots BotStore, messages MessageStore, model ai.ChatModel, runner ToolRunner, locker locks.Locker, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if locker == nil {
		locker = locks.NewLocalLocker()
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = DefaultHistoryWindow
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = DefaultModelTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		bots:     bots,
		messages: messages,
		model:    model,
		tools:    runner,
		locker:   locker,
		opts:     opts,
		logger:   log,
	}
}

// HandleTurn answers one user message. It always returns text to send back:
// the model reply, or FallbackReply when anything along the way fails.
func (o *Orchestrator) HandleTurn(ctx context.Context, in TurnInput) string {
	start := time.Now()
	if o.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.TurnTimeout)
		defer cancel()
	}
	ctx, span := telemetry.StartSpan(ctx, "agent.turn",
		attribute.String("bot.instance", in.BotInstance),
	)

	reply, err := o.runTurn(ctx, in)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, locks.ErrLockTimeout) {
			outcome = "lock_timeout"
		}
		o.logger.Error("conversation_turn_failed",
			zap.String("bot_instance", in.BotInstance),
			zap.String("conversation", logger.MaskPhone(in.ConversationID)),
			zap.Error(err),
		)
		reply = FallbackReply
	}

	metrics.RecordTurn(outcome, time.Since(start).Seconds())
	telemetry.EndSpan(span, err)
	return reply
}

func (o *Orchestrator) runTurn(ctx context.Context, in TurnInput) (string, error) {
	bot, err := o.bots.GetByInstance(ctx, in.BotInstance)
	if err != nil {
		return "", fmt.Errorf("failed to resolve bot %s: %w", in.BotInstance, err)
	}

	release, err := o.locker.Lock(ctx, "turn:"+in.BotInstance+":"+in.ConversationID)
	if err != nil {
		return "", fmt.Errorf("failed to lock conversation: %w", err)
	}
	defer release()

	if err := o.messages.Append(ctx, &models.Message{
		ConversationID: in.ConversationID,
		BotInstance:    in.BotInstance,
		Role:           models.RoleUser,
		Parts:          []string{in.Text},
	}); err != nil {
		return "", fmt.Errorf("failed to append user message: %w", err)
	}

	recent, err := o.messages.Recent(ctx, in.BotInstance, in.ConversationID, o.opts.HistoryWindow)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	loc := o.location(bot)
	sess := tools.Session{
		TenantID:      bot.TenantID,
		AgentID:       bot.UserID,
		BotInstance:   bot.InstanceName,
		Phone:         messaging.NumberFromJID(in.ConversationID),
		ContactID:     in.ContactID,
		BusinessHours: bot.EffectiveBusinessHours(),
	}
	turn := o.model.NewTurn(ai.TurnRequest{
		System:   o.systemPrompt(bot, loc),
		History:  toHistory(recent),
		Tools:    o.tools.Definitions(),
		MaxSteps: MaxModelSteps,
	})

	reply, err := o.loop(ctx, turn, sess)
	if err != nil {
		return "", err
	}

	if err := o.messages.Append(ctx, &models.Message{
		ConversationID: in.ConversationID,
		BotInstance:    in.BotInstance,
		Role:           models.RoleAssistant,
		Parts:          []string{reply},
	}); err != nil {
		return "", fmt.Errorf("failed to append reply: %w", err)
	}
	return reply, nil
}

// loop alternates model steps and tool calls until the model answers in text
func (o *Orchestrator) loop(ctx context.Context, turn ai.Turn, sess tools.Session) (string, error) {
	for step := 1; step <= MaxModelSteps; step++ {
		completion, err := o.step(ctx, turn)
		if err != nil {
			return "", err
		}
		if len(completion.ToolCalls) == 0 {
			reply := strings.TrimSpace(completion.Content)
			if reply == "" {
				return "", errEmptyReply
			}
			return reply, nil
		}
		for _, call := range completion.ToolCalls {
			o.logger.Debug("tool_call_requested",
				zap.Int("step", step),
				zap.String("tool", call.Name),
				zap.String("arguments", logger.SanitizeString(call.Arguments, 300)),
			)
			turn.SubmitToolResult(call.ID, o.tools.Execute(ctx, sess, call.Name, call.Arguments))
		}
	}
	return "", errStepLimit
}

func (o *Orchestrator) step(ctx context.Context, turn ai.Turn) (*ai.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ModelTimeout)
	defer cancel()

	start := time.Now()
	completion, err := turn.Step(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordModelStep(o.model.Name(), status, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to run model step: %w", err)
	}
	return completion, nil
}

func (o *Orchestrator) location(bot *models.Bot) *time.Location {
	if bot.Timezone != "" {
		if loc, err := time.LoadLocation(bot.Timezone); err == nil {
			return loc
		}
		o.logger.Warn("invalid_bot_timezone", zap.String("timezone", bot.Timezone))
	}
	return o.opts.Location
}

func (o *Orchestrator) systemPrompt(bot *models.Bot, loc *time.Location) string {
	prompt := strings.TrimSpace(bot.SystemPrompt)
	if prompt == "" {
		prompt = DefaultPersona
	}
	now := o.opts.Now().In(loc)
	return fmt.Sprintf("%s\n\nFecha y hora actual: %s %s (%s).",
		prompt, tools.WeekdayName(now.Weekday()), now.Format("02/01/2006 15:04"), loc.String())
}

func toHistory(msgs []*models.Message) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text()
		if text == "" {
			continue
		}
		role := ai.RoleUser
		if m.Role == models.RoleAssistant {
			role = ai.RoleAssistant
		}
		out = append(out, ai.Message{Role: role, Content: text})
	}
	return out
}
