// Package tools is the closed catalog of CRM operations the conversational
// agent may call. Every call returns text the model can narrate; errors are
// turned into user-safe messages at this boundary.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/metrics"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/ai"
	"github.com/propcrm/realty-agent/internal/telemetry"
	"github.com/propcrm/realty-agent/internal/validation"
)

// Name identifies a tool in the catalog
type Name string

const (
	SearchListings    Name = "search_listings"
	GetAvailability   Name = "get_availability"
	GetRequisites     Name = "get_requisites"
	UpdateLeadProfile Name = "update_lead_profile"
	ScheduleVisit     Name = "schedule_visit"
)

// DefaultTimeout bounds a single tool execution when none is configured
const DefaultTimeout = 20 * time.Second

// User-facing replies shared by several tools
const (
	MsgInternalError    = "No pude completar esa operación en este momento. Probá de nuevo en un rato."
	MsgTimeout          = "La operación tardó demasiado. Probá de nuevo en un rato."
	MsgPropertyNotFound = "Propiedad no encontrada."
	MsgContactUnknown   = "No pude identificar tu ficha de contacto en esta conversación."
)

var (
	// ErrUnknownTool is returned for a name outside the catalog
	ErrUnknownTool = errors.New("unknown tool")
)

// ArgumentError reports arguments that do not match the tool's schema
type ArgumentError struct {
	Tool   Name
	Detail string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Detail)
}

// Corrective is the message fed back to the model so it can retry
func (e *ArgumentError) Corrective() string {
	return fmt.Sprintf("Argumentos inválidos para %s: %s. Corregí los parámetros y volvé a llamar a la herramienta.", e.Tool, e.Detail)
}

// Session is the conversation identity a tool call runs under
type Session struct {
	TenantID    int64
	AgentID     int64
	BotInstance string
	Phone       string
	// ContactID is set when the sender was already resolved upstream
	ContactID     int64
	BusinessHours models.WeeklySchedule
}

// Tool is one entry of the catalog
type Tool interface {
	Definition() ai.ToolDefinition
	Execute(ctx context.Context, sess Session, rawArgs string) (string, error)
}

// typedTool decodes and validates arguments into A before running
type typedTool[A any] struct {
	def ai.ToolDefinition
	run func(ctx context.Context, sess Session, args A) (string, error)
}

func newTool[A any](name Name, description string, params map[string]any, run func(context.Context, Session, A) (string, error)) Tool {
	return &typedTool[A]{
		def: ai.ToolDefinition{Name: string(name), Description: description, Parameters: params},
		run: run,
	}
}

func (t *typedTool[A]) Definition() ai.ToolDefinition {
	return t.def
}

func (t *typedTool[A]) Execute(ctx context.Context, sess Session, rawArgs string) (string, error) {
	var args A
	if strings.TrimSpace(rawArgs) == "" {
		rawArgs = "{}"
	}
	dec := json.NewDecoder(strings.NewReader(rawArgs))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&args); err != nil {
		return "", &ArgumentError{Tool: Name(t.def.Name), Detail: err.Error()}
	}
	if err := validation.Validate.Struct(args); err != nil {
		return "", &ArgumentError{Tool: Name(t.def.Name), Detail: validation.Describe(err)}
	}
	return t.run(ctx, sess, args)
}

// Registry dispatches calls by name
type Registry struct {
	tools   map[Name]Tool
	timeout time.Duration
	logger  *zap.Logger
}

// Definitions lists the catalog in a stable order for the model
func (r *Registry) Definitions() []ai.ToolDefinition {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, string(n))
	}
	sort.Strings(names)
	defs := make([]ai.ToolDefinition, 0, len(names))
	for _, n := range names {
		defs = append(defs, r.tools[Name(n)].Definition())
	}
	return defs
}

// Dispatch runs the named tool and returns its raw outcome
func (r *Registry) Dispatch(ctx context.Context, sess Session, name, rawArgs string) (string, error) {
	tool, ok := r.tools[Name(name)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool.Execute(ctx, sess, rawArgs)
}

// Execute runs one call under its own timeout and recover, and always returns
// content for the model
func (r *Registry) Execute(ctx context.Context, sess Session, name, rawArgs string) (content string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "tool."+name,
		attribute.String("tool.name", name),
		attribute.Int64("tenant.id", sess.TenantID),
	)

	outcome := "ok"
	var execErr error
	defer func() {
		if p := recover(); p != nil {
			outcome = "panic"
			execErr = fmt.Errorf("panic: %v", p)
			content = MsgInternalError
			r.logger.Error("tool_call_panicked",
				zap.String("tool", name),
				zap.Any("panic", p),
				zap.String("stack", string(debug.Stack())),
			)
		}
		metrics.RecordToolCall(name, outcome)
		telemetry.EndSpan(span, execErr)
	}()

	out, err := r.Dispatch(ctx, sess, name, rawArgs)
	var argErr *ArgumentError
	switch {
	case err == nil:
		return out
	case errors.Is(err, ErrUnknownTool):
		outcome, execErr = "unknown", err
		r.logger.Warn("unknown_tool_requested", zap.String("tool", name))
		return fmt.Sprintf("La herramienta %q no existe. Usá solo las herramientas disponibles.", name)
	case errors.As(err, &argErr):
		outcome = "invalid_arguments"
		r.logger.Info("tool_arguments_rejected", zap.String("tool", name), zap.String("detail", argErr.Detail))
		return argErr.Corrective()
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		outcome, execErr = "timeout", err
		r.logger.Warn("tool_call_timed_out", zap.String("tool", name), zap.Duration("timeout", r.timeout))
		return MsgTimeout
	default:
		outcome, execErr = "error", err
		r.logger.Error("tool_call_failed",
			zap.String("tool", name),
			zap.Int64("tenant_id", sess.TenantID),
			zap.Error(err),
		)
		return MsgInternalError
	}
}

// schema helpers for the JSON Schema parameter blocks

func object(required []string, props map[string]any) map[string]any {
	s := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
