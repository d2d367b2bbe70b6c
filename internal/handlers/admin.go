package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/queue"
	"github.com/propcrm/realty-agent/internal/request"
	"github.com/propcrm/realty-agent/internal/services/availability"
	"github.com/propcrm/realty-agent/internal/services/semantic"
	"github.com/propcrm/realty-agent/internal/validation"
)

const (
	// DefaultMessagesLimit is the page size of the conversation log
	DefaultMessagesLimit = 50
	// MaxMessagesLimit caps the conversation log page size
	MaxMessagesLimit = 200
	// DefaultMatchLimit is the number of listings or leads returned by matching
	DefaultMatchLimit = 10
	// MaxMatchLimit caps matching results
	MaxMatchLimit = 50
)

// AvailabilityFinder computes free visit slots
type AvailabilityFinder interface {
	Available(ctx context.Context, q availability.Query) ([]availability.Slot, error)
	Location() *time.Location
}

// ConversationReader reads a conversation log
type ConversationReader interface {
	Recent(ctx context.Context, botInstance, conversationID string, limit int) ([]*models.Message, error)
}

// ListingMatcher runs semantic matching in both directions
type ListingMatcher interface {
	MatchListings(ctx context.Context, tenantID int64, query string, limit int) ([]semantic.ListingMatch, error)
	ReverseMatch(ctx context.Context, tenantID int64, kind semantic.ListingKind, listingID int64, limit int) ([]semantic.LeadMatch, error)
}

// JobEnqueuer schedules embedding work on the worker
type JobEnqueuer interface {
	EnqueueSweep(ctx context.Context) (string, error)
	EnqueuePropertyEmbedding(ctx context.Context, tenantID, propertyID int64) error
	EnqueueDevelopmentEmbedding(ctx context.Context, tenantID, developmentID int64) error
}

var (
	_ AvailabilityFinder = (*availability.Engine)(nil)
	_ ConversationReader = (*database.MessageRepository)(nil)
	_ ListingMatcher     = (*semantic.Service)(nil)
	_ JobEnqueuer        = (*queue.Scheduler)(nil)
)

// AdminHandler serves the tenant-scoped admin API
type AdminHandler struct {
	bots     BotLookup
	slots    AvailabilityFinder
	messages ConversationReader
	matcher  ListingMatcher
	jobs     JobEnqueuer
	logger   *zap.Logger
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(
	bots BotLookup,
	slots AvailabilityFinder,
	messages ConversationReader,
	matcher ListingMatcher,
	jobs JobEnqueuer,
	logger *zap.Logger,
) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		bots:     bots,
		slots:    slots,
		messages: messages,
		matcher:  matcher,
		jobs:     jobs,
		logger:   logger,
	}
}

// RegisterRoutes registers admin routes on the authenticated /api/v1 router
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/bots/{instance}/availability", h.GetAvailability).Methods(http.MethodGet)
	r.HandleFunc("/bots/{instance}/config", h.GetBotConfig).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{conversation_id}/messages", h.GetMessages).Methods(http.MethodGet)
	r.HandleFunc("/ai/match", h.Match).Methods(http.MethodGet)
	r.HandleFunc("/ai/reverse-match/{kind}/{id}", h.ReverseMatch).Methods(http.MethodGet)
	r.HandleFunc("/ai/embed/{kind}/{id}", h.Reindex).Methods(http.MethodPost)
	r.HandleFunc("/ai/backfill", h.Backfill).Methods(http.MethodPost)
}

// AvailabilityQuery is the query string of GET /bots/{instance}/availability
type AvailabilityQuery struct {
	Date       string `json:"date" validate:"omitempty,isodate"`
	Days       int    `json:"days" validate:"omitempty,min=1,max=14"`
	PropertyID int64  `json:"property_id" validate:"omitempty,min=1"`
}

// AvailabilityResponse lists free slots for a bot's agent
type AvailabilityResponse struct {
	Timezone string              `json:"timezone"`
	Slots    []availability.Slot `json:"slots"`
}

// BotConfigResponse is the bot as the admin UI sees it
type BotConfigResponse struct {
	*models.Bot
	EffectiveBusinessHours models.WeeklySchedule `json:"effective_business_hours"`
}

// tenantBot loads the path's bot and hides bots of other tenants behind a 404
func (h *AdminHandler) tenantBot(w http.ResponseWriter, r *http.Request, instance string) (*models.Bot, bool) {
	p := request.PrincipalFromContext(r)
	if p == nil {
		respondError(w, http.StatusUnauthorized, "Missing credentials")
		return nil, false
	}
	bot, err := h.bots.GetByInstance(r.Context(), instance)
	if errors.Is(err, database.ErrNotFound) || (err == nil && bot.TenantID != p.TenantID) {
		respondError(w, http.StatusNotFound, "Bot not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed_to_load_bot", zap.String("instance", instance), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load bot")
		return nil, false
	}
	return bot, true
}

// GetAvailability handles GET /bots/{instance}/availability
func (h *AdminHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var params AvailabilityQuery
	params.Date = q.Get("date")
	var ok bool
	if params.Days, ok = intParam(w, q.Get("days"), "days"); !ok {
		return
	}
	var propertyID int
	if propertyID, ok = intParam(w, q.Get("property_id"), "property_id"); !ok {
		return
	}
	params.PropertyID = int64(propertyID)
	if err := validation.Validate.Struct(params); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid parameters: "+validation.Describe(err))
		return
	}

	bot, ok := h.tenantBot(w, r, mux.Vars(r)["instance"])
	if !ok {
		return
	}

	query := availability.Query{
		TenantID:      bot.TenantID,
		AgentID:       bot.UserID,
		Days:          params.Days,
		BusinessHours: bot.EffectiveBusinessHours(),
	}
	if params.PropertyID > 0 {
		query.PropertyID = &params.PropertyID
	}
	loc := h.slots.Location()
	if params.Date != "" {
		from, err := time.ParseInLocation(validation.DateLayout, params.Date, loc)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid date")
			return
		}
		query.From = from
	}

	slots, err := h.slots.Available(r.Context(), query)
	if errors.Is(err, availability.ErrPropertyNotFound) {
		respondError(w, http.StatusNotFound, "Property not found")
		return
	}
	if err != nil {
		h.logger.Error("failed_to_compute_availability", zap.String("instance", bot.InstanceName), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to compute availability")
		return
	}
	respondJSON(w, http.StatusOK, AvailabilityResponse{Timezone: loc.String(), Slots: slots})
}

// GetBotConfig handles GET /bots/{instance}/config
func (h *AdminHandler) GetBotConfig(w http.ResponseWriter, r *http.Request) {
	bot, ok := h.tenantBot(w, r, mux.Vars(r)["instance"])
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, BotConfigResponse{Bot: bot, EffectiveBusinessHours: bot.EffectiveBusinessHours()})
}

// GetMessages handles GET /conversations/{conversation_id}/messages?instance=
func (h *AdminHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	instance := r.URL.Query().Get("instance")
	if instance == "" {
		respondError(w, http.StatusBadRequest, "instance is required")
		return
	}
	limit, ok := limitParam(w, r, DefaultMessagesLimit, MaxMessagesLimit)
	if !ok {
		return
	}
	bot, ok := h.tenantBot(w, r, instance)
	if !ok {
		return
	}

	msgs, err := h.messages.Recent(r.Context(), bot.InstanceName, mux.Vars(r)["conversation_id"], limit)
	if err != nil {
		h.logger.Error("failed_to_load_conversation", zap.String("instance", bot.InstanceName), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

// Match handles GET /ai/match?query=
func (h *AdminHandler) Match(w http.ResponseWriter, r *http.Request) {
	p := request.PrincipalFromContext(r)
	if p == nil {
		respondError(w, http.StatusUnauthorized, "Missing credentials")
		return
	}
	query := validation.SanitizeText(r.URL.Query().Get("query"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit, ok := limitParam(w, r, DefaultMatchLimit, MaxMatchLimit)
	if !ok {
		return
	}

	matches, err := h.matcher.MatchListings(r.Context(), p.TenantID, query, limit)
	if err != nil {
		h.logger.Warn("listing_match_failed", zap.Int64("tenant_id", p.TenantID), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Matching is temporarily unavailable")
		return
	}
	respondJSON(w, http.StatusOK, matches)
}

// ReverseMatch handles GET /ai/reverse-match/{kind}/{id}
func (h *AdminHandler) ReverseMatch(w http.ResponseWriter, r *http.Request) {
	p := request.PrincipalFromContext(r)
	if p == nil {
		respondError(w, http.StatusUnauthorized, "Missing credentials")
		return
	}
	kind, id, ok := listingParams(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r, DefaultMatchLimit, MaxMatchLimit)
	if !ok {
		return
	}

	leads, err := h.matcher.ReverseMatch(r.Context(), p.TenantID, kind, id, limit)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, leads)
	case errors.Is(err, semantic.ErrNotReady):
		respondError(w, http.StatusConflict, "Listing has not been indexed yet")
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "Listing not found")
	default:
		h.logger.Error("reverse_match_failed", zap.Int64("tenant_id", p.TenantID), zap.Int64("listing_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to rank leads")
	}
}

// Reindex handles POST /ai/embed/{kind}/{id}. A listing outside the caller's
// tenant is skipped by the worker, so the answer does not reveal it.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	p := request.PrincipalFromContext(r)
	if p == nil {
		respondError(w, http.StatusUnauthorized, "Missing credentials")
		return
	}
	kind, id, ok := listingParams(w, r)
	if !ok {
		return
	}

	var err error
	if kind == semantic.KindProperty {
		err = h.jobs.EnqueuePropertyEmbedding(r.Context(), p.TenantID, id)
	} else {
		err = h.jobs.EnqueueDevelopmentEmbedding(r.Context(), p.TenantID, id)
	}
	if err != nil {
		h.logger.Error("failed_to_enqueue_embedding", zap.String("kind", string(kind)), zap.Int64("listing_id", id), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "Failed to schedule embedding")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{"kind": kind, "id": id})
}

// Backfill handles POST /ai/backfill
func (h *AdminHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	id, err := h.jobs.EnqueueSweep(r.Context())
	if err != nil {
		h.logger.Error("failed_to_enqueue_backfill", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "Failed to schedule backfill")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// listingParams reads the {kind}/{id} path of the listing routes
func listingParams(w http.ResponseWriter, r *http.Request) (semantic.ListingKind, int64, bool) {
	vars := mux.Vars(r)
	kind := semantic.ListingKind(strings.ToLower(vars["kind"]))
	if kind != semantic.KindProperty && kind != semantic.KindDevelopment {
		respondError(w, http.StatusBadRequest, "kind must be property or development")
		return "", 0, false
	}
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid listing id")
		return "", 0, false
	}
	return kind, id, true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return n, true
}

func limitParam(w http.ResponseWriter, r *http.Request, def, maxLimit int) (int, bool) {
	limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit")
	if !ok {
		return 0, false
	}
	if limit <= 0 {
		return def, true
	}
	return min(limit, maxLimit), true
}
