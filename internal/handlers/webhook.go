package handlers

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/database"
	logpkg "github.com/propcrm/realty-agent/internal/logger"
	"github.com/propcrm/realty-agent/internal/metrics"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/agent"
	"github.com/propcrm/realty-agent/internal/services/messaging"
)

const (
	// WebhookSecretHeader carries the shared secret configured on the Evolution instance
	WebhookSecretHeader = "X-Webhook-Secret"

	// sentDedupWindow hides the echo of a message the CRM itself just sent
	sentDedupWindow = 10 * time.Second

	mediaPlaceholder   = "[Multimedia/Emoji]"
	defaultContactName = "Contacto WhatsApp"
	contactSource      = "WHATSAPP"
	contactType        = "CLIENT"
	entityContact      = "CONTACT"
	directChatSuffix   = "@s.whatsapp.net"
)

// Evolution event names
const (
	eventMessagesUpsert   = "messages.upsert"
	eventContactsUpsert   = "contacts.upsert"
	eventContactsUpdate   = "contacts.update"
	eventConnectionUpdate = "connection.update"
)

// BotLookup resolves the bot behind a messaging instance
type BotLookup interface {
	GetByInstance(ctx context.Context, instance string) (*models.Bot, error)
}

// WebhookContacts is the contact access the webhook needs
type WebhookContacts interface {
	FindByPhoneSuffix(ctx context.Context, tenantID int64, digits string) (*models.Contact, error)
	Create(ctx context.Context, c *models.Contact) error
	TouchLastContact(ctx context.Context, tenantID, id int64, at time.Time) error
	UpdateAlias(ctx context.Context, tenantID, id int64, alias string) error
}

// TurnDispatcher starts a conversation turn without waiting for it
type TurnDispatcher interface {
	Dispatch(botID int64, in agent.TurnInput)
}

var _ TurnDispatcher = (*agent.Dispatcher)(nil)

// WebhookHandler receives Evolution API events
type WebhookHandler struct {
	bots     BotLookup
	contacts WebhookContacts
	activity database.ActivityLogRepositoryInterface
	turns    TurnDispatcher
	secret   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewWebhookHandler creates a webhook handler. An empty secret disables the header check.
func NewWebhookHandler(
	bots BotLookup,
	contacts WebhookContacts,
	activity database.ActivityLogRepositoryInterface,
	turns TurnDispatcher,
	secret string,
	logger *zap.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		bots:     bots,
		contacts: contacts,
		activity: activity,
		turns:    turns,
		secret:   secret,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRoutes registers the webhook on the given router
// The router should already have the /whatsapp prefix
func (h *WebhookHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/webhook", h.Receive).Methods(http.MethodPost)
}

type webhookEvent struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type messageEvent struct {
	Key struct {
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
		ID        string `json:"id"`
	} `json:"key"`
	PushName string `json:"pushName"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		ImageMessage *struct {
			Caption string `json:"caption"`
		} `json:"imageMessage"`
	} `json:"message"`
}

// Text picks the readable body of a message
func (m *messageEvent) Text() string {
	switch {
	case m.Message.Conversation != "":
		return m.Message.Conversation
	case m.Message.ExtendedTextMessage != nil && m.Message.ExtendedTextMessage.Text != "":
		return m.Message.ExtendedTextMessage.Text
	case m.Message.ImageMessage != nil && m.Message.ImageMessage.Caption != "":
		return m.Message.ImageMessage.Caption
	}
	return mediaPlaceholder
}

type contactEvent struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	Name      string `json:"name"`
}

// Receive handles POST /whatsapp/webhook. Processing failures are reported in
// the body with a 200 so Evolution does not redeliver and re-trigger the bot.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			respondError(w, http.StatusUnauthorized, "Invalid webhook secret")
			return
		}
	}

	var evt webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}
	metrics.RecordWebhookEvent(evt.Event)

	ctx := r.Context()
	var (
		status string
		err    error
	)
	switch evt.Event {
	case eventMessagesUpsert:
		status, err = h.handleMessage(ctx, evt)
	case eventContactsUpsert, eventContactsUpdate:
		status, err = h.handleContacts(ctx, evt)
	case eventConnectionUpdate:
		status = "ignored_connection_update"
	default:
		status = "ignored_event"
	}

	if err != nil {
		h.logger.Error("webhook_processing_failed",
			zap.String("event", evt.Event),
			zap.String("instance", logpkg.SanitizeString(evt.Instance, 100)),
			zap.Error(err),
		)
		respondJSON(w, http.StatusOK, map[string]string{"status": "error"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *WebhookHandler) resolveBot(ctx context.Context, instance string) (*models.Bot, error) {
	bot, err := h.bots.GetByInstance(ctx, instance)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot: %w", err)
	}
	return bot, nil
}

func (h *WebhookHandler) handleMessage(ctx context.Context, evt webhookEvent) (string, error) {
	var msg messageEvent
	if err := json.Unmarshal(evt.Data, &msg); err != nil {
		return "", fmt.Errorf("failed to decode message event: %w", err)
	}
	if msg.Key.RemoteJID == "" {
		return "no_key_data", nil
	}

	bot, err := h.resolveBot(ctx, evt.Instance)
	if err != nil {
		return "", err
	}
	if bot == nil {
		return "unknown_instance", nil
	}

	phone := messaging.NumberFromJID(msg.Key.RemoteJID)
	text := msg.Text()
	now := h.now()

	contact, err := h.findOrCreateContact(ctx, bot, phone, msg.PushName, msg.Key.FromMe, now)
	if err != nil {
		return "", err
	}
	if err := h.contacts.TouchLastContact(ctx, bot.TenantID, contact.ID, now); err != nil {
		return "", err
	}
	if err := h.logMessage(ctx, bot, contact, text, msg.Key.FromMe, now); err != nil {
		return "", err
	}

	// Groups, broadcasts and the owner's own messages never reach the model
	if !msg.Key.FromMe && strings.HasSuffix(msg.Key.RemoteJID, directChatSuffix) && bot.IsActive {
		h.logger.Info("bot_turn_dispatched",
			zap.String("instance", bot.InstanceName),
			zap.String("phone", logpkg.MaskPhone(phone)),
		)
		h.turns.Dispatch(bot.ID, agent.TurnInput{
			BotInstance:    bot.InstanceName,
			ConversationID: msg.Key.RemoteJID,
			ContactID:      contact.ID,
			Text:           text,
		})
	}
	return "success", nil
}

func (h *WebhookHandler) findOrCreateContact(ctx context.Context, bot *models.Bot, phone, pushName string, fromMe bool, now time.Time) (*models.Contact, error) {
	contact, err := h.contacts.FindByPhoneSuffix(ctx, bot.TenantID, phone)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}

	name, direction := pushName, "Entrante"
	if name == "" {
		name = defaultContactName
	}
	if fromMe {
		name, direction = phone, "Saliente"
	}
	ownerID := bot.UserID
	contact = &models.Contact{
		TenantID:        bot.TenantID,
		Name:            name,
		Phone:           phone,
		Status:          models.ContactStatusHot,
		Type:            contactType,
		Source:          contactSource,
		Notes:           fmt.Sprintf("Lead auto-generado desde WhatsApp (%s).", direction),
		LastContactDate: &now,
		CreatedByID:     &ownerID,
	}
	if err := h.contacts.Create(ctx, contact); err != nil {
		return nil, err
	}
	h.logger.Info("contact_created_from_whatsapp",
		zap.Int64("tenant_id", bot.TenantID),
		zap.Int64("contact_id", contact.ID),
		zap.String("phone", logpkg.MaskPhone(phone)),
	)
	return contact, nil
}

func (h *WebhookHandler) logMessage(ctx context.Context, bot *models.Bot, contact *models.Contact, text string, fromMe bool, now time.Time) error {
	ownerID := bot.UserID
	entry := &models.ActivityLog{
		TenantID:    bot.TenantID,
		UserID:      &ownerID,
		Action:      models.ActionWhatsAppReceived,
		EntityType:  entityContact,
		EntityID:    contact.ID,
		Description: "Recibido: " + text,
	}
	if fromMe {
		entry.Action = models.ActionWhatsAppSent
		entry.Description = "WhatsApp enviado: " + text
		// The send endpoint already logged it; this is Evolution's echo
		dup, err := h.activity.ExistsSince(ctx, entry, now.Add(-sentDedupWindow))
		if err != nil {
			return err
		}
		if dup {
			return nil
		}
	}
	return h.activity.Log(ctx, entry)
}

func (h *WebhookHandler) handleContacts(ctx context.Context, evt webhookEvent) (string, error) {
	var contacts []contactEvent
	data := bytes.TrimSpace(evt.Data)
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &contacts); err != nil {
			return "", fmt.Errorf("failed to decode contacts event: %w", err)
		}
	} else if len(data) > 0 {
		var one contactEvent
		if err := json.Unmarshal(data, &one); err != nil {
			return "", fmt.Errorf("failed to decode contacts event: %w", err)
		}
		contacts = []contactEvent{one}
	}

	bot, err := h.resolveBot(ctx, evt.Instance)
	if err != nil {
		return "", err
	}
	if bot == nil {
		return "unknown_instance", nil
	}

	updated := 0
	for _, c := range contacts {
		jid := c.ID
		if jid == "" {
			jid = c.RemoteJID
		}
		phone := digitsOnly(messaging.NumberFromJID(jid))
		if phone == "" || c.Name == "" {
			continue
		}
		existing, err := h.contacts.FindByPhoneSuffix(ctx, bot.TenantID, phone)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to find contact: %w", err)
		}
		if existing.Alias == c.Name {
			continue
		}
		if err := h.contacts.UpdateAlias(ctx, bot.TenantID, existing.ID, c.Name); err != nil {
			return "", err
		}
		updated++
	}
	return fmt.Sprintf("contacts_processed:%d", updated), nil
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
