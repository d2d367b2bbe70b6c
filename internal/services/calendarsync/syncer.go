// Package calendarsync mirrors booked visits into linked external calendars.
// The local booking is authoritative; every outcome is reported as a Result.
package calendarsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/metrics"
	"github.com/propcrm/realty-agent/internal/models"
)

// ErrCredentialRevoked means the refresh token was rejected and the credential removed
var ErrCredentialRevoked = errors.New("calendar credential revoked")

// RefreshMargin is how close to expiry an access token is refreshed
const RefreshMargin = time.Minute

// Status is the outcome of a sync attempt
type Status string

const (
	StatusSynced  Status = "synced"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result describes one sync attempt
type Result struct {
	Status          Status
	Account         models.CredentialOwner
	ExternalEventID string
	Err             error
}

// Synchronizer is the calendar side channel used after a booking
type Synchronizer interface {
	Sync(ctx context.Context, event *models.CalendarEvent) Result
}

// Config holds the OAuth client and API endpoints
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	CalendarURL  string
	Location     *time.Location
	HTTPClient   *http.Client
}

// Syncer implements Synchronizer against the Google Calendar REST API
type Syncer struct {
	credentials database.CredentialRepositoryInterface
	users       database.UserRepositoryInterface
	oauth       *oauth2.Config
	baseURL     string
	loc         *time.Location
	httpClient  *http.Client
	now         func() time.Time
	logger      *zap.Logger
}

var _ Synchronizer = (*Syncer)(nil)

// NewSyncer creates a calendar syncer
func NewSyncer(cfg Config, credentials database.CredentialRepositoryInterface, users database.UserRepositoryInterface, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Syncer{
		credentials: credentials,
		users:       users,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		baseURL:    strings.TrimRight(cfg.CalendarURL, "/"),
		loc:        loc,
		httpClient: httpClient,
		now:        time.Now,
		logger:     logger,
	}
}

// Sync tries the agent's own account first, inviting the agency, then the
// agency account, inviting the agent. It never returns an error directly.
func (s *Syncer) Sync(ctx context.Context, event *models.CalendarEvent) Result {
	res := s.sync(ctx, event)
	metrics.RecordCalendarSync(string(res.Status), string(res.Account))

	fields := []zap.Field{
		zap.Int64("event_id", event.ID),
		zap.String("status", string(res.Status)),
		zap.String("account", string(res.Account)),
	}
	switch res.Status {
	case StatusFailed:
		s.logger.Warn("calendar_sync_failed", append(fields, zap.Error(res.Err))...)
	case StatusSynced:
		s.logger.Info("calendar_sync_completed", append(fields, zap.String("external_event_id", res.ExternalEventID))...)
	default:
		s.logger.Debug("calendar_sync_skipped", fields...)
	}
	return res
}

func (s *Syncer) sync(ctx context.Context, event *models.CalendarEvent) Result {
	agency, err := s.optionalCredential(s.credentials.GetForAgency(ctx, event.TenantID))
	if err != nil {
		return Result{Status: StatusFailed, Err: err}
	}
	agent, err := s.optionalCredential(s.credentials.GetForAgent(ctx, event.TenantID, event.AgentID))
	if err != nil {
		return Result{Status: StatusFailed, Err: err}
	}

	if agent != nil {
		var invite []string
		if agency != nil && agency.Email != "" {
			invite = append(invite, agency.Email)
		}
		res := s.push(ctx, agent, event, invite)
		if !errors.Is(res.Err, ErrCredentialRevoked) {
			return res
		}
	}

	if agency != nil {
		var invite []string
		if u, err := s.users.GetByID(ctx, event.TenantID, event.AgentID); err == nil && u.Email != "" {
			invite = append(invite, u.Email)
		}
		return s.push(ctx, agency, event, invite)
	}
	return Result{Status: StatusSkipped}
}

func (s *Syncer) optionalCredential(c *models.CalendarCredential, err error) (*models.CalendarCredential, error) {
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func (s *Syncer) push(ctx context.Context, cred *models.CalendarCredential, event *models.CalendarEvent, attendees []string) Result {
	res := Result{Account: cred.OwnerType}
	tok, err := s.token(ctx, cred)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	id, err := s.createEvent(ctx, tok, event, attendees)
	if err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}
	res.Status, res.ExternalEventID = StatusSynced, id
	return res
}

// token returns a usable access token, refreshing and persisting it when it
// expires within RefreshMargin.
func (s *Syncer) token(ctx context.Context, cred *models.CalendarCredential) (*oauth2.Token, error) {
	if cred.AccessToken != "" && cred.TokenExpiry != nil && s.now().Add(RefreshMargin).Before(*cred.TokenExpiry) {
		return &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer", Expiry: *cred.TokenExpiry}, nil
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("credential %d has no refresh token", cred.ID)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	fresh, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			if clearErr := s.credentials.Clear(ctx, cred.ID); clearErr != nil {
				s.logger.Error("failed_to_clear_revoked_credential", zap.Int64("credential_id", cred.ID), zap.Error(clearErr))
			}
			return nil, ErrCredentialRevoked
		}
		return nil, fmt.Errorf("failed to refresh calendar token: %w", err)
	}

	if err := s.credentials.UpdateToken(ctx, cred.ID, fresh.AccessToken, fresh.RefreshToken, fresh.Expiry); err != nil {
		s.logger.Warn("failed_to_persist_calendar_token", zap.Int64("credential_id", cred.ID), zap.Error(err))
	}
	return fresh, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type attendee struct {
	Email string `json:"email"`
}

type eventBody struct {
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       eventTime  `json:"start"`
	End         eventTime  `json:"end"`
	Attendees   []attendee `json:"attendees,omitempty"`
}

func (s *Syncer) createEvent(ctx context.Context, tok *oauth2.Token, event *models.CalendarEvent, invite []string) (string, error) {
	body := eventBody{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.PropertyAddress,
		Start:       eventTime{DateTime: event.StartTime.In(s.loc).Format(time.RFC3339), TimeZone: s.loc.String()},
		End:         eventTime{DateTime: event.EndTime.In(s.loc).Format(time.RFC3339), TimeZone: s.loc.String()},
	}
	for _, email := range invite {
		body.Attendees = append(body.Attendees, attendee{Email: email})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode calendar event: %w", err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/calendars/primary/events", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build calendar request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create calendar event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("calendar api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("failed to decode calendar response: %w", err)
	}
	return created.ID, nil
}
