// Package messaging delivers outbound WhatsApp traffic through the Evolution API.
package messaging

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

	"github.com/propcrm/realty-agent/internal/logger"
)

// ErrNotConfigured is returned when no Evolution API URL or key is set
var ErrNotConfigured = errors.New("evolution api not configured")

// PresenceComposing shows the "typing..." indicator
const PresenceComposing = "composing"

const defaultTimeout = 30 * time.Second

// Sender is the outbound surface used by the conversation dispatcher
type Sender interface {
	SendText(ctx context.Context, instance, number, text string) error
	SendPresence(ctx context.Context, instance, number, presence string, delay time.Duration) error
	Reconnect(ctx context.Context, instance string) (qrRequired bool, err error)
}

// HTTPError is a non-2xx response from the Evolution API
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("evolution api returned %d: %s", e.StatusCode, logger.SanitizeString(e.Body, 200))
}

// ConnectionClosed reports whether the failure looks like a dropped session
func (e *HTTPError) ConnectionClosed() bool {
	return strings.Contains(e.Body, "Connection Closed") || strings.Contains(e.Body, "Bad Request")
}

// Client talks to a single Evolution API server
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

var _ Sender = (*Client)(nil)

// NewClient creates an Evolution API client. A nil httpClient gets a 30s timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		logger:  log,
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type presenceRequest struct {
	Number   string `json:"number"`
	Presence string `json:"presence"`
	Delay    int64  `json:"delay"`
}

// SendText delivers a text message to number (digits, no JID suffix)
func (c *Client) SendText(ctx context.Context, instance, number, text string) error {
	return c.call(ctx, http.MethodPost, "/message/sendText/"+instance, sendTextRequest{Number: number, Text: text}, nil)
}

// SendPresence sets the chat presence for delay
func (c *Client) SendPresence(ctx context.Context, instance, number, presence string, delay time.Duration) error {
	body := presenceRequest{Number: number, Presence: presence, Delay: delay.Milliseconds()}
	return c.call(ctx, http.MethodPost, "/chat/sendPresence/"+instance, body, nil)
}

// ConnectionState returns the instance state ("open", "close", "connecting")
func (c *Client) ConnectionState(ctx context.Context, instance string) (string, error) {
	var out struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
		State string `json:"state"`
	}
	if err := c.call(ctx, http.MethodGet, "/instance/connectionState/"+instance, nil, &out); err != nil {
		return "", err
	}
	if out.Instance.State != "" {
		return out.Instance.State, nil
	}
	return out.State, nil
}

// Reconnect asks the instance to reconnect. A QR code in the answer means the
// session is gone and a human has to pair the device again.
func (c *Client) Reconnect(ctx context.Context, instance string) (bool, error) {
	var out map[string]json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/instance/connect/"+instance, nil, &out); err != nil {
		return false, err
	}
	_, hasBase64 := out["base64"]
	_, hasQR := out["qrcode"]
	return hasBase64 || hasQR, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	if c.baseURL == "" || c.apiKey == "" {
		return ErrNotConfigured
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode evolution request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build evolution request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call evolution api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read evolution response: %w", err)
	}
	c.logger.Debug("evolution_api_call",
		zap.String("method", method),
		zap.String("path", logger.SanitizePath(path)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode >= 400 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode evolution response: %w", err)
		}
	}
	return nil
}

// NumberFromJID strips the WhatsApp JID suffix ("@s.whatsapp.net") and any
// device part, leaving the digits Evolution expects as a recipient
func NumberFromJID(jid string) string {
	number, _, _ := strings.Cut(jid, "@")
	number, _, _ = strings.Cut(number, ":")
	return number
}
