// Package auth issues and verifies the HS256 service tokens that guard the admin API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	// Issuer is stamped on every service token
	Issuer = "realty-agent"
	// ClaimTenantID carries the tenant the token is scoped to
	ClaimTenantID = "tenant_id"
)

var (
	// ErrNoSecret is returned when the signing secret is empty
	ErrNoSecret = errors.New("service token secret not configured")
	// ErrInvalidToken is returned for any token that fails verification
	ErrInvalidToken = errors.New("invalid service token")
)

// Claims is what a verified token grants
type Claims struct {
	Subject   string
	TenantID  int64
	ExpiresAt time.Time
}

// TokenService signs and verifies service tokens with a shared secret
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a token service
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// Issue mints a token for subject scoped to tenantID
func (s *TokenService) Issue(subject string, tenantID int64, ttl time.Duration) (string, error) {
	if tenantID <= 0 {
		return "", fmt.Errorf("tenant id must be positive")
	}
	now := s.now()
	tok, err := jwt.NewBuilder().
		Issuer(Issuer).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(ClaimTenantID, tenantID).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Verify checks signature, issuer and expiry and extracts the claims
func (s *TokenService) Verify(raw string) (*Claims, error) {
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, s.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(Issuer),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	v, ok := tok.Get(ClaimTenantID)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, ClaimTenantID)
	}
	tenantID, ok := toInt64(v)
	if !ok || tenantID <= 0 {
		return nil, fmt.Errorf("%w: bad %s claim", ErrInvalidToken, ClaimTenantID)
	}
	return &Claims{Subject: tok.Subject(), TenantID: tenantID, ExpiresAt: tok.Expiration()}, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), n == float64(int64(n))
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
