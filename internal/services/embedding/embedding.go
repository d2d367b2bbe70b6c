// Package embedding turns listing and lead descriptions into fixed-size vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/propcrm/realty-agent/internal/metrics"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/ai"
	"go.uber.org/zap"
)

// Dimensions is the vector length shared by every stored embedding
const Dimensions = 768

// DefaultTimeout bounds a single provider call
const DefaultTimeout = 15 * time.Second

// Mode is the intended use of an embedding
type Mode string

const (
	// ModeQuery embeds a search request
	ModeQuery Mode = "QUERY"
	// ModeDocument embeds a stored record
	ModeDocument Mode = "DOCUMENT"
)

var (
	// ErrEmptyInput is returned for blank text
	ErrEmptyInput = errors.New("embedding input is empty")
	// ErrDimensionMismatch is returned when the provider yields a vector of the wrong length
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder produces vectors for text
type Embedder interface {
	Embed(ctx context.Context, text string, mode Mode) (models.Vector, error)
}

// Options configures a Service
type Options struct {
	QueryPrefix    string
	DocumentPrefix string
	Timeout        time.Duration
}

// Service applies the mode policy in front of a provider
type Service struct {
	client ai.EmbeddingClient
	opts   Options
	logger *zap.Logger
}

// NewService creates an embedding service
func NewService(client ai.EmbeddingClient, opts Options, logger *zap.Logger) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, opts: opts, logger: logger}
}

// Embed returns a Dimensions-long vector for text
func (s *Service) Embed(ctx context.Context, text string, mode Mode) (models.Vector, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		metrics.RecordEmbedding(string(mode), "empty")
		return nil, ErrEmptyInput
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	raw, err := s.client.CreateEmbedding(ctx, s.prefix(mode)+text, Dimensions)
	if err != nil {
		metrics.RecordEmbedding(string(mode), "error")
		return nil, fmt.Errorf("failed to embed %s text: %w", strings.ToLower(string(mode)), err)
	}
	if len(raw) != Dimensions {
		metrics.RecordEmbedding(string(mode), "dimension_mismatch")
		s.logger.Error("embedding_dimension_mismatch",
			zap.Int("expected", Dimensions),
			zap.Int("got", len(raw)),
		)
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(raw), Dimensions)
	}

	metrics.RecordEmbedding(string(mode), "ok")
	return models.Vector(raw), nil
}

func (s *Service) prefix(mode Mode) string {
	if mode == ModeQuery {
		return s.opts.QueryPrefix
	}
	return s.opts.DocumentPrefix
}

var _ Embedder = (*Service)(nil)
