// Package semantic ranks listings and leads by embedding similarity within a tenant.
package semantic

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/embedding"
	"go.uber.org/zap"
)

var (
	// ErrNotReady is returned when a listing has no vector yet
	ErrNotReady = errors.New("listing embedding not ready")
	// ErrNotFound is returned when the listing does not exist in the tenant
	ErrNotFound = database.ErrNotFound
	// ErrUnknownKind is returned for an unsupported listing kind
	ErrUnknownKind = errors.New("unknown listing kind")
)

// ListingKind names the listing tables
type ListingKind string

const (
	KindProperty    ListingKind = "property"
	KindDevelopment ListingKind = "development"
)

// PropertyHit is a search result. Score is set only when the result was ranked.
type PropertyHit struct {
	Property *models.Property
	Score    *float64
}

// ListingMatch is a mixed property/development match
type ListingMatch struct {
	Kind      ListingKind `json:"kind"`
	ID        int64       `json:"id"`
	Title     string      `json:"title"`
	Code      string      `json:"code,omitempty"`
	Zone      string      `json:"zone,omitempty"`
	Operation string      `json:"operation,omitempty"`
	Price     string      `json:"price,omitempty"`
	Score     float64     `json:"score"`
}

// LeadMatch is a lead ranked against a listing
type LeadMatch struct {
	ContactID int64   `json:"contact_id"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	Status    string  `json:"status,omitempty"`
	LeadScore int     `json:"lead_score"`
	Score     float64 `json:"score"`
}

// LeadRanker orders a tenant's leads by similarity to a vector
type LeadRanker interface {
	RankLeads(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]LeadMatch, error)
}

// Service implements listing search and reverse matching
type Service struct {
	properties   database.PropertyRepositoryInterface
	developments database.DevelopmentRepositoryInterface
	embedder     embedding.Embedder
	leads        LeadRanker
	logger       *zap.Logger
}

// NewService creates a semantic service
func NewService(
	properties database.PropertyRepositoryInterface,
	developments database.DevelopmentRepositoryInterface,
	embedder embedding.Embedder,
	leads LeadRanker,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		properties:   properties,
		developments: developments,
		embedder:     embedder,
		leads:        leads,
		logger:       logger,
	}
}

// SearchProperties applies the hard filters and ranks by similarity to query.
// Without a query, or when the query cannot be embedded, results are most recent first.
func (s *Service) SearchProperties(ctx context.Context, tenantID int64, query string, f Filters, limit int) ([]PropertyHit, error) {
	filter := database.ListingFilter{
		TenantID:  tenantID,
		Operation: NormalizeOperation(f.Operation),
		Type:      NormalizeType(f.Type),
		BudgetMax: f.BudgetMax,
		Zone:      f.Zone,
		MinRooms:  f.MinRooms,
	}

	if query != "" {
		vec, err := s.embedder.Embed(ctx, query, embedding.ModeQuery)
		if err == nil {
			return s.rankedSearch(ctx, filter, vec, limit)
		}
		s.logger.Warn("semantic_ranking_degraded",
			zap.Int64("tenant_id", tenantID),
			zap.Error(err),
		)
	}

	filter.Limit = limit
	props, err := s.properties.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search properties: %w", err)
	}
	hits := make([]PropertyHit, len(props))
	for i, p := range props {
		hits[i] = PropertyHit{Property: p}
	}
	return hits, nil
}

// rankedSearch leaves ordering to Postgres so every filtered listing is
// scored, not just a recent slice of them
func (s *Service) rankedSearch(ctx context.Context, filter database.ListingFilter, vec models.Vector, limit int) ([]PropertyHit, error) {
	filter.Limit = limit
	ranked, err := s.properties.RankBySimilarity(ctx, filter, vec)
	if err != nil {
		return nil, fmt.Errorf("failed to rank properties: %w", err)
	}
	hits := make([]PropertyHit, len(ranked))
	for i, r := range ranked {
		score := r.Similarity
		hits[i] = PropertyHit{Property: r.Item, Score: &score}
	}
	return hits, nil
}

// MatchListings ranks the tenant's properties and developments together against query
func (s *Service) MatchListings(ctx context.Context, tenantID int64, query string, limit int) ([]ListingMatch, error) {
	vec, err := s.embedder.Embed(ctx, query, embedding.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// The best limit of each kind is enough to build the best limit overall
	hits, err := s.rankedSearch(ctx, database.ListingFilter{TenantID: tenantID}, vec, limit)
	if err != nil {
		return nil, err
	}
	matches := make([]ListingMatch, 0, 2*len(hits))
	for _, h := range hits {
		p := h.Property
		matches = append(matches, ListingMatch{
			Kind:      KindProperty,
			ID:        p.ID,
			Title:     p.Title,
			Code:      p.Code,
			Zone:      p.Zone(),
			Operation: string(p.Operation),
			Price:     FormatPrice(p.Price, p.Currency),
			Score:     *h.Score,
		})
	}

	devs, err := s.developments.RankBySimilarity(ctx, tenantID, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank developments: %w", err)
	}
	for _, r := range devs {
		d := r.Item
		matches = append(matches, ListingMatch{
			Kind:      KindDevelopment,
			ID:        d.ID,
			Title:     d.Name,
			Code:      d.Code,
			Zone:      d.Address,
			Operation: string(models.OperationSale),
			Score:     r.Similarity,
		})
	}

	slices.SortStableFunc(matches, func(a, b ListingMatch) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// ReverseMatch ranks the tenant's leads against a listing's stored vector
func (s *Service) ReverseMatch(ctx context.Context, tenantID int64, kind ListingKind, listingID int64, limit int) ([]LeadMatch, error) {
	var vec models.Vector
	switch kind {
	case KindProperty:
		p, err := s.properties.GetByID(ctx, tenantID, listingID)
		if err != nil {
			return nil, err
		}
		vec = p.Embedding
	case KindDevelopment:
		d, err := s.developments.GetByID(ctx, tenantID, listingID)
		if err != nil {
			return nil, err
		}
		vec = d.Embedding
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if len(vec) == 0 {
		return nil, ErrNotReady
	}

	matches, err := s.leads.RankLeads(ctx, tenantID, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank leads: %w", err)
	}
	return matches, nil
}

// PostgresLeadRanker ranks leads by pgvector cosine distance over the contact store
type PostgresLeadRanker struct {
	contacts database.ContactRepositoryInterface
}

// NewPostgresLeadRanker creates a ranker over the contact store
func NewPostgresLeadRanker(contacts database.ContactRepositoryInterface) *PostgresLeadRanker {
	return &PostgresLeadRanker{contacts: contacts}
}

// RankLeads implements LeadRanker
func (r *PostgresLeadRanker) RankLeads(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]LeadMatch, error) {
	ranked, err := r.contacts.RankByPreferences(ctx, tenantID, vec, limit)
	if err != nil {
		return nil, err
	}
	matches := make([]LeadMatch, 0, len(ranked))
	for _, c := range ranked {
		if c.Item.TenantID != tenantID {
			continue
		}
		matches = append(matches, NewLeadMatch(c.Item, c.Similarity))
	}
	return matches, nil
}

// NewLeadMatch builds a match row from a contact
func NewLeadMatch(c *models.Contact, score float64) LeadMatch {
	return LeadMatch{
		ContactID: c.ID,
		Name:      c.DisplayName(),
		Phone:     c.Phone,
		Status:    string(c.Status),
		LeadScore: c.LeadScore,
		Score:     score,
	}
}

var _ LeadRanker = (*PostgresLeadRanker)(nil)
