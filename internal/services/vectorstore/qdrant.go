// Package vectorstore keeps lead preference vectors in a Qdrant collection
// so reverse matching does not scan every contact in process.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/semantic"
)

const (
	payloadTenantID  = "tenant_id"
	payloadContactID = "contact_id"
	defaultPort      = 6334
	defaultTimeout   = 10 * time.Second
)

// pointsClient is the subset of *qdrant.Client used by the store
type pointsClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// contactGetter resolves ranked ids back into tenant-scoped contacts
type contactGetter interface {
	GetByID(ctx context.Context, tenantID, id int64) (*models.Contact, error)
}

// LeadStore mirrors contact preference vectors into Qdrant and ranks them
type LeadStore struct {
	client     pointsClient
	contacts   contactGetter
	collection string
	dimension  int
	logger     *zap.Logger
}

var (
	_ semantic.LeadRanker = (*LeadStore)(nil)
	_ semantic.LeadIndex  = (*LeadStore)(nil)
)

// Options configures the Qdrant connection
type Options struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// NewLeadStore connects to Qdrant and makes sure the collection exists
func NewLeadStore(opts Options, contacts contactGetter, logger *zap.Logger) (*LeadStore, error) {
	host, port, useTLS, err := parseEndpoint(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: opts.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store := newLeadStore(client, contacts, opts.Collection, opts.Dimension, logger)
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

func newLeadStore(client pointsClient, contacts contactGetter, collection string, dimension int, logger *zap.Logger) *LeadStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collection == "" {
		collection = "lead_preferences"
	}
	return &LeadStore{
		client:     client,
		contacts:   contacts,
		collection: collection,
		dimension:  dimension,
		logger:     logger.With(zap.String("store", "qdrant")),
	}
}

// Close releases the gRPC connection
func (s *LeadStore) Close() error {
	return s.client.Close()
}

func (s *LeadStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create qdrant collection: %w", err)
	}
	s.logger.Info("qdrant_collection_created", zap.String("collection", s.collection), zap.Int("dimension", s.dimension))
	return nil
}

// UpsertLead stores the contact's preference vector keyed by contact id
func (s *LeadStore) UpsertLead(ctx context.Context, tenantID, contactID int64, vec models.Vector) error {
	if len(vec) != s.dimension {
		return fmt.Errorf("lead vector has %d dimensions, want %d", len(vec), s.dimension)
	}
	payload, err := qdrant.TryValueMap(map[string]any{
		payloadTenantID:  tenantID,
		payloadContactID: contactID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode qdrant payload: %w", err)
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDNum(uint64(contactID)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert lead vector: %w", err)
	}
	return nil
}

// RankLeads queries the tenant's points and resolves them to contacts.
// Points whose contact is gone or lives in another tenant are skipped.
func (s *LeadStore) RankLeads(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]semantic.LeadMatch, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchInt(payloadTenantID, tenantID)},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query lead vectors: %w", err)
	}

	out := make([]semantic.LeadMatch, 0, len(results))
	for _, point := range results {
		id := int64(point.GetId().GetNum())
		if id == 0 {
			continue
		}
		c, err := s.contacts.GetByID(ctx, tenantID, id)
		if errors.Is(err, database.ErrNotFound) {
			s.logger.Debug("stale_lead_point", zap.Int64("contact_id", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, semantic.NewLeadMatch(c, float64(point.GetScore())))
	}
	return out, nil
}

func parseEndpoint(endpoint string) (string, int, bool, error) {
	if endpoint == "" {
		return "127.0.0.1", defaultPort, false, nil
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", 0, false, err
	}
	host := parsed.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}
	port := defaultPort
	if p := parsed.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return "", 0, false, err
		}
	}
	return host, port, parsed.Scheme == "https", nil
}
