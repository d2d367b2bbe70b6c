package semantic

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/embedding"
)

func queryEmbedder() *mockEmbedder {
	return &mockEmbedder{EmbedFunc: func(_ context.Context, _ string, mode embedding.Mode) (models.Vector, error) {
		if mode != embedding.ModeQuery {
			return nil, errors.New("unexpected mode")
		}
		return axis(0), nil
	}}
}

func TestSearchProperties_RanksBySimilarity(t *testing.T) {
	t.Parallel()

	now := time.Now()
	props := []*models.Property{
		{ID: 1, TenantID: 1, Title: "low", Embedding: unit(0.1), CreatedAt: now},
		{ID: 2, TenantID: 1, Title: "high", Embedding: unit(0.9), CreatedAt: now.Add(-time.Hour)},
		{ID: 3, TenantID: 1, Title: "mid", Embedding: unit(0.5), CreatedAt: now.Add(-2 * time.Hour)},
		{ID: 4, TenantID: 1, Title: "no vector", CreatedAt: now},
	}
	var gotFilter database.ListingFilter
	repo := &mockPropertyRepo{RankBySimilarityFunc: func(_ context.Context, f database.ListingFilter, vec models.Vector) ([]database.Ranked[*models.Property], error) {
		gotFilter = f
		return pgRank(props, vec, f.Limit), nil
	}}
	svc := NewService(repo, &mockDevelopmentRepo{}, queryEmbedder(), nil, nil)

	hits, err := svc.SearchProperties(context.Background(), 1, "casa luminosa", Filters{Operation: "venta", Type: "depto"}, 6)
	if err != nil {
		t.Fatalf("SearchProperties() error = %v", err)
	}
	if gotFilter.Limit != 6 || gotFilter.TenantID != 1 {
		t.Errorf("filter = %+v", gotFilter)
	}
	if gotFilter.Operation != models.OperationSale || gotFilter.Type != "Apartment" {
		t.Errorf("synonyms not normalized: %+v", gotFilter)
	}

	want := []int64{2, 3, 1}
	if len(hits) != len(want) {
		t.Fatalf("got %d hits, want %d", len(hits), len(want))
	}
	for i, id := range want {
		if hits[i].Property.ID != id {
			t.Errorf("hits[%d] = %d, want %d", i, hits[i].Property.ID, id)
		}
		if hits[i].Score == nil {
			t.Errorf("hits[%d] has no score", i)
		}
	}
	if math.Abs(*hits[0].Score-0.9) > 1e-6 {
		t.Errorf("top score = %v", *hits[0].Score)
	}
}

func TestSearchProperties_OldestBestMatchIsFound(t *testing.T) {
	t.Parallel()

	// 250 listings, newest first; only the oldest one is a close match
	now := time.Now()
	props := make([]*models.Property, 0, 250)
	for i := 1; i <= 250; i++ {
		sim := 0.10
		if i == 250 {
			sim = 0.99
		}
		props = append(props, &models.Property{
			ID:        int64(i),
			TenantID:  1,
			Embedding: unit(sim),
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
		})
	}
	calls := 0
	repo := &mockPropertyRepo{
		RankBySimilarityFunc: func(_ context.Context, f database.ListingFilter, vec models.Vector) ([]database.Ranked[*models.Property], error) {
			calls++
			return pgRank(props, vec, f.Limit), nil
		},
		SearchFunc: func(context.Context, database.ListingFilter) ([]*models.Property, error) {
			t.Error("ranked search should not fall back to the recency listing")
			return nil, nil
		},
	}
	svc := NewService(repo, &mockDevelopmentRepo{}, queryEmbedder(), nil, nil)

	hits, err := svc.SearchProperties(context.Background(), 1, "casa con pileta", Filters{}, 6)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("ranking queries = %d, want 1", calls)
	}
	if len(hits) != 6 || hits[0].Property.ID != 250 {
		t.Fatalf("top hit = %+v, want listing 250", hits[0].Property)
	}
	if math.Abs(*hits[0].Score-0.99) > 1e-6 {
		t.Errorf("top score = %v", *hits[0].Score)
	}
}

func TestSearchProperties_TiesPreferRecent(t *testing.T) {
	t.Parallel()

	now := time.Now()
	repo := &mockPropertyRepo{RankBySimilarityFunc: func(_ context.Context, f database.ListingFilter, vec models.Vector) ([]database.Ranked[*models.Property], error) {
		return pgRank([]*models.Property{
			{ID: 1, Embedding: unit(0.5), CreatedAt: now.Add(-time.Hour)},
			{ID: 2, Embedding: unit(0.5), CreatedAt: now},
		}, vec, f.Limit), nil
	}}
	svc := NewService(repo, &mockDevelopmentRepo{}, queryEmbedder(), nil, nil)

	hits, err := svc.SearchProperties(context.Background(), 1, "x", Filters{}, 6)
	if err != nil {
		t.Fatal(err)
	}
	if hits[0].Property.ID != 2 {
		t.Errorf("tie should go to the most recent, got %d first", hits[0].Property.ID)
	}
}

func TestSearchProperties_RecencyFallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		embedErr error
	}{
		{name: "no query"},
		{name: "embedding fails", query: "casa", embedErr: errors.New("provider down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotFilter database.ListingFilter
			repo := &mockPropertyRepo{SearchFunc: func(_ context.Context, f database.ListingFilter) ([]*models.Property, error) {
				gotFilter = f
				return []*models.Property{{ID: 9}, {ID: 8}}, nil
			}}
			emb := &mockEmbedder{EmbedFunc: func(context.Context, string, embedding.Mode) (models.Vector, error) {
				return nil, tt.embedErr
			}}
			svc := NewService(repo, &mockDevelopmentRepo{}, emb, nil, nil)

			hits, err := svc.SearchProperties(context.Background(), 7, tt.query, Filters{Zone: "Centro"}, 6)
			if err != nil {
				t.Fatalf("SearchProperties() error = %v", err)
			}
			if gotFilter.Limit != 6 || gotFilter.Zone != "Centro" {
				t.Errorf("filter = %+v", gotFilter)
			}
			if len(hits) != 2 || hits[0].Property.ID != 9 || hits[0].Score != nil {
				t.Errorf("hits = %+v", hits)
			}
		})
	}
}

func TestReverseMatch(t *testing.T) {
	t.Parallel()

	props := &mockPropertyRepo{GetByIDFunc: func(_ context.Context, tenantID, id int64) (*models.Property, error) {
		switch {
		case tenantID != 1:
			return nil, database.ErrNotFound
		case id == 1:
			return &models.Property{ID: 1, TenantID: 1, Embedding: axis(0)}, nil
		default:
			return &models.Property{ID: id, TenantID: 1}, nil
		}
	}}
	ranker := &mockLeadRanker{RankLeadsFunc: func(_ context.Context, tenantID int64, _ models.Vector, limit int) ([]LeadMatch, error) {
		return []LeadMatch{{ContactID: 5, Score: 0.8}}, nil
	}}
	svc := NewService(props, &mockDevelopmentRepo{}, queryEmbedder(), ranker, nil)

	tests := []struct {
		name    string
		tenant  int64
		kind    ListingKind
		id      int64
		wantErr error
	}{
		{name: "ready", tenant: 1, kind: KindProperty, id: 1},
		{name: "no vector", tenant: 1, kind: KindProperty, id: 2, wantErr: ErrNotReady},
		{name: "other tenant", tenant: 2, kind: KindProperty, id: 1, wantErr: ErrNotFound},
		{name: "unknown kind", tenant: 1, kind: "office", id: 1, wantErr: ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			matches, err := svc.ReverseMatch(context.Background(), tt.tenant, tt.kind, tt.id, 10)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReverseMatch() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || len(matches) != 1 || matches[0].ContactID != 5 {
				t.Errorf("ReverseMatch() = %v, %v", matches, err)
			}
		})
	}
}

func TestPostgresLeadRanker_TenantIsolation(t *testing.T) {
	t.Parallel()

	var gotLimit int
	contacts := &mockContactRepo{RankByPreferencesFunc: func(_ context.Context, tenantID int64, _ models.Vector, limit int) ([]database.Ranked[*models.Contact], error) {
		gotLimit = limit
		return []database.Ranked[*models.Contact]{
			{Item: &models.Contact{ID: 2, TenantID: tenantID, Name: "Beto"}, Similarity: 0.7},
			{Item: &models.Contact{ID: 3, TenantID: 99, Name: "Intruso"}, Similarity: 0.5},
			{Item: &models.Contact{ID: 1, TenantID: tenantID, Name: "Ana"}, Similarity: 0.3},
		}, nil
	}}
	matches, err := NewPostgresLeadRanker(contacts).RankLeads(context.Background(), 1, axis(0), 10)
	if err != nil {
		t.Fatal(err)
	}
	if gotLimit != 10 {
		t.Errorf("limit = %d, want 10", gotLimit)
	}
	if len(matches) != 2 || matches[0].ContactID != 2 || matches[1].ContactID != 1 {
		t.Errorf("matches = %+v", matches)
	}
	if math.Abs(matches[0].Score-0.7) > 1e-9 {
		t.Errorf("score = %v", matches[0].Score)
	}
}

func TestMatchListings_MixesKinds(t *testing.T) {
	t.Parallel()

	props := &mockPropertyRepo{RankBySimilarityFunc: func(_ context.Context, f database.ListingFilter, vec models.Vector) ([]database.Ranked[*models.Property], error) {
		if f.TenantID != 1 || f.Limit != 6 {
			t.Errorf("filter = %+v", f)
		}
		return pgRank([]*models.Property{{ID: 1, Title: "Casa", Embedding: unit(0.4)}}, vec, f.Limit), nil
	}}
	devs := &mockDevelopmentRepo{RankBySimilarityFunc: func(_ context.Context, tenantID int64, _ models.Vector, limit int) ([]database.Ranked[*models.Development], error) {
		if limit != 6 {
			t.Errorf("limit = %d", limit)
		}
		return []database.Ranked[*models.Development]{
			{Item: &models.Development{ID: 7, TenantID: tenantID, Name: "Torre Río"}, Similarity: 0.8},
		}, nil
	}}
	svc := NewService(props, devs, queryEmbedder(), nil, nil)

	matches, err := svc.MatchListings(context.Background(), 1, "frente al río", 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].Kind != KindDevelopment || matches[1].Kind != KindProperty {
		t.Errorf("matches = %+v", matches)
	}
}

func TestMatchListings_CutsMergedRanking(t *testing.T) {
	t.Parallel()

	props := &mockPropertyRepo{RankBySimilarityFunc: func(_ context.Context, f database.ListingFilter, vec models.Vector) ([]database.Ranked[*models.Property], error) {
		return pgRank([]*models.Property{
			{ID: 1, Embedding: unit(0.9)},
			{ID: 2, Embedding: unit(0.2)},
		}, vec, f.Limit), nil
	}}
	devs := &mockDevelopmentRepo{RankBySimilarityFunc: func(_ context.Context, tenantID int64, _ models.Vector, _ int) ([]database.Ranked[*models.Development], error) {
		return []database.Ranked[*models.Development]{
			{Item: &models.Development{ID: 7, TenantID: tenantID}, Similarity: 0.6},
			{Item: &models.Development{ID: 8, TenantID: tenantID}, Similarity: 0.1},
		}, nil
	}}
	svc := NewService(props, devs, queryEmbedder(), nil, nil)

	matches, err := svc.MatchListings(context.Background(), 1, "q", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != 1 || matches[1].ID != 7 {
		t.Errorf("matches = %+v", matches)
	}
}
