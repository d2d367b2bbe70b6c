package semantic

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/embedding"
)

type mockLeadIndex struct {
	UpsertLeadFunc func(ctx context.Context, tenantID, contactID int64, vec models.Vector) error
}

func (m *mockLeadIndex) UpsertLead(ctx context.Context, tenantID, contactID int64, vec models.Vector) error {
	return m.UpsertLeadFunc(ctx, tenantID, contactID, vec)
}

var _ LeadIndex = (*mockLeadIndex)(nil)

func documentEmbedder(failOn string) *mockEmbedder {
	return &mockEmbedder{EmbedFunc: func(_ context.Context, text string, mode embedding.Mode) (models.Vector, error) {
		if mode != embedding.ModeDocument {
			return nil, errors.New("unexpected mode")
		}
		if failOn != "" && strings.Contains(text, failOn) {
			return nil, errors.New("provider error")
		}
		return axis(0), nil
	}}
}

func TestIndexer_SweepCommitsPerRecord(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	committed := map[int64]string{}
	props := &mockPropertyRepo{
		ListMissingEmbeddingFunc: func(context.Context, int) ([]database.RecordRef, error) {
			return []database.RecordRef{{ID: 1, TenantID: 1}, {ID: 2, TenantID: 1}, {ID: 3, TenantID: 2}}, nil
		},
		GetByIDFunc: func(_ context.Context, tenantID, id int64) (*models.Property, error) {
			title := "ok"
			if id == 2 {
				title = "broken"
			}
			return &models.Property{ID: id, TenantID: tenantID, Description: title}, nil
		},
		UpdateEmbeddingFunc: func(_ context.Context, p *models.Property, content string, vec models.Vector) error {
			if len(vec) != embedding.Dimensions {
				t.Errorf("vector length %d", len(vec))
			}
			mu.Lock()
			committed[p.ID] = content
			mu.Unlock()
			return nil
		},
	}
	contacts := &mockContactRepo{
		ListMissingEmbeddingFunc: func(context.Context, int) ([]database.RecordRef, error) {
			return []database.RecordRef{{ID: 10, TenantID: 1}, {ID: 11, TenantID: 1}}, nil
		},
		GetByIDFunc: func(_ context.Context, tenantID, id int64) (*models.Contact, error) {
			c := &models.Contact{ID: id, TenantID: tenantID}
			if id == 10 {
				c.Notes = "[2026-10-01 10:00] Zona: Centro"
			}
			return c, nil
		},
		UpdateEmbeddingFunc: func(context.Context, *models.Contact, models.Vector) error { return nil },
	}
	var mirrored []int64
	leadIndex := &mockLeadIndex{UpsertLeadFunc: func(_ context.Context, _ int64, contactID int64, _ models.Vector) error {
		mirrored = append(mirrored, contactID)
		return errors.New("qdrant unavailable")
	}}

	ix := NewIndexer(props, &mockDevelopmentRepo{}, contacts, documentEmbedder("broken"), leadIndex, nil)
	stats, err := ix.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if stats.Embedded != 3 || stats.Failed != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if _, ok := committed[2]; ok {
		t.Error("failed record should not be committed")
	}
	if len(committed) != 2 || committed[1] == "" {
		t.Errorf("committed = %v", committed)
	}
	if len(mirrored) != 1 || mirrored[0] != 10 {
		t.Errorf("mirrored = %v", mirrored)
	}
}

func TestIndexer_SweepStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	updates := 0
	props := &mockPropertyRepo{
		ListMissingEmbeddingFunc: func(context.Context, int) ([]database.RecordRef, error) {
			return []database.RecordRef{{ID: 1, TenantID: 1}, {ID: 2, TenantID: 1}}, nil
		},
		GetByIDFunc: func(_ context.Context, tenantID, id int64) (*models.Property, error) {
			return &models.Property{ID: id, TenantID: tenantID}, nil
		},
		UpdateEmbeddingFunc: func(context.Context, *models.Property, string, models.Vector) error {
			updates++
			cancel()
			return nil
		},
	}
	ix := NewIndexer(props, &mockDevelopmentRepo{}, &mockContactRepo{}, documentEmbedder(""), nil, nil)

	_, err := ix.Sweep(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sweep() error = %v, want context.Canceled", err)
	}
	if updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}
}

func TestIndexer_EmbedPropertyRereadsStaleRecord(t *testing.T) {
	t.Parallel()

	edited := time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		staleFor   int
		wantErr    error
		wantReads  int
		wantWrites int
	}{
		{name: "unchanged", staleFor: 0, wantReads: 1, wantWrites: 1},
		{name: "edited once mid-embed", staleFor: 1, wantReads: 2, wantWrites: 2},
		{name: "keeps changing", staleFor: 5, wantErr: database.ErrStaleRecord, wantReads: 2, wantWrites: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reads, writes := 0, 0
			var lastContent string
			props := &mockPropertyRepo{
				GetByIDFunc: func(_ context.Context, tenantID, id int64) (*models.Property, error) {
					reads++
					desc := "old description"
					if reads > 1 {
						desc = "new description"
					}
					return &models.Property{ID: id, TenantID: tenantID, Description: desc, UpdatedAt: edited.Add(time.Duration(reads) * time.Minute)}, nil
				},
				UpdateEmbeddingFunc: func(_ context.Context, p *models.Property, content string, _ models.Vector) error {
					writes++
					if !p.UpdatedAt.Equal(edited.Add(time.Duration(reads) * time.Minute)) {
						t.Errorf("write guarded on %v, not the version just read", p.UpdatedAt)
					}
					if writes <= tt.staleFor {
						return database.ErrStaleRecord
					}
					lastContent = content
					return nil
				},
			}
			ix := NewIndexer(props, &mockDevelopmentRepo{}, &mockContactRepo{}, documentEmbedder(""), nil, nil)

			err := ix.EmbedProperty(context.Background(), 1, 5)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("EmbedProperty() error = %v, want %v", err, tt.wantErr)
			}
			if reads != tt.wantReads || writes != tt.wantWrites {
				t.Errorf("reads = %d, writes = %d", reads, writes)
			}
			if tt.staleFor == 1 && !strings.Contains(lastContent, "new description") {
				t.Errorf("stored content %q is not from the re-read record", lastContent)
			}
		})
	}
}

func TestIndexer_SweepCountsStaleAsFailed(t *testing.T) {
	t.Parallel()

	contacts := &mockContactRepo{
		ListMissingEmbeddingFunc: func(context.Context, int) ([]database.RecordRef, error) {
			return []database.RecordRef{{ID: 10, TenantID: 1}}, nil
		},
		GetByIDFunc: func(_ context.Context, tenantID, id int64) (*models.Contact, error) {
			return &models.Contact{ID: id, TenantID: tenantID, Notes: "Zona: Centro"}, nil
		},
		UpdateEmbeddingFunc: func(context.Context, *models.Contact, models.Vector) error {
			return database.ErrStaleRecord
		},
	}
	leadIndex := &mockLeadIndex{UpsertLeadFunc: func(context.Context, int64, int64, models.Vector) error {
		t.Error("stale vector should not be mirrored")
		return nil
	}}
	ix := NewIndexer(&mockPropertyRepo{}, &mockDevelopmentRepo{}, contacts, documentEmbedder(""), leadIndex, nil)

	stats, err := ix.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 1 || stats.Embedded != 0 {
		t.Errorf("stats = %+v", stats)
	}
}
