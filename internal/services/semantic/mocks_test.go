package semantic

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/embedding"
)

type mockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string, mode embedding.Mode) (models.Vector, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string, mode embedding.Mode) (models.Vector, error) {
	return m.EmbedFunc(ctx, text, mode)
}

type mockPropertyRepo struct {
	GetByIDFunc              func(ctx context.Context, tenantID, id int64) (*models.Property, error)
	SearchFunc               func(ctx context.Context, f database.ListingFilter) ([]*models.Property, error)
	RankBySimilarityFunc     func(ctx context.Context, f database.ListingFilter, vec models.Vector) ([]database.Ranked[*models.Property], error)
	ListMissingEmbeddingFunc func(ctx context.Context, limit int) ([]database.RecordRef, error)
	UpdateEmbeddingFunc      func(ctx context.Context, p *models.Property, content string, vec models.Vector) error
}

func (m *mockPropertyRepo) GetByID(ctx context.Context, tenantID, id int64) (*models.Property, error) {
	return m.GetByIDFunc(ctx, tenantID, id)
}

func (m *mockPropertyRepo) Search(ctx context.Context, f database.ListingFilter) ([]*models.Property, error) {
	return m.SearchFunc(ctx, f)
}

func (m *mockPropertyRepo) RankBySimilarity(ctx context.Context, f database.ListingFilter, vec models.Vector) ([]database.Ranked[*models.Property], error) {
	return m.RankBySimilarityFunc(ctx, f, vec)
}

func (m *mockPropertyRepo) ListMissingEmbedding(ctx context.Context, limit int) ([]database.RecordRef, error) {
	if m.ListMissingEmbeddingFunc == nil {
		return nil, nil
	}
	return m.ListMissingEmbeddingFunc(ctx, limit)
}

func (m *mockPropertyRepo) UpdateEmbedding(ctx context.Context, p *models.Property, content string, vec models.Vector) error {
	return m.UpdateEmbeddingFunc(ctx, p, content, vec)
}

type mockDevelopmentRepo struct {
	GetByIDFunc              func(ctx context.Context, tenantID, id int64) (*models.Development, error)
	RankBySimilarityFunc     func(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]database.Ranked[*models.Development], error)
	ListMissingEmbeddingFunc func(ctx context.Context, limit int) ([]database.RecordRef, error)
	UpdateEmbeddingFunc      func(ctx context.Context, d *models.Development, content string, vec models.Vector) error
}

func (m *mockDevelopmentRepo) GetByID(ctx context.Context, tenantID, id int64) (*models.Development, error) {
	return m.GetByIDFunc(ctx, tenantID, id)
}

func (m *mockDevelopmentRepo) RankBySimilarity(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]database.Ranked[*models.Development], error) {
	if m.RankBySimilarityFunc == nil {
		return nil, nil
	}
	return m.RankBySimilarityFunc(ctx, tenantID, vec, limit)
}

func (m *mockDevelopmentRepo) ListMissingEmbedding(ctx context.Context, limit int) ([]database.RecordRef, error) {
	if m.ListMissingEmbeddingFunc == nil {
		return nil, nil
	}
	return m.ListMissingEmbeddingFunc(ctx, limit)
}

func (m *mockDevelopmentRepo) UpdateEmbedding(ctx context.Context, d *models.Development, content string, vec models.Vector) error {
	return m.UpdateEmbeddingFunc(ctx, d, content, vec)
}

type mockContactRepo struct {
	GetByIDFunc              func(ctx context.Context, tenantID, id int64) (*models.Contact, error)
	UpdateEmbeddingFunc      func(ctx context.Context, c *models.Contact, vec models.Vector) error
	ListMissingEmbeddingFunc func(ctx context.Context, limit int) ([]database.RecordRef, error)
	RankByPreferencesFunc    func(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]database.Ranked[*models.Contact], error)
}

func (m *mockContactRepo) GetByID(ctx context.Context, tenantID, id int64) (*models.Contact, error) {
	return m.GetByIDFunc(ctx, tenantID, id)
}

func (m *mockContactRepo) FindByPhoneSuffix(context.Context, int64, string) (*models.Contact, error) {
	return nil, database.ErrNotFound
}

func (m *mockContactRepo) Create(context.Context, *models.Contact) error { return nil }

func (m *mockContactRepo) UpdateProfile(context.Context, *models.Contact) error { return nil }

func (m *mockContactRepo) TouchLastContact(context.Context, int64, int64, time.Time) error {
	return nil
}

func (m *mockContactRepo) UpdateAlias(context.Context, int64, int64, string) error { return nil }

func (m *mockContactRepo) UpdateEmbedding(ctx context.Context, c *models.Contact, vec models.Vector) error {
	return m.UpdateEmbeddingFunc(ctx, c, vec)
}

func (m *mockContactRepo) ListMissingEmbedding(ctx context.Context, limit int) ([]database.RecordRef, error) {
	if m.ListMissingEmbeddingFunc == nil {
		return nil, nil
	}
	return m.ListMissingEmbeddingFunc(ctx, limit)
}

func (m *mockContactRepo) RankByPreferences(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]database.Ranked[*models.Contact], error) {
	return m.RankByPreferencesFunc(ctx, tenantID, vec, limit)
}

type mockLeadRanker struct {
	RankLeadsFunc func(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]LeadMatch, error)
}

func (m *mockLeadRanker) RankLeads(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]LeadMatch, error) {
	return m.RankLeadsFunc(ctx, tenantID, vec, limit)
}

var (
	_ embedding.Embedder                      = (*mockEmbedder)(nil)
	_ database.PropertyRepositoryInterface    = (*mockPropertyRepo)(nil)
	_ database.DevelopmentRepositoryInterface = (*mockDevelopmentRepo)(nil)
	_ database.ContactRepositoryInterface     = (*mockContactRepo)(nil)
	_ LeadRanker                              = (*mockLeadRanker)(nil)
)

// unit returns a 768-dim vector whose cosine with axis(0) is cos
func unit(cos float64) models.Vector {
	v := make(models.Vector, embedding.Dimensions)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

func axis(i int) models.Vector {
	v := make(models.Vector, embedding.Dimensions)
	v[i] = 1
	return v
}

func cosine(a, b models.Vector) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// pgRank mimics the repository ranking query: rows without a vector are
// skipped, order is similarity then recency then id, and limit applies last.
func pgRank(props []*models.Property, vec models.Vector, limit int) []database.Ranked[*models.Property] {
	var out []database.Ranked[*models.Property]
	for _, p := range props {
		if len(p.Embedding) == 0 {
			continue
		}
		out = append(out, database.Ranked[*models.Property]{Item: p, Similarity: cosine(p.Embedding, vec)})
	}
	slices.SortStableFunc(out, func(a, b database.Ranked[*models.Property]) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := b.Item.CreatedAt.Compare(a.Item.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Item.ID, a.Item.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
