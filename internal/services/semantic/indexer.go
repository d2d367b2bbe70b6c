package semantic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/embedding"
	"go.uber.org/zap"
)

// SweepBatchSize bounds how many missing records one sweep pass picks up per kind
const SweepBatchSize = 500

// ErrNothingToEmbed is returned for a contact without preference notes
var ErrNothingToEmbed = errors.New("no preference notes to embed")

// LeadIndex mirrors lead preference vectors into an external ANN index
type LeadIndex interface {
	UpsertLead(ctx context.Context, tenantID, contactID int64, vec models.Vector) error
}

// SweepStats summarizes a backfill sweep
type SweepStats struct {
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Indexer recomputes context strings and vectors, one record at a time
type Indexer struct {
	properties   database.PropertyRepositoryInterface
	developments database.DevelopmentRepositoryInterface
	contacts     database.ContactRepositoryInterface
	embedder     embedding.Embedder
	leadIndex    LeadIndex
	logger       *zap.Logger
}

// NewIndexer creates an indexer. leadIndex may be nil.
func NewIndexer(
	properties database.PropertyRepositoryInterface,
	developments database.DevelopmentRepositoryInterface,
	contacts database.ContactRepositoryInterface,
	embedder embedding.Embedder,
	leadIndex LeadIndex,
	logger *zap.Logger,
) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		properties:   properties,
		developments: developments,
		contacts:     contacts,
		embedder:     embedder,
		leadIndex:    leadIndex,
		logger:       logger,
	}
}

// StaleRetries bounds how often a record edited mid-embed is re-read before
// the conflict is handed back to the caller
const StaleRetries = 1

// retryStale reruns embed while the guarded write reports a concurrent edit
func retryStale(embed func() error) error {
	err := embed()
	for i := 0; i < StaleRetries && errors.Is(err, database.ErrStaleRecord); i++ {
		err = embed()
	}
	return err
}

// EmbedProperty recomputes and stores one property's vector. The write only
// lands if the row is unchanged since it was read.
func (ix *Indexer) EmbedProperty(ctx context.Context, tenantID, id int64) error {
	return retryStale(func() error {
		p, err := ix.properties.GetByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		content := PropertyContext(p)
		vec, err := ix.embedder.Embed(ctx, content, embedding.ModeDocument)
		if err != nil {
			return err
		}
		return ix.properties.UpdateEmbedding(ctx, p, content, vec)
	})
}

// EmbedDevelopment recomputes and stores one development's vector
func (ix *Indexer) EmbedDevelopment(ctx context.Context, tenantID, id int64) error {
	return retryStale(func() error {
		d, err := ix.developments.GetByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		content := DevelopmentContext(d)
		vec, err := ix.embedder.Embed(ctx, content, embedding.ModeDocument)
		if err != nil {
			return err
		}
		return ix.developments.UpdateEmbedding(ctx, d, content, vec)
	})
}

// EmbedContact recomputes a lead's preference vector and mirrors it to the lead index
func (ix *Indexer) EmbedContact(ctx context.Context, tenantID, id int64) error {
	var vec models.Vector
	err := retryStale(func() error {
		c, err := ix.contacts.GetByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if strings.TrimSpace(c.Notes) == "" {
			return ErrNothingToEmbed
		}
		vec, err = ix.embedder.Embed(ctx, LeadContext(c), embedding.ModeDocument)
		if err != nil {
			return err
		}
		return ix.contacts.UpdateEmbedding(ctx, c, vec)
	})
	if err != nil {
		return err
	}
	if ix.leadIndex != nil {
		if err := ix.leadIndex.UpsertLead(ctx, tenantID, id, vec); err != nil {
			ix.logger.Warn("lead_index_upsert_failed",
				zap.Int64("tenant_id", tenantID),
				zap.Int64("contact_id", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Sweep embeds every record that has no vector. Each record commits on its own;
// a failure is counted and the sweep moves on. Cancellation stops between records.
func (ix *Indexer) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	kinds := []struct {
		name  string
		list  func(context.Context, int) ([]database.RecordRef, error)
		embed func(context.Context, int64, int64) error
	}{
		{"property", ix.properties.ListMissingEmbedding, ix.EmbedProperty},
		{"development", ix.developments.ListMissingEmbedding, ix.EmbedDevelopment},
		{"contact", ix.contacts.ListMissingEmbedding, ix.EmbedContact},
	}

	for _, k := range kinds {
		refs, err := k.list(ctx, SweepBatchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to list %s records without embedding: %w", k.name, err)
		}
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			err := k.embed(ctx, ref.TenantID, ref.ID)
			switch {
			case err == nil:
				stats.Embedded++
			case errors.Is(err, ErrNothingToEmbed), errors.Is(err, database.ErrNotFound):
				stats.Skipped++
			default:
				stats.Failed++
				ix.logger.Warn("backfill_record_failed",
					zap.String("kind", k.name),
					zap.Int64("tenant_id", ref.TenantID),
					zap.Int64("id", ref.ID),
					zap.Error(err),
				)
			}
		}
	}

	ix.logger.Info("backfill_sweep_completed",
		zap.Int("embedded", stats.Embedded),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}
