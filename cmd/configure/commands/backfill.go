package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/logger"
	"github.com/propcrm/realty-agent/internal/services/ai"
	"github.com/propcrm/realty-agent/internal/services/embedding"
	"github.com/propcrm/realty-agent/internal/services/semantic"
	"github.com/propcrm/realty-agent/internal/services/vectorstore"
)

// NewBackfillCmd creates the embedding backfill command
func NewBackfillCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed every listing and lead missing a vector",
		Long:  "Run one backfill sweep in the foreground, without going through the job queue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()
			if cfg.OpenAIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required")
			}

			zapLogger, err := logger.NewDevelopmentLogger(verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync(zapLogger) }()

			contacts := database.NewContactRepository(db)
			provider := ai.NewOpenAIProvider(ai.OpenAIOptions{
				APIKey:         cfg.OpenAIKey,
				BaseURL:        cfg.AIBaseURL,
				EmbeddingModel: cfg.EmbeddingModel,
				Logger:         zapLogger,
			})
			embedder := embedding.NewService(provider, embedding.Options{
				QueryPrefix:    cfg.EmbeddingQueryPrefix,
				DocumentPrefix: cfg.EmbeddingDocumentPrefix,
			}, zapLogger)

			var leadIndex semantic.LeadIndex
			if cfg.QdrantURL != "" {
				store, err := vectorstore.NewLeadStore(vectorstore.Options{
					URL:        cfg.QdrantURL,
					APIKey:     cfg.QdrantAPIKey,
					Collection: cfg.QdrantCollection,
					Dimension:  embedding.Dimensions,
				}, contacts, zapLogger)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				leadIndex = store
			}

			indexer := semantic.NewIndexer(
				database.NewPropertyRepository(db),
				database.NewDevelopmentRepository(db),
				contacts,
				embedder,
				leadIndex,
				zapLogger,
			)
			stats, err := indexer.Sweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d, failed %d, skipped %d\n", stats.Embedded, stats.Failed, stats.Skipped)
			return err
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every record")
	return cmd
}
