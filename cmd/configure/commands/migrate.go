package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/propcrm/realty-agent/internal/config"
	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/logger"
)

// NewMigrateCmd creates the schema migration command
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <" + strings.Join(database.MigrationCommands, "|") + "> [version]",
		Short:     "Apply or inspect database migrations",
		Long:      "Run the embedded schema migrations. 'force' takes the version to mark as clean.",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: database.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			zapLogger, err := logger.NewDevelopmentLogger(false)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync(zapLogger) }()

			return database.RunMigrate(zapLogger, cfg.DatabaseURL, args[0], args[1:])
		},
	}
}
