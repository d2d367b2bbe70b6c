package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/services/locks"
	"github.com/propcrm/realty-agent/internal/services/messaging"
)

// NewCheckCmd creates the connectivity check command
func NewCheckCmd() *cobra.Command {
	var instance string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a bot's dependencies",
		Long:  "Verify the bot exists, its WhatsApp instance is connected and Redis answers when configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			if instance == "" {
				return fmt.Errorf("--instance is required")
			}
			cfg, db, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out := cmd.OutOrStdout()

			bot, err := database.NewBotRepository(db).GetByInstance(ctx, instance)
			if err != nil {
				return fmt.Errorf("failed to load bot %q: %w", instance, err)
			}
			fmt.Fprintf(out, "✓ Bot %q found (tenant %d, active=%v, status=%s)\n", bot.InstanceName, bot.TenantID, bot.IsActive, bot.Status)

			if cfg.EvolutionAPIURL == "" {
				return fmt.Errorf("EVOLUTION_API_URL is not configured")
			}
			evolution := messaging.NewClient(cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, nil, nil)
			state, err := evolution.ConnectionState(ctx, instance)
			if err != nil {
				return fmt.Errorf("failed to reach Evolution API: %w", err)
			}
			if state != "open" {
				return fmt.Errorf("WhatsApp instance %q is %s; scan the QR code in Evolution to reconnect", instance, state)
			}
			fmt.Fprintln(out, "✓ WhatsApp instance is connected")

			if cfg.RedisURL != "" {
				client, err := locks.Connect(ctx, cfg.RedisURL)
				if err != nil {
					return err
				}
				_ = client.Close()
				fmt.Fprintln(out, "✓ Redis is reachable")
			}

			fmt.Fprintln(out, "\n✓ All checks passed")
			return nil
		},
	}

	cmd.Flags().StringVar(&instance, "instance", "", "Bot instance name to check (required)")
	return cmd
}
