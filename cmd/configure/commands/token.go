package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/propcrm/realty-agent/internal/config"
	"github.com/propcrm/realty-agent/internal/services/auth"
)

// DefaultTokenTTL is the lifetime of an issued admin token
const DefaultTokenTTL = 30 * 24 * time.Hour

// NewTokenCmd creates the service token command
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage admin API tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		subject  string
		tenantID int64
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for the admin API",
		Long:  "Sign a token with SERVICE_TOKEN_SECRET. The token only grants access to the given tenant.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" || tenantID <= 0 {
				return fmt.Errorf("required flags: --subject, --tenant")
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			tokens, err := auth.NewTokenService(cfg.ServiceTokenSecret)
			if err != nil {
				return err
			}
			raw, err := tokens.Issue(subject, tenantID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Who the token is for, e.g. crm-backend (required)")
	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "Tenant the token is scoped to (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", DefaultTokenTTL, "Token lifetime")
	return cmd
}
