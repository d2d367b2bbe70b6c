package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/propcrm/realty-agent/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "realty-configure",
		Short: "Operations tool for the realty agent",
		Long:  "CLI tool for schema migrations, bot configuration, service tokens and embedding backfills",
	}

	rootCmd.AddCommand(commands.NewMigrateCmd())
	rootCmd.AddCommand(commands.NewBotCmd())
	rootCmd.AddCommand(commands.NewTokenCmd())
	rootCmd.AddCommand(commands.NewBackfillCmd())
	rootCmd.AddCommand(commands.NewCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
