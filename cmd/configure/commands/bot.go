package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/validation"
)

// BotFile is the YAML document accepted by "bot apply"
type BotFile struct {
	UserID        int64                 `yaml:"user_id" json:"user_id" validate:"required,min=1"`
	Platform      string                `yaml:"platform" json:"platform" validate:"omitempty,oneof=whatsapp"`
	InstanceName  string                `yaml:"instance_name" json:"instance_name" validate:"required,max=100"`
	SystemPrompt  string                `yaml:"system_prompt" json:"system_prompt" validate:"max=8000"`
	BusinessHours models.WeeklySchedule `yaml:"business_hours" json:"business_hours"`
	Tags          []string              `yaml:"tags" json:"tags" validate:"max=20,dive,required,max=50"`
	Active        *bool                 `yaml:"active" json:"active"`
}

var weekdayKeys = map[string]bool{"Mon": true, "Tue": true, "Wed": true, "Thu": true, "Fri": true, "Sat": true, "Sun": true}

// parseBotFile decodes and validates a bot document
func parseBotFile(data []byte) (*models.Bot, error) {
	var f BotFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid bot file: %w", err)
	}
	if err := validation.Validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid bot file: %s", validation.Describe(err))
	}
	for day, window := range f.BusinessHours {
		if !weekdayKeys[day] {
			return nil, fmt.Errorf("invalid bot file: unknown weekday %q (use Mon..Sun)", day)
		}
		if !window.Enabled {
			continue
		}
		if validation.Validate.Var(window.Start, "hhmm") != nil || validation.Validate.Var(window.End, "hhmm") != nil {
			return nil, fmt.Errorf("invalid bot file: %s hours must be HH:MM", day)
		}
		if window.Start >= window.End {
			return nil, fmt.Errorf("invalid bot file: %s opens at %s but closes at %s", day, window.Start, window.End)
		}
	}

	bot := &models.Bot{
		UserID:        f.UserID,
		Platform:      f.Platform,
		InstanceName:  strings.TrimSpace(f.InstanceName),
		SystemPrompt:  strings.TrimSpace(f.SystemPrompt),
		BusinessHours: f.BusinessHours,
		Tags:          f.Tags,
		IsActive:      true,
	}
	if bot.Platform == "" {
		bot.Platform = "whatsapp"
	}
	if f.Active != nil {
		bot.IsActive = *f.Active
	}
	return bot, nil
}

// NewBotCmd creates the bot configuration command with apply and show subcommands
func NewBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Manage bot configuration",
		Long:  "Create or update a bot from a YAML file, or print the stored configuration.",
	}
	cmd.AddCommand(newBotApplyCmd())
	cmd.AddCommand(newBotShowCmd())
	return cmd
}

func newBotApplyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or replace a bot from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			bot, err := parseBotFile(data)
			if err != nil {
				return err
			}

			_, db, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := database.NewBotRepository(db).Upsert(context.Background(), bot); err != nil {
				return err
			}
			fmt.Printf("Bot %q saved (id %d, active=%v)\n", bot.InstanceName, bot.ID, bot.IsActive)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file describing the bot (required)")
	return cmd
}

func newBotShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <instance>",
		Short: "Print a bot's stored configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			bot, err := database.NewBotRepository(db).GetByInstance(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load bot %q: %w", args[0], err)
			}
			out, err := json.MarshalIndent(struct {
				*models.Bot
				EffectiveBusinessHours models.WeeklySchedule `json:"effective_business_hours"`
			}{bot, bot.EffectiveBusinessHours()}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
