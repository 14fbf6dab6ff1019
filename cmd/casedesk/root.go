package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sentinel-ops/casedesk/internal/shared/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "casedesk",
	Short:         "casedesk tracks security cases and incident reports",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(".env"); err == nil {
			if err := godotenv.Load(); err != nil {
				return fmt.Errorf("error loading .env file: %w", err)
			}
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (yaml, toml or json)")

	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, casesCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
