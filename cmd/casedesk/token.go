package main

import (
	"fmt"
	"time"

	"github.com/sentinel-ops/casedesk/internal/shared/identity"
	"github.com/spf13/cobra"
)

var tokenName string

var tokenCmd = &cobra.Command{
	Use:   "token <principal>",
	Short: "Mint a bearer token for a principal (development)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Server.Env == "production" {
			return fmt.Errorf("refusing to mint tokens in production")
		}

		token, err := identity.IssueToken(cfg.Auth, args[0], tokenName, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name claim")
}
