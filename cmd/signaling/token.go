package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossy-p/signal-relay/internal/middleware"
)

var flagTTL time.Duration

// tokenCmd mints an admin JWT offline, signed with JWT_SECRET
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an admin API token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		token, err := middleware.IssueAdminToken(cfg.JWTSecret, flagTTL, time.Now())
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&flagTTL, "ttl", middleware.AdminTokenTTL, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
