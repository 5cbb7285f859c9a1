package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"telegram-ai-consult/internal/config"
	"telegram-ai-consult/internal/infra/api"
)

func tokenCmd(flags *rootFlags) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath, flags.dev)
			if err != nil {
				return err
			}
			tok, err := mintAdminToken(cfg, subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject, shows up in request logs")
	return cmd
}

func mintAdminToken(cfg *config.Config, subject string) (string, error) {
	if cfg.Admin.JWTSecret == "" {
		return "", fmt.Errorf("admin.jwt_secret (ADMIN_JWT_SECRET) is not set")
	}
	return api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL).Mint(subject)
}
