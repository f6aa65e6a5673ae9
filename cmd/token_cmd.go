package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/helperd/internal/config"
	"github.com/nextlevelbuilder/helperd/internal/gateway"
)

func tokenCmd() *cobra.Command {
	var admin bool
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a gateway bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwtSecret is not configured")
			}
			auth := gateway.NewAuthenticator(cfg.JWTSecret, ttl)
			token, err := auth.Sign(args[0], admin)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin claims")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
