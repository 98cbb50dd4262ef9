package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	httpapi "leadwidget/internal/interfaces/http"
)

func newTokenCmd() *cobra.Command {
	var (
		tenantID string
		admin    bool
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}

			role := httpapi.RoleTenant
			if admin {
				role = httpapi.RoleAdmin
			} else if tenantID == "" {
				return fmt.Errorf("--tenant is required unless --admin is set")
			}

			tok, err := httpapi.IssueToken(cfg.JWTSecret, tenantID, role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id the token is scoped to")
	cmd.Flags().BoolVar(&admin, "admin", false, "Issue a platform admin token")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	return cmd
}
