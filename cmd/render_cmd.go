package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"leadwidget/internal/infrastructure"
	"leadwidget/internal/usecases"
)

func newRenderCmd() *cobra.Command {
	var origin string

	cmd := &cobra.Command{
		Use:   "render <tenant-id>",
		Short: "Print the client script a tenant's embed would receive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			st, err := openStores(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			resolver := usecases.NewConfigResolver(st.tenants, cfg.DemoWidgetID, usecases.AIDefaults{
				Model:       cfg.DefaultModel,
				Temperature: cfg.DefaultTemperature,
			})
			src, variant := usecases.NewScriptGenerator(resolver, cfg.PublicBaseURL, log).Generate(cmd.Context(), args[0], origin)
			log.Info("rendered script", "tenant", args[0], "variant", variant)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), src)
			return err
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "http://localhost:8080", "Origin the callback URLs are derived from when PUBLIC_BASE_URL is unset")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			pg, err := infrastructure.NewPostgresClient(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("schema up to date")
			return nil
		},
	}
}
