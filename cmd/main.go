package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"leadwidget/internal/config"
	"leadwidget/internal/infrastructure"
	"leadwidget/internal/interfaces"
	httpapi "leadwidget/internal/interfaces/http"
	"leadwidget/internal/logger"
	"leadwidget/internal/repository"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "leadwidget",
		Short:         "Embeddable AI chat widget backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newServeCmd(), newRenderCmd(), newMigrateCmd(), newTokenCmd(), newChatCmd())
	return cmd
}

// stores bundles the persistence ports. With no DATABASE_URL everything lives
// in memory and is lost on restart.
type stores struct {
	tenants   interfaces.TenantStore
	blocks    interfaces.BlockStore
	leads     interfaces.LeadStore
	analytics interfaces.AnalyticsSink
	history   httpapi.AnalyticsHistory
	closers   []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.Config, log *logger.Logger) (*stores, error) {
	s := &stores{}

	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		mem := repository.NewMemoryStore()
		s.tenants, s.blocks, s.leads = mem, mem, mem
		s.analytics, s.history = mem, mem
	} else {
		pg, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pg.Close)
		s.tenants = repository.NewTenantRepository(pg.Pool)
		s.blocks = repository.NewBlockRepository(pg.Pool)
		s.leads = repository.NewLeadRepository(pg.Pool)
		pgAnalytics := repository.NewAnalyticsRepository(pg.Pool)
		s.analytics, s.history = pgAnalytics, pgAnalytics
	}

	if cfg.RedisURL != "" {
		rdb, err := infrastructure.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.closers = append(s.closers, func() { _ = rdb.Close() })
		ra := infrastructure.NewRedisAnalytics(rdb, "", 400*24*time.Hour)
		s.analytics, s.history = ra, ra
		log.Info("analytics events go to redis")
	}
	return s, nil
}

func loadConfig() (config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
