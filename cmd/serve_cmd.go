package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"leadwidget/internal/infrastructure"
	httpapi "leadwidget/internal/interfaces/http"
	"leadwidget/internal/usecases"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the widget HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ai, err := infrastructure.NewAIClient(cfg)
	if err != nil {
		return err
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		// Nobody can hold a token for a random secret, so the admin API stays closed.
		log.Warn("JWT_SECRET not set, admin API disabled")
		jwtSecret = uuid.NewString()
	}

	deps := httpapi.Deps{
		Tenants:   st.tenants,
		Blocks:    st.blocks,
		Leads:     st.leads,
		Analytics: st.analytics,
		History:   st.history,
		Log:       log,
	}

	notifier := &usecases.LeadNotifier{}
	if cfg.WhatsAppNotifyEnabled {
		wa := infrastructure.NewWhatsAppManager(cfg.WhatsAppDeviceDB, log.With("component", "whatsapp"))
		defer wa.Close()
		notifier.WhatsApp = wa
		deps.WhatsApp = wa
		log.Info("whatsapp lead notices enabled", "device_db", cfg.WhatsAppDeviceDB)
	}
	if cfg.TelegramBotToken != "" {
		tg, err := infrastructure.NewTelegramClient(cfg.TelegramBotToken)
		if err != nil {
			log.Warn("telegram disabled", "error", err)
		} else {
			notifier.Telegram = tg
			log.Info("telegram lead notices enabled", "bot", tg.Bot.Self.UserName)
		}
	}

	effects := usecases.NewEffectRunner(log.With("component", "effects"), 15*time.Second)
	defer effects.Wait()

	resolver := usecases.NewConfigResolver(st.tenants, cfg.DemoWidgetID, usecases.AIDefaults{
		Model:       cfg.DefaultModel,
		Temperature: cfg.DefaultTemperature,
	})
	deps.Resolver = resolver
	deps.Scripts = usecases.NewScriptGenerator(resolver, cfg.PublicBaseURL, log)
	deps.Turns = usecases.NewTurnOrchestrator(usecases.TurnDeps{
		Resolver:   resolver,
		AI:         ai,
		Blocks:     st.blocks,
		Leads:      st.leads,
		Notifier:   notifier,
		Effects:    effects,
		Log:        log,
		MaxHistory: cfg.MaxHistory,
		LLMTimeout: cfg.LLMTimeout,
	})

	limiter := infrastructure.NewMessageRateLimiter(cfg.TurnRate, cfg.TurnBurst)
	sweepStop := make(chan struct{})
	defer close(sweepStop)
	go limiter.RunSweeper(time.Minute, sweepStop)
	deps.Middleware = httpapi.NewMiddleware(jwtSecret, limiter)

	if strings.EqualFold(cfg.LogMode, "prod") || strings.EqualFold(cfg.LogMode, "production") {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.SetupRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "provider", cfg.LLMProvider, "demo_widget", cfg.DemoWidgetID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	return nil
}
