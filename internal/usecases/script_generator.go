package usecases

import (
	"context"
	"errors"
	"strings"

	"leadwidget/internal/entities"
	"leadwidget/internal/logger"
	"leadwidget/internal/observability"
	"leadwidget/internal/widget"
)

type ScriptVariant string

const (
	VariantTenant    ScriptVariant = "tenant"
	VariantSuspended ScriptVariant = "suspended"
	VariantNoop      ScriptVariant = "noop"
)

const (
	ChatPath      = "/api/chat"
	AnalyticsPath = "/api/analytics"
)

// ScriptGenerator renders client scripts. Rendering is a pure function of the
// resolved config and the callback base URL.
type ScriptGenerator struct {
	resolver      *ConfigResolver
	publicBaseURL string
	log           *logger.Logger
}

func NewScriptGenerator(resolver *ConfigResolver, publicBaseURL string, log *logger.Logger) *ScriptGenerator {
	return &ScriptGenerator{
		resolver:      resolver,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           log,
	}
}

// Endpoints derives absolute callback URLs. A configured public base URL wins
// over the origin of the request.
func (g *ScriptGenerator) Endpoints(requestOrigin string) widget.Endpoints {
	base := g.publicBaseURL
	if base == "" {
		base = strings.TrimRight(requestOrigin, "/")
	}
	return widget.Endpoints{Chat: base + ChatPath, Analytics: base + AnalyticsPath}
}

// Generate never fails: unknown tenants and rendering errors degrade to a
// script that only logs.
func (g *ScriptGenerator) Generate(ctx context.Context, tenantID, requestOrigin string) (string, ScriptVariant) {
	cfg, err := g.resolver.Resolve(ctx, tenantID)
	switch {
	case err != nil:
		if !errors.Is(err, ErrNotFound) {
			g.log.Error("resolve widget config", "widget_id", tenantID, "error", err)
		}
		return g.noop(tenantID)
	case cfg.Suspended():
		observability.ScriptsTotal.WithLabelValues(string(VariantSuspended)).Inc()
		return widget.RenderSuspended(tenantID), VariantSuspended
	}

	src, err := widget.RenderTenant(cfg, g.Endpoints(requestOrigin))
	if err != nil {
		g.log.Error("render widget script", "widget_id", tenantID, "error", err)
		return g.noop(tenantID)
	}
	observability.ScriptsTotal.WithLabelValues(string(VariantTenant)).Inc()
	return src, VariantTenant
}

func (g *ScriptGenerator) noop(tenantID string) (string, ScriptVariant) {
	observability.ScriptsTotal.WithLabelValues(string(VariantNoop)).Inc()
	return widget.RenderNoop(tenantID), VariantNoop
}

// Loader renders the shared bootstrap script served at /widget.js.
func (g *ScriptGenerator) Loader() (string, error) {
	return widget.RenderLoader(g.publicBaseURL)
}

// ClientBootstrap is what the shared loader fetches before mounting.
type ClientBootstrap struct {
	Config    *entities.WidgetConfig `json:"config,omitempty"`
	Endpoints widget.Endpoints       `json:"endpoints"`
	Timings   widget.Timings         `json:"timings"`
	Found     bool                   `json:"found"`
	Suspended bool                   `json:"suspended"`
}

func (g *ScriptGenerator) Bootstrap(ctx context.Context, tenantID, requestOrigin string) ClientBootstrap {
	out := ClientBootstrap{Endpoints: g.Endpoints(requestOrigin), Timings: widget.DefaultTimings()}
	cfg, err := g.resolver.Resolve(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		out.Config = &cfg
		return out
	}
	if err != nil {
		return out
	}
	out.Found = true
	if cfg.Suspended() {
		out.Suspended = true
		return out
	}
	out.Config = &cfg
	return out
}
