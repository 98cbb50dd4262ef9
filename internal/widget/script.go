package widget

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"

	"leadwidget/internal/entities"
)

//go:embed assets/runtime.js
var runtimeJS string

//go:embed assets/*.tmpl
var templateFS embed.FS

var scripts = template.Must(template.ParseFS(templateFS, "assets/*.tmpl"))

// Endpoints are the absolute callback URLs baked into a client script.
type Endpoints struct {
	Chat      string `json:"chat"`
	Analytics string `json:"analytics"`
}

// Timings is the runtime.js view of the runtime timing constants.
type Timings struct {
	IdleMs     int64 `json:"idleMs"`
	TeaserMs   int64 `json:"teaserMs"`
	WhatsAppMs int64 `json:"whatsappMs"`
}

func DefaultTimings() Timings {
	return Timings{
		IdleMs:     IdleTimeout.Milliseconds(),
		TeaserMs:   TeaserDelay.Milliseconds(),
		WhatsAppMs: WhatsAppDelay.Milliseconds(),
	}
}

// RenderTenant renders the self-contained script of one tenant: the runtime
// followed by a mount call with the config inlined as a JSON literal.
// json.Marshal escapes <, > and &, so config copy cannot close the script tag.
func RenderTenant(cfg entities.WidgetConfig, ep Endpoints) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal widget config: %w", err)
	}
	epJSON, err := json.Marshal(ep)
	if err != nil {
		return "", fmt.Errorf("marshal endpoints: %w", err)
	}
	timingsJSON, err := json.Marshal(DefaultTimings())
	if err != nil {
		return "", fmt.Errorf("marshal timings: %w", err)
	}
	return execute("tenant.js.tmpl", map[string]string{
		"Runtime":   runtimeJS,
		"Config":    string(cfgJSON),
		"Endpoints": string(epJSON),
		"Timings":   string(timingsJSON),
	})
}

// RenderLoader renders the shared script that reads data-widget-id from its
// own tag and fetches the config at load time. An empty baseURL makes the
// script use its own origin.
func RenderLoader(baseURL string) (string, error) {
	base, err := json.Marshal(baseURL)
	if err != nil {
		return "", fmt.Errorf("marshal base url: %w", err)
	}
	return execute("loader.js.tmpl", map[string]string{
		"Runtime": runtimeJS,
		"BaseURL": string(base),
	})
}

// RenderSuspended is a script whose only effect is one console warning.
func RenderSuspended(widgetID string) string {
	out, err := execute("suspended.js.tmpl", map[string]string{"WidgetID": widgetID})
	if err != nil {
		return `console.warn("[LeadWidget] widget suspendido.");`
	}
	return out
}

// RenderNoop is a script whose only effect is one console error.
func RenderNoop(widgetID string) string {
	out, err := execute("noop.js.tmpl", map[string]string{"WidgetID": widgetID})
	if err != nil {
		return `console.error("[LeadWidget] widget no disponible.");`
	}
	return out
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := scripts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
