package usecases

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"leadwidget/internal/entities"
	"leadwidget/internal/interfaces"
	"leadwidget/internal/repository"
)

const (
	DefaultPrimaryColor      = "#2563eb"
	DefaultBusinessName      = "Asistente Virtual"
	DefaultWelcomeMessage    = "¡Hola! 👋 ¿En qué puedo ayudarte hoy?"
	DefaultPlaceholder       = "Escribe tu mensaje..."
	DefaultTriggerDelay      = 10
	DefaultIdleVibration     = entities.VibrationSoft
	DefaultExitIntentMessage = "¡Espera! ¿Tienes alguna pregunta antes de irte? 🙂"
	DefaultPersona           = "Eres el asistente virtual de %s. Respondes en el idioma del visitante, con frases cortas, tono cercano y profesional. No inventes precios ni datos que no conozcas."
)

var (
	defaultTeasers = []string{
		"¿Tienes alguna pregunta? 💬",
		"¡Hola! Estoy aquí para ayudarte",
		"¿Buscas algo en particular? 👀",
	}
	defaultQuickReplies = []string{
		"Quiero más información",
		"Ver precios",
		"Hablar con un asesor",
	}
	colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// AIDefaults are the platform-wide model parameters applied when a tenant sets none.
type AIDefaults struct {
	Model       string
	Temperature float64
}

// ConfigResolver turns a tenant id into a fully-defaulted WidgetConfig.
type ConfigResolver struct {
	tenants    interfaces.TenantStore
	demoID     string
	aiDefaults AIDefaults
}

func NewConfigResolver(tenants interfaces.TenantStore, demoID string, aiDefaults AIDefaults) *ConfigResolver {
	return &ConfigResolver{tenants: tenants, demoID: demoID, aiDefaults: aiDefaults}
}

// IsDemo reports whether tenantID is the reserved demo sentinel.
func (r *ConfigResolver) IsDemo(tenantID string) bool {
	return tenantID == r.demoID
}

// Resolve never fails to produce a usable config: on ErrNotFound the returned
// config is the default one, so callers can decide whether to degrade or stop.
func (r *ConfigResolver) Resolve(ctx context.Context, tenantID string) (entities.WidgetConfig, error) {
	if r.IsDemo(tenantID) {
		return r.DemoConfig(), nil
	}

	t, err := r.tenants.GetTenant(ctx, tenantID)
	if errors.Is(err, repository.ErrNotFound) {
		t, err = r.tenants.GetTenantByPublicID(ctx, tenantID)
	}
	if err != nil {
		return r.DefaultConfig(tenantID), fmt.Errorf("%w: %s: %v", ErrNotFound, tenantID, err)
	}
	return r.merge(t), nil
}

// DefaultConfig is the config of a tenant with no persisted settings.
func (r *ConfigResolver) DefaultConfig(widgetID string) entities.WidgetConfig {
	tpl := Template(DefaultTemplateID)
	return entities.WidgetConfig{
		WidgetID:          widgetID,
		TenantID:          widgetID,
		Status:            entities.StatusActive,
		PrimaryColor:      DefaultPrimaryColor,
		BusinessName:      DefaultBusinessName,
		WelcomeMessage:    DefaultWelcomeMessage,
		Placeholder:       DefaultPlaceholder,
		WhatsAppNumber:    "",
		TriggerDelay:      DefaultTriggerDelay,
		IdleVibration:     DefaultIdleVibration,
		ExitIntentEnabled: true,
		ExitIntentMessage: DefaultExitIntentMessage,
		Teasers:           append([]string(nil), defaultTeasers...),
		QuickReplies:      append([]string(nil), defaultQuickReplies...),
		Template:          tpl.ID,
		BusinessContext:   tpl.Context,
		AI: entities.AISettings{
			Enabled:      false,
			SystemPrompt: fmt.Sprintf(DefaultPersona, DefaultBusinessName),
			Model:        r.aiDefaults.Model,
			Temperature:  r.aiDefaults.Temperature,
		},
	}
}

// DemoConfig backs the public marketing site and never touches storage.
func (r *ConfigResolver) DemoConfig() entities.WidgetConfig {
	cfg := r.DefaultConfig(r.demoID)
	tpl := Template("services")
	cfg.IsDemo = true
	cfg.BusinessName = "LeadWidget Demo"
	cfg.WelcomeMessage = "¡Hola! 👋 Soy la demo de LeadWidget. Pregúntame lo que quieras y te enseño cómo capto clientes."
	cfg.TriggerDelay = 5
	cfg.Template = tpl.ID
	cfg.BusinessContext = tpl.Context + "\nLeadWidget es un chat con IA para sitios web que capta clientes potenciales y los deriva a WhatsApp."
	cfg.AI = entities.AISettings{
		Enabled:      true,
		SystemPrompt: "Eres la demo de LeadWidget, un asistente de ventas con IA. Muestra con el ejemplo cómo cualificas a un cliente: pregunta su nombre, qué necesita y su presupuesto. Sé breve y simpático.",
		Model:        r.aiDefaults.Model,
		Temperature:  r.aiDefaults.Temperature,
	}
	return cfg
}

func (r *ConfigResolver) merge(t *entities.Tenant) entities.WidgetConfig {
	cfg := r.DefaultConfig(t.PublicID)
	cfg.TenantID = t.ID
	if cfg.WidgetID == "" {
		cfg.WidgetID = t.ID
	}
	if t.Status != "" {
		cfg.Status = t.Status
	}
	cfg.NotifyTelegramChatID = t.NotifyTelegramChatID

	w := t.Widget
	if colorPattern.MatchString(strings.TrimSpace(w.PrimaryColor)) {
		cfg.PrimaryColor = strings.TrimSpace(w.PrimaryColor)
	}
	cfg.BusinessName = orDefault(w.BusinessName, cfg.BusinessName)
	cfg.WelcomeMessage = orDefault(w.WelcomeMessage, cfg.WelcomeMessage)
	cfg.Placeholder = orDefault(w.Placeholder, cfg.Placeholder)
	cfg.WhatsAppNumber = orDefault(w.WhatsAppNumber, cfg.WhatsAppNumber)
	if w.TriggerDelay != nil && *w.TriggerDelay >= 0 {
		cfg.TriggerDelay = *w.TriggerDelay
	}
	switch w.IdleVibration {
	case entities.VibrationNone, entities.VibrationSoft, entities.VibrationStrong:
		cfg.IdleVibration = w.IdleVibration
	}
	if w.ExitIntentEnabled != nil {
		cfg.ExitIntentEnabled = *w.ExitIntentEnabled
	}
	cfg.ExitIntentMessage = orDefault(w.ExitIntentMessage, cfg.ExitIntentMessage)
	if teasers := nonBlank(w.Teasers); len(teasers) > 0 {
		cfg.Teasers = teasers
	}
	if replies := nonBlank(w.QuickReplies); len(replies) > 0 {
		cfg.QuickReplies = replies
	}

	tpl := Template(w.Template)
	cfg.Template = tpl.ID
	cfg.BusinessContext = tpl.Context
	if desc := strings.TrimSpace(w.BusinessDescription); desc != "" {
		cfg.BusinessContext = tpl.Context + "\n" + desc
	}

	cfg.AI.Enabled = t.AIEnabled != nil && *t.AIEnabled
	cfg.AI.SystemPrompt = orDefault(t.SystemPrompt, fmt.Sprintf(DefaultPersona, cfg.BusinessName))
	cfg.AI.Model = orDefault(t.Model, cfg.AI.Model)
	if t.Temperature != nil {
		cfg.AI.Temperature = *t.Temperature
	}
	return cfg
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
