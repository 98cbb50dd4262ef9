package entities

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"

	VibrationNone   = "none"
	VibrationSoft   = "soft"
	VibrationStrong = "strong"
)

// AISettings are the server-only parameters of a tenant's assistant.
// They are never serialized to the browser.
type AISettings struct {
	Enabled      bool    `json:"enabled"`
	SystemPrompt string  `json:"system_prompt"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
}

// WidgetConfig is the fully-defaulted presentation and behavior contract of a
// tenant's widget. JSON tags are the shape embedded in the client script.
type WidgetConfig struct {
	WidgetID          string   `json:"widgetId"`
	PrimaryColor      string   `json:"primaryColor"`
	BusinessName      string   `json:"businessName"`
	WelcomeMessage    string   `json:"welcomeMessage"`
	Placeholder       string   `json:"placeholder"`
	WhatsAppNumber    string   `json:"whatsappNumber"`
	TriggerDelay      int      `json:"triggerDelay"` // seconds
	IdleVibration     string   `json:"idleVibration"`
	ExitIntentEnabled bool     `json:"exitIntentEnabled"`
	ExitIntentMessage string   `json:"exitIntentMessage"`
	Teasers           []string `json:"teasers"`
	QuickReplies      []string `json:"quickReplies"`
	Template          string   `json:"template"`
	BusinessContext   string   `json:"businessContext"`

	TenantID             string     `json:"-"`
	Status               string     `json:"-"`
	AI                   AISettings `json:"-"`
	IsDemo               bool       `json:"-"`
	NotifyTelegramChatID int64      `json:"-"`
}

// Suspended reports whether the tenant account is suspended.
func (c WidgetConfig) Suspended() bool {
	return c.Status == StatusSuspended
}

// WidgetSettings is the persisted, partially-filled widget configuration of a
// tenant. Zero values mean "unset" and are replaced by defaults on resolve.
type WidgetSettings struct {
	PrimaryColor        string   `json:"primary_color,omitempty"`
	BusinessName        string   `json:"business_name,omitempty"`
	WelcomeMessage      string   `json:"welcome_message,omitempty"`
	Placeholder         string   `json:"placeholder,omitempty"`
	WhatsAppNumber      string   `json:"whatsapp_number,omitempty"`
	TriggerDelay        *int     `json:"trigger_delay,omitempty"`
	IdleVibration       string   `json:"idle_vibration,omitempty"`
	ExitIntentEnabled   *bool    `json:"exit_intent_enabled,omitempty"`
	ExitIntentMessage   string   `json:"exit_intent_message,omitempty"`
	Teasers             []string `json:"teasers,omitempty"`
	QuickReplies        []string `json:"quick_replies,omitempty"`
	Template            string   `json:"template,omitempty"`
	BusinessDescription string   `json:"business_description,omitempty"`
}

// Tenant is the persisted customer record.
type Tenant struct {
	ID                   string         `json:"id"`
	PublicID             string         `json:"public_id"`
	Status               string         `json:"status"`
	AIEnabled            *bool          `json:"ai_enabled"`
	SystemPrompt         string         `json:"system_prompt"`
	Model                string         `json:"model"`
	Temperature          *float64       `json:"temperature"`
	NotifyTelegramChatID int64          `json:"notify_telegram_chat_id"`
	Widget               WidgetSettings `json:"widget"`
}
