package entities

import "time"

type BlockRecord struct {
	TenantID      string    `json:"tenant_id"`
	VisitorOrigin string    `json:"visitor_origin"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

type LeadRecord struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	OwnerID   string            `json:"owner_id"` // derived from the visitor origin
	Fields    map[string]string `json:"fields"`
	Interest  string            `json:"interest"`
	Phone     string            `json:"phone"`
	CreatedAt time.Time         `json:"created_at"`
}

// AnalyticsEvent is a widget-side event reported through the ping endpoint.
type AnalyticsEvent struct {
	WidgetID  string
	EventType string
	At        time.Time
}

const (
	EventOpen          = "open"
	EventMessage       = "message"
	EventLead          = "lead"
	EventWhatsAppClick = "whatsapp_click"
	EventTeaserClick   = "teaser_click"
	EventExitIntent    = "exit_intent"
)

// ValidEventType reports whether t is one of the known analytics events.
func ValidEventType(t string) bool {
	switch t {
	case EventOpen, EventMessage, EventLead, EventWhatsAppClick, EventTeaserClick, EventExitIntent:
		return true
	}
	return false
}
