package entities

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one entry of the conversation history sent by the widget.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationTurn is one visitor request handled by the orchestrator.
type ConversationTurn struct {
	TenantID      string
	VisitorOrigin string        // IP or equivalent, unit of blocking
	History       []ChatMessage // oldest first
	Message       string
}

// TurnResult is what the widget receives for a turn.
type TurnResult struct {
	Reply   string
	Blocked bool
	Lead    map[string]string // non-nil when a lead was captured this turn
}
