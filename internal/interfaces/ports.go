package interfaces

import (
	"context"

	"leadwidget/internal/entities"
)

// LLMRequest is a fully composed chat completion request.
type LLMRequest struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	History      []entities.ChatMessage // user/assistant only, oldest first
	Message      string
}

// AIClient is the language model provider.
type AIClient interface {
	GenerateReply(ctx context.Context, req LLMRequest) (string, error)
}

// TenantStore looks tenants up by internal id and by public widget id.
// Both return repository.ErrNotFound when nothing matches.
type TenantStore interface {
	GetTenant(ctx context.Context, id string) (*entities.Tenant, error)
	GetTenantByPublicID(ctx context.Context, publicID string) (*entities.Tenant, error)
	SaveTenant(ctx context.Context, t *entities.Tenant) error
}

type BlockStore interface {
	IsBlocked(ctx context.Context, tenantID, origin string) (bool, error)
	Block(ctx context.Context, rec entities.BlockRecord) error
	Unblock(ctx context.Context, tenantID, origin string) error
}

type LeadStore interface {
	CreateLead(ctx context.Context, lead *entities.LeadRecord) error
	ListLeads(ctx context.Context, tenantID string, limit int) ([]entities.LeadRecord, error)
}

// AnalyticsSink records widget events. Callers treat it as best effort.
type AnalyticsSink interface {
	Record(ctx context.Context, ev entities.AnalyticsEvent) error
}

// Messenger delivers a text to an external chat destination.
type Messenger interface {
	SendMessage(ctx context.Context, to, content string) error
}
