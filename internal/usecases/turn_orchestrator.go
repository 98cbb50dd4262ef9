package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"leadwidget/internal/entities"
	"leadwidget/internal/interfaces"
	"leadwidget/internal/logger"
	"leadwidget/internal/observability"
)

// Fixed visitor-facing copy.
const (
	SecurityMessage     = "Tu acceso a este chat ha sido restringido por motivos de seguridad."
	ClosureMessage      = "He detectado un uso indebido del chat, así que doy por finalizada esta conversación."
	ApologyMessage      = "Lo siento, tuve un problema al procesar tu mensaje. ¿Puedes intentarlo de nuevo en unos segundos?"
	AIDisabledMessage   = "El asistente de este sitio no está disponible en este momento. Puedes contactar directamente con el negocio."
	AckMessage          = "¡Gracias! Enseguida te atendemos."
	LeadNamePlaceholder = "Cliente web"
	PhonePlaceholder    = "No proporcionado"
)

const (
	maxMessageRunes  = 2000
	maxHistoryRunes  = 4000
	maxInterestRunes = 280
)

// TurnDeps wires a TurnOrchestrator. Notifier is optional.
type TurnDeps struct {
	Resolver   *ConfigResolver
	AI         interfaces.AIClient
	Blocks     interfaces.BlockStore
	Leads      interfaces.LeadStore
	Notifier   *LeadNotifier
	Effects    *EffectRunner
	Log        *logger.Logger
	MaxHistory int
	// LLMTimeout bounds a model call; zero leaves the call unbounded.
	LLMTimeout time.Duration
	Now        func() time.Time
}

// TurnOrchestrator runs one conversation turn end to end. It keeps no state
// between turns; everything shared lives in the stores.
type TurnOrchestrator struct {
	TurnDeps
}

func NewTurnOrchestrator(deps TurnDeps) *TurnOrchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Effects == nil {
		deps.Effects = NewEffectRunner(deps.Log, 0)
	}
	if deps.MaxHistory <= 0 {
		deps.MaxHistory = 20
	}
	return &TurnOrchestrator{TurnDeps: deps}
}

// HandleTurn answers one visitor message. The only error it returns is
// ErrAIDisabled, together with a result carrying the denial copy; every other
// failure is folded into an apologetic reply.
func (o *TurnOrchestrator) HandleTurn(ctx context.Context, turn entities.ConversationTurn) (entities.TurnResult, error) {
	log := o.Log.With("tenant", turn.TenantID, "origin", turn.VisitorOrigin)

	// 1. Config and AI gate
	cfg, err := o.Resolver.Resolve(ctx, turn.TenantID)
	if err != nil {
		log.Warn("turn for unknown tenant", "error", err)
	}
	if !cfg.AI.Enabled {
		observability.TurnsTotal.WithLabelValues("ai_disabled").Inc()
		denial := ErrAIDisabled
		if err != nil {
			denial = fmt.Errorf("%w: %w", ErrAIDisabled, err)
		}
		return entities.TurnResult{Reply: AIDisabledMessage}, denial
	}

	// 2. Block list, before any model call. A failing lookup lets the turn
	// through: the cost is one extra model call.
	if !cfg.IsDemo {
		blocked, err := o.Blocks.IsBlocked(ctx, cfg.TenantID, turn.VisitorOrigin)
		if err != nil {
			log.Warn("block lookup failed", "error", err)
		} else if blocked {
			observability.TurnsTotal.WithLabelValues("rejected").Inc()
			return entities.TurnResult{Reply: SecurityMessage, Blocked: true}, nil
		}
	}

	// 3. Prompt and model call
	req := interfaces.LLMRequest{
		Model:        cfg.AI.Model,
		Temperature:  cfg.AI.Temperature,
		SystemPrompt: ComposeSystemPrompt(cfg),
		History:      SanitizeHistory(turn.History, o.MaxHistory),
		Message:      truncateRunes(strings.TrimSpace(turn.Message), maxMessageRunes),
	}
	raw, err := o.generate(ctx, req)
	if err != nil {
		log.Error("model call failed", "model", req.Model, "error", err)
		observability.TurnsTotal.WithLabelValues("upstream_error").Inc()
		return entities.TurnResult{Reply: ApologyMessage}, nil
	}

	// 4. Directives
	parsed := ParseReply(raw)

	if parsed.Block != nil {
		observability.DirectivesTotal.WithLabelValues("block").Inc()
		if !cfg.IsDemo {
			rec := entities.BlockRecord{
				TenantID:      cfg.TenantID,
				VisitorOrigin: turn.VisitorOrigin,
				Reason:        parsed.Block.Reason,
				CreatedAt:     o.Now(),
			}
			if err := o.Blocks.Block(ctx, rec); err != nil {
				log.Error("persist block failed", "error", err)
				observability.TurnsTotal.WithLabelValues("upstream_error").Inc()
				return entities.TurnResult{Reply: ApologyMessage}, nil
			}
		}
		log.Info("visitor blocked", "reason", parsed.Block.Reason, "demo", cfg.IsDemo)
		observability.TurnsTotal.WithLabelValues("blocked").Inc()
		return entities.TurnResult{Reply: ClosureMessage, Blocked: true}, nil
	}

	if parsed.Lead != nil {
		observability.DirectivesTotal.WithLabelValues("lead").Inc()
		lead := o.buildLead(cfg, turn, parsed.Lead)
		if !cfg.IsDemo {
			if err := o.Leads.CreateLead(ctx, &lead); err != nil {
				log.Error("persist lead failed", "error", err)
				observability.TurnsTotal.WithLabelValues("upstream_error").Inc()
				return entities.TurnResult{Reply: ApologyMessage}, nil
			}
			o.Effects.Go(o.Notifier.Effects(cfg, lead)...)
		}
		log.Info("lead captured", "lead_id", lead.ID, "fields", len(lead.Fields), "demo", cfg.IsDemo)
		observability.TurnsTotal.WithLabelValues("lead").Inc()
		return entities.TurnResult{Reply: replyText(raw, parsed.CleanText), Lead: lead.Fields}, nil
	}

	observability.TurnsTotal.WithLabelValues("reply").Inc()
	return entities.TurnResult{Reply: replyText(raw, parsed.CleanText)}, nil
}

func (o *TurnOrchestrator) generate(ctx context.Context, req interfaces.LLMRequest) (string, error) {
	if o.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.LLMTimeout)
		defer cancel()
	}
	start := time.Now()
	raw, err := o.AI.GenerateReply(ctx, req)
	observability.ObserveLLM(start, err)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return raw, nil
}

// replyText guards against a model answer that was nothing but a directive.
// An answer without fragments is returned as the model wrote it.
func replyText(raw, clean string) string {
	if clean != raw && strings.TrimSpace(clean) == "" {
		return AckMessage
	}
	return clean
}

func (o *TurnOrchestrator) buildLead(cfg entities.WidgetConfig, turn entities.ConversationTurn, d *entities.LeadDirective) entities.LeadRecord {
	fields := make(map[string]string, len(d.Fields)+1)
	for k, v := range d.Fields {
		fields[k] = v
	}
	if strings.TrimSpace(fields["name"]) == "" {
		fields["name"] = LeadNamePlaceholder
	}

	interest := fields["interest"]
	if interest == "" {
		interest = truncateRunes(strings.TrimSpace(turn.Message), maxInterestRunes)
	}
	phone := fields["phone"]
	if phone == "" {
		phone = PhonePlaceholder
	}

	return entities.LeadRecord{
		TenantID:  cfg.TenantID,
		OwnerID:   OwnerID(turn.VisitorOrigin),
		Fields:    fields,
		Interest:  interest,
		Phone:     phone,
		CreatedAt: o.Now(),
	}
}

// OwnerID is a stable pseudonymous id for a visitor origin, so lead records
// do not store raw addresses.
func OwnerID(origin string) string {
	sum := sha256.Sum256([]byte(origin))
	return "visitor-" + hex.EncodeToString(sum[:8])
}

// SanitizeHistory keeps only user and assistant messages with content, in
// order, capped to the last max entries. System messages from the client are
// dropped because the system prompt is injected once by the server.
func SanitizeHistory(in []entities.ChatMessage, max int) []entities.ChatMessage {
	out := make([]entities.ChatMessage, 0, len(in))
	for _, m := range in {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != entities.RoleUser && role != entities.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		out = append(out, entities.ChatMessage{Role: role, Content: truncateRunes(content, maxHistoryRunes)})
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
