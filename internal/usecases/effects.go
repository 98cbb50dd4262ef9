package usecases

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"leadwidget/internal/entities"
	"leadwidget/internal/interfaces"
	"leadwidget/internal/logger"
	"leadwidget/internal/observability"
	"leadwidget/internal/widget"
)

// Effect is a non-critical side effect of a turn. It runs after the visitor
// has been answered; its failure is logged and never reaches the visitor.
type Effect interface {
	Name() string
	Run(ctx context.Context) error
}

// EffectRunner executes effects in the background with a per-effect timeout.
type EffectRunner struct {
	log     *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewEffectRunner(log *logger.Logger, timeout time.Duration) *EffectRunner {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EffectRunner{log: log, timeout: timeout}
}

func (r *EffectRunner) Go(effects ...Effect) {
	for _, e := range effects {
		r.wg.Add(1)
		go func(e Effect) {
			defer r.wg.Done()
			defer func() {
				if p := recover(); p != nil {
					r.log.Error("effect panicked", "effect", e.Name(), "panic", p)
					observability.EffectsTotal.WithLabelValues(e.Name(), "panic").Inc()
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			if err := e.Run(ctx); err != nil {
				r.log.Warn("best-effort effect failed", "effect", e.Name(), "error", err)
				observability.EffectsTotal.WithLabelValues(e.Name(), "error").Inc()
				return
			}
			observability.EffectsTotal.WithLabelValues(e.Name(), "ok").Inc()
		}(e)
	}
}

// Wait blocks until every dispatched effect has finished.
func (r *EffectRunner) Wait() {
	r.wg.Wait()
}

type messageEffect struct {
	name      string
	messenger interfaces.Messenger
	to        string
	text      string
}

func (e messageEffect) Name() string { return e.name }

func (e messageEffect) Run(ctx context.Context) error {
	return e.messenger.SendMessage(ctx, e.to, e.text)
}

// LeadNotifier tells the business owner about a new lead on the channels the
// tenant has configured. Either messenger may be nil.
type LeadNotifier struct {
	WhatsApp interfaces.Messenger
	Telegram interfaces.Messenger
}

func (n *LeadNotifier) Effects(cfg entities.WidgetConfig, lead entities.LeadRecord) []Effect {
	if n == nil {
		return nil
	}
	text := FormatLeadNotice(cfg.BusinessName, lead)
	var out []Effect
	if n.WhatsApp != nil && strings.TrimSpace(cfg.WhatsAppNumber) != "" {
		out = append(out, messageEffect{name: "whatsapp_lead_notice", messenger: n.WhatsApp, to: cfg.WhatsAppNumber, text: text})
	}
	if n.Telegram != nil && cfg.NotifyTelegramChatID != 0 {
		out = append(out, messageEffect{
			name:      "telegram_lead_notice",
			messenger: n.Telegram,
			to:        strconv.FormatInt(cfg.NotifyTelegramChatID, 10),
			text:      text,
		})
	}
	return out
}

func FormatLeadNotice(businessName string, lead entities.LeadRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 Nuevo cliente potencial para %s\n\n", businessName)
	for _, line := range widget.FieldLines(lead.Fields) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n🕒 %s", lead.CreatedAt.Format("02/01/2006 15:04"))
	return b.String()
}
