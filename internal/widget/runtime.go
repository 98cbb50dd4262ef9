package widget

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"leadwidget/internal/entities"
)

// Timings shared with runtime.js.
const (
	IdleTimeout   = 12 * time.Second
	TeaserDelay   = 4 * time.Second
	WhatsAppDelay = 3 * time.Second
)

const (
	BlockedPlaceholder = "Chat no disponible"
	ApologyMessage     = "Lo siento, tuve un problema al responder. ¿Puedes intentarlo de nuevo?"
	LeadHandoffMessage = "¡Perfecto! Te paso con el equipo por WhatsApp para continuar."
	RoleSystem         = entities.RoleSystem
)

type State string

const (
	StateClosed      State = "closed"
	StateOpen        State = "open"
	StateIdleSeeking State = "open+idle-seeking"
	StateBlocked     State = "blocked"
)

var (
	ErrBlocked      = errors.New("widget is blocked")
	ErrBusy         = errors.New("a turn is already in flight")
	ErrClosed       = errors.New("widget is closed")
	ErrEmptyMessage = errors.New("empty message")
)

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// TurnRequest and TurnResponse mirror the JSON contract of the turn endpoint.
type TurnRequest struct {
	Message  string                 `json:"message"`
	History  []entities.ChatMessage `json:"history"`
	WidgetID string                 `json:"widgetId"`
}

type TurnResponse struct {
	Response string            `json:"response"`
	Blocked  bool              `json:"blocked,omitempty"`
	Lead     map[string]string `json:"lead,omitempty"`
}

// Transport performs the turn-critical call.
type Transport interface {
	SendTurn(ctx context.Context, req TurnRequest) (TurnResponse, error)
}

// Effects are best-effort and never report failure back to the runtime.
type Effects interface {
	Ping(widgetID, eventType string)
	OpenURL(url string)
}

// Message is one entry of the visible transcript. ActionURL is set on the
// system message that offers the WhatsApp handoff.
type Message struct {
	Role      string
	Content   string
	ActionURL string
}

// Runtime is one widget instance. All mutable state is private to it, so any
// number of runtimes can coexist in one process.
type Runtime struct {
	cfg       entities.WidgetConfig
	clock     Clock
	transport Transport
	effects   Effects
	pick      func(n int) int

	mu            sync.Mutex
	state         State
	messages      []Message
	welcomeShown  bool
	pingedOpen    bool
	closedOnce    bool
	exitShown     bool
	teaser        string
	inFlight      bool
	navigatedAway bool
	placeholder   string

	autoOpenTimer Timer
	idleTimer     Timer
	teaserTimer   Timer
	handoffTimer  Timer
}

type Option func(*Runtime)

func WithClock(c Clock) Option { return func(r *Runtime) { r.clock = c } }

// WithPicker replaces the uniform random choice used for teasers.
func WithPicker(pick func(n int) int) Option { return func(r *Runtime) { r.pick = pick } }

func NewRuntime(cfg entities.WidgetConfig, transport Transport, effects Effects, opts ...Option) *Runtime {
	r := &Runtime{
		cfg:         cfg,
		clock:       realClock{},
		transport:   transport,
		effects:     effects,
		pick:        rand.IntN,
		state:       StateClosed,
		placeholder: cfg.Placeholder,
		messages:    []Message{{Role: entities.RoleAssistant, Content: cfg.WelcomeMessage}},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// update runs fn under the lock and then the effects it returned, unlocked.
func (r *Runtime) update(fn func() []func()) {
	r.mu.Lock()
	after := fn()
	r.mu.Unlock()
	for _, f := range after {
		f()
	}
}

// Start arms the auto-open trigger. A zero trigger delay disables it.
func (r *Runtime) Start() {
	r.update(func() []func() {
		if r.cfg.TriggerDelay > 0 && r.state == StateClosed {
			r.autoOpenTimer = r.clock.AfterFunc(time.Duration(r.cfg.TriggerDelay)*time.Second, r.Open)
		}
		return nil
	})
}

func (r *Runtime) Open() {
	r.update(r.openLocked)
}

func (r *Runtime) openLocked() []func() {
	if r.state != StateClosed {
		return nil
	}
	r.state = StateOpen
	r.welcomeShown = true
	r.teaser = ""
	stop(r.autoOpenTimer)
	stop(r.teaserTimer)
	r.armIdleLocked()

	if r.pingedOpen {
		return nil
	}
	r.pingedOpen = true
	return []func(){r.ping(entities.EventOpen)}
}

func (r *Runtime) Close() {
	r.update(func() []func() {
		if r.state != StateOpen && r.state != StateIdleSeeking {
			return nil
		}
		r.state = StateClosed
		stop(r.idleTimer)
		if !r.closedOnce && len(r.cfg.Teasers) > 0 {
			r.closedOnce = true
			teaser := r.cfg.Teasers[r.pick(len(r.cfg.Teasers))]
			r.teaserTimer = r.clock.AfterFunc(TeaserDelay, func() {
				r.update(func() []func() {
					if r.state == StateClosed {
						r.teaser = teaser
					}
					return nil
				})
			})
		}
		return nil
	})
}

// ClickTeaser opens the widget from the visible teaser bubble.
func (r *Runtime) ClickTeaser() {
	r.update(func() []func() {
		if r.teaser == "" {
			return nil
		}
		return append([]func(){r.ping(entities.EventTeaserClick)}, r.openLocked()...)
	})
}

// Input is any focus or keystroke in the chat input.
func (r *Runtime) Input() {
	r.update(func() []func() {
		if r.state == StateIdleSeeking {
			r.state = StateOpen
		}
		return nil
	})
}

// ExitIntent shows the exit copy as a teaser, once per session, while closed.
func (r *Runtime) ExitIntent() {
	r.update(func() []func() {
		if !r.cfg.ExitIntentEnabled || r.exitShown || r.state != StateClosed {
			return nil
		}
		r.exitShown = true
		r.teaser = r.cfg.ExitIntentMessage
		return []func(){r.ping(entities.EventExitIntent)}
	})
}

// NavigateAway cancels a pending WhatsApp auto-open.
func (r *Runtime) NavigateAway() {
	r.update(func() []func() {
		r.navigatedAway = true
		stop(r.handoffTimer)
		return nil
	})
}

// ClickWhatsApp follows the handoff link of the last system message.
func (r *Runtime) ClickWhatsApp() {
	r.update(func() []func() {
		link := r.handoffLinkLocked()
		if link == "" {
			return nil
		}
		r.navigatedAway = true
		stop(r.handoffTimer)
		return []func(){r.ping(entities.EventWhatsAppClick), func() { r.effects.OpenURL(link) }}
	})
}

// Send runs one turn. Only one turn can be in flight; the loading state is
// cleared whatever the outcome.
func (r *Runtime) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	r.mu.Lock()
	switch {
	case r.state == StateBlocked:
		r.mu.Unlock()
		return ErrBlocked
	case r.state == StateClosed:
		r.mu.Unlock()
		return ErrClosed
	case r.inFlight:
		r.mu.Unlock()
		return ErrBusy
	case text == "":
		r.mu.Unlock()
		return ErrEmptyMessage
	}
	req := TurnRequest{Message: text, History: r.historyLocked(), WidgetID: r.cfg.WidgetID}
	r.messages = append(r.messages, Message{Role: entities.RoleUser, Content: text})
	r.inFlight = true
	r.state = StateOpen
	stop(r.idleTimer)
	r.mu.Unlock()

	var resp TurnResponse
	var err error
	defer r.update(func() []func() {
		r.inFlight = false
		return r.applyLocked(resp, err)
	})

	resp, err = r.transport.SendTurn(ctx, req)
	return nil
}

func (r *Runtime) applyLocked(resp TurnResponse, err error) []func() {
	// A result that arrives after the widget was closed or blocked is dropped.
	if r.state != StateOpen && r.state != StateIdleSeeking {
		return nil
	}
	if err != nil {
		r.messages = append(r.messages, Message{Role: entities.RoleAssistant, Content: ApologyMessage})
		return nil
	}
	if resp.Blocked {
		r.state = StateBlocked
		r.placeholder = BlockedPlaceholder
		r.messages = append(r.messages, Message{Role: entities.RoleAssistant, Content: resp.Response})
		stop(r.idleTimer)
		stop(r.teaserTimer)
		stop(r.autoOpenTimer)
		stop(r.handoffTimer)
		return nil
	}

	r.messages = append(r.messages, Message{Role: entities.RoleAssistant, Content: resp.Response})
	after := []func(){r.ping(entities.EventMessage)}
	if len(resp.Lead) == 0 {
		return after
	}

	after = append(after, r.ping(entities.EventLead))
	link := WhatsAppLink(r.cfg.WhatsAppNumber, r.cfg.BusinessName, resp.Lead)
	if link == "" {
		return after
	}
	r.messages = append(r.messages, Message{Role: RoleSystem, Content: LeadHandoffMessage, ActionURL: link})
	r.handoffTimer = r.clock.AfterFunc(WhatsAppDelay, func() {
		r.update(func() []func() {
			if r.navigatedAway || r.state == StateBlocked {
				return nil
			}
			r.navigatedAway = true
			return []func(){func() { r.effects.OpenURL(link) }}
		})
	})
	return after
}

func (r *Runtime) armIdleLocked() {
	stop(r.idleTimer)
	r.idleTimer = r.clock.AfterFunc(IdleTimeout, func() {
		r.update(func() []func() {
			if r.state == StateOpen && len(r.messages) == 1 {
				r.state = StateIdleSeeking
			}
			return nil
		})
	})
}

// historyLocked is what the turn endpoint receives: user and assistant
// messages only, oldest first.
func (r *Runtime) historyLocked() []entities.ChatMessage {
	out := make([]entities.ChatMessage, 0, len(r.messages))
	for _, m := range r.messages {
		if m.Role == entities.RoleUser || m.Role == entities.RoleAssistant {
			out = append(out, entities.ChatMessage{Role: m.Role, Content: m.Content})
		}
	}
	return out
}

func (r *Runtime) handoffLinkLocked() string {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ActionURL != "" {
			return r.messages[i].ActionURL
		}
	}
	return ""
}

func (r *Runtime) ping(eventType string) func() {
	widgetID := r.cfg.WidgetID
	return func() { r.effects.Ping(widgetID, eventType) }
}

func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runtime) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

func (r *Runtime) Teaser() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teaser
}

func (r *Runtime) Placeholder() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.placeholder
}

// Messages returns the visible transcript. The welcome message only shows up
// once the widget has been opened.
func (r *Runtime) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages
	if !r.welcomeShown {
		msgs = msgs[1:]
	}
	return append([]Message(nil), msgs...)
}

func stop(t Timer) {
	if t != nil {
		t.Stop()
	}
}
