package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadwidget/internal/entities"
	"leadwidget/internal/infrastructure"
	"leadwidget/internal/interfaces"
	"leadwidget/internal/logger"
	"leadwidget/internal/repository"
	"leadwidget/internal/usecases"
	"leadwidget/internal/widget"
)

const testSecret = "test-secret"

type fakeLLM struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (f *fakeLLM) GenerateReply(context.Context, interfaces.LLMRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, nil
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDevice struct {
	status   infrastructure.WhatsAppStatus
	code     string
	loggedIn bool
	err      error
}

func (d *fakeDevice) Status() infrastructure.WhatsAppStatus { return d.status }

func (d *fakeDevice) QR(context.Context) (string, bool, error) {
	return d.code, d.loggedIn, d.err
}

type testServer struct {
	router *gin.Engine
	store  *repository.MemoryStore
	llm    *fakeLLM
}

func newTestServer(t *testing.T, reply string, mutate ...func(*Deps)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	ctx := context.Background()
	yes := true
	require.NoError(t, store.SaveTenant(ctx, &entities.Tenant{
		ID:        "t1",
		PublicID:  "acme",
		AIEnabled: &yes,
		Widget: entities.WidgetSettings{
			BusinessName:   "Acme",
			WhatsAppNumber: "+34 600 111 222",
		},
	}))
	require.NoError(t, store.SaveTenant(ctx, &entities.Tenant{ID: "t2", AIEnabled: &yes, Widget: entities.WidgetSettings{BusinessName: "Beta"}}))
	require.NoError(t, store.SaveTenant(ctx, &entities.Tenant{ID: "off", Status: entities.StatusSuspended}))

	llm := &fakeLLM{reply: reply}
	resolver := usecases.NewConfigResolver(store, "demo", usecases.AIDefaults{Model: "gpt-4o-mini", Temperature: 0.7})
	log := logger.Nop()
	d := Deps{
		Turns: usecases.NewTurnOrchestrator(usecases.TurnDeps{
			Resolver: resolver,
			AI:       llm,
			Blocks:   store,
			Leads:    store,
			Log:      log,
		}),
		Scripts:    usecases.NewScriptGenerator(resolver, "", log),
		Resolver:   resolver,
		Tenants:    store,
		Blocks:     store,
		Leads:      store,
		Analytics:  store,
		History:    store,
		Middleware: NewMiddleware(testSecret, nil),
		Log:        log,
	}
	for _, m := range mutate {
		m(&d)
	}

	r := gin.New()
	SetupRoutes(r, d)
	return &testServer{router: r, store: store, llm: llm}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) chat(t *testing.T, widgetID, msg string) (int, widget.TurnResponse) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/chat", widget.TurnRequest{Message: msg, WidgetID: widgetID}, "")
	var resp widget.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func token(t *testing.T, tenantID, role string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, tenantID, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestChat_PlainReply(t *testing.T) {
	s := newTestServer(t, "Hola, ¿en qué te ayudo?")

	code, resp := s.chat(t, "acme", "hola")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Hola, ¿en qué te ayudo?", resp.Response)
	assert.False(t, resp.Blocked)
	assert.Nil(t, resp.Lead)
}

func TestChat_LeadIsSignalledAndStored(t *testing.T) {
	s := newTestServer(t, `¡Genial! {"action":"collect_lead","data":{"name":"Ana","phone":"600"}}`)

	code, resp := s.chat(t, "acme", "Soy Ana, mi teléfono es 600")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "¡Genial!", resp.Response)
	assert.Equal(t, "Ana", resp.Lead["name"])

	leads, err := s.store.ListLeads(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "600", leads[0].Phone)
}

func TestChat_BlockedOriginSkipsModel(t *testing.T) {
	s := newTestServer(t, `Adiós {"action":"block_user","reason":"insultos"}`)

	_, first := s.chat(t, "acme", "eres un inútil")
	assert.True(t, first.Blocked)
	assert.Equal(t, usecases.ClosureMessage, first.Response)

	_, second := s.chat(t, "acme", "hola otra vez")
	assert.True(t, second.Blocked)
	assert.Equal(t, usecases.SecurityMessage, second.Response)
	assert.Equal(t, 1, s.llm.Calls())

	blocks := s.store.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "192.0.2.1", blocks[0].VisitorOrigin)
}

func TestChat_AIDisabledStillAnswers200(t *testing.T) {
	s := newTestServer(t, "nunca")

	code, resp := s.chat(t, "unknown-tenant", "hola")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, usecases.AIDisabledMessage, resp.Response)
	assert.Zero(t, s.llm.Calls())
}

func TestChat_RejectsMalformedRequests(t *testing.T) {
	s := newTestServer(t, "x")

	for name, body := range map[string]any{
		"missing widget":  gin.H{"message": "hola"},
		"missing message": gin.H{"widgetId": "acme"},
		"blank message":   gin.H{"message": "   ", "widgetId": "acme"},
		"bad widget id":   gin.H{"message": "hola", "widgetId": "a b"},
	} {
		w := s.do(t, http.MethodPost, "/api/chat", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
	assert.Zero(t, s.llm.Calls())
}

func TestChat_RateLimitedPerOrigin(t *testing.T) {
	s := newTestServer(t, "ok", func(d *Deps) {
		d.Middleware = NewMiddleware(testSecret, infrastructure.NewMessageRateLimiter(0.001, 1))
	})

	code, _ := s.chat(t, "acme", "uno")
	assert.Equal(t, http.StatusOK, code)

	code, resp := s.chat(t, "acme", "dos")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, RateLimitedMessage, resp.Response)
	assert.Equal(t, 1, s.llm.Calls())
}

func TestChat_Preflight(t *testing.T) {
	s := newTestServer(t, "ok")
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://customer.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestScript_Variants(t *testing.T) {
	s := newTestServer(t, "ok")

	tests := []struct {
		path    string
		variant string
		want    string
	}{
		{"/widget/acme.js", "tenant", "LeadWidget.mount("},
		{"/widget/acme", "tenant", `"http://example.com/api/chat"`},
		{"/widget/off.js", "suspended", "console.warn"},
		{"/widget/ghost.js", "noop", "console.error"},
		{"/widget/bad$id.js", "", "console.error"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.path, nil, "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/javascript; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
			assert.Equal(t, tt.variant, w.Header().Get("X-Widget-Variant"))
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestScript_ForwardedOriginDrivesEndpoints(t *testing.T) {
	s := newTestServer(t, "ok")
	req := httptest.NewRequest(http.MethodGet, "/widget/acme.js", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "widgets.example.org")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), `"https://widgets.example.org/api/chat"`)
	assert.Contains(t, w.Body.String(), `"https://widgets.example.org/api/analytics"`)
}

func TestLoaderAndBootstrap(t *testing.T) {
	s := newTestServer(t, "ok")

	w := s.do(t, http.MethodGet, "/widget.js", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data-widget-id")

	w = s.do(t, http.MethodGet, "/api/widget/acme/config", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var boot usecases.ClientBootstrap
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &boot))
	assert.True(t, boot.Found)
	require.NotNil(t, boot.Config)
	assert.Equal(t, "Acme", boot.Config.BusinessName)
	assert.NotContains(t, w.Body.String(), "system_prompt")

	w = s.do(t, http.MethodGet, "/api/widget/ghost/config", nil, "")
	boot = usecases.ClientBootstrap{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &boot))
	assert.False(t, boot.Found)
	require.NotNil(t, boot.Config)
	assert.Equal(t, usecases.DefaultBusinessName, boot.Config.BusinessName)

	w = s.do(t, http.MethodGet, "/api/widget/off/config", nil, "")
	boot = usecases.ClientBootstrap{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &boot))
	assert.True(t, boot.Suspended)
}

func TestAnalytics_AlwaysNoContent(t *testing.T) {
	s := newTestServer(t, "ok")

	w := s.do(t, http.MethodPost, "/api/analytics", gin.H{"widgetId": "acme", "eventType": "open"}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodPost, "/api/analytics", gin.H{"widgetId": "acme", "eventType": "hack"}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodPost, "/api/analytics", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	counts, err := s.store.History(context.Background(), "acme", 1)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, "open", counts[0].EventType)
	assert.Equal(t, 1, counts[0].Count)
}

type failingSink struct{}

func (failingSink) Record(context.Context, entities.AnalyticsEvent) error {
	return errors.New("redis down")
}

func TestAnalytics_SinkFailureIsSwallowed(t *testing.T) {
	s := newTestServer(t, "ok", func(d *Deps) { d.Analytics = failingSink{} })
	w := s.do(t, http.MethodPost, "/api/analytics", gin.H{"widgetId": "acme", "eventType": "lead"}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestWhatsAppQR(t *testing.T) {
	s := newTestServer(t, "ok")

	w := s.do(t, http.MethodGet, "/widget/acme/whatsapp.png", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = s.do(t, http.MethodGet, "/widget/t2/whatsapp.png", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodGet, "/widget/ghost/whatsapp.png", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, "ok")
	s.chat(t, "acme", "hola")

	w := s.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "leadwidget_turn_total")
}

func TestAdmin_Auth(t *testing.T) {
	s := newTestServer(t, "ok")

	w := s.do(t, http.MethodGet, "/api/admin/tenants/t1/config", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	forged, err := IssueToken("other-secret", "t1", RoleTenant, time.Hour)
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/api/admin/tenants/t1/config", nil, forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := IssueToken(testSecret, "t1", RoleTenant, -time.Minute)
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/api/admin/tenants/t1/config", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/tenants/t2/config", nil, token(t, "t1", RoleTenant))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/tenants/t2/config", nil, token(t, "", RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdmin_GetAndUpdateConfig(t *testing.T) {
	s := newTestServer(t, "ok")
	tok := token(t, "t1", RoleTenant)

	w := s.do(t, http.MethodGet, "/api/admin/tenants/t1/config", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	var got tenantConfigResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "acme", got.Resolved.WidgetID)
	assert.True(t, got.AI.Enabled)

	w = s.do(t, http.MethodPut, "/api/admin/tenants/t1/config", gin.H{
		"widget": gin.H{"primary_color": "javascript:alert(1)"},
	}, tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/tenants/t1/config", gin.H{
		"ai_enabled": false,
		"widget":     gin.H{"business_name": "Acme Homes", "primary_color": "#111111", "template": "real_estate"},
	}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Acme Homes", got.Resolved.BusinessName)
	assert.Equal(t, "#111111", got.Resolved.PrimaryColor)
	assert.False(t, got.AI.Enabled)

	code, resp := s.chat(t, "acme", "hola")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, usecases.AIDisabledMessage, resp.Response)
}

func TestAdmin_StatusIsAdminOnly(t *testing.T) {
	s := newTestServer(t, "ok")

	w := s.do(t, http.MethodPut, "/api/admin/tenants/t1/config", gin.H{"status": "active"}, token(t, "t1", RoleTenant))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/tenants/t1/config", gin.H{"status": "suspended"}, token(t, "", RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/widget/acme.js", nil, "")
	assert.Equal(t, "suspended", w.Header().Get("X-Widget-Variant"))
}

func TestAdmin_CreatesTenantOnFirstPut(t *testing.T) {
	s := newTestServer(t, "ok")

	w := s.do(t, http.MethodPut, "/api/admin/tenants/new1/config", gin.H{"widget": gin.H{"business_name": "Nuevo"}}, token(t, "new1", RoleTenant))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/tenants/new1/config", gin.H{
		"public_id": "nuevo",
		"widget":    gin.H{"business_name": "Nuevo"},
	}, token(t, "", RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/widget/nuevo.js", nil, "")
	assert.Equal(t, "tenant", w.Header().Get("X-Widget-Variant"))
	assert.Contains(t, w.Body.String(), "Nuevo")
}

func TestAdmin_LeadsAndUnblock(t *testing.T) {
	s := newTestServer(t, `Adiós {"action":"block_user","reason":"spam"}`)
	tok := token(t, "t1", RoleTenant)

	w := s.do(t, http.MethodGet, "/api/admin/tenants/t1/leads", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = s.do(t, http.MethodDelete, "/api/admin/tenants/t1/blocks/192.0.2.1", nil, tok)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, resp := s.chat(t, "acme", "spam spam")
	require.True(t, resp.Blocked)

	w = s.do(t, http.MethodDelete, "/api/admin/tenants/t1/blocks/192.0.2.1", nil, tok)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, s.store.Blocks())
}

func TestAdmin_AnalyticsHistory(t *testing.T) {
	s := newTestServer(t, "ok")
	s.do(t, http.MethodPost, "/api/analytics", gin.H{"widgetId": "acme", "eventType": "open"}, "")
	s.do(t, http.MethodPost, "/api/analytics", gin.H{"widgetId": "acme", "eventType": "open"}, "")

	w := s.do(t, http.MethodGet, "/api/admin/tenants/t1/analytics?days=7", nil, token(t, "t1", RoleTenant))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		WidgetID string                       `json:"widget_id"`
		Days     int                          `json:"days"`
		Counts   []repository.DailyEventCount `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "acme", body.WidgetID)
	assert.Equal(t, 7, body.Days)
	require.Len(t, body.Counts, 1)
	assert.Equal(t, 2, body.Counts[0].Count)
}

func TestAdmin_WhatsAppDevice(t *testing.T) {
	s := newTestServer(t, "ok")
	admin := token(t, "", RoleAdmin)

	w := s.do(t, http.MethodGet, "/api/admin/whatsapp/status", nil, admin)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	dev := &fakeDevice{status: infrastructure.WhatsAppStatus{Initialized: true, HasQR: true}, code: "2@pairing-code"}
	s = newTestServer(t, "ok", func(d *Deps) { d.WhatsApp = dev })

	w = s.do(t, http.MethodGet, "/api/admin/whatsapp/status", nil, token(t, "t1", RoleTenant))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/whatsapp/status", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_qr":true`)

	w = s.do(t, http.MethodGet, "/api/admin/whatsapp/qr", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	dev.loggedIn = true
	w = s.do(t, http.MethodGet, "/api/admin/whatsapp/qr", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "connected"))
}
