package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skip2/go-qrcode"

	"leadwidget/internal/entities"
	"leadwidget/internal/interfaces"
	"leadwidget/internal/logger"
	"leadwidget/internal/observability"
	"leadwidget/internal/usecases"
	"leadwidget/internal/widget"
)

const scriptContentType = "application/javascript; charset=utf-8"

// Deps is everything the router needs. WhatsApp and Analytics history may be nil.
type Deps struct {
	Turns      *usecases.TurnOrchestrator
	Scripts    *usecases.ScriptGenerator
	Resolver   *usecases.ConfigResolver
	Tenants    interfaces.TenantStore
	Blocks     interfaces.BlockStore
	Leads      interfaces.LeadStore
	Analytics  interfaces.AnalyticsSink
	History    AnalyticsHistory
	WhatsApp   NotifierDevice
	Middleware *Middleware
	Log        *logger.Logger
}

type Handler struct {
	turns     *usecases.TurnOrchestrator
	scripts   *usecases.ScriptGenerator
	resolver  *usecases.ConfigResolver
	analytics interfaces.AnalyticsSink
	log       *logger.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		turns:     d.Turns,
		scripts:   d.Scripts,
		resolver:  d.Resolver,
		analytics: d.Analytics,
		log:       d.Log,
	}
}

func SetupRoutes(r *gin.Engine, d Deps) {
	h := NewHandler(d)
	adminHandler := NewAdminHandler(d)

	r.HandleMethodNotAllowed = true

	// Apply Security Middleware
	r.Use(observability.GinMiddleware())
	r.Use(RequestLogger(d.Log))
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(1 << 20))
	r.Use(CORS())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "turn_limiter": d.Middleware.LimiterStats()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Widget delivery
	r.GET("/widget.js", h.Loader)
	r.GET("/widget/:id", h.Script)
	r.GET("/widget/:id/whatsapp.png", h.WhatsAppQR)
	r.GET("/api/widget/:id/config", h.Bootstrap)

	// Turn protocol
	r.POST(usecases.ChatPath, d.Middleware.RateLimitPerOrigin(), h.Chat)
	r.OPTIONS(usecases.ChatPath, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST(usecases.AnalyticsPath, h.Analytics)

	// Admin API
	admin := r.Group("/api/admin")
	admin.Use(d.Middleware.AuthRequired())
	{
		tenant := admin.Group("/tenants/:id")
		tenant.Use(d.Middleware.TenantAccess())
		tenant.GET("/config", adminHandler.GetConfig)
		tenant.PUT("/config", adminHandler.UpdateConfig)
		tenant.GET("/leads", adminHandler.ListLeads)
		tenant.GET("/analytics", adminHandler.AnalyticsHistory)
		tenant.DELETE("/blocks/:origin", adminHandler.Unblock)

		wa := admin.Group("/whatsapp")
		wa.Use(d.Middleware.AdminRequired())
		wa.GET("/status", adminHandler.WhatsAppStatus)
		wa.GET("/qr", adminHandler.WhatsAppQR)
	}
}

type chatRequest struct {
	Message  string                 `json:"message" binding:"required"`
	History  []entities.ChatMessage `json:"history"`
	WidgetID string                 `json:"widgetId" binding:"required"`
}

// Chat runs one turn. Runtime failures still answer 200 with a reply; only
// malformed requests get a 4xx.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message and widgetId are required"})
		return
	}
	req.Message = strings.TrimSpace(SanitizeString(req.Message))
	if req.Message == "" || !ValidWidgetID(req.WidgetID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message and widgetId are required"})
		return
	}
	if len(req.History) > MaxHistoryEntries {
		req.History = req.History[len(req.History)-MaxHistoryEntries:]
	}
	for i := range req.History {
		req.History[i].Content = SanitizeString(req.History[i].Content)
	}

	res, err := h.turns.HandleTurn(c.Request.Context(), entities.ConversationTurn{
		TenantID:      req.WidgetID,
		VisitorOrigin: c.ClientIP(),
		History:       req.History,
		Message:       TruncateString(req.Message, MaxMessageLength),
	})
	if err != nil && !errors.Is(err, usecases.ErrAIDisabled) {
		h.log.Error("unexpected turn error", "widget_id", req.WidgetID, "error", err)
		res = entities.TurnResult{Reply: usecases.ApologyMessage}
	}

	c.JSON(http.StatusOK, widget.TurnResponse{
		Response: res.Reply,
		Blocked:  res.Blocked,
		Lead:     res.Lead,
	})
}

// Script serves the per-tenant script. It always answers 200 with valid
// JavaScript so a bad embed never breaks the host page.
func (h *Handler) Script(c *gin.Context) {
	id := strings.TrimSuffix(c.Param("id"), ".js")
	scriptHeaders(c)
	if !ValidWidgetID(id) {
		observability.ScriptsTotal.WithLabelValues(string(usecases.VariantNoop)).Inc()
		c.Data(http.StatusOK, scriptContentType, []byte(widget.RenderNoop("")))
		return
	}

	src, variant := h.scripts.Generate(c.Request.Context(), id, requestOrigin(c))
	c.Header("X-Widget-Variant", string(variant))
	c.Data(http.StatusOK, scriptContentType, []byte(src))
}

func (h *Handler) Loader(c *gin.Context) {
	scriptHeaders(c)
	src, err := h.scripts.Loader()
	if err != nil {
		h.log.Error("render loader", "error", err)
		src = widget.RenderNoop("")
	}
	c.Data(http.StatusOK, scriptContentType, []byte(src))
}

func (h *Handler) Bootstrap(c *gin.Context) {
	scriptHeaders(c)
	id := c.Param("id")
	if !ValidWidgetID(id) {
		c.JSON(http.StatusOK, usecases.ClientBootstrap{})
		return
	}
	c.JSON(http.StatusOK, h.scripts.Bootstrap(c.Request.Context(), id, requestOrigin(c)))
}

type analyticsRequest struct {
	WidgetID  string `json:"widgetId"`
	EventType string `json:"eventType"`
}

// Analytics is fire-and-forget: it always answers 204.
func (h *Handler) Analytics(c *gin.Context) {
	var req analyticsRequest
	if err := c.ShouldBindJSON(&req); err != nil || !ValidWidgetID(req.WidgetID) || !entities.ValidEventType(req.EventType) {
		c.Status(http.StatusNoContent)
		return
	}
	observability.WidgetEventsTotal.WithLabelValues(req.EventType).Inc()

	if h.analytics != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ev := entities.AnalyticsEvent{WidgetID: req.WidgetID, EventType: req.EventType, At: time.Now()}
		if err := h.analytics.Record(ctx, ev); err != nil {
			h.log.Warn("record widget event", "widget_id", req.WidgetID, "event", req.EventType, "error", err)
		}
	}
	c.Status(http.StatusNoContent)
}

// WhatsAppQR renders the tenant's wa.me link as a PNG for printed material.
func (h *Handler) WhatsAppQR(c *gin.Context) {
	id := c.Param("id")
	if !ValidWidgetID(id) {
		c.String(http.StatusNotFound, "unknown widget")
		return
	}
	cfg, err := h.resolver.Resolve(c.Request.Context(), id)
	if err != nil || cfg.Suspended() {
		c.String(http.StatusNotFound, "unknown widget")
		return
	}
	link := widget.WhatsAppLink(cfg.WhatsAppNumber, cfg.BusinessName, nil)
	if link == "" {
		c.String(http.StatusNotFound, "widget has no WhatsApp number")
		return
	}

	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// requestOrigin is the scheme and host the browser used to reach us.
func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" || proto == "http" {
		scheme = proto
	}
	host := c.Request.Host
	if fwd := c.GetHeader("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host
}
