package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"leadwidget/internal/entities"
	"leadwidget/internal/infrastructure"
	"leadwidget/internal/interfaces"
	"leadwidget/internal/logger"
	"leadwidget/internal/repository"
	"leadwidget/internal/usecases"
)

// AnalyticsHistory is implemented by the redis and postgres analytics sinks
// and by the in-memory store.
type AnalyticsHistory interface {
	History(ctx context.Context, widgetID string, days int) ([]repository.DailyEventCount, error)
}

// NotifierDevice is the platform WhatsApp device used for lead notices.
type NotifierDevice interface {
	Status() infrastructure.WhatsAppStatus
	QR(ctx context.Context) (code string, loggedIn bool, err error)
}

type AdminHandler struct {
	tenants  interfaces.TenantStore
	blocks   interfaces.BlockStore
	leads    interfaces.LeadStore
	history  AnalyticsHistory
	resolver *usecases.ConfigResolver
	wa       NotifierDevice
	log      *logger.Logger
}

func NewAdminHandler(d Deps) *AdminHandler {
	return &AdminHandler{
		tenants:  d.Tenants,
		blocks:   d.Blocks,
		leads:    d.Leads,
		history:  d.History,
		resolver: d.Resolver,
		wa:       d.WhatsApp,
		log:      d.Log,
	}
}

// tenantConfigResponse shows both what is stored and what visitors get.
type tenantConfigResponse struct {
	Tenant   entities.Tenant       `json:"tenant"`
	Resolved entities.WidgetConfig `json:"resolved"`
	AI       entities.AISettings   `json:"ai"`
}

func (h *AdminHandler) GetConfig(c *gin.Context) {
	ctx := c.Request.Context()
	t, err := h.tenants.GetTenant(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}
	if err != nil {
		h.log.Error("get tenant", "tenant_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tenant"})
		return
	}
	c.JSON(http.StatusOK, h.configResponse(ctx, t))
}

func (h *AdminHandler) configResponse(ctx context.Context, t *entities.Tenant) tenantConfigResponse {
	cfg, _ := h.resolver.Resolve(ctx, t.ID)
	return tenantConfigResponse{Tenant: *t, Resolved: cfg, AI: cfg.AI}
}

// updateConfigRequest is a partial update: nil fields are left as they are.
// Widget settings are replaced as a whole when present.
type updateConfigRequest struct {
	PublicID             *string                  `json:"public_id"`
	Status               *string                  `json:"status"`
	AIEnabled            *bool                    `json:"ai_enabled"`
	SystemPrompt         *string                  `json:"system_prompt"`
	Model                *string                  `json:"model"`
	Temperature          *float64                 `json:"temperature"`
	NotifyTelegramChatID *int64                   `json:"notify_telegram_chat_id"`
	Widget               *entities.WidgetSettings `json:"widget"`
}

func (h *AdminHandler) UpdateConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	isAdmin := c.GetString(ctxRole) == RoleAdmin

	ctx := c.Request.Context()
	id := c.Param("id")
	t, err := h.tenants.GetTenant(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound) && isAdmin:
		t = &entities.Tenant{ID: id, Status: entities.StatusActive}
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	case err != nil:
		h.log.Error("get tenant", "tenant_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tenant"})
		return
	}

	if req.Status != nil || req.PublicID != nil {
		// billing and widget ids are platform decisions
		if !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
	}
	if req.Status != nil {
		if *req.Status != entities.StatusActive && *req.Status != entities.StatusSuspended {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or suspended"})
			return
		}
		t.Status = *req.Status
	}
	if req.PublicID != nil {
		if *req.PublicID != "" && !ValidWidgetID(*req.PublicID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "public_id may only contain letters, digits, - and _"})
			return
		}
		t.PublicID = *req.PublicID
	}
	if req.AIEnabled != nil {
		t.AIEnabled = req.AIEnabled
	}
	if req.SystemPrompt != nil {
		t.SystemPrompt = TruncateString(SanitizeString(*req.SystemPrompt), MaxSystemPrompt)
	}
	if req.Model != nil {
		t.Model = *req.Model
	}
	if req.Temperature != nil {
		if *req.Temperature < 0 || *req.Temperature > 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "temperature must be between 0 and 2"})
			return
		}
		t.Temperature = req.Temperature
	}
	if req.NotifyTelegramChatID != nil {
		t.NotifyTelegramChatID = *req.NotifyTelegramChatID
	}
	if req.Widget != nil {
		if msg := validateSettings(*req.Widget); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		t.Widget = *req.Widget
	}

	if err := h.tenants.SaveTenant(ctx, t); err != nil {
		h.log.Error("save tenant", "tenant_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save tenant"})
		return
	}
	h.log.Info("tenant config updated", "tenant_id", id, "by_admin", isAdmin)
	c.JSON(http.StatusOK, h.configResponse(ctx, t))
}

func (h *AdminHandler) ListLeads(c *gin.Context) {
	limit := queryInt(c, "limit", DefaultLeadsLimit, MaxLeadsLimit)
	leads, err := h.leads.ListLeads(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.log.Error("list leads", "tenant_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch leads"})
		return
	}
	if leads == nil {
		leads = []entities.LeadRecord{}
	}
	c.JSON(http.StatusOK, leads)
}

func (h *AdminHandler) AnalyticsHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics not configured"})
		return
	}
	ctx := c.Request.Context()
	cfg, err := h.resolver.Resolve(ctx, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}

	days := queryInt(c, "days", DefaultHistoryDays, MaxHistoryDays)
	counts, err := h.history.History(ctx, cfg.WidgetID, days)
	if err != nil {
		h.log.Error("analytics history", "widget_id", cfg.WidgetID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch analytics"})
		return
	}
	if counts == nil {
		counts = []repository.DailyEventCount{}
	}
	c.JSON(http.StatusOK, gin.H{"widget_id": cfg.WidgetID, "days": days, "counts": counts})
}

func (h *AdminHandler) Unblock(c *gin.Context) {
	origin := c.Param("origin")
	if origin == "" || len(origin) > MaxOriginLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid origin"})
		return
	}
	err := h.blocks.Unblock(c.Request.Context(), c.Param("id"), origin)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Origin is not blocked"})
		return
	}
	if err != nil {
		h.log.Error("unblock origin", "tenant_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unblock"})
		return
	}
	h.log.Info("origin unblocked", "tenant_id", c.Param("id"), "origin", origin)
	c.Status(http.StatusNoContent)
}

// WhatsAppStatus gets the notifier device connection state
func (h *AdminHandler) WhatsAppStatus(c *gin.Context) {
	if h.wa == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WhatsApp notifications are disabled"})
		return
	}
	c.JSON(http.StatusOK, h.wa.Status())
}

// WhatsAppQR returns the pairing code as a PNG, or JSON when already paired.
func (h *AdminHandler) WhatsAppQR(c *gin.Context) {
	if h.wa == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WhatsApp notifications are disabled"})
		return
	}
	code, loggedIn, err := h.wa.QR(c.Request.Context())
	if err != nil {
		h.log.Error("whatsapp qr", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start WhatsApp device"})
		return
	}
	if loggedIn {
		c.JSON(http.StatusOK, gin.H{"status": "connected"})
		return
	}
	if code == "" {
		c.JSON(http.StatusAccepted, gin.H{"status": "waiting_for_qr"})
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func queryInt(c *gin.Context, key string, def, max int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
