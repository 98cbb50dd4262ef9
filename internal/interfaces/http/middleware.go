package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"leadwidget/internal/infrastructure"
	"leadwidget/internal/logger"
)

const (
	RoleAdmin  = "admin"
	RoleTenant = "tenant"

	ctxTenantID = "tenant_id"
	ctxRole     = "role"
)

// RateLimitedMessage is shown in the chat when a visitor sends too fast.
const RateLimitedMessage = "Estás enviando mensajes muy rápido. Espera unos segundos e inténtalo de nuevo."

// Claims are the admin API token claims.
type Claims struct {
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Middleware struct {
	jwtSecret []byte
	limiter   *infrastructure.MessageRateLimiter
}

func NewMiddleware(secret string, limiter *infrastructure.MessageRateLimiter) *Middleware {
	return &Middleware{
		jwtSecret: []byte(secret),
		limiter:   limiter,
	}
}

// IssueToken signs an admin API token. An empty tenantID is only meaningful
// with the admin role.
func IssueToken(secret, tenantID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ctxTenantID, claims.TenantID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// AdminRequired must follow AuthRequired.
func (m *Middleware) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}

// TenantAccess lets admins through and tenants only to their own :id.
func (m *Middleware) TenantAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) == RoleAdmin {
			c.Next()
			return
		}
		if tid := c.GetString(ctxTenantID); tid == "" || tid != c.Param("id") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access to this tenant denied"})
			return
		}
		c.Next()
	}
}

// RateLimitPerOrigin throttles chat turns per visitor address. The rejection
// keeps the turn response shape so the widget just shows the text.
func (m *Middleware) RateLimitPerOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.limiter == nil || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if !m.limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"response": RateLimitedMessage})
			return
		}
		c.Next()
	}
}

// LimiterStats reports the turn limiter state for the health endpoint.
func (m *Middleware) LimiterStats() map[string]interface{} {
	if m.limiter == nil {
		return nil
	}
	return m.limiter.Stats()
}

// CORS is fully open: the widget runs on arbitrary customer sites.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "Accept", "X-Requested-With"},
		MaxAge:          12 * time.Hour,
	})
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// Scripts and QR images are embedded by third-party pages.
		c.Writer.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
		c.Next()
	}
}

// RequestSizeLimiter limits request body size to prevent DoS
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Debug("HTTP request", fields...)
		}
	}
}

// scriptHeaders disables caching: tenant config can change between page loads.
func scriptHeaders(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}
