package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "github.com/Xianghbb/au-email-marketing-saas/pkg/errors"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/httputil"
	"github.com/Xianghbb/au-email-marketing-saas/pkg/logger"
)

const (
	orgIDKey        = "organization_id"
	requestIDKey    = "request_id"
	orgHeader       = "X-Organization-ID"
	requestIDHeader = "X-Request-ID"
)

// OrganizationID returns the tenant bound to this request. Empty when the
// route is not behind TenantRequired.
func OrganizationID(c *gin.Context) string {
	return c.GetString(orgIDKey)
}

// TenantRequired extracts the organization id from the request header and
// rejects requests without one. Every tenant-scoped route sits behind this.
func TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetHeader(orgHeader)
		if orgID == "" {
			httputil.RespondWithError(c, &apperrors.AppError{
				Code:    apperrors.ErrUnauthorized,
				Message: "missing organization context",
			})
			c.Abort()
			return
		}
		c.Set(orgIDKey, orgID)
		c.Next()
	}
}

// RequestID tags every request with an id, honoring one supplied upstream.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger emits one structured log line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDKey),
			"organization_id", c.GetString(orgIDKey),
		)
	}
}

// Recovery converts panics into 500 responses instead of dropped connections.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error(nil, "panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, httputil.Response{
			Success: false,
			Error:   &httputil.Error{Code: http.StatusInternalServerError, Message: "internal server error"},
		})
	})
}

// RateLimit applies a global token-bucket limit across the API surface.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httputil.Response{
				Success: false,
				Error:   &httputil.Error{Code: http.StatusTooManyRequests, Message: "rate limit exceeded"},
			})
			return
		}
		c.Next()
	}
}
