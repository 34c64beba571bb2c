package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-intake/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const (
	requestIDKey = "request_id"
	tenantKey    = "tenant"
)

// requestIDMiddleware accepts a caller request id or mints one, echoes it and
// puts it on the request context trace.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(core.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func accessLogMiddleware(logger glog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"request_id", requestID(c),
		}
		if tenant, ok := tenantFrom(c); ok {
			args = append(args, "tenant_id", tenant.ID)
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("http request", args...)
		case status >= http.StatusBadRequest:
			logger.Warn("http request", args...)
		default:
			logger.Debug("http request", args...)
		}
	}
}

// tenantAuthMiddleware resolves X-API-Key to an active tenant.
func tenantAuthMiddleware(svc *core.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := svc.AuthenticateTenant(c.Request.Context(), c.GetHeader(HeaderAPIKey))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(tenantKey, tenant)
		c.Request = c.Request.WithContext(core.WithTenantID(c.Request.Context(), tenant.ID))
		c.Next()
	}
}

func adminAuthMiddleware(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		provided := []byte(strings.TrimSpace(c.GetHeader(HeaderAdminToken)))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			abortWithError(c, core.UnauthorizedError("httpapi: invalid admin token"))
			return
		}
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func tenantFrom(c *gin.Context) (core.Tenant, bool) {
	value, ok := c.Get(tenantKey)
	if !ok {
		return core.Tenant{}, false
	}
	tenant, ok := value.(core.Tenant)
	return tenant, ok
}
