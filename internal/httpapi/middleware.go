// Package httpapi wires the gin router, handlers, and request
// middleware (correlation id, rate limiting, recovery, logging).
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aditya/catalog-search-gateway/internal/apierror"
	"github.com/aditya/catalog-search-gateway/internal/logging"
	"github.com/aditya/catalog-search-gateway/internal/model"
	"github.com/aditya/catalog-search-gateway/internal/ratelimit"
)

const correlationIDHeader = "X-Correlation-ID"
const correlationIDKey = "correlationId"

// CorrelationID reads X-Correlation-ID, generating one if absent, and
// always echoes it back in the response header.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(correlationIDKey, id)
		c.Header(correlationIDHeader, id)
		c.Next()
	}
}

// CorrelationIDFromContext reads the id CorrelationID() stored.
func CorrelationIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(correlationIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RateLimit enforces the distributed fixed-window limit on every route
// it is mounted on. It does no path-based exemption itself; health
// probes are exempt because NewRouter mounts it only on the API group.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			// Rate-limiter storage failure degrades to allow, rather
			// than blocking the whole API on a Redis outage.
			c.Next()
			return
		}
		if !allowed {
			writeError(c, apierror.New(apierror.CodeRateLimitExceeded, "rate limit exceeded"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestLogger emits the structured request-completion log and
// attaches the profile, if one was stashed in the context by a
// handler, to the log line.
func RequestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		var profile *model.Profile
		if v, ok := c.Get("profile"); ok {
			profile, _ = v.(*model.Profile)
		}

		logging.LogRequest(
			logger,
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
			CorrelationIDFromContext(c),
			profile,
		)
	}
}

// Recovery converts a panic into a 500 INTERNAL_ERROR response
// instead of crashing the process, logging the original panic value.
func Recovery(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered", "panic", r, "path", c.Request.URL.Path)
				writeError(c, apierror.New(apierror.CodeInternalError, "internal error"))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// writeError renders the standard ErrorResponse envelope.
func writeError(c *gin.Context, err error) {
	apiErr := apierror.As(err)
	c.JSON(apierror.HTTPStatus(apiErr.Code), gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
		"meta": gin.H{
			"timestamp":     time.Now(),
			"path":          c.Request.URL.Path,
			"correlationId": CorrelationIDFromContext(c),
		},
	})
}
