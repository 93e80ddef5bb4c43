// Package logging constructs the gateway's structured logger and the
// per-request profile log.
package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aditya/catalog-search-gateway/internal/model"
)

// New builds a production-profile zap sugared logger: JSON encoding,
// ISO8601 timestamps, info level by default.
func New() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than crash the process over
		// a logging misconfiguration.
		logger = zap.NewNop()
	}
	return logger.Sugar()
}

// LogRequest emits the single structured completion log this gateway
// requires: method, URL, status, latency, correlationId, and (on
// search) the per-stage profile breakdown.
func LogRequest(logger *zap.SugaredLogger, method, path string, status int, latency time.Duration, correlationID string, profile *model.Profile) {
	fields := []interface{}{
		"method", method,
		"path", path,
		"status", status,
		"latencyMs", latency.Milliseconds(),
		"correlationId", correlationID,
	}
	if profile != nil {
		fields = append(fields,
			"profile.cacheCheckMs", profile.CacheCheck.Milliseconds(),
			"profile.opensearchMs", profile.Engine.Milliseconds(),
			"profile.postgresMs", profile.Catalog.Milliseconds(),
			"profile.groupingMs", profile.Grouping.Milliseconds(),
			"profile.buildResponseMs", profile.BuildResponse.Milliseconds(),
			"profile.cacheWriteMs", profile.CacheWrite.Milliseconds(),
			"profile.totalMs", profile.Total.Milliseconds(),
		)
	}
	if status >= 500 {
		logger.Errorw("request completed", fields...)
	} else {
		logger.Infow("request completed", fields...)
	}
}
