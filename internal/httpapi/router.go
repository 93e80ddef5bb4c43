package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aditya/catalog-search-gateway/internal/ratelimit"
)

// NewRouter builds the gin engine with a `/<apiPrefix>` route group
// holding the `/search` family, plus health, metrics, and middleware.
// metricsHandler serves the same registry the gateway's instruments
// were registered against, not the global default one.
func NewRouter(apiPrefix string, handlers *Handlers, limiter *ratelimit.Limiter, logger *zap.SugaredLogger, metricsHandler http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(logger), CorrelationID(), RequestLogger(logger))

	router.GET("/health", handlers.Health)
	router.GET("/health/live", handlers.Live)
	router.GET("/health/ready", handlers.Ready)
	router.GET("/metrics", gin.WrapH(metricsHandler))

	v1 := router.Group(apiPrefix)
	v1.Use(RateLimit(limiter))
	{
		v1.GET("/search", handlers.Search)
		v1.GET("/search/facets", handlers.SearchFacets)
	}

	return router
}
