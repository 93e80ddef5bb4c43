// Command gateway boots the catalog search gateway HTTP server: it
// wires configuration, the search engine and relational clients,
// the response cache, rate limiter, circuit breakers, and the gin
// router, then serves until signaled to shut down.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aditya/catalog-search-gateway/internal/breaker"
	"github.com/aditya/catalog-search-gateway/internal/cache"
	"github.com/aditya/catalog-search-gateway/internal/catalog"
	"github.com/aditya/catalog-search-gateway/internal/config"
	"github.com/aditya/catalog-search-gateway/internal/httpapi"
	"github.com/aditya/catalog-search-gateway/internal/logging"
	"github.com/aditya/catalog-search-gateway/internal/metrics"
	"github.com/aditya/catalog-search-gateway/internal/querybuilder"
	"github.com/aditya/catalog-search-gateway/internal/ratelimit"
	"github.com/aditya/catalog-search-gateway/internal/search"
	"github.com/aditya/catalog-search-gateway/internal/searchengine"
)

func main() {
	cfg := config.Load()
	logger := logging.New()
	defer logger.Sync()

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.OpenSearchNode},
	})
	if err != nil {
		logger.Fatalw("creating search engine client", "error", err)
	}
	engine := searchengine.New(esClient, cfg.OpenSearchIndexVariants)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalw("opening catalog database", "error", err)
	}
	defer db.Close()
	db.SetConnMaxLifetime(cfg.TimeoutDatabase)
	enricher := catalog.New(db)

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()
	respCache := cache.New(rdb)
	limiter := ratelimit.New(rdb, cfg.ThrottleLimit, cfg.ThrottleTTL)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	breakerCfg := breaker.Config{
		ErrorThreshold: cfg.CircuitErrorThreshold,
		MinVolume:      cfg.CircuitVolumeThreshold,
		Window:         10 * time.Second,
		Buckets:        10,
		ResetTimeout:   cfg.CircuitResetTimeout,
	}
	onStateChange := func(name string, from, to breaker.State) {
		logger.Infow("circuit breaker transition", "breaker", name, "from", from.String(), "to", to.String())
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.Open {
			m.BreakerFailures.WithLabelValues(name).Inc()
		}
	}
	engineBreaker := breaker.New("engine-search", breakerCfg, onStateChange)
	catalogBreaker := breaker.New("catalog-variants", breakerCfg, onStateChange)

	pipeline := search.New(search.Deps{
		Engine:         engine,
		Catalog:        enricher,
		Cache:          respCache,
		Logger:         logger,
		Metrics:        m,
		EngineBreaker:  engineBreaker,
		CatalogBreaker: catalogBreaker,
		SalesBoost: querybuilder.SalesBoost{
			Modifier: cfg.SearchSalesBoostModifier,
			Factor:   cfg.SearchSalesBoostFactor,
			Missing:  1,
		},
		CacheTTLSearch: cfg.CacheTTLSearch,
		CacheTTLFacets: cfg.CacheTTLFacets,

		TimeoutRequest: cfg.TimeoutRequest,
		TimeoutEngine:  cfg.TimeoutOpenSearch,
		TimeoutCatalog: cfg.TimeoutDatabase,
	})

	handlers := &httpapi.Handlers{
		Pipeline:       pipeline,
		EngineBreaker:  engineBreaker,
		CatalogBreaker: catalogBreaker,
		Ping:           pinger{es: esClient, db: db, cache: respCache, index: cfg.OpenSearchIndexVariants},
	}

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	router := httpapi.NewRouter(cfg.APIPrefix, handlers, limiter, logger, metricsHandler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutRequest,
		WriteTimeout: cfg.TimeoutRequest,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infow("gateway listening", "port", cfg.Port, "apiPrefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Infow("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	}
}

// pinger implements httpapi.HealthPinger against the live engine,
// relational, and cache clients: a single lightweight call to each.
type pinger struct {
	es    *elasticsearch.Client
	db    *sql.DB
	cache *cache.Cache
	index string
}

func (p pinger) PingEngine(c *gin.Context) error {
	res, err := p.es.Indices.Exists([]string{p.index}, p.es.Indices.Exists.WithContext(c.Request.Context()))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 500 {
		return fmt.Errorf("search engine ping failed: status %d", res.StatusCode)
	}
	return nil
}

func (p pinger) PingCatalog(c *gin.Context) error {
	return p.db.PingContext(c.Request.Context())
}

func (p pinger) PingCache(c *gin.Context) error {
	return p.cache.Ping(c.Request.Context())
}
