package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aditya/catalog-search-gateway/internal/apierror"
	"github.com/aditya/catalog-search-gateway/internal/breaker"
	"github.com/aditya/catalog-search-gateway/internal/search"
)

// Handlers holds the pipeline and health dependencies the route
// functions below close over.
type Handlers struct {
	Pipeline       *search.Pipeline
	EngineBreaker  *breaker.Breaker
	CatalogBreaker *breaker.Breaker
	Ping           HealthPinger
}

// HealthPinger abstracts a single ping per dependency (engine,
// relational, and cache connectivity) for the health endpoint.
type HealthPinger interface {
	PingEngine(c *gin.Context) error
	PingCatalog(c *gin.Context) error
	PingCache(c *gin.Context) error
}

// Search handles GET /search.
func (h *Handlers) Search(c *gin.Context) {
	in, err := parseRawSearchInput(c)
	if err != nil {
		writeError(c, err)
		return
	}

	q, err := search.NormalizeSearchQuery(in)
	if err != nil {
		writeError(c, err)
		return
	}

	correlationID := CorrelationIDFromContext(c)
	resp, profile, err := h.Pipeline.Search(c.Request.Context(), q, correlationID)
	c.Set("profile", profile)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SearchFacets handles GET /search/facets.
func (h *Handlers) SearchFacets(c *gin.Context) {
	in, err := parseRawSearchInput(c)
	if err != nil {
		writeError(c, err)
		return
	}

	facetKeys := splitNonEmpty(c.Query("facetKeys"), ",")

	fq, err := search.NormalizeFacetQuery(in, facetKeys)
	if err != nil {
		writeError(c, err)
		return
	}

	correlationID := CorrelationIDFromContext(c)
	resp, profile, err := h.Pipeline.Facets(c.Request.Context(), fq, correlationID)
	c.Set("profile", profile)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health: a component map, 503 if engine or
// catalog is unhealthy. Cache is reported but never trips the overall
// status — a Redis outage degrades to cache-miss behavior, it isn't a
// dependency failure (§7).
func (h *Handlers) Health(c *gin.Context) {
	engineErr := h.Ping.PingEngine(c)
	catalogErr := h.Ping.PingCatalog(c)
	cacheErr := h.Ping.PingCache(c)

	cacheStatus := "ok"
	if cacheErr != nil {
		cacheStatus = "degraded"
	}
	components := gin.H{
		"engine":  h.EngineBreaker.State().String(),
		"catalog": h.CatalogBreaker.State().String(),
		"cache":   cacheStatus,
	}

	healthy := engineErr == nil && catalogErr == nil &&
		h.EngineBreaker.State() != breaker.Open && h.CatalogBreaker.State() != breaker.Open

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, components)
}

// Live handles GET /health/live: always ok if the process is up.
func (h *Handlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready: 503 if engine or relational is
// down.
func (h *Handlers) Ready(c *gin.Context) {
	engineErr := h.Ping.PingEngine(c)
	catalogErr := h.Ping.PingCatalog(c)
	if engineErr != nil || catalogErr != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseRawSearchInput(c *gin.Context) (search.RawSearchInput, error) {
	in := search.RawSearchInput{
		Text:       c.Query("q"),
		CategoryID: c.Query("categoryId"),
		Brand:      c.Query("brand"),
		Cursor:     c.Query("cursor"),
	}

	if v := c.Query("priceRange[min]"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, apierror.New(apierror.CodeBadRequest, "priceRange[min] must be numeric")
		}
		in.PriceMin = &f
	}
	if v := c.Query("priceRange[max]"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, apierror.New(apierror.CodeBadRequest, "priceRange[max] must be numeric")
		}
		in.PriceMax = &f
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return in, apierror.New(apierror.CodeBadRequest, "limit must be an integer")
		}
		in.Limit = &n
	}

	if v := c.Query("filters"); v != "" {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return in, apierror.New(apierror.CodeBadRequest, "filters must be a JSON object")
		}
		in.AttributeFilters = parsed
	}

	return in, nil
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
