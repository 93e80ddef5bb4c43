package search

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aditya/catalog-search-gateway/internal/apierror"
	"github.com/aditya/catalog-search-gateway/internal/breaker"
	"github.com/aditya/catalog-search-gateway/internal/cache"
	"github.com/aditya/catalog-search-gateway/internal/catalog"
	"github.com/aditya/catalog-search-gateway/internal/grouping"
	"github.com/aditya/catalog-search-gateway/internal/metrics"
	"github.com/aditya/catalog-search-gateway/internal/model"
	"github.com/aditya/catalog-search-gateway/internal/querybuilder"
	"github.com/aditya/catalog-search-gateway/internal/searchengine"
	"github.com/aditya/catalog-search-gateway/internal/suggest"
	"go.uber.org/zap"
)

// Engine is the subset of searchengine.Client the pipeline depends
// on, narrowed to an interface so tests can substitute a fake.
type Engine interface {
	Search(ctx context.Context, body map[string]interface{}) (*searchengine.Result, error)
	RawSearch(ctx context.Context, body map[string]interface{}) (json.RawMessage, error)
}

// Enricher is the subset of catalog.Enricher the pipeline depends on.
type Enricher interface {
	VariantOptions(ctx context.Context, productIDs []string) (map[string][]model.VariantOption, error)
}

// Deps bundles every collaborator the pipeline touches, one instance
// per process: engine/cache/relational pools are singletons.
type Deps struct {
	Engine  Engine
	Catalog Enricher
	Cache   *cache.Cache
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics

	EngineBreaker  *breaker.Breaker
	CatalogBreaker *breaker.Breaker

	SalesBoost     querybuilder.SalesBoost
	CacheTTLSearch time.Duration
	CacheTTLFacets time.Duration

	// TimeoutRequest bounds the whole pipeline run; TimeoutEngine and
	// TimeoutCatalog bound each individual dependency call, per §5 of
	// the gateway's deadline model.
	TimeoutRequest time.Duration
	TimeoutEngine  time.Duration
	TimeoutCatalog time.Duration
}

// Pipeline is the search orchestrator: normalize (done by the caller)
// → cache → query build → engine → catalog enrich → group → assemble
// → cache write.
type Pipeline struct {
	deps Deps
}

// New constructs a Pipeline over the given dependencies.
func New(deps Deps) *Pipeline {
	return &Pipeline{deps: deps}
}

// Search runs the full /search pipeline for an already-normalized
// query, returning the response envelope and the per-stage profile
// for the request-completion log.
func (p *Pipeline) Search(ctx context.Context, q model.SearchQuery, correlationID string) (*model.SearchResponse, *model.Profile, error) {
	if p.deps.TimeoutRequest > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deps.TimeoutRequest)
		defer cancel()
	}

	profile := &model.Profile{}
	start := time.Now()
	defer func() {
		profile.Total = time.Since(start)
		if p.deps.Metrics != nil {
			p.deps.Metrics.SearchLatency.Observe(profile.Total.Seconds())
		}
	}()

	key := CacheKey("search", q)

	cacheStart := time.Now()
	var cached model.SearchResponse
	if hit, _ := p.deps.Cache.Get(ctx, key, &cached); hit {
		profile.CacheCheck = time.Since(cacheStart)
		if p.deps.Metrics != nil {
			p.deps.Metrics.CacheHits.Inc()
		}
		cached.Meta.Timestamp = time.Now()
		cached.Meta.CorrelationID = correlationID
		return &cached, profile, nil
	}
	profile.CacheCheck = time.Since(cacheStart)
	if p.deps.Metrics != nil {
		p.deps.Metrics.CacheMisses.Inc()
	}

	// Concurrent misses on the same cache key collapse onto a single
	// execution of the fetch below; waiters receive the same response
	// the leader computed, rather than each re-querying the engine.
	shared, err, _ := p.deps.Cache.SingleFlight(key, func() (interface{}, error) {
		return p.fetchSearch(ctx, q, correlationID, key, start, profile)
	})
	if err != nil {
		return nil, profile, err
	}
	return shared.(*model.SearchResponse), profile, nil
}

func (p *Pipeline) fetchSearch(ctx context.Context, q model.SearchQuery, correlationID, key string, start time.Time, profile *model.Profile) (*model.SearchResponse, error) {
	body := querybuilder.BuildSearch(q, p.deps.SalesBoost)

	engineCtx, engineCancel := withTimeout(ctx, p.deps.TimeoutEngine)
	defer engineCancel()

	engineStart := time.Now()
	result, err := breaker.Execute(engineCtx, p.deps.EngineBreaker, func(ctx context.Context) (*searchengine.Result, error) {
		return p.deps.Engine.Search(ctx, body)
	})
	profile.Engine = time.Since(engineStart)
	if err != nil {
		return nil, engineUnavailable(err)
	}

	hits, err := decodeHits(result)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternalError, "decoding search hits", err)
	}

	productIDs := uniqueProductIDs(hits)

	catalogCtx, catalogCancel := withTimeout(ctx, p.deps.TimeoutCatalog)
	defer catalogCancel()

	catalogStart := time.Now()
	variantOptions := map[string][]model.VariantOption{}
	if len(productIDs) > 0 {
		opts, catalogErr := breaker.Execute(catalogCtx, p.deps.CatalogBreaker, func(ctx context.Context) (map[string][]model.VariantOption, error) {
			return p.deps.Catalog.VariantOptions(ctx, productIDs)
		})
		if catalogErr == nil {
			variantOptions = opts
		}
		// catalog failure degrades to an empty map rather than failing
		// the whole request; never surfaced to the caller.
	}
	profile.Catalog = time.Since(catalogStart)

	groupingStart := time.Now()
	products, nextCursor := grouping.Group(hits, variantOptions, q.Limit)
	profile.Grouping = time.Since(groupingStart)

	var suggestions []model.Suggestion
	if result.TotalHits == 0 {
		suggestions = suggest.Suggest(engineCtx, p.deps.Engine, q.Text)
		if len(suggestions) > 0 && p.deps.Metrics != nil {
			p.deps.Metrics.SuggestionsUsed.Inc()
		}
	}

	buildStart := time.Now()
	resp := &model.SearchResponse{
		Data: products,
		Meta: model.SearchMeta{
			Timestamp:     time.Now(),
			CorrelationID: correlationID,
			Pagination: model.Pagination{
				Total:      result.TotalHits,
				Count:      len(products),
				NextCursor: nextCursor,
			},
			Took: time.Since(start).Milliseconds(),
		},
		Suggestions: suggestions,
	}
	profile.BuildResponse = time.Since(buildStart)

	cacheWriteStart := time.Now()
	_ = p.deps.Cache.Set(context.WithoutCancel(ctx), key, resp, p.deps.CacheTTLSearch)
	profile.CacheWrite = time.Since(cacheWriteStart)

	return resp, nil
}

// Facets runs the facet-aggregation variant of the query: same text +
// filters, size=0, aggregations instead of hits.
func (p *Pipeline) Facets(ctx context.Context, q model.FacetQuery, correlationID string) (*model.FacetsResponse, *model.Profile, error) {
	if p.deps.TimeoutRequest > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deps.TimeoutRequest)
		defer cancel()
	}

	profile := &model.Profile{}
	start := time.Now()
	defer func() {
		profile.Total = time.Since(start)
		if p.deps.Metrics != nil {
			p.deps.Metrics.FacetLatency.Observe(profile.Total.Seconds())
		}
	}()

	key := FacetCacheKey("facets", q)

	cacheStart := time.Now()
	var cached model.FacetsResponse
	if hit, _ := p.deps.Cache.Get(ctx, key, &cached); hit {
		profile.CacheCheck = time.Since(cacheStart)
		if p.deps.Metrics != nil {
			p.deps.Metrics.CacheHits.Inc()
		}
		cached.Meta.Timestamp = time.Now()
		cached.Meta.CorrelationID = correlationID
		return &cached, profile, nil
	}
	profile.CacheCheck = time.Since(cacheStart)
	if p.deps.Metrics != nil {
		p.deps.Metrics.CacheMisses.Inc()
	}

	shared, err, _ := p.deps.Cache.SingleFlight(key, func() (interface{}, error) {
		return p.fetchFacets(ctx, q, correlationID, key, start, profile)
	})
	if err != nil {
		return nil, profile, err
	}
	return shared.(*model.FacetsResponse), profile, nil
}

func (p *Pipeline) fetchFacets(ctx context.Context, q model.FacetQuery, correlationID, key string, start time.Time, profile *model.Profile) (*model.FacetsResponse, error) {
	if len(q.DroppedKeys) > 0 && p.deps.Logger != nil {
		p.deps.Logger.Warnw("dropped unknown facet keys", "droppedKeys", q.DroppedKeys, "correlationId", correlationID)
	}

	body := querybuilder.BuildFacets(q)

	engineCtx, engineCancel := withTimeout(ctx, p.deps.TimeoutEngine)
	defer engineCancel()

	engineStart := time.Now()
	result, err := breaker.Execute(engineCtx, p.deps.EngineBreaker, func(ctx context.Context) (*searchengine.Result, error) {
		return p.deps.Engine.Search(ctx, body)
	})
	profile.Engine = time.Since(engineStart)
	if err != nil {
		return nil, engineUnavailable(err)
	}

	facets, err := parseFacets(result.Raw, q.FacetKeys)
	if err != nil {
		return nil, apierror.Wrap(apierror.CodeInternalError, "decoding aggregations", err)
	}

	resp := &model.FacetsResponse{
		Data: facets,
		Meta: model.FacetsMeta{
			Timestamp:     time.Now(),
			CorrelationID: correlationID,
			TotalMatches:  result.TotalHits,
			Took:          time.Since(start).Milliseconds(),
		},
	}

	cacheWriteStart := time.Now()
	_ = p.deps.Cache.Set(context.WithoutCancel(ctx), key, resp, p.deps.CacheTTLFacets)
	profile.CacheWrite = time.Since(cacheWriteStart)

	return resp, nil
}

func engineUnavailable(err error) error {
	if err == breaker.ErrOpen {
		return apierror.Wrap(apierror.CodeServiceUnavailable, "search engine unavailable", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.Wrap(apierror.CodeGatewayTimeout, "search engine timed out", err)
	}
	return apierror.Wrap(apierror.CodeServiceUnavailable, "search engine error", err)
}

// withTimeout derives a bounded child context when timeout is
// positive, otherwise returns ctx unchanged with a no-op cancel so
// callers can always `defer cancel()` unconditionally.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func decodeHits(result *searchengine.Result) ([]model.VariantHit, error) {
	hits := make([]model.VariantHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		var doc model.VariantDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, err
		}
		hits = append(hits, model.VariantHit{Document: doc, Score: h.Score, SortValues: h.SortValues})
	}
	return hits, nil
}

func uniqueProductIDs(hits []model.VariantHit) []string {
	seen := make(map[string]bool, len(hits))
	var ids []string
	for _, h := range hits {
		if seen[h.Document.ProductID] {
			continue
		}
		seen[h.Document.ProductID] = true
		ids = append(ids, h.Document.ProductID)
	}
	return ids
}
