// Package search orchestrates the full request pipeline: normalize →
// cache → query build → engine → catalog enrich → group → assemble.
package search

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/aditya/catalog-search-gateway/internal/apierror"
	"github.com/aditya/catalog-search-gateway/internal/model"
)

// RawSearchInput is the unvalidated shape parsed straight off HTTP
// query params, before normalization.
type RawSearchInput struct {
	Text             string
	CategoryID       string
	Brand            string
	PriceMin         *float64
	PriceMax         *float64
	AttributeFilters map[string]interface{} // string or []string values
	Limit            *int
	Cursor           string
}

// NormalizeSearchQuery validates and canonicalizes a raw input into a
// SearchQuery Validation failures are BadRequest
// before any external call is made.
func NormalizeSearchQuery(in RawSearchInput) (model.SearchQuery, error) {
	text := strings.TrimSpace(in.Text)
	if len(text) < 1 || len(text) > 200 {
		return model.SearchQuery{}, apierror.New(apierror.CodeBadRequest, "q must be between 1 and 200 characters")
	}

	limit := 20
	if in.Limit != nil {
		limit = *in.Limit
	}
	if limit < 1 || limit > 100 {
		return model.SearchQuery{}, apierror.New(apierror.CodeBadRequest, "limit must be between 1 and 100")
	}

	if in.PriceMin != nil && *in.PriceMin < 0 {
		return model.SearchQuery{}, apierror.New(apierror.CodeBadRequest, "priceRange.min must be >= 0")
	}
	if in.PriceMax != nil && *in.PriceMax < 0 {
		return model.SearchQuery{}, apierror.New(apierror.CodeBadRequest, "priceRange.max must be >= 0")
	}

	filters, err := normalizeAttributeFilters(in.AttributeFilters)
	if err != nil {
		return model.SearchQuery{}, err
	}

	return model.SearchQuery{
		Text:             text,
		CategoryID:       strings.TrimSpace(in.CategoryID),
		Brand:            strings.ToLower(strings.TrimSpace(in.Brand)),
		Price:            model.PriceRange{Min: in.PriceMin, Max: in.PriceMax},
		AttributeFilters: filters,
		Limit:            limit,
		Cursor:           in.Cursor,
	}, nil
}

// facetAllowList is the set of facet keys a request may ask for;
// anything else (besides the attributes.* prefix) is silently dropped.
var facetAllowList = map[string]bool{
	"brand":        true,
	"categoryId":   true,
	"categoryName": true,
	"priceFrom":    true,
}

// NormalizeFacetQuery validates filters the same way as
// NormalizeSearchQuery and applies the facet-key allow-list, dropping
// (not erroring on) invalid keys.
func NormalizeFacetQuery(in RawSearchInput, requestedFacetKeys []string) (model.FacetQuery, error) {
	sq, err := NormalizeSearchQuery(in)
	if err != nil {
		return model.FacetQuery{}, err
	}
	if len(requestedFacetKeys) == 0 {
		return model.FacetQuery{}, apierror.New(apierror.CodeBadRequest, "facetKeys must be non-empty")
	}

	var kept, dropped []string
	for _, k := range requestedFacetKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if facetAllowList[k] || strings.HasPrefix(k, "attributes.") {
			kept = append(kept, k)
		} else {
			dropped = append(dropped, k)
		}
	}

	return model.FacetQuery{
		Text:             sq.Text,
		CategoryID:       sq.CategoryID,
		Brand:            sq.Brand,
		Price:            sq.Price,
		AttributeFilters: sq.AttributeFilters,
		FacetKeys:        kept,
		DroppedKeys:      dropped,
	}, nil
}

func normalizeAttributeFilters(raw map[string]interface{}) (map[string]model.AttributeFilter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]model.AttributeFilter, len(raw))
	for key, v := range raw {
		switch val := v.(type) {
		case string:
			out[strings.ToLower(key)] = model.AttributeFilter{Values: []string{strings.ToLower(val)}}
		case []string:
			values := make([]string, len(val))
			for i, s := range val {
				values[i] = strings.ToLower(s)
			}
			sort.Strings(values)
			out[strings.ToLower(key)] = model.AttributeFilter{Values: values}
		case []interface{}:
			values := make([]string, 0, len(val))
			for _, item := range val {
				s, ok := item.(string)
				if !ok {
					return nil, apierror.New(apierror.CodeBadRequest, "attribute filter values must be strings")
				}
				values = append(values, strings.ToLower(s))
			}
			sort.Strings(values)
			out[strings.ToLower(key)] = model.AttributeFilter{Values: values}
		default:
			return nil, apierror.New(apierror.CodeBadRequest, "unsupported attribute filter value type")
		}
	}
	return out, nil
}

// CacheKey builds the canonical `<prefix>:<sorted k=json(v)|...>` cache
// key. Key construction is order-independent with respect to
// filter-map key order and multi-value set order, which is why
// normalization above sorts attribute values and this function sorts
// keys again defensively.
func CacheKey(prefix string, q model.SearchQuery) string {
	parts := canonicalParts(q.Text, q.CategoryID, q.Brand, q.Price, q.AttributeFilters, q.Limit)
	if q.Cursor != "" {
		parts = append(parts, "cursor="+q.Cursor)
	}
	return prefix + ":" + strings.Join(parts, "|")
}

// FacetCacheKey builds the canonical cache key for a FacetQuery,
// additionally folding in the sorted facet-key list.
func FacetCacheKey(prefix string, q model.FacetQuery) string {
	parts := canonicalParts(q.Text, q.CategoryID, q.Brand, q.Price, q.AttributeFilters, 0)
	keys := append([]string(nil), q.FacetKeys...)
	sort.Strings(keys)
	facetsJSON, _ := json.Marshal(keys)
	parts = append(parts, "facetKeys="+string(facetsJSON))
	return prefix + ":" + strings.Join(parts, "|")
}

func canonicalParts(text, categoryID, brand string, price model.PriceRange, filters map[string]model.AttributeFilter, limit int) []string {
	parts := []string{"q=" + jsonOf(text)}
	if categoryID != "" {
		parts = append(parts, "categoryId="+jsonOf(categoryID))
	}
	if brand != "" {
		parts = append(parts, "brand="+jsonOf(brand))
	}
	if price.Min != nil || price.Max != nil {
		parts = append(parts, "priceRange="+jsonOf(price))
	}
	if limit > 0 {
		parts = append(parts, "limit="+jsonOf(limit))
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := append([]string(nil), filters[k].Values...)
		sort.Strings(values)
		parts = append(parts, "attributes."+k+"="+jsonOf(values))
	}
	return parts
}

func jsonOf(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
