// Package querybuilder translates a normalized SearchQuery/FacetQuery
// into the engine's DSL. Both shapes share the same filter-clause
// builder.
package querybuilder

import (
	"sort"

	"github.com/aditya/catalog-search-gateway/internal/cursor"
	"github.com/aditya/catalog-search-gateway/internal/model"
)

// textFields is the best-fields multi-field match target list, with
// field boosts baked in via the caret suffix the engine expects.
var textFields = []string{
	"productName^3",
	"productDescription",
	"brand^2",
	"categoryName",
	"sku",
	"attributes.*",
}

// SalesBoost configures the function-score sales ranking boost.
type SalesBoost struct {
	Modifier string // e.g. "log1p"
	Factor   float64
	Missing  float64
}

// DefaultSalesBoost returns the gateway's default sales-ranking boost.
func DefaultSalesBoost() SalesBoost {
	return SalesBoost{Modifier: "log1p", Factor: 1.2, Missing: 1}
}

// BuildSearch constructs the full search DSL: text clause + filters,
// wrapped in a function-score sales boost, sorted by (_score DESC,
// productId ASC), with search_after fed from a decoded cursor.
func BuildSearch(q model.SearchQuery, boost SalesBoost) map[string]interface{} {
	body := map[string]interface{}{
		"query": functionScoreQuery(boolQuery(q.Text, filterClauses(q.CategoryID, q.Brand, q.Price, q.AttributeFilters)), boost),
		"size":  q.Limit,
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"productId": map[string]interface{}{"order": "asc"}},
		},
	}
	if sortValues := cursor.DecodeOrNil(q.Cursor); len(sortValues) > 0 {
		body["search_after"] = sortValues
	}
	return body
}

// BuildFacets constructs the size:0 search + filters + aggregations
// DSL for the facet pipeline.
func BuildFacets(q model.FacetQuery) map[string]interface{} {
	body := map[string]interface{}{
		"query": boolQuery(q.Text, filterClauses(q.CategoryID, q.Brand, q.Price, q.AttributeFilters)),
		"size":  0,
	}
	if len(q.FacetKeys) > 0 {
		body["aggs"] = buildAggregations(q.FacetKeys)
	}
	return body
}

func boolQuery(text string, filters []map[string]interface{}) map[string]interface{} {
	must := []map[string]interface{}{}
	if text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":         text,
				"fields":        textFields,
				"type":          "best_fields",
				"fuzziness":     "AUTO",
				"prefix_length": 2,
			},
		})
	} else {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"must":   must,
			"filter": filters,
		},
	}
}

// filterClauses builds the exact-term/range/attribute filter clauses.
// Filters never affect score (they always live in bool.filter).
func filterClauses(categoryID, brand string, price model.PriceRange, attrs map[string]model.AttributeFilter) []map[string]interface{} {
	var clauses []map[string]interface{}

	if categoryID != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"categoryId": categoryID},
		})
	}
	if brand != "" {
		clauses = append(clauses, map[string]interface{}{
			"term": map[string]interface{}{"brand": brand},
		})
	}
	if price.Min != nil || price.Max != nil {
		rangeClause := map[string]interface{}{}
		if price.Min != nil {
			rangeClause["gte"] = *price.Min
		}
		if price.Max != nil {
			rangeClause["lte"] = *price.Max
		}
		clauses = append(clauses, map[string]interface{}{
			"range": map[string]interface{}{"priceFrom": rangeClause},
		})
	}

	// Deterministic clause order for attribute filters keeps generated
	// DSL (and therefore tests asserting on it) stable across runs.
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		field := "attributes." + key + ".keyword"
		values := attrs[key].Values
		if len(values) == 1 {
			clauses = append(clauses, map[string]interface{}{
				"term": map[string]interface{}{field: values[0]},
			})
		} else {
			clauses = append(clauses, map[string]interface{}{
				"terms": map[string]interface{}{field: values},
			})
		}
	}

	return clauses
}

// functionScoreQuery wraps query in the sales-boost function score,
// score_mode=multiply, boost_mode=multiply.
func functionScoreQuery(query map[string]interface{}, boost SalesBoost) map[string]interface{} {
	return map[string]interface{}{
		"function_score": map[string]interface{}{
			"query": query,
			"functions": []map[string]interface{}{
				{
					"field_value_factor": map[string]interface{}{
						"field":    "sales30d",
						"modifier": boost.Modifier,
						"factor":   boost.Factor,
						"missing":  boost.Missing,
					},
				},
			},
			"score_mode": "multiply",
			"boost_mode": "multiply",
		},
	}
}

// priceBucketBoundaries are the fixed range-facet buckets:
// (-inf,25), [25,50), [50,100), [100,200), [200,inf).
var priceBucketBoundaries = []struct {
	from  *float64
	to    *float64
	label string
}{
	{nil, f(25), "Under $25"},
	{f(25), f(50), "$25 to $50"},
	{f(50), f(100), "$50 to $100"},
	{f(100), f(200), "$100 to $200"},
	{f(200), nil, "$200 and up"},
}

func f(v float64) *float64 { return &v }

func buildAggregations(facetKeys []string) map[string]interface{} {
	aggs := make(map[string]interface{}, len(facetKeys))
	for _, key := range facetKeys {
		if key == "priceFrom" {
			ranges := make([]map[string]interface{}, 0, len(priceBucketBoundaries))
			for _, b := range priceBucketBoundaries {
				r := map[string]interface{}{"key": b.label}
				if b.from != nil {
					r["from"] = *b.from
				}
				if b.to != nil {
					r["to"] = *b.to
				}
				ranges = append(ranges, r)
			}
			aggs[key] = map[string]interface{}{
				"range": map[string]interface{}{
					"field":  "priceFrom",
					"ranges": ranges,
				},
			}
			continue
		}

		field := termsField(key)
		aggs[key] = map[string]interface{}{
			"terms": map[string]interface{}{
				"field": field,
				"size":  50,
				"order": map[string]interface{}{"_count": "desc"},
			},
		}
	}
	return aggs
}

func termsField(key string) string {
	switch key {
	case "brand":
		return "brand.keyword"
	case "categoryId":
		return "categoryId"
	case "categoryName":
		return "categoryName.keyword"
	default:
		// attributes.* keys target the keyword sub-field.
		return key + ".keyword"
	}
}

// PriceBucketLabels exposes the fixed bucket labels, in bucket order, so the
// facet-response assembler can pair engine counts back to labels
// without re-deriving them.
func PriceBucketLabels() []string {
	labels := make([]string, 0, len(priceBucketBoundaries))
	for _, b := range priceBucketBoundaries {
		labels = append(labels, b.label)
	}
	return labels
}
