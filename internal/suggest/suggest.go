// Package suggest implements the zero-result suggestion pipeline: a
// phrase suggester plus an aggregation-based brand/category
// suggester, combined, deduplicated, and capped at 5.
package suggest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aditya/catalog-search-gateway/internal/model"
)

// RawSearcher is the minimal engine surface this pipeline needs; it
// is satisfied by *searchengine.Client. Kept as an interface here so
// suggestion logic can be tested without a live engine.
type RawSearcher interface {
	RawSearch(ctx context.Context, body map[string]interface{}) (json.RawMessage, error)
}

const maxSuggestions = 5

// Suggest runs the phrase and aggregation strategies and merges their
// output. Any failure in either strategy yields an empty slice for
// that strategy — never an error.
func Suggest(ctx context.Context, engine RawSearcher, originalText string) []model.Suggestion {
	phrase := phraseSuggestions(ctx, engine, originalText)
	brandCategory := aggregationSuggestions(ctx, engine, originalText)

	return merge(append(phrase, brandCategory...))
}

func phraseSuggestions(ctx context.Context, engine RawSearcher, text string) []model.Suggestion {
	body := map[string]interface{}{
		"suggest": map[string]interface{}{
			"text": text,
			"phrase-suggest": map[string]interface{}{
				"phrase": map[string]interface{}{
					"field": "productName",
					"size":  3,
					"gram_size": 2,
					"direct_generator": []map[string]interface{}{
						{
							"field":        "productName",
							"suggest_mode": "popular",
						},
					},
				},
			},
		},
	}

	raw, err := engine.RawSearch(ctx, body)
	if err != nil {
		return nil
	}

	var parsed struct {
		Suggest struct {
			PhraseSuggest []struct {
				Options []struct {
					Text  string  `json:"text"`
					Score float64 `json:"score"`
					Freq  int64   `json:"freq"`
				} `json:"options"`
			} `json:"phrase-suggest"`
		} `json:"suggest"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}

	var out []model.Suggestion
	for _, entry := range parsed.Suggest.PhraseSuggest {
		for _, opt := range entry.Options {
			freq := opt.Freq
			out = append(out, model.Suggestion{Term: opt.Text, EstimatedCount: &freq})
		}
	}
	return out
}

func aggregationSuggestions(ctx context.Context, engine RawSearcher, text string) []model.Suggestion {
	body := map[string]interface{}{
		"size": 0,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     text,
				"fields":    []string{"productName", "brand", "categoryName"},
				"fuzziness": "AUTO",
			},
		},
		"aggs": map[string]interface{}{
			"top_brands": map[string]interface{}{
				"terms": map[string]interface{}{"field": "brand.keyword", "size": 3},
			},
			"top_categories": map[string]interface{}{
				"terms": map[string]interface{}{"field": "categoryName.keyword", "size": 3},
			},
		},
	}

	raw, err := engine.RawSearch(ctx, body)
	if err != nil {
		return nil
	}

	var parsed struct {
		Aggregations struct {
			TopBrands struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"top_brands"`
			TopCategories struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"top_categories"`
		} `json:"aggregations"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}

	tokens := strings.Fields(strings.ToLower(text))
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	var out []model.Suggestion
	for _, b := range parsed.Aggregations.TopBrands.Buckets {
		// Brand suggestions union-merge the brand token into the
		// original query's tokens rather than replacing the query.
		merged := append(append([]string(nil), tokens...), strings.ToLower(b.Key))
		merged = dedupeTokens(merged)
		count := b.DocCount
		out = append(out, model.Suggestion{Term: strings.Join(merged, " "), EstimatedCount: &count})
	}
	for _, b := range parsed.Aggregations.TopCategories.Buckets {
		count := b.DocCount
		out = append(out, model.Suggestion{Term: b.Key, EstimatedCount: &count})
	}
	return out
}

func dedupeTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// merge case-folds and deduplicates suggestions by term, truncating
// to maxSuggestions.
func merge(in []model.Suggestion) []model.Suggestion {
	seen := make(map[string]bool, len(in))
	var out []model.Suggestion
	for _, s := range in {
		key := strings.ToLower(s.Term)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
