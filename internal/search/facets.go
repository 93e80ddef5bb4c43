package search

import (
	"encoding/json"
	"fmt"

	"github.com/aditya/catalog-search-gateway/internal/model"
	"github.com/aditya/catalog-search-gateway/internal/querybuilder"
)

type termsAggregation struct {
	Buckets []struct {
		Key      string `json:"key"`
		DocCount int64  `json:"doc_count"`
	} `json:"buckets"`
}

type rangeAggregation struct {
	Buckets []struct {
		Key      string   `json:"key"`
		From     *float64 `json:"from"`
		To       *float64 `json:"to"`
		DocCount int64    `json:"doc_count"`
	} `json:"buckets"`
}

type aggregationsEnvelope struct {
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

func facetDisplayName(key string) string {
	switch key {
	case "categoryId":
		return "Category"
	case "categoryName":
		return "Category"
	case "priceFrom":
		return "Price"
	default:
		return key
	}
}

// parseFacets decodes the engine's raw aggregations response into the
// Facet envelope shape, in the order facetKeys were requested.
func parseFacets(raw json.RawMessage, facetKeys []string) ([]model.Facet, error) {
	var env aggregationsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding aggregations envelope: %w", err)
	}

	facets := make([]model.Facet, 0, len(facetKeys))
	priceLabels := querybuilder.PriceBucketLabels()

	for _, key := range facetKeys {
		aggRaw, ok := env.Aggregations[key]
		if !ok {
			continue
		}

		if key == "priceFrom" {
			var agg rangeAggregation
			if err := json.Unmarshal(aggRaw, &agg); err != nil {
				return nil, fmt.Errorf("decoding range aggregation %q: %w", key, err)
			}
			ranges := make([]model.FacetRange, 0, len(agg.Buckets))
			for i, b := range agg.Buckets {
				label := b.Key
				if i < len(priceLabels) {
					label = priceLabels[i]
				}
				ranges = append(ranges, model.FacetRange{
					From:  b.From,
					To:    b.To,
					Count: b.DocCount,
					Label: label,
				})
			}
			facets = append(facets, model.Facet{
				Key:    key,
				Name:   facetDisplayName(key),
				Type:   "range",
				Ranges: ranges,
			})
			continue
		}

		var agg termsAggregation
		if err := json.Unmarshal(aggRaw, &agg); err != nil {
			return nil, fmt.Errorf("decoding terms aggregation %q: %w", key, err)
		}
		buckets := make([]model.FacetBucket, 0, len(agg.Buckets))
		for _, b := range agg.Buckets {
			buckets = append(buckets, model.FacetBucket{Value: b.Key, Count: b.DocCount})
		}
		facets = append(facets, model.Facet{
			Key:     key,
			Name:    facetDisplayName(key),
			Type:    "terms",
			Buckets: buckets,
		})
	}

	return facets, nil
}
