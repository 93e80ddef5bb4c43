// Package grouping implements variant→product grouping, buy-box
// selection, and next-page cursor derivation.
package grouping

import (
	"sort"

	"github.com/aditya/catalog-search-gateway/internal/cursor"
	"github.com/aditya/catalog-search-gateway/internal/model"
)

type productGroup struct {
	productID    string
	name         string
	description  string
	brand        string
	categoryID   string
	categoryName string
	maxScore     float64
	hits         []model.VariantHit
}

// Group walks the ordered hits once, accumulates per-product groups,
// and returns the page of ProductResults sorted by score DESC, plus
// the nextCursor derived from the last raw hit (not the last
// ProductResult, since continuation lives in variant-sort space).
func Group(hits []model.VariantHit, variantOptions map[string][]model.VariantOption, limit int) (results []model.ProductResult, nextCursor *string) {
	order := []string{}
	groups := map[string]*productGroup{}

	for _, hit := range hits {
		pid := hit.Document.ProductID
		g, ok := groups[pid]
		if !ok {
			g = &productGroup{
				productID:    pid,
				name:         hit.Document.ProductName,
				description:  hit.Document.ProductDescription,
				brand:        hit.Document.Brand,
				categoryID:   hit.Document.CategoryID,
				categoryName: hit.Document.CategoryName,
			}
			groups[pid] = g
			order = append(order, pid)
		}
		if hit.Score > g.maxScore {
			g.maxScore = hit.Score
		}
		g.hits = append(g.hits, hit)
	}

	results = make([]model.ProductResult, 0, len(order))
	for _, pid := range order {
		g := groups[pid]
		matched := selectMatchedVariant(g.hits)
		offerCount := 0
		for _, h := range g.hits {
			offerCount += len(h.Document.Offers)
		}

		options, ok := variantOptions[pid]
		if !ok || len(options) == 0 {
			options = optionsFromHits(g.hits)
		}

		results = append(results, model.ProductResult{
			ProductID:      pid,
			Name:           g.name,
			Description:    g.description,
			Brand:          g.brand,
			CategoryID:     g.categoryID,
			CategoryName:   g.categoryName,
			MatchedVariant: matched.Document,
			BestOffer:      selectBuyBox(matched.Document),
			VariantOptions: options,
			OfferCount:     offerCount,
			Score:          g.maxScore,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ProductID < results[j].ProductID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	if len(hits) == limit {
		if last := hits[len(hits)-1]; len(last.SortValues) > 0 {
			if token, err := cursor.Encode(last.SortValues); err == nil {
				nextCursor = &token
			}
		}
	}

	return results, nextCursor
}

// selectMatchedVariant picks the hit with the highest score within a
// group, tie-breaking by lower priceFrom.
func selectMatchedVariant(hits []model.VariantHit) model.VariantHit {
	best := hits[0]
	for _, h := range hits[1:] {
		if h.Score > best.Score {
			best = h
			continue
		}
		if h.Score == best.Score && h.Document.PriceFrom < best.Document.PriceFrom {
			best = h
		}
	}
	return best
}

// selectBuyBox picks the lowest-priced in-stock offer; falls back to
// the lowest-priced offer of any stock level; falls back to a
// placeholder offer when the variant has no offers at all.
func selectBuyBox(variant model.VariantDocument) model.Offer {
	if len(variant.Offers) == 0 {
		return model.Offer{
			OfferID:      "",
			SupplierID:   "",
			SupplierName: "Unknown",
			Price:        variant.PriceFrom,
			Stock:        0,
		}
	}

	var bestInStock, bestAny *model.Offer
	for i := range variant.Offers {
		o := &variant.Offers[i]
		if bestAny == nil || o.Price < bestAny.Price {
			bestAny = o
		}
		if o.Stock > 0 && (bestInStock == nil || o.Price < bestInStock.Price) {
			bestInStock = o
		}
	}
	if bestInStock != nil {
		return *bestInStock
	}
	return *bestAny
}

// optionsFromHits extracts the fallback variant options directly from
// the engine hits when the relational enricher returned nothing for
// this product (relational outage, or a product with no DB rows yet).
func optionsFromHits(hits []model.VariantHit) []model.VariantOption {
	options := make([]model.VariantOption, 0, len(hits))
	for _, h := range hits {
		options = append(options, model.VariantOption{
			VariantID:  h.Document.VariantID,
			ProductID:  h.Document.ProductID,
			Attributes: h.Document.Attributes,
			ImageURL:   h.Document.ImageURL,
		})
	}
	return options
}
