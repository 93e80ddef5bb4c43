// Package catalog performs a batched relational variant lookup: given
// a page's productIds, fetch every variant of those products in one
// query.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/aditya/catalog-search-gateway/internal/model"
)

// Enricher batches variant-option lookups against the relational
// catalog store using plain database/sql + lib/pq (no ORM, $N
// placeholders, pq.Array for set membership).
type Enricher struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB. The connection pool is a
// process singleton.
func New(db *sql.DB) *Enricher {
	return &Enricher{db: db}
}

const variantOptionsQuery = `
SELECT variant_id, product_id, attributes, image_url
FROM product_variants
WHERE product_id = ANY($1)
`

// VariantOptions returns, for each productId in productIDs, every
// variant of that product projected to (variantId, productId,
// attributes, imageUrl). Missing productIds simply have no entry in
// the returned map — the caller (the grouper) falls back to hits.
func (e *Enricher) VariantOptions(ctx context.Context, productIDs []string) (map[string][]model.VariantOption, error) {
	if len(productIDs) == 0 {
		return map[string][]model.VariantOption{}, nil
	}

	rows, err := e.db.QueryContext(ctx, variantOptionsQuery, pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("querying variant options: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.VariantOption)
	for rows.Next() {
		var (
			opt         model.VariantOption
			attributesJ []byte
		)
		if err := rows.Scan(&opt.VariantID, &opt.ProductID, &attributesJ, &opt.ImageURL); err != nil {
			return nil, fmt.Errorf("scanning variant option: %w", err)
		}
		if len(attributesJ) > 0 {
			if err := json.Unmarshal(attributesJ, &opt.Attributes); err != nil {
				return nil, fmt.Errorf("decoding variant attributes: %w", err)
			}
		}
		out[opt.ProductID] = append(out[opt.ProductID], opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating variant options: %w", err)
	}
	return out, nil
}
