// Command seed populates a dev search index and relational catalog
// with a synthetic corpus of variant documents, grouped into
// multi-variant products with offers, so the grouping and facet
// pipelines have something real to run against locally.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	_ "github.com/lib/pq"

	"github.com/aditya/catalog-search-gateway/internal/config"
	"github.com/aditya/catalog-search-gateway/internal/model"
	"github.com/aditya/catalog-search-gateway/internal/searchengine"
)

const variantCount = 300

func main() {
	cfg := config.Load()

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{cfg.OpenSearchNode}})
	if err != nil {
		log.Fatalf("creating search engine client: %v", err)
	}
	engine := searchengine.New(es, cfg.OpenSearchIndexVariants)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("opening catalog database: %v", err)
	}
	defer db.Close()

	if err := ensureSchema(db); err != nil {
		log.Fatalf("ensuring catalog schema: %v", err)
	}

	ctx := context.Background()
	created := 0
	for i := 0; i < variantCount; i++ {
		doc := randomVariant(i)

		if err := engine.IndexDocument(ctx, doc.VariantID, doc); err != nil {
			log.Printf("indexing variant %s: %v", doc.VariantID, err)
			continue
		}
		if err := insertVariantOption(ctx, db, doc); err != nil {
			log.Printf("inserting variant option %s: %v", doc.VariantID, err)
			continue
		}
		created++
	}

	log.Printf("seed complete: created %d/%d variants", created, variantCount)
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS product_variants (
	variant_id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	attributes JSONB NOT NULL DEFAULT '{}',
	image_url TEXT NOT NULL DEFAULT ''
)`)
	return err
}

func insertVariantOption(ctx context.Context, db *sql.DB, doc model.VariantDocument) error {
	attrs, err := json.Marshal(doc.Attributes)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
INSERT INTO product_variants (variant_id, product_id, attributes, image_url)
VALUES ($1, $2, $3, $4)
ON CONFLICT (variant_id) DO UPDATE SET attributes = EXCLUDED.attributes, image_url = EXCLUDED.image_url
`, doc.VariantID, doc.ProductID, attrs, doc.ImageURL)
	return err
}

var (
	adjectives = []string{"Ultra", "Pro", "Gaming", "Smart", "Portable", "Compact", "Premium", "Eco", "Wireless", "Classic", "Advanced", "Budget", "Rugged", "Lightweight"}
	nouns      = []string{"Laptop", "Headphones", "Keyboard", "Mouse", "Monitor", "Phone", "Tablet", "Camera", "Speaker", "Router", "Backpack", "Chair", "Desk", "Microphone"}
	categories = []struct{ id, name string }{
		{"electronics", "Electronics"},
		{"accessories", "Accessories"},
		{"office", "Office"},
		{"audio", "Audio"},
		{"gaming", "Gaming"},
	}
	brands  = []string{"Acme", "Northwind", "Vandelay", "Initech", "Globex", "Umbrella"}
	colors  = []string{"black", "white", "silver", "blue", "red"}
	sizes   = []string{"s", "m", "l", "xl"}
	sellers = []string{"Warehouse Direct", "Market Partners", "Prime Supply Co", "Unknown"}
)

// randomVariant builds one synthetic VariantDocument, grouping by a
// product every third index so the grouper has real multi-variant
// products to collapse in the dev corpus.
func randomVariant(i int) model.VariantDocument {
	productIdx := i / 3
	productID := fmt.Sprintf("prod-%04d", productIdx)
	variantID := fmt.Sprintf("var-%04d-%d", productIdx, i%3)

	adjective := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	name := fmt.Sprintf("%s %s", adjective, noun)
	category := categories[rand.Intn(len(categories))]
	brand := brands[rand.Intn(len(brands))]

	price := randomPrice(19.99, 1499.99)
	stock := rand.Intn(200)
	sales := rand.Intn(500)

	attributes := map[string]string{
		"color": colors[rand.Intn(len(colors))],
		"size":  sizes[rand.Intn(len(sizes))],
	}

	offerCount := 1 + rand.Intn(3)
	offers := make([]model.Offer, 0, offerCount)
	for o := 0; o < offerCount; o++ {
		offerPrice := price * (0.9 + rand.Float64()*0.2)
		offers = append(offers, model.Offer{
			OfferID:        fmt.Sprintf("%s-offer-%d", variantID, o),
			SupplierID:     fmt.Sprintf("supplier-%d", rand.Intn(20)),
			SupplierName:   sellers[rand.Intn(len(sellers))],
			SupplierRating: 3.0 + rand.Float64()*2.0,
			Price:          round2(offerPrice),
			Stock:          rand.Intn(100),
		})
	}

	now := time.Now()
	return model.VariantDocument{
		VariantID:          variantID,
		ProductID:          productID,
		SKU:                fmt.Sprintf("SKU-%06d", i),
		ProductName:        name,
		ProductDescription: fmt.Sprintf("%s designed for %s use with premium build quality.", name, category.name),
		Brand:              brand,
		CategoryName:       category.name,
		CategoryID:         category.id,
		Attributes:         attributes,
		ImageURL:           fmt.Sprintf("https://cdn.example.com/images/%s.jpg", variantID),
		PriceFrom:          round2(price),
		TotalStock:         stock,
		Sales30d:           sales,
		Offers:             offers,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func randomPrice(min, max float64) float64 {
	return round2(min + rand.Float64()*(max-min))
}

func round2(v float64) float64 {
	return float64(int(v*100)) / 100
}
