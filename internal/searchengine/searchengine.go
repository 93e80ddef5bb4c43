// Package searchengine wraps the go-elasticsearch client behind a
// thin adapter: Search/RawSearch, hits.total normalization, and a
// swallowed 404 on document delete. The adapter applies no circuit
// breaker itself: the search pipeline wraps its Search calls in the
// engine breaker, while the suggestion queries it sends through
// RawSearch are not breaker-guarded.
package searchengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Client is a thin repository-style adapter over the search engine,
// generalized from a single-index CRUD wrapper to a read-mostly
// search/raw-search façade.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// New wraps an already-constructed *elasticsearch.Client.
func New(es *elasticsearch.Client, index string) *Client {
	return &Client{es: es, index: index}
}

// Hit is one raw hit with its undecoded _source JSON, score, and sort
// values; the search pipeline decodes Source before grouping.
type Hit struct {
	Source     json.RawMessage
	Score      float64
	SortValues []interface{}
}

// Result is the structured outcome of a Search call.
type Result struct {
	TotalHits int
	Hits      []Hit
	Raw       json.RawMessage
}

// Search executes body against the configured index and normalizes
// hits.total (which the engine may report as a bare number or as
// {"value": N}) into a single integer.
func (c *Client) Search(ctx context.Context, body map[string]interface{}) (*Result, error) {
	raw, err := c.RawSearch(ctx, body)
	if err != nil {
		return nil, err
	}
	return parseResult(raw)
}

// RawSearch executes body and returns the unparsed response body,
// used by the suggestion pipeline's suggester queries which have a
// shape the structured Result doesn't model.
func (c *Client) RawSearch(ctx context.Context, body map[string]interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encoding search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("executing search: %w", err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("search engine error: %s", string(respBody))
	}
	return respBody, nil
}

// IndexDocument upserts a single variant document under documentID.
// Used only by the dev corpus seeder; the live API is read-only.
func (c *Client) IndexDocument(ctx context.Context, documentID string, body interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: documentID,
		Body:       &buf,
		Refresh:    "false",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("indexing document: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index error: %s", string(body))
	}
	return nil
}

// DeleteDocument removes a document by id, swallowing 404s — the
// only status code this adapter absorbs.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	req := esapi.DeleteRequest{
		Index:      c.index,
		DocumentID: documentID,
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("delete error: %s", string(body))
	}
	return nil
}

type rawResponse struct {
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []struct {
			Source json.RawMessage `json:"_source"`
			Score  float64         `json:"_score"`
			Sort   []interface{}   `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

func parseResult(raw json.RawMessage) (*Result, error) {
	var resp rawResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	total, err := normalizeTotal(resp.Hits.Total)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, Hit{Source: h.Source, Score: h.Score, SortValues: h.Sort})
	}

	return &Result{TotalHits: total, Hits: hits, Raw: raw}, nil
}

// normalizeTotal handles both wire shapes the engine may emit for
// hits.total: a bare number (older engines/configs) or an object
// {"value": N, "relation": "eq"}.
func normalizeTotal(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return int(asNumber), nil
	}

	var asObject struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil {
		return asObject.Value, nil
	}

	return 0, fmt.Errorf("unrecognized hits.total shape: %s", string(raw))
}
