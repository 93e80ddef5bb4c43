package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRawSearcher struct {
	responses map[string]json.RawMessage // keyed by a marker found in the request body
	err       error
}

func (f *fakeRawSearcher) RawSearch(ctx context.Context, body map[string]interface{}) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, isSuggest := body["suggest"]; isSuggest {
		return f.responses["phrase"], nil
	}
	return f.responses["agg"], nil
}

func TestSuggest_CombinesPhraseAndAggregationStrategies(t *testing.T) {
	fake := &fakeRawSearcher{responses: map[string]json.RawMessage{
		"phrase": json.RawMessage(`{
			"suggest": {
				"phrase-suggest": [
					{"options": [{"text": "sneaker", "score": 0.9, "freq": 40}]}
				]
			}
		}`),
		"agg": json.RawMessage(`{
			"aggregations": {
				"top_brands": {"buckets": [{"key": "Nike", "doc_count": 50}]},
				"top_categories": {"buckets": [{"key": "Shoes", "doc_count": 80}]}
			}
		}`),
	}}

	out := Suggest(context.Background(), fake, "sneakrs")

	require.NotEmpty(t, out)
	var terms []string
	for _, s := range out {
		terms = append(terms, s.Term)
	}
	assert.Contains(t, terms, "sneaker")
	assert.Contains(t, terms, "sneakrs nike")
	assert.Contains(t, terms, "Shoes")
}

func TestSuggest_CapsAtFiveEntries(t *testing.T) {
	fake := &fakeRawSearcher{responses: map[string]json.RawMessage{
		"phrase": json.RawMessage(`{
			"suggest": {"phrase-suggest": [{"options": [
				{"text": "a", "freq": 1}, {"text": "b", "freq": 1}, {"text": "c", "freq": 1}
			]}]}
		}`),
		"agg": json.RawMessage(`{
			"aggregations": {
				"top_brands": {"buckets": [{"key": "d", "doc_count": 1}, {"key": "e", "doc_count": 1}]},
				"top_categories": {"buckets": [{"key": "f", "doc_count": 1}, {"key": "g", "doc_count": 1}]}
			}
		}`),
	}}

	out := Suggest(context.Background(), fake, "q")

	assert.LessOrEqual(t, len(out), maxSuggestions)
}

func TestSuggest_DeduplicatesCaseFolded(t *testing.T) {
	fake := &fakeRawSearcher{responses: map[string]json.RawMessage{
		"phrase": json.RawMessage(`{
			"suggest": {"phrase-suggest": [{"options": [{"text": "Sneaker", "freq": 1}]}]}
		}`),
		"agg": json.RawMessage(`{
			"aggregations": {
				"top_brands": {"buckets": []},
				"top_categories": {"buckets": [{"key": "sneaker", "doc_count": 1}]}
			}
		}`),
	}}

	out := Suggest(context.Background(), fake, "q")

	lower := map[string]int{}
	for _, s := range out {
		lower[lowerTerm(s.Term)]++
	}
	for term, count := range lower {
		assert.LessOrEqual(t, count, 1, "term %q must not appear more than once after case-folded dedupe", term)
	}
}

func lowerTerm(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func TestSuggest_EngineFailureYieldsEmptyNotError(t *testing.T) {
	fake := &fakeRawSearcher{err: errors.New("engine unreachable")}

	out := Suggest(context.Background(), fake, "q")

	assert.Empty(t, out)
}
