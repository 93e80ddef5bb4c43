package querybuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aditya/catalog-search-gateway/internal/cursor"
	"github.com/aditya/catalog-search-gateway/internal/model"
)

func TestBuildSearch_SortIsStrictlyTotal(t *testing.T) {
	// Given: any search query
	q := model.SearchQuery{Text: "shirt", Limit: 20}

	// When: the DSL is built
	body := BuildSearch(q, DefaultSalesBoost())

	// Then: the sort clause is (_score DESC, productId ASC), which
	// makes search_after deterministic across ties.
	sort, ok := body["sort"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, sort, 2)
	assert.Contains(t, sort[0], "_score")
	assert.Contains(t, sort[1], "productId")
}

func TestBuildSearch_SizeEqualsLimit(t *testing.T) {
	q := model.SearchQuery{Text: "shirt", Limit: 37}
	body := BuildSearch(q, DefaultSalesBoost())
	assert.Equal(t, 37, body["size"])
}

func TestBuildSearch_NoCursorOmitsSearchAfter(t *testing.T) {
	q := model.SearchQuery{Text: "shirt", Limit: 20}
	body := BuildSearch(q, DefaultSalesBoost())
	_, present := body["search_after"]
	assert.False(t, present)
}

func TestBuildSearch_ValidCursorPopulatesSearchAfter(t *testing.T) {
	token, err := cursor.Encode([]interface{}{float64(3.5), "prod-1"})
	require.NoError(t, err)

	q := model.SearchQuery{Text: "shirt", Limit: 20, Cursor: token}
	body := BuildSearch(q, DefaultSalesBoost())

	assert.Equal(t, []interface{}{float64(3.5), "prod-1"}, body["search_after"])
}

func TestBuildSearch_MalformedCursorIsTreatedAsAbsent(t *testing.T) {
	q := model.SearchQuery{Text: "shirt", Limit: 20, Cursor: "!!!garbage!!!"}
	body := BuildSearch(q, DefaultSalesBoost())
	_, present := body["search_after"]
	assert.False(t, present, "a malformed cursor must restart pagination, never error")
}

func TestBuildSearch_FunctionScoreWrapsQueryWithSalesBoost(t *testing.T) {
	q := model.SearchQuery{Text: "shirt", Limit: 20}
	boost := SalesBoost{Modifier: "log1p", Factor: 1.2, Missing: 1}

	body := BuildSearch(q, boost)

	fs, ok := body["query"].(map[string]interface{})["function_score"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "multiply", fs["score_mode"])
	assert.Equal(t, "multiply", fs["boost_mode"])

	functions, ok := fs["functions"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, functions, 1)
	fvf := functions[0]["field_value_factor"].(map[string]interface{})
	assert.Equal(t, "sales30d", fvf["field"])
	assert.Equal(t, "log1p", fvf["modifier"])
	assert.Equal(t, 1.2, fvf["factor"])
}

func TestBuildSearch_EmptyTextUsesMatchAll(t *testing.T) {
	q := model.SearchQuery{Text: "", Limit: 20}
	body := BuildSearch(q, DefaultSalesBoost())

	inner := body["query"].(map[string]interface{})["function_score"].(map[string]interface{})["query"].(map[string]interface{})
	must := inner["bool"].(map[string]interface{})["must"].([]map[string]interface{})
	require.Len(t, must, 1)
	assert.Contains(t, must[0], "match_all")
}

func TestBuildSearch_FiltersNeverAffectScore(t *testing.T) {
	// Filters live in bool.filter, never bool.must or the function
	// score — this is what keeps ranking pure relevance+sales.
	q := model.SearchQuery{
		Text:       "shirt",
		CategoryID: "cat-1",
		Brand:      "acme",
		Limit:      20,
	}
	body := BuildSearch(q, DefaultSalesBoost())

	inner := body["query"].(map[string]interface{})["function_score"].(map[string]interface{})["query"].(map[string]interface{})
	boolClause := inner["bool"].(map[string]interface{})
	filters := boolClause["filter"].([]map[string]interface{})
	assert.Len(t, filters, 2)
}

func TestBuildSearch_MultiValueAttributeFilterIsSetMembership(t *testing.T) {
	q := model.SearchQuery{
		Text: "shirt",
		AttributeFilters: map[string]model.AttributeFilter{
			"color": {Values: []string{"red", "blue"}},
		},
		Limit: 20,
	}
	body := BuildSearch(q, DefaultSalesBoost())

	inner := body["query"].(map[string]interface{})["function_score"].(map[string]interface{})["query"].(map[string]interface{})
	filters := inner["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	require.Len(t, filters, 1)
	terms, ok := filters[0]["terms"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []string{"red", "blue"}, terms["attributes.color.keyword"])
}

func TestBuildSearch_SingleValueAttributeFilterIsTermClause(t *testing.T) {
	q := model.SearchQuery{
		Text: "shirt",
		AttributeFilters: map[string]model.AttributeFilter{
			"color": {Values: []string{"red"}},
		},
		Limit: 20,
	}
	body := BuildSearch(q, DefaultSalesBoost())

	inner := body["query"].(map[string]interface{})["function_score"].(map[string]interface{})["query"].(map[string]interface{})
	filters := inner["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	require.Len(t, filters, 1)
	term, ok := filters[0]["term"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "red", term["attributes.color.keyword"])
}

func TestBuildSearch_PriceRangeInclusiveBounds(t *testing.T) {
	min, max := 25.0, 100.0
	q := model.SearchQuery{
		Text:  "shirt",
		Price: model.PriceRange{Min: &min, Max: &max},
		Limit: 20,
	}
	body := BuildSearch(q, DefaultSalesBoost())

	inner := body["query"].(map[string]interface{})["function_score"].(map[string]interface{})["query"].(map[string]interface{})
	filters := inner["bool"].(map[string]interface{})["filter"].([]map[string]interface{})
	require.Len(t, filters, 1)
	rangeClause := filters[0]["range"].(map[string]interface{})["priceFrom"].(map[string]interface{})
	assert.Equal(t, 25.0, rangeClause["gte"])
	assert.Equal(t, 100.0, rangeClause["lte"])
}

func TestBuildFacets_SizeZeroWithAggregations(t *testing.T) {
	q := model.FacetQuery{Text: "shirt", FacetKeys: []string{"brand", "priceFrom"}}
	body := BuildFacets(q)

	assert.Equal(t, 0, body["size"])
	aggs, ok := body["aggs"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, aggs, "brand")
	assert.Contains(t, aggs, "priceFrom")
}

func TestBuildFacets_BrandIsTermsOrderedByCountDesc(t *testing.T) {
	q := model.FacetQuery{Text: "shirt", FacetKeys: []string{"brand"}}
	body := BuildFacets(q)

	brandAgg := body["aggs"].(map[string]interface{})["brand"].(map[string]interface{})
	terms := brandAgg["terms"].(map[string]interface{})
	assert.Equal(t, "brand.keyword", terms["field"])
	assert.Equal(t, 50, terms["size"])
	assert.Equal(t, map[string]interface{}{"_count": "desc"}, terms["order"])
}

func TestBuildFacets_PriceFromIsFixedRangeBuckets(t *testing.T) {
	q := model.FacetQuery{Text: "shirt", FacetKeys: []string{"priceFrom"}}
	body := BuildFacets(q)

	priceAgg := body["aggs"].(map[string]interface{})["priceFrom"].(map[string]interface{})
	rangeAgg := priceAgg["range"].(map[string]interface{})
	ranges := rangeAgg["ranges"].([]map[string]interface{})
	require.Len(t, ranges, 5)

	// (-inf, 25) has no "from"
	assert.NotContains(t, ranges[0], "from")
	assert.Equal(t, 25.0, ranges[0]["to"])
	// [200, inf) has no "to"
	assert.Equal(t, 200.0, ranges[4]["from"])
	assert.NotContains(t, ranges[4], "to")
}

func TestBuildFacets_AttributeKeyTargetsKeywordSubfield(t *testing.T) {
	q := model.FacetQuery{Text: "shirt", FacetKeys: []string{"attributes.color"}}
	body := BuildFacets(q)

	agg := body["aggs"].(map[string]interface{})["attributes.color"].(map[string]interface{})
	terms := agg["terms"].(map[string]interface{})
	assert.Equal(t, "attributes.color.keyword", terms["field"])
}

func TestPriceBucketLabels_MatchBoundaryCount(t *testing.T) {
	labels := PriceBucketLabels()
	assert.Len(t, labels, 5)
	assert.Equal(t, "Under $25", labels[0])
	assert.Equal(t, "$200 and up", labels[4])
}
