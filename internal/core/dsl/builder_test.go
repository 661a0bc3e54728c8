package dsl

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

func mustVariant(t *testing.T, filter, ranking string) Variant {
	t.Helper()
	v, err := ParseVariant(filter, ranking)
	if err != nil {
		t.Fatalf("ParseVariant(%q, %q) error = %v", filter, ranking, err)
	}
	return v
}

func mustBuild(t *testing.T, keyword string, v Variant, w domain.WeightSet) Query {
	t.Helper()
	q, err := Build(keyword, v, w, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return q
}

func filterJSON(t *testing.T, clauses []Clause) string {
	t.Helper()
	raw, err := json.Marshal(sources(clauses))
	if err != nil {
		t.Fatalf("marshal filters: %v", err)
	}
	return string(raw)
}

func depthWeights(d domain.Depth, weights map[int64]int) domain.WeightSet {
	var w domain.WeightSet
	for id, score := range weights {
		w.Set(d, id, score)
	}
	return w
}

func TestBuildNoneFilterHasOnlyBaseClauses(t *testing.T) {
	q := mustBuild(t, "mask", mustVariant(t, "none", "random"), depthWeights(domain.Depth1, map[int64]int{101: 3}))

	if len(q.Filters) != 4 {
		t.Fatalf("expected 4 base filters, got %d", len(q.Filters))
	}
	want := []Clause{
		Exists(FieldCatalogSets),
		Term(FieldIsLive, true),
		Term(FieldAvailability, "IN_STOCK"),
		MatchAll(FieldTitle, "mask"),
	}
	if !reflect.DeepEqual(q.Filters, want) {
		t.Fatalf("unexpected base filters: %+v", q.Filters)
	}
}

func TestBuildFastTextWithoutBoostEqualsNone(t *testing.T) {
	none := mustBuild(t, "mask", mustVariant(t, "none", "random"), domain.WeightSet{})
	fast := mustBuild(t, "mask", mustVariant(t, "fasttext", "random"), domain.WeightSet{})

	if filterJSON(t, none.Filters) != filterJSON(t, fast.Filters) {
		t.Fatalf("fasttext without boost list must equal none:\n%s\n%s", filterJSON(t, none.Filters), filterJSON(t, fast.Filters))
	}
}

func TestBuildFastTextAddsPermissiveClause(t *testing.T) {
	w := domain.WeightSet{BoostCategories: []string{"beauty", "health"}}
	q := mustBuild(t, "mask", mustVariant(t, "fasttext", "fasttext"), w)

	if len(q.Filters) != 5 {
		t.Fatalf("expected 5 filters, got %d", len(q.Filters))
	}
	got := filterJSON(t, q.Filters[4:])
	want := `[{"bool":{"should":[{"terms":{"fast_text_category_name":["beauty","health"]}},{"bool":{"must_not":[{"exists":{"field":"fast_text_category_name"}}]}}]}}]`
	if got != want {
		t.Fatalf("unexpected fasttext clause:\n got %s\nwant %s", got, want)
	}

	if len(q.Functions) != 2 {
		t.Fatalf("expected boost + random functions, got %d", len(q.Functions))
	}
	if q.Functions[0].Weight != 10 {
		t.Fatalf("expected boost weight 10, got %v", q.Functions[0].Weight)
	}
}

func TestBuildLLMDepthFilterUsesWeightedIDs(t *testing.T) {
	w := depthWeights(domain.Depth2, map[int64]int{205: 1, 201: 3})
	q := mustBuild(t, "mask", mustVariant(t, "llm_depth2", "random"), w)

	if len(q.Filters) != 5 {
		t.Fatalf("expected 5 filters, got %d", len(q.Filters))
	}
	got := filterJSON(t, q.Filters[4:])
	want := `[{"bool":{"should":[{"terms":{"llm_category_depth_2_id":[201,205]}},{"bool":{"must_not":[{"exists":{"field":"llm_category_depth_2_id"}}]}}]}}]`
	if got != want {
		t.Fatalf("unexpected depth clause:\n got %s\nwant %s", got, want)
	}
}

func TestBuildLLMDepthWithoutWeightsFallsBackToBase(t *testing.T) {
	w := depthWeights(domain.Depth1, map[int64]int{101: 3})
	q := mustBuild(t, "mask", mustVariant(t, "llm_depth3", "random"), w)

	if len(q.Filters) != 4 {
		t.Fatalf("expected only base filters, got %d", len(q.Filters))
	}
}

func TestTieredRankingSkipsRelatedTierOnFilteredDepth(t *testing.T) {
	var w domain.WeightSet
	w.Set(domain.Depth1, 101, 3)
	w.Set(domain.Depth1, 102, 2)
	w.Set(domain.Depth1, 103, 1)
	w.Set(domain.Depth2, 201, 1)

	filtered := mustBuild(t, "mask", mustVariant(t, "llm_depth1", "llm_depth123_score123"), w)
	unfiltered := mustBuild(t, "mask", mustVariant(t, "none", "llm_depth123_score123"), w)

	// depth1 tiers 3,2 + depth2 tier 1 + random
	if len(filtered.Functions) != 4 {
		t.Fatalf("expected 4 functions with depth1 filter, got %d", len(filtered.Functions))
	}
	// depth1 tiers 3,2,1 + depth2 tier 1 + random
	if len(unfiltered.Functions) != 5 {
		t.Fatalf("expected 5 functions without filter, got %d", len(unfiltered.Functions))
	}
	for _, f := range filtered.Functions {
		if f.Filter == nil {
			continue
		}
		if f.Filter.Field == CategoryField(domain.Depth1) && f.Weight == TierWeights[domain.Depth1][domain.TierRelated] {
			t.Fatalf("related tier on the filtered depth must be skipped")
		}
	}
}

func TestScore12RankingIgnoresRelatedTier(t *testing.T) {
	var w domain.WeightSet
	w.Set(domain.Depth3, 301, 1)
	w.Set(domain.Depth3, 302, 2)

	q := mustBuild(t, "mask", mustVariant(t, "none", "llm_depth3_score12"), w)
	if len(q.Functions) != 2 {
		t.Fatalf("expected relevant tier + random, got %d", len(q.Functions))
	}
	if q.Functions[0].Weight != TierWeights[domain.Depth3][domain.TierRelevant] {
		t.Fatalf("unexpected weight %v", q.Functions[0].Weight)
	}
}

func TestEveryRankingEndsWithRandomTieBreak(t *testing.T) {
	var w domain.WeightSet
	w.Set(domain.Depth1, 1, 3)
	w.Set(domain.Depth2, 2, 2)
	w.Set(domain.Depth3, 3, 1)
	w.BoostCategories = []string{"beauty"}

	for _, filter := range FilterModes() {
		for _, ranking := range RankingModes() {
			q := mustBuild(t, "mask", Variant{Filter: filter, Ranking: ranking}, w)
			last := q.Functions[len(q.Functions)-1]
			if !last.Random || last.Weight != 1 {
				t.Fatalf("%s:%s: last function must be the weight-1 random term, got %+v", filter, ranking, last)
			}
		}
	}
}

func TestParseRejectsUnknownModes(t *testing.T) {
	if _, err := ParseVariant("llm_depth4", "random"); !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("expected config error for filter, got %v", err)
	}
	if _, err := ParseVariant("none", "bm25"); !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("expected config error for ranking, got %v", err)
	}
	if _, err := ParseVariantSpec("none"); !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("expected config error for malformed spec, got %v", err)
	}
	if _, err := Build("mask", Variant{Filter: "none", Ranking: "bm25"}, domain.WeightSet{}, Options{}); !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("expected config error from Build, got %v", err)
	}
}

func TestParseVariantSpec(t *testing.T) {
	v, err := ParseVariantSpec(" llm_depth1:llm_depth123_score123 ")
	if err != nil {
		t.Fatalf("ParseVariantSpec() error = %v", err)
	}
	if v.Filter != FilterLLMDepth1 || v.Ranking != RankingLLMDepth123Score123 {
		t.Fatalf("unexpected variant %+v", v)
	}
	if v.Name() != "llm_depth1_llm_depth123_score123" {
		t.Fatalf("unexpected name %q", v.Name())
	}
	if !v.NeedsDepthWeights() || v.NeedsBoostCategories() {
		t.Fatalf("unexpected weight needs for %s", v)
	}
}

func TestQuerySourceReplacesTextScore(t *testing.T) {
	q := mustBuild(t, "mask", mustVariant(t, "none", "random"), domain.WeightSet{})
	raw, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal query: %v", err)
	}
	body := string(raw)
	for _, fragment := range []string{
		`"boost_mode":"replace"`,
		`"score_mode":"sum"`,
		`"random_score":{}`,
		`"size":100`,
		`"operator":"and"`,
	} {
		if !strings.Contains(body, fragment) {
			t.Fatalf("expected %s in %s", fragment, body)
		}
	}
}

func TestScriptRankingCarriesWeightTables(t *testing.T) {
	var w domain.WeightSet
	w.Set(domain.Depth1, 101, 3)
	w.Set(domain.Depth1, 102, 1)
	w.Set(domain.Depth3, 301, 2)

	q := mustBuild(t, "mask", mustVariant(t, "llm_depth1", "llm_depth123_score123_script"), w)
	if len(q.Functions) != 2 {
		t.Fatalf("expected script + random, got %d", len(q.Functions))
	}
	script := q.Functions[0].Script
	if script == nil {
		t.Fatalf("expected script function")
	}
	w1, _ := script.Params["w1"].(map[string]float64)
	if len(w1) != 1 || w1["101"] != 90 {
		t.Fatalf("unexpected depth1 table %+v", script.Params["w1"])
	}
	if _, ok := script.Params["w2"]; ok {
		t.Fatalf("depth2 has no weights and must be omitted")
	}
	w3, _ := script.Params["w3"].(map[string]float64)
	if w3["301"] != 20 {
		t.Fatalf("unexpected depth3 table %+v", script.Params["w3"])
	}
	if !strings.Contains(script.Source, "llm_category_depth_3_id") {
		t.Fatalf("script must read depth3 field: %s", script.Source)
	}
}

func TestFilterDepthDropsRelatedTierOnFilteredDepth(t *testing.T) {
	for filter, depth := range map[string]domain.Depth{"none": 0, "fasttext": 0, "llm_depth1": domain.Depth1, "llm_depth3": domain.Depth3} {
		if got := mustVariant(t, filter, "random").FilterDepth(); got != depth {
			t.Fatalf("FilterDepth(%s) = %d, want %d", filter, got, depth)
		}
	}

	w := depthWeights(domain.Depth3, map[int64]int{1: 3, 2: 1})
	filtered := mustBuild(t, "mask", mustVariant(t, "llm_depth3", "llm_depth3_score123"), w)
	unfiltered := mustBuild(t, "mask", mustVariant(t, "none", "llm_depth3_score123"), w)
	// tier functions plus the random tie-break
	if len(filtered.Functions) != 2 || len(unfiltered.Functions) != 3 {
		t.Fatalf("expected related tier only without depth3 filter, got %d/%d functions", len(filtered.Functions), len(unfiltered.Functions))
	}
}
