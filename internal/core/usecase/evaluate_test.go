package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
)

type evalFixture struct {
	weights   *weightsFake
	search    *searchFake
	grader    *graderFake
	reports   *reportsFake
	runs      *runStoreFake
	publisher *publisherFake
	evaluator *Evaluator
}

func newEvalFixture(t *testing.T) *evalFixture {
	t.Helper()
	f := &evalFixture{
		weights:   &weightsFake{byKey: map[string]map[domain.Depth]domain.WeightSet{}},
		search:    &searchFake{hits: map[string][]domain.Hit{}},
		grader:    &graderFake{replies: map[string]string{}},
		reports:   &reportsFake{},
		runs:      &runStoreFake{},
		publisher: &publisherFake{},
	}
	judge, err := NewJudge(f.grader, JudgeConfig{Workers: 4}, nil, quietLogger())
	if err != nil {
		t.Fatalf("NewJudge() error = %v", err)
	}
	f.evaluator = NewEvaluator(EvaluatorDeps{
		Weights:    f.weights,
		Search:     f.search,
		Normalizer: NewNormalizer(labelsFake{101: "beauty"}, quietLogger()),
		Judge:      judge,
		Reports:    f.reports,
		Runs:       f.runs,
		Events:     f.publisher,
	}, EvaluatorConfig{}, quietLogger())
	return f
}

func testRun() domain.Run {
	return domain.Run{ID: "0123456789abcdef", StartedAt: time.Unix(0, 0), Dir: "/tmp/run"}
}

func TestEvaluateKeywordWithoutHitsScoresZero(t *testing.T) {
	f := newEvalFixture(t)
	var w domain.WeightSet
	w.Set(domain.Depth1, 101, 3)
	w.Set(domain.Depth1, 102, 2)
	f.weights.byKey["mask"] = map[domain.Depth]domain.WeightSet{domain.Depth3: w}

	variant := dsl.Variant{Filter: dsl.FilterLLMDepth1, Ranking: dsl.RankingRandom}
	reports, err := f.evaluator.Evaluate(context.Background(), testRun(), []domain.KeywordInput{{Keyword: "mask"}}, []dsl.Variant{variant})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	outcome := reports[0].Outcomes[0]
	if len(outcome.Results) != 0 || len(outcome.Judged) != 0 {
		t.Fatalf("expected empty tables, got %d/%d", len(outcome.Results), len(outcome.Judged))
	}
	want := domain.KeywordMetrics{Keyword: "mask"}
	if outcome.Metrics != want {
		t.Fatalf("unexpected metrics %+v", outcome.Metrics)
	}
	if len(f.grader.prompts) != 0 {
		t.Fatalf("judge must not be called without hits")
	}

	// the depth1 filter must carry the weighted ids
	body := f.search.queries[0].Source()
	query := body["query"].(map[string]any)["function_score"].(map[string]any)["query"].(map[string]any)
	filters := query["bool"].(map[string]any)["filter"].([]map[string]any)
	if len(filters) != 5 {
		t.Fatalf("expected depth1 filter clause, got %d filters", len(filters))
	}
}

func TestEvaluateRunsEveryVariantPerKeyword(t *testing.T) {
	f := newEvalFixture(t)
	f.search.hits["mask"] = []domain.Hit{
		{ID: "p1", Title: "kf94 mask", CategoryIDs: map[domain.Depth]int64{domain.Depth1: 101}},
		{ID: "p2", Title: "ski mask"},
	}
	f.search.hits["tent"] = []domain.Hit{{ID: "p3", Title: "camping tent"}}
	f.grader.replies["kf94 mask"] = verdictReply(1)
	f.grader.replies["ski mask"] = verdictReply(0)
	f.grader.replies["camping tent"] = verdictReply(1)

	inputs := []domain.KeywordInput{
		{Keyword: "mask", TopCategoryName: "beauty", QueryCount: volume(100)},
		{Keyword: "tent", TopCategoryName: "outdoor", QueryCount: volume(100)},
	}
	variants := []dsl.Variant{
		{Filter: dsl.FilterNone, Ranking: dsl.RankingRandom},
		{Filter: dsl.FilterFastText, Ranking: dsl.RankingLLMDepth3Score12},
	}
	reports, err := f.evaluator.Evaluate(context.Background(), testRun(), inputs, variants)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if len(reports) != 2 || len(f.search.queries) != 4 {
		t.Fatalf("expected 2 reports and 4 searches, got %d/%d", len(reports), len(f.search.queries))
	}
	// one depth1 and one depth3 lookup per keyword
	if len(f.weights.calls) != 4 {
		t.Fatalf("expected 4 weight lookups, got %v", f.weights.calls)
	}

	r := reports[0]
	if r.Name != "none_random" || r.OutputPath != "/tmp/run/none_random" {
		t.Fatalf("unexpected report identity %q %q", r.Name, r.OutputPath)
	}
	mask := r.Outcomes[0]
	if mask.Metrics.Precision != 0.5 || mask.Metrics.NDCG != 1 || mask.Metrics.ResultCount != 2 {
		t.Fatalf("unexpected mask metrics %+v", mask.Metrics)
	}
	if mask.Results[0].Depth1Category == nil || *mask.Results[0].Depth1Category != "beauty" {
		t.Fatalf("expected resolved depth1 label")
	}
	if r.Corpus.WeightedPrecision == nil || !almostEqual(*r.Corpus.WeightedPrecision, 0.75) {
		t.Fatalf("unexpected weighted precision %v", r.Corpus.WeightedPrecision)
	}

	if len(f.reports.inputs) != 2 || len(f.reports.variants) != 2 {
		t.Fatalf("expected inputs and two variant reports written")
	}
	if len(f.runs.saved) != 2 || len(f.publisher.events) != 2 {
		t.Fatalf("expected history and events per variant, got %d/%d", len(f.runs.saved), len(f.publisher.events))
	}
	if f.publisher.events[1].Ranking != string(dsl.RankingLLMDepth3Score12) || f.publisher.events[1].Keywords != 2 {
		t.Fatalf("unexpected event %+v", f.publisher.events[1])
	}
}

func TestEvaluateSkipsWeightLookupsWhenUnused(t *testing.T) {
	f := newEvalFixture(t)
	_, err := f.evaluator.Evaluate(context.Background(), testRun(),
		[]domain.KeywordInput{{Keyword: "mask"}},
		[]dsl.Variant{{Filter: dsl.FilterNone, Ranking: dsl.RankingRandom}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(f.weights.calls) != 0 {
		t.Fatalf("expected no weight lookups, got %v", f.weights.calls)
	}
}

func TestEvaluateAbortsOnSearchFailure(t *testing.T) {
	f := newEvalFixture(t)
	f.search.err = domain.WrapError(domain.ErrUpstreamUnavailable, "search", errors.New("502"))

	_, err := f.evaluator.Evaluate(context.Background(), testRun(),
		[]domain.KeywordInput{{Keyword: "mask"}},
		[]dsl.Variant{{Filter: dsl.FilterNone, Ranking: dsl.RankingRandom}})
	if !domain.IsKind(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if !strings.Contains(err.Error(), `keyword "mask" variant none:random`) {
		t.Fatalf("error must name keyword and variant: %v", err)
	}
	if len(f.reports.variants) != 0 {
		t.Fatalf("no report may be written after an aborted run")
	}
}

func TestEvaluateRejectsUnknownVariantBeforeAnyCall(t *testing.T) {
	f := newEvalFixture(t)
	_, err := f.evaluator.Evaluate(context.Background(), testRun(),
		[]domain.KeywordInput{{Keyword: "mask"}},
		[]dsl.Variant{{Filter: "llm_depth9", Ranking: dsl.RankingRandom}})
	if !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if len(f.search.queries) != 0 || len(f.weights.calls) != 0 || f.reports.inputs != nil {
		t.Fatalf("no external call may happen on configuration errors")
	}
}

func TestEvaluatePacesKeywords(t *testing.T) {
	f := newEvalFixture(t)
	f.evaluator.cfg.KeywordDelay = 30 * time.Millisecond

	started := time.Now()
	_, err := f.evaluator.Evaluate(context.Background(), testRun(),
		[]domain.KeywordInput{{Keyword: "a"}, {Keyword: "b"}, {Keyword: "c"}},
		[]dsl.Variant{{Filter: dsl.FilterNone, Ranking: dsl.RankingRandom}})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if elapsed := time.Since(started); elapsed < 55*time.Millisecond {
		t.Fatalf("expected two pauses between three keywords, took %v", elapsed)
	}
}

func TestPreviewBuildsQueryWithWeights(t *testing.T) {
	f := newEvalFixture(t)
	f.weights.byKey["mask"] = map[domain.Depth]domain.WeightSet{
		domain.Depth1: {BoostCategories: []string{"beauty"}},
	}

	q, w, err := f.evaluator.Preview(context.Background(), "mask", dsl.Variant{Filter: dsl.FilterFastText, Ranking: dsl.RankingFastText})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if len(w.BoostCategories) != 1 || len(q.Filters) != 5 || len(q.Functions) != 2 {
		t.Fatalf("unexpected preview %d filters %d functions %v", len(q.Filters), len(q.Functions), w.BoostCategories)
	}
	if len(f.search.queries) != 0 {
		t.Fatalf("preview must not search")
	}
}
