package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/search-dsl-eval/internal/config"
	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/dataset"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/report"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/search-dsl-eval/internal/observability/metrics"
)

type weightsStub struct{}

func (weightsStub) Weights(context.Context, string, domain.Depth) domain.WeightSet {
	return domain.WeightSet{}
}

type searchStub struct{ calls int }

func (s *searchStub) Search(_ context.Context, q dsl.Query) ([]domain.Hit, error) {
	s.calls++
	return []domain.Hit{
		{ID: "p1", Title: "kf94 mask", Score: 3, CategoryIDs: map[domain.Depth]int64{domain.Depth1: 101}},
		{ID: "p2", Title: "ski mask", Score: 2},
	}, nil
}

type graderStub struct{}

func (graderStub) Grade(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "kf94") {
		return `{"Score": 1, "Core_intent": "mask", "Ads_core_intent": "mask"}`, nil
	}
	return `{"Score": 0, "Core_intent": "mask", "Ads_core_intent": "ski"}`, nil
}

func newTestApp(t *testing.T) (*App, *searchStub) {
	t.Helper()
	store, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	search := &searchStub{}
	return &App{
		Config:  config.Config{LogLevel: "info", JudgeWorkers: 2, JudgeMaxRows: 64, ResultSize: 10},
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Metrics: metrics.NewEvalMetrics("dsl-eval"),
		Store:   store,
		Labels:  dataset.NewCategoryLabels(map[int64]string{101: "beauty"}),
		Weights: weightsStub{},
		Search:  search,
		Grader:  graderStub{},
		Reports: report.NewWriter(store),
	}, search
}

func writeKeywords(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keywords.csv")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write keywords: %v", err)
	}
	return path
}

func TestRunEvaluationWritesRunDirectory(t *testing.T) {
	app, search := newTestApp(t)
	keywords := writeKeywords(t, "keyword,top_category_name,query_count\nmask,beauty,10\ntent,outdoor,\n")
	variants := []dsl.Variant{
		{Filter: dsl.FilterNone, Ranking: dsl.RankingRandom},
		{Filter: dsl.FilterLLMDepth1, Ranking: dsl.RankingLLMDepth3Score12},
	}

	result, err := app.RunEvaluation(context.Background(), keywords, variants)
	if err != nil {
		t.Fatalf("RunEvaluation() error = %v", err)
	}
	if len(result.Reports) != 2 || search.calls != 4 {
		t.Fatalf("expected 2 reports from 4 searches, got %d/%d", len(result.Reports), search.calls)
	}
	if got := result.Reports[0].Corpus.AvgPrecision; got != 0.5 {
		t.Fatalf("unexpected avg precision %v", got)
	}

	for _, rel := range []string{
		report.InputKeywordsFile,
		report.RunLogFile,
		report.MetricsTextFile,
		filepath.Join("none_random", report.DetailedResultsFile),
		filepath.Join("none_random", report.MetricsJSONFile),
		filepath.Join("llm_depth1_llm_depth3_score12", report.WorkbookFile),
	} {
		if _, err := os.Stat(filepath.Join(result.Run.Dir, rel)); err != nil {
			t.Fatalf("expected %s in run dir: %v", rel, err)
		}
	}

	logData, err := os.ReadFile(filepath.Join(result.Run.Dir, report.RunLogFile))
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if !strings.Contains(string(logData), "run_finished") {
		t.Fatalf("run log must record completion, got %s", logData)
	}
}

func TestRunEvaluationRejectsBadInputBeforeCreatingRun(t *testing.T) {
	app, search := newTestApp(t)
	keywords := writeKeywords(t, "keyword,query_count\nmask,10\n")

	_, err := app.RunEvaluation(context.Background(), keywords, []dsl.Variant{{Filter: dsl.FilterNone, Ranking: dsl.RankingRandom}})
	if !domain.IsKind(err, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	entries, _ := os.ReadDir(app.Store.Root())
	if len(entries) != 0 || search.calls != 0 {
		t.Fatalf("no run dir or search expected, got %d entries / %d searches", len(entries), search.calls)
	}
}
