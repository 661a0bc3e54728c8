package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/storage/localfs"
)

func strPtr(s string) *string { return &s }

func sampleReport() domain.VariantReport {
	volume := 1200.0
	weighted := 0.5
	rows := []domain.ResultRow{
		{Keyword: "mask", ProductID: "p1", Title: "kf94 mask", Rank: 1, Score: 12.5, Depth1Category: strPtr("뷰티")},
		{Keyword: "mask", ProductID: "p2", Title: "ski mask, black", Rank: 2, Score: 11},
	}
	return domain.VariantReport{
		Filter:  "llm_depth1",
		Ranking: "random",
		Name:    "llm_depth1_random",
		Outcomes: []domain.KeywordOutcome{
			{
				Input:   domain.KeywordInput{Keyword: "mask", TopCategoryName: "beauty", QueryCount: &volume},
				Results: rows,
				Judged: []domain.JudgedRow{
					{ResultRow: rows[0], Verdict: domain.Verdict{Label: 1, CoreIntent: "mask", AdsCoreIntent: "kf94"}},
					{ResultRow: rows[1], Verdict: domain.Verdict{Label: 0}},
				},
				Metrics: domain.KeywordMetrics{Keyword: "mask", Precision: 0.5, NDCG: 1, RelevantCount: 1, TotalCount: 2, ResultCount: 2},
			},
			{
				Input:   domain.KeywordInput{Keyword: "tent"},
				Metrics: domain.KeywordMetrics{Keyword: "tent"},
			},
		},
		Corpus: domain.CorpusMetrics{AvgPrecision: 0.25, TotalKeywords: 2, TotalResults: 2, WeightedPrecision: &weighted},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestWriteVariantProducesAllArtifacts(t *testing.T) {
	store, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	run, err := NewRun(store, "0123456789abcdef", time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	if filepath.Base(run.Dir) != "20240501_093000_01234567" {
		t.Fatalf("unexpected run dir %s", run.Dir)
	}

	w := NewWriter(store)
	dir, err := w.WriteVariant(context.Background(), run, sampleReport())
	if err != nil {
		t.Fatalf("WriteVariant() error = %v", err)
	}
	if dir != filepath.Join(run.Dir, "llm_depth1_random") {
		t.Fatalf("unexpected variant dir %s", dir)
	}

	detailed := readCSV(t, filepath.Join(dir, DetailedResultsFile))
	if len(detailed) != 3 || len(detailed[0]) != 11 {
		t.Fatalf("expected header plus 2 judged rows, got %v", detailed)
	}
	first := detailed[1]
	if first[0] != "mask" || first[2] != "1" || first[3] != "mask" || first[6] != "2" || first[7] != "1200" || first[8] != "뷰티" {
		t.Fatalf("unexpected detailed row %v", first)
	}

	slim := readCSV(t, filepath.Join(dir, ResultsFile))
	if slim[0][3] != "score" || slim[2][1] != "ski mask, black" || slim[2][3] != "11" {
		t.Fatalf("unexpected slim rows %v", slim)
	}

	perKeyword := readCSV(t, filepath.Join(dir, KeywordMetricsFile))
	if len(perKeyword) != 3 || perKeyword[2][0] != "tent" || perKeyword[2][1] != "0" || perKeyword[2][6] != "" {
		t.Fatalf("zero-hit keyword must still be listed, got %v", perKeyword)
	}

	data, err := os.ReadFile(filepath.Join(dir, MetricsJSONFile))
	if err != nil {
		t.Fatalf("read metrics.json: %v", err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		t.Fatalf("decode metrics.json: %v", err)
	}
	if len(docs) != 1 || docs[0]["avg_precision"] != 0.25 || docs[0]["weighted_precision"] != 0.5 || docs[0]["filter"] != "llm_depth1" {
		t.Fatalf("unexpected metrics document %v", docs)
	}
	if _, ok := docs[0]["weighted_ndcg"]; ok {
		t.Fatalf("absent weighted ndcg must be omitted")
	}

	book, err := excelize.OpenFile(filepath.Join(dir, WorkbookFile))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer book.Close()
	sheetRows, err := book.GetRows(sheetResults)
	if err != nil || len(sheetRows) != 3 {
		t.Fatalf("unexpected results sheet %v (%v)", sheetRows, err)
	}
	summary, err := book.GetRows(sheetSummary)
	if err != nil || summary[1][1] != "llm_depth1" {
		t.Fatalf("unexpected summary sheet %v (%v)", summary, err)
	}
}

func TestWriteInputsCopiesKeywords(t *testing.T) {
	store, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	run, err := NewRun(store, "abc", time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatalf("NewRun() error = %v", err)
	}
	volume := 3.0
	err = NewWriter(store).WriteInputs(context.Background(), run, []domain.KeywordInput{
		{Keyword: "mask", TopCategoryName: "beauty", QueryCount: &volume},
	})
	if err != nil {
		t.Fatalf("WriteInputs() error = %v", err)
	}
	rows := readCSV(t, filepath.Join(run.Dir, InputKeywordsFile))
	if len(rows) != 2 || rows[0][0] != "keyword" || rows[1][2] != "3" {
		t.Fatalf("unexpected input copy %v", rows)
	}
}
