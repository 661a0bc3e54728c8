package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/dataset"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/storage/localfs"
)

const (
	InputKeywordsFile   = "input_keywords.csv"
	RunLogFile          = "running_logs.log"
	MetricsTextFile     = "metrics.prom"
	DetailedResultsFile = "detailed_results.csv"
	ResultsFile         = "results.csv"
	KeywordMetricsFile  = "keyword_metrics.csv"
	WorkbookFile        = "results.xlsx"
	MetricsJSONFile     = "metrics.json"
)

// RunKey is the storage key of a run directory: <timestamp>_<run id prefix>.
func RunKey(run domain.Run) string {
	return run.StartedAt.Format("20060102_150405") + "_" + run.ShortID()
}

// NewRun creates the run directory and returns the run pointing at it.
func NewRun(store *localfs.Storage, id string, startedAt time.Time) (domain.Run, error) {
	run := domain.Run{ID: id, StartedAt: startedAt}
	dir, err := store.MkdirAll(RunKey(run))
	if err != nil {
		return domain.Run{}, err
	}
	run.Dir = dir
	return run, nil
}

type Writer struct {
	store *localfs.Storage
}

func NewWriter(store *localfs.Storage) *Writer {
	return &Writer{store: store}
}

func (w *Writer) WriteInputs(ctx context.Context, run domain.Run, inputs []domain.KeywordInput) error {
	var buf bytes.Buffer
	if err := dataset.WriteKeywords(&buf, inputs); err != nil {
		return err
	}
	return w.store.Save(ctx, path.Join(RunKey(run), InputKeywordsFile), &buf)
}

// WriteVariant writes every artifact of one variant and returns its directory.
func (w *Writer) WriteVariant(ctx context.Context, run domain.Run, report domain.VariantReport) (string, error) {
	dir := path.Join(RunKey(run), report.Name)

	tables := []struct {
		file string
		rows [][]string
	}{
		{DetailedResultsFile, detailedRows(report)},
		{ResultsFile, slimRows(report)},
		{KeywordMetricsFile, keywordMetricRows(report)},
	}
	for _, t := range tables {
		var buf bytes.Buffer
		if err := writeCSV(&buf, t.rows); err != nil {
			return "", fmt.Errorf("render %s: %w", t.file, err)
		}
		if err := w.store.Save(ctx, path.Join(dir, t.file), &buf); err != nil {
			return "", err
		}
	}

	var book bytes.Buffer
	if err := writeWorkbook(&book, report); err != nil {
		return "", fmt.Errorf("render %s: %w", WorkbookFile, err)
	}
	if err := w.store.Save(ctx, path.Join(dir, WorkbookFile), &book); err != nil {
		return "", err
	}

	// a one-element list, matching the record-oriented layout consumers expect
	data, err := json.MarshalIndent([]metricsDocument{newMetricsDocument(run, report)}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render %s: %w", MetricsJSONFile, err)
	}
	if err := w.store.Save(ctx, path.Join(dir, MetricsJSONFile), bytes.NewReader(data)); err != nil {
		return "", err
	}
	return w.store.Path(dir), nil
}

type metricsDocument struct {
	domain.CorpusMetrics
	RunID      string    `json:"run_id"`
	Filter     string    `json:"filter"`
	Ranking    string    `json:"ranking"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func newMetricsDocument(run domain.Run, report domain.VariantReport) metricsDocument {
	return metricsDocument{
		CorpusMetrics: report.Corpus,
		RunID:         run.ID,
		Filter:        report.Filter,
		Ranking:       report.Ranking,
		StartedAt:     report.StartedAt,
		FinishedAt:    report.FinishedAt,
	}
}
