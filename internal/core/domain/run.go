package domain

import "time"

// Run identifies one invocation of the harness and the directory its
// artifacts go to.
type Run struct {
	ID        string
	StartedAt time.Time
	Dir       string
}

// ShortID is the run id prefix used in directory names and log lines.
func (r Run) ShortID() string {
	if len(r.ID) > 8 {
		return r.ID[:8]
	}
	return r.ID
}

// KeywordOutcome is everything one variant produced for one keyword.
type KeywordOutcome struct {
	Input   KeywordInput
	Results []ResultRow
	Judged  []JudgedRow
	Metrics KeywordMetrics
}

// VariantReport collects a variant's outcomes over the whole keyword list.
type VariantReport struct {
	Filter     string
	Ranking    string
	Name       string
	Outcomes   []KeywordOutcome
	Corpus     CorpusMetrics
	StartedAt  time.Time
	FinishedAt time.Time
	// OutputPath is the artifact directory, set once the report is written.
	OutputPath string
}

// KeywordMetrics returns the per-keyword metrics in input order.
func (r VariantReport) KeywordMetrics() []KeywordMetrics {
	out := make([]KeywordMetrics, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out = append(out, o.Metrics)
	}
	return out
}

// Completed builds the event announcing this report.
func (r VariantReport) Completed(runID string) RunCompleted {
	return RunCompleted{
		RunID:      runID,
		Filter:     r.Filter,
		Ranking:    r.Ranking,
		Keywords:   len(r.Outcomes),
		Metrics:    r.Corpus,
		OutputPath: r.OutputPath,
		FinishedAt: r.FinishedAt,
	}
}

// RunSummary is one stored variant run, as listed by the history command.
type RunSummary struct {
	RunID        string
	Variant      string
	Keywords     int
	AvgPrecision float64
	AvgNDCG      float64
	OutputPath   string
	FinishedAt   time.Time
}
