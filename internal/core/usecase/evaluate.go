package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
	"github.com/kirillkom/search-dsl-eval/internal/core/ports"
)

const DefaultKeywordDelay = time.Second

type EvaluatorConfig struct {
	// KeywordDelay is the minimum spacing between keywords; 0 disables pacing.
	KeywordDelay time.Duration
	ResultSize   int
}

// EvaluatorDeps lists collaborators. Runs and Events are optional.
type EvaluatorDeps struct {
	Weights    ports.WeightProvider
	Search     ports.SearchIndex
	Normalizer *Normalizer
	Judge      *Judge
	Reports    ports.ReportWriter
	Runs       ports.RunStore
	Events     ports.EventPublisher
	Recorder   ports.EvaluationRecorder
}

// Evaluator drives keywords one at a time through every variant.
type Evaluator struct {
	deps   EvaluatorDeps
	cfg    EvaluatorConfig
	logger *slog.Logger
}

func NewEvaluator(deps EvaluatorDeps, cfg EvaluatorConfig, logger *slog.Logger) *Evaluator {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{deps: deps, cfg: cfg, logger: logger}
}

func (e *Evaluator) Evaluate(
	ctx context.Context,
	run domain.Run,
	inputs []domain.KeywordInput,
	variants []dsl.Variant,
) ([]domain.VariantReport, error) {
	if len(variants) == 0 {
		return nil, domain.ConfigError("evaluate", "at least one variant is required")
	}
	for _, v := range variants {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	if len(inputs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "evaluate", errors.New("keyword list is empty"))
	}

	logger := e.logger.With("run_id", run.ID)
	if e.deps.Reports != nil {
		if err := e.deps.Reports.WriteInputs(ctx, run, inputs); err != nil {
			return nil, fmt.Errorf("write keyword inputs: %w", err)
		}
	}

	reports := make([]domain.VariantReport, len(variants))
	for i, v := range variants {
		reports[i] = domain.VariantReport{
			Filter:    string(v.Filter),
			Ranking:   string(v.Ranking),
			Name:      v.Name(),
			Outcomes:  make([]domain.KeywordOutcome, 0, len(inputs)),
			StartedAt: time.Now().UTC(),
		}
	}

	var limiter *rate.Limiter
	if e.cfg.KeywordDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(e.cfg.KeywordDelay), 1)
	}

	for i, input := range inputs {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		started := time.Now()
		weights := e.fetchWeights(ctx, input.Keyword, variants)
		for vi, v := range variants {
			outcome, err := e.evaluateKeyword(ctx, input, v, weights)
			if err != nil {
				return nil, fmt.Errorf("keyword %q variant %s: %w", input.Keyword, v, err)
			}
			reports[vi].Outcomes = append(reports[vi].Outcomes, outcome)
			logger.Info("keyword_evaluated",
				"progress", fmt.Sprintf("%d/%d", i+1, len(inputs)),
				"keyword", input.Keyword,
				"top_category", input.TopCategoryName,
				"query_count", queryCount(input),
				"variant", v.String(),
				"hits", outcome.Metrics.ResultCount,
				"judged", outcome.Metrics.TotalCount,
				"precision", outcome.Metrics.Precision,
				"ndcg", outcome.Metrics.NDCG,
			)
		}
		e.deps.Recorder.ObserveKeyword(time.Since(started))
	}

	for i := range reports {
		if err := e.finish(ctx, run, &reports[i], logger); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

func (e *Evaluator) evaluateKeyword(
	ctx context.Context,
	input domain.KeywordInput,
	v dsl.Variant,
	weights domain.WeightSet,
) (domain.KeywordOutcome, error) {
	query, err := dsl.Build(input.Keyword, v, weights, dsl.Options{Size: e.cfg.ResultSize})
	if err != nil {
		return domain.KeywordOutcome{}, err
	}

	started := time.Now()
	hits, err := e.deps.Search.Search(ctx, query)
	e.deps.Recorder.ObserveSearch(v.Name(), time.Since(started), err)
	if err != nil {
		return domain.KeywordOutcome{}, err
	}

	rows := e.deps.Normalizer.Normalize(input.Keyword, hits)
	judged := e.deps.Judge.JudgeRows(ctx, input, rows)
	return domain.KeywordOutcome{
		Input:   input,
		Results: rows,
		Judged:  judged,
		Metrics: KeywordScore(input.Keyword, judged, len(hits)),
	}, nil
}

// fetchWeights asks the provider only for the signals some variant uses.
func (e *Evaluator) fetchWeights(ctx context.Context, keyword string, variants []dsl.Variant) domain.WeightSet {
	var needBoost, needDepth bool
	for _, v := range variants {
		needBoost = needBoost || v.NeedsBoostCategories()
		needDepth = needDepth || v.NeedsDepthWeights()
	}
	return e.weightsFor(ctx, keyword, needBoost, needDepth)
}

func (e *Evaluator) weightsFor(ctx context.Context, keyword string, needBoost, needDepth bool) domain.WeightSet {
	var out domain.WeightSet
	if e.deps.Weights == nil {
		return out
	}
	if needBoost {
		w := e.deps.Weights.Weights(ctx, keyword, domain.Depth1)
		e.deps.Recorder.ObserveWeights(domain.Depth1, w.Empty())
		out.Merge(w)
	}
	if needDepth {
		w := e.deps.Weights.Weights(ctx, keyword, domain.Depth3)
		e.deps.Recorder.ObserveWeights(domain.Depth3, w.Empty())
		out.Merge(w)
	}
	return out
}

func (e *Evaluator) finish(ctx context.Context, run domain.Run, report *domain.VariantReport, logger *slog.Logger) error {
	report.Corpus = Summarize(report.Outcomes)
	report.FinishedAt = time.Now().UTC()
	e.deps.Recorder.SetVariantMetrics(report.Name, report.Corpus)

	if e.deps.Reports != nil {
		path, err := e.deps.Reports.WriteVariant(ctx, run, *report)
		if err != nil {
			return fmt.Errorf("write report for %s: %w", report.Name, err)
		}
		report.OutputPath = path
	}
	logCorpus(logger, report.Name, report.Corpus)

	if e.deps.Runs != nil {
		if err := e.deps.Runs.SaveVariantReport(ctx, run, *report); err != nil {
			logger.Error("run_history_save_failed", "variant", report.Name, "error", err)
		}
	}
	if e.deps.Events != nil {
		if err := e.deps.Events.PublishRunCompleted(ctx, report.Completed(run.ID)); err != nil {
			logger.Error("run_completed_publish_failed", "variant", report.Name, "error", err)
		}
	}
	return nil
}

func logCorpus(logger *slog.Logger, variant string, m domain.CorpusMetrics) {
	type line struct {
		name  string
		value any
	}
	lines := []line{
		{"avg_precision", m.AvgPrecision},
		{"avg_ndcg", m.AvgNDCG},
		{"avg_relevant_per_keyword", m.AvgRelevantPerKeyword},
		{"avg_results_per_keyword", m.AvgResultsPerKeyword},
		{"total_keywords", m.TotalKeywords},
		{"total_results", m.TotalResults},
		{"total_relevant", m.TotalRelevant},
		{"precision_std", m.PrecisionStd},
		{"ndcg_std", m.NDCGStd},
		{"precision_median", m.PrecisionMedian},
		{"ndcg_median", m.NDCGMedian},
	}
	if m.WeightedPrecision != nil {
		lines = append(lines, line{"weighted_precision", *m.WeightedPrecision})
	}
	if m.WeightedNDCG != nil {
		lines = append(lines, line{"weighted_ndcg", *m.WeightedNDCG})
	}
	for _, l := range lines {
		logger.Info("corpus_metric", "variant", variant, "metric", l.name, "value", l.value)
	}
}

func queryCount(input domain.KeywordInput) any {
	if input.QueryCount == nil {
		return nil
	}
	return *input.QueryCount
}

// Preview builds the query a variant would send for keyword without
// searching.
func (e *Evaluator) Preview(ctx context.Context, keyword string, v dsl.Variant) (dsl.Query, domain.WeightSet, error) {
	if err := v.Validate(); err != nil {
		return dsl.Query{}, domain.WeightSet{}, err
	}
	weights := e.weightsFor(ctx, keyword, v.NeedsBoostCategories(), v.NeedsDepthWeights())
	query, err := dsl.Build(keyword, v, weights, dsl.Options{Size: e.cfg.ResultSize})
	return query, weights, err
}
