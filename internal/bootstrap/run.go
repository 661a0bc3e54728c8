package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/dataset"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/report"
	"github.com/kirillkom/search-dsl-eval/internal/observability/logging"
)

// RunResult is what one evaluation run left behind.
type RunResult struct {
	Run     domain.Run
	Reports []domain.VariantReport
}

// RunEvaluation evaluates every variant over the keyword file. Inputs are
// loaded and checked before the run directory is created, so configuration
// errors leave nothing behind.
func (a *App) RunEvaluation(ctx context.Context, keywordsFile string, variants []dsl.Variant) (RunResult, error) {
	if len(variants) == 0 {
		return RunResult{}, domain.ConfigError("run evaluation", "at least one variant is required")
	}
	for _, v := range variants {
		if err := v.Validate(); err != nil {
			return RunResult{}, err
		}
	}
	inputs, err := dataset.LoadKeywords(keywordsFile, a.Logger)
	if err != nil {
		return RunResult{}, err
	}
	if len(inputs) == 0 {
		return RunResult{}, domain.WrapError(domain.ErrInvalidInput, "run evaluation", errors.New("keyword file has no rows"))
	}

	run, err := report.NewRun(a.Store, uuid.NewString(), time.Now())
	if err != nil {
		return RunResult{}, fmt.Errorf("create run dir: %w", err)
	}
	runKey := report.RunKey(run)

	logFile, err := a.Store.Create(path.Join(runKey, report.RunLogFile))
	if err != nil {
		return RunResult{}, fmt.Errorf("open run log: %w", err)
	}
	defer logFile.Close()

	logger := logging.NewJSONLogger("dsl-eval", a.Config.LogLevel, logFile).With("run_id", run.ShortID())
	logger.Info("run_started", "dir", run.Dir, "keywords", len(inputs), "variants", variantNames(variants))

	evaluator, err := a.Evaluator(logger)
	if err != nil {
		return RunResult{}, err
	}
	reports, err := evaluator.Evaluate(ctx, run, inputs, variants)

	if werr := a.Metrics.WriteTextfile(a.Store.Path(path.Join(runKey, report.MetricsTextFile))); werr != nil {
		logger.Warn("metrics_textfile_failed", "error", werr)
	}
	if err != nil {
		logger.Error("run_failed", "error", err)
		return RunResult{Run: run}, err
	}
	logger.Info("run_finished", "dir", run.Dir)
	return RunResult{Run: run, Reports: reports}, nil
}

func variantNames(variants []dsl.Variant) []string {
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		out = append(out, v.String())
	}
	return out
}
