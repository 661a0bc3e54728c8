package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/template"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/config"
	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/ports"
	"github.com/kirillkom/search-dsl-eval/internal/core/usecase"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/dataset"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/featureplatform"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/llm/openai"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/report"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/resilience"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/search/elastic"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/search-dsl-eval/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.EvalMetrics

	Store   *localfs.Storage
	Labels  ports.CategoryLabels
	Weights ports.WeightProvider
	Search  ports.SearchIndex
	Grader  ports.Grader
	Reports ports.ReportWriter

	// History and Queue are nil when POSTGRES_DSN / NATS_URL are unset.
	History *postgres.RunRepository
	Queue   *nats.Queue

	prompt  *template.Template
	closeFn func()
}

// New validates cfg and wires every adapter. No remote call is made except
// the optional Postgres ping and NATS connect.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompt, err := loadPrompt(cfg.PromptTemplatePath)
	if err != nil {
		return nil, err
	}
	labels, err := dataset.LoadCategoryLabels(cfg.CategoryInfoPath, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("category_labels_loaded", "path", cfg.CategoryInfoPath, "count", labels.Len())

	store, err := localfs.New(cfg.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("init results storage: %w", err)
	}

	evalMetrics := metrics.NewEvalMetrics("dsl-eval")
	executor := resilience.NewExecutor(resilienceConfig(cfg), logger, resilience.WithRetryObserver(evalMetrics))

	grader, err := newGrader(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := featureplatform.Dial(cfg.FeaturePlatformEndpoint)
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = conn.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	fpClient := featureplatform.NewDynamicClient(conn, cfg.FeaturePlatformService, cfg.FeaturePlatformMethod, cfg.FeaturePlatformClientName)
	weights := featureplatform.NewProvider(fpClient, executor, seconds(cfg.FeaturePlatformTimeoutSeconds), logger)
	search := elastic.New(cfg.SearchURL, cfg.SearchIndex, seconds(cfg.SearchTimeoutSeconds), executor, logger)

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: evalMetrics,
		Store:   store,
		Labels:  labels,
		Weights: weights,
		Search:  search,
		Grader:  grader,
		Reports: report.NewWriter(store),
		prompt:  prompt,
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		repo := postgres.NewRunRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		app.History = repo
	}

	if cfg.NATSURL != "" {
		queue, err := nats.New(cfg.NATSURL, nats.Options{
			EventsSubject:      cfg.NATSEventsSubject,
			RequestsSubject:    cfg.NATSRequestsSubject,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
		app.Queue = queue
	}

	app.closeFn = closeAll
	return app, nil
}

// Evaluator builds the use case with logger, usually one tee'd to a run log.
func (a *App) Evaluator(logger *slog.Logger) (*usecase.Evaluator, error) {
	judge, err := usecase.NewJudge(a.Grader, usecase.JudgeConfig{
		MaxRows:     a.Config.JudgeMaxRows,
		Workers:     a.Config.JudgeWorkers,
		CallTimeout: seconds(a.Config.JudgeTimeoutSeconds),
		Prompt:      a.prompt,
	}, a.Metrics, logger)
	if err != nil {
		return nil, err
	}

	deps := usecase.EvaluatorDeps{
		Weights:    a.Weights,
		Search:     a.Search,
		Normalizer: usecase.NewNormalizer(a.Labels, logger),
		Judge:      judge,
		Reports:    a.Reports,
		Recorder:   a.Metrics,
	}
	// keep the interfaces nil when the sinks are disabled
	if a.History != nil {
		deps.Runs = a.History
	}
	if a.Queue != nil {
		deps.Events = a.Queue
	}
	return usecase.NewEvaluator(deps, usecase.EvaluatorConfig{
		KeywordDelay: time.Duration(a.Config.KeywordDelayMS) * time.Millisecond,
		ResultSize:   a.Config.ResultSize,
	}, logger), nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newGrader(cfg config.Config) (ports.Grader, error) {
	switch cfg.JudgeProvider {
	case config.JudgeProviderOllama:
		return ollama.New(cfg.OllamaURL, cfg.OllamaModel, seconds(cfg.JudgeTimeoutSeconds))
	default:
		return openai.New(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: seconds(cfg.JudgeTimeoutSeconds),
		})
	}
}

func loadPrompt(path string) (*template.Template, error) {
	if path == "" {
		return usecase.ParseJudgePrompt("")
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "read prompt template", err)
	}
	return usecase.ParseJudgePrompt(string(src))
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.RetryMaxAttempts
	rc.RetryInitialBackoff = time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
	rc.RetryMaxBackoff = time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond
	rc.BreakerEnabled = cfg.BreakerEnabled
	return rc
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
