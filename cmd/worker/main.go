package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/bootstrap"
	"github.com/kirillkom/search-dsl-eval/internal/config"
	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/observability/logging"
	"github.com/kirillkom/search-dsl-eval/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewJSONLogger("dsl-eval-worker", cfg.LogLevel)
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		logger.Error("worker_requires_nats", "error", domain.ConfigError("worker", "NATS_URL is not set"))
		app.Close()
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics("dsl-eval-worker", app.Metrics)
	if cfg.MetricsPort != "" {
		go func() {
			if err := metrics.Serve(ctx, ":"+cfg.MetricsPort, app.Metrics.Handler(), logger); err != nil {
				logger.Error("metrics_server_failed", "error", err)
			}
		}()
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSRequestsSubject)
	err = app.Queue.SubscribeEvaluationRequests(ctx, func(handlerCtx context.Context, req domain.EvaluationRequest) error {
		workerMetrics.StartRequest()
		started := time.Now()

		err := handle(handlerCtx, app, req)
		workerMetrics.FinishRequest(time.Since(started), err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}

func handle(ctx context.Context, app *bootstrap.App, req domain.EvaluationRequest) error {
	variantsFile := ""
	if len(req.Variants) == 0 {
		variantsFile = app.Config.VariantsFile
	}
	variants, err := config.ResolveVariants(req.Variants, variantsFile)
	if err != nil {
		return err
	}
	result, err := app.RunEvaluation(ctx, req.KeywordsFile, variants)
	if err != nil {
		return err
	}
	app.Logger.Info("evaluation_request_done", "run_id", result.Run.ShortID(), "dir", result.Run.Dir, "variants", len(result.Reports))
	return nil
}
