package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/search-dsl-eval/internal/bootstrap"
	"github.com/kirillkom/search-dsl-eval/internal/config"
	"github.com/kirillkom/search-dsl-eval/internal/observability/logging"
	"github.com/kirillkom/search-dsl-eval/internal/observability/metrics"
)

func newRunCmd(cfg config.Config) *cobra.Command {
	var (
		flags        variantFlags
		keywordsFile string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate variants over a keyword file",
		Example: `  dsl-eval run --keywords-file keywords.csv --dsl-filter llm_depth1 --dsl-ranking llm_depth123_score123
  dsl-eval run --keywords-file keywords.csv --variant none:random --variant fasttext:fasttext`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			variants, err := flags.resolve()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := logging.NewJSONLogger("dsl-eval", cfg.LogLevel)
			app, err := bootstrap.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if cfg.MetricsPort != "" {
				go func() {
					if err := metrics.Serve(ctx, ":"+cfg.MetricsPort, app.Metrics.Handler(), logger); err != nil {
						logger.Error("metrics_server_failed", "error", err)
					}
				}()
			}

			result, err := app.RunEvaluation(ctx, keywordsFile, variants)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "run %s\t%s\n", result.Run.ShortID(), result.Run.Dir)
			fmt.Fprintln(w, "VARIANT\tKEYWORDS\tPRECISION\tNDCG\tOUTPUT")
			for _, r := range result.Reports {
				fmt.Fprintf(w, "%s:%s\t%d\t%.4f\t%.4f\t%s\n", r.Filter, r.Ranking, r.Corpus.TotalKeywords, r.Corpus.AvgPrecision, r.Corpus.AvgNDCG, r.OutputPath)
			}
			return w.Flush()
		},
	}
	flags.register(cmd, cfg)
	cmd.Flags().StringVar(&keywordsFile, "keywords-file", "", "CSV with keyword, top_category_name, query_count")
	_ = cmd.MarkFlagRequired("keywords-file")
	return cmd
}
