package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/search-dsl-eval/internal/bootstrap"
	"github.com/kirillkom/search-dsl-eval/internal/config"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
	"github.com/kirillkom/search-dsl-eval/internal/observability/logging"
)

func newQueryCmd(cfg config.Config) *cobra.Command {
	var (
		filter    string
		ranking   string
		showWeights bool
	)
	cmd := &cobra.Command{
		Use:   "query <keyword>",
		Short: "Print the search body a variant builds for one keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variant, err := dsl.ParseVariant(filter, ranking)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := logging.New(cmd.ErrOrStderr(), "dsl-eval", cfg.LogLevel)
			app, err := bootstrap.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			evaluator, err := app.Evaluator(logger)
			if err != nil {
				return err
			}
			q, weights, err := evaluator.Preview(ctx, args[0], variant)
			if err != nil {
				return err
			}

			out := map[string]any{"variant": variant.String(), "query": q.Source()}
			if showWeights {
				out["weights"] = weights
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal query: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().StringVar(&filter, "dsl-filter", string(dsl.FilterNone), "filter mode")
	cmd.Flags().StringVar(&ranking, "dsl-ranking", string(dsl.RankingRandom), "ranking mode")
	cmd.Flags().BoolVar(&showWeights, "weights", false, "include the category weights used")
	return cmd
}
