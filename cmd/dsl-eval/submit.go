package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/search-dsl-eval/internal/config"
	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/search-dsl-eval/internal/observability/logging"
)

func newSubmitCmd(cfg config.Config) *cobra.Command {
	var (
		flags        variantFlags
		keywordsFile string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue an evaluation for the worker over NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			variants, err := flags.resolve()
			if err != nil {
				return err
			}
			if cfg.NATSURL == "" {
				return domain.ConfigError("submit", "NATS_URL is not set")
			}

			queue, err := nats.New(cfg.NATSURL, nats.Options{
				RequestsSubject: cfg.NATSRequestsSubject,
				Logger:          logging.New(cmd.ErrOrStderr(), "dsl-eval", cfg.LogLevel),
			})
			if err != nil {
				return err
			}
			defer queue.Close()

			req := domain.EvaluationRequest{KeywordsFile: keywordsFile}
			for _, v := range variants {
				req.Variants = append(req.Variants, v.String())
			}
			if err := queue.PublishEvaluationRequest(cmd.Context(), req); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "queued %d variant(s) for %s on %s\n", len(req.Variants), keywordsFile, cfg.NATSRequestsSubject)
			return err
		},
	}
	flags.register(cmd, cfg)
	cmd.Flags().StringVar(&keywordsFile, "keywords-file", "", "keyword CSV path as seen by the worker")
	_ = cmd.MarkFlagRequired("keywords-file")
	return cmd
}
