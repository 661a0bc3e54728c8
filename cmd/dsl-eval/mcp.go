package main

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/search-dsl-eval/internal/adapters/mcp"
	"github.com/kirillkom/search-dsl-eval/internal/bootstrap"
	"github.com/kirillkom/search-dsl-eval/internal/config"
	"github.com/kirillkom/search-dsl-eval/internal/observability/logging"
)

func newMCPCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve query preview and label scoring tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol
			logger := logging.New(cmd.ErrOrStderr(), "dsl-eval-mcp", cfg.LogLevel)
			app, err := bootstrap.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			evaluator, err := app.Evaluator(logger)
			if err != nil {
				return err
			}
			logger.Info("mcp_server_started", "version", version)
			return mcpadapter.NewServer(evaluator, version, logger).ServeStdio()
		},
	}
}
