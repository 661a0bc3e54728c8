package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/search-dsl-eval/internal/config"
	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/repository/postgres"
)

func newHistoryCmd(cfg config.Config) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs stored in Postgres",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.PostgresDSN == "" {
				return domain.ConfigError("history", "POSTGRES_DSN is not set")
			}
			db, err := postgres.OpenDB(cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := postgres.NewRunRepository(db).ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FINISHED\tRUN\tVARIANT\tKEYWORDS\tPRECISION\tNDCG\tOUTPUT")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%.4f\t%s\n",
					r.FinishedAt.Local().Format(time.DateTime), shortID(r.RunID), r.Variant, r.Keywords, r.AvgPrecision, r.AvgNDCG, r.OutputPath)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func shortID(id string) string {
	return domain.Run{ID: id}.ShortID()
}
