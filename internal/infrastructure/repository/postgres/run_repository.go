package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

const schemaLockID int64 = 2026101801

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across cli/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS eval_runs (
	run_id TEXT NOT NULL,
	variant TEXT NOT NULL,
	filter TEXT NOT NULL,
	ranking TEXT NOT NULL,
	keywords INTEGER NOT NULL,
	avg_precision DOUBLE PRECISION NOT NULL,
	avg_ndcg DOUBLE PRECISION NOT NULL,
	metrics JSONB NOT NULL,
	output_path TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, variant)
);

CREATE TABLE IF NOT EXISTS eval_keyword_metrics (
	run_id TEXT NOT NULL,
	variant TEXT NOT NULL,
	keyword TEXT NOT NULL,
	precision DOUBLE PRECISION NOT NULL,
	ndcg DOUBLE PRECISION NOT NULL,
	relevant_count INTEGER NOT NULL,
	total_count INTEGER NOT NULL,
	result_count INTEGER NOT NULL,
	query_count DOUBLE PRECISION,
	PRIMARY KEY (run_id, variant, keyword),
	FOREIGN KEY (run_id, variant) REFERENCES eval_runs(run_id, variant) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_eval_runs_finished_at ON eval_runs(finished_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveVariantReport stores the corpus metrics and per-keyword rows of one
// variant. Saving the same run and variant again replaces the previous rows.
func (r *RunRepository) SaveVariantReport(ctx context.Context, run domain.Run, report domain.VariantReport) error {
	metricsJSON, err := json.Marshal(report.Corpus)
	if err != nil {
		return fmt.Errorf("marshal corpus metrics: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO eval_runs (run_id, variant, filter, ranking, keywords, avg_precision, avg_ndcg, metrics, output_path, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (run_id, variant) DO UPDATE
SET keywords = EXCLUDED.keywords, avg_precision = EXCLUDED.avg_precision, avg_ndcg = EXCLUDED.avg_ndcg,
	metrics = EXCLUDED.metrics, output_path = EXCLUDED.output_path, finished_at = EXCLUDED.finished_at
`, run.ID, report.Name, report.Filter, report.Ranking, len(report.Outcomes), report.Corpus.AvgPrecision,
		report.Corpus.AvgNDCG, metricsJSON, nullableString(report.OutputPath), report.StartedAt.UTC(), report.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert eval run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM eval_keyword_metrics WHERE run_id = $1 AND variant = $2`, run.ID, report.Name); err != nil {
		return fmt.Errorf("clear keyword metrics: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO eval_keyword_metrics (run_id, variant, keyword, precision, ndcg, relevant_count, total_count, result_count, query_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`)
	if err != nil {
		return fmt.Errorf("prepare keyword metrics insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range report.Outcomes {
		m := o.Metrics
		if _, err := stmt.ExecContext(ctx, run.ID, report.Name, m.Keyword, m.Precision, m.NDCG,
			m.RelevantCount, m.TotalCount, m.ResultCount, nullableFloat(o.Input.QueryCount)); err != nil {
			return fmt.Errorf("insert keyword metrics %q: %w", m.Keyword, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

// ListRecent returns the latest stored variant runs, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, variant, keywords, avg_precision, avg_ndcg, COALESCE(output_path, ''), finished_at
FROM eval_runs
ORDER BY finished_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list eval runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RunSummary, 0, limit)
	for rows.Next() {
		var s domain.RunSummary
		if err := rows.Scan(&s.RunID, &s.Variant, &s.Keywords, &s.AvgPrecision, &s.AvgNDCG, &s.OutputPath, &s.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan eval run: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eval runs: %w", err)
	}
	return out, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
