package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/ports"
)

//go:embed prompts/judge.tmpl
var defaultJudgePrompt string

const (
	DefaultJudgeMaxRows = 64
	DefaultJudgeWorkers = 16
)

// ParseJudgePrompt compiles a prompt template. The template sees the keys
// query, query_category, title and category. An empty source selects the
// built-in prompt.
func ParseJudgePrompt(src string) (*template.Template, error) {
	if strings.TrimSpace(src) == "" {
		src = defaultJudgePrompt
	}
	tmpl, err := template.New("judge").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "parse judge prompt", err)
	}
	return tmpl, nil
}

type JudgeConfig struct {
	MaxRows     int
	Workers     int
	CallTimeout time.Duration
	Prompt      *template.Template
}

// Judge grades result rows through an external model. Failed rows are
// dropped, never retried.
type Judge struct {
	grader   ports.Grader
	cfg      JudgeConfig
	recorder ports.EvaluationRecorder
	logger   *slog.Logger
}

func NewJudge(grader ports.Grader, cfg JudgeConfig, recorder ports.EvaluationRecorder, logger *slog.Logger) (*Judge, error) {
	if grader == nil {
		return nil, domain.ConfigError("new judge", "grader is required")
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultJudgeMaxRows
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultJudgeWorkers
	}
	if cfg.Prompt == nil {
		prompt, err := ParseJudgePrompt("")
		if err != nil {
			return nil, err
		}
		cfg.Prompt = prompt
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{grader: grader, cfg: cfg, recorder: recorder, logger: logger}, nil
}

type gradedRow struct {
	productID string
	verdict   domain.Verdict
}

// JudgeRows grades the first MaxRows rows concurrently and returns the
// successful verdicts joined to their rows by product id, in rank order.
func (j *Judge) JudgeRows(ctx context.Context, input domain.KeywordInput, rows []domain.ResultRow) []domain.JudgedRow {
	batch := j.batch(rows)
	if len(batch) == 0 {
		return []domain.JudgedRow{}
	}

	var (
		mu     sync.Mutex
		graded = make([]gradedRow, 0, len(batch))
		g      errgroup.Group
	)
	g.SetLimit(j.cfg.Workers)
	for _, row := range batch {
		g.Go(func() error {
			verdict, err := j.grade(ctx, input, row)
			if err != nil {
				j.logger.Error("judge_row_failed",
					"keyword", input.Keyword,
					"product_id", row.ProductID,
					"rank", row.Rank,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			graded = append(graded, gradedRow{productID: row.ProductID, verdict: verdict})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return joinVerdicts(batch, graded)
}

// batch truncates to MaxRows and keeps the first row of any repeated
// product id so the join key stays unique.
func (j *Judge) batch(rows []domain.ResultRow) []domain.ResultRow {
	if len(rows) > j.cfg.MaxRows {
		rows = rows[:j.cfg.MaxRows]
	}
	seen := make(map[string]struct{}, len(rows))
	out := make([]domain.ResultRow, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.ProductID]; dup {
			j.logger.Warn("judge_duplicate_product", "keyword", row.Keyword, "product_id", row.ProductID, "rank", row.Rank)
			continue
		}
		seen[row.ProductID] = struct{}{}
		out = append(out, row)
	}
	return out
}

func joinVerdicts(rows []domain.ResultRow, graded []gradedRow) []domain.JudgedRow {
	byID := make(map[string]domain.ResultRow, len(rows))
	for _, row := range rows {
		byID[row.ProductID] = row
	}
	out := make([]domain.JudgedRow, 0, len(graded))
	for _, g := range graded {
		row, ok := byID[g.productID]
		if !ok {
			continue
		}
		out = append(out, domain.JudgedRow{ResultRow: row, Verdict: g.verdict})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Rank < out[b].Rank })
	return out
}

func (j *Judge) grade(ctx context.Context, input domain.KeywordInput, row domain.ResultRow) (domain.Verdict, error) {
	prompt, err := j.render(input, row)
	if err != nil {
		return domain.Verdict{}, err
	}

	callCtx := ctx
	if j.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, j.cfg.CallTimeout)
		defer cancel()
	}

	started := time.Now()
	raw, err := j.grader.Grade(callCtx, prompt)
	if err != nil {
		j.recorder.ObserveJudgement(false, time.Since(started))
		return domain.Verdict{}, fmt.Errorf("grade row: %w", err)
	}
	verdict, err := ParseVerdict(raw)
	j.recorder.ObserveJudgement(err == nil, time.Since(started))
	return verdict, err
}

func (j *Judge) render(input domain.KeywordInput, row domain.ResultRow) (string, error) {
	var buf bytes.Buffer
	err := j.cfg.Prompt.Execute(&buf, map[string]string{
		"query":          input.Keyword,
		"query_category": input.TopCategoryName,
		"title":          row.Title,
		"category":       promptCategory(row),
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrConfig, "render judge prompt", err)
	}
	return buf.String(), nil
}

// promptCategory is the deepest resolved category label, else the primary one.
func promptCategory(row domain.ResultRow) string {
	for _, d := range []domain.Depth{domain.Depth3, domain.Depth2, domain.Depth1} {
		if label := row.CategoryLabel(d); label != nil && *label != "" {
			return *label
		}
	}
	return row.Category
}

type verdictPayload struct {
	Score         json.RawMessage `json:"Score"`
	CoreIntent    string          `json:"Core_intent"`
	AdsCoreIntent string          `json:"Ads_core_intent"`
}

// ParseVerdict reads the first JSON object in a model reply.
func ParseVerdict(raw string) (domain.Verdict, error) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return domain.Verdict{}, domain.WrapError(domain.ErrMalformedVerdict, "parse verdict", errors.New("no json object in reply"))
	}

	var payload verdictPayload
	if err := json.NewDecoder(strings.NewReader(raw[start:])).Decode(&payload); err != nil {
		return domain.Verdict{}, domain.WrapError(domain.ErrMalformedVerdict, "parse verdict", err)
	}
	score, err := parseScore(payload.Score)
	if err != nil {
		return domain.Verdict{}, domain.WrapError(domain.ErrMalformedVerdict, "parse verdict", err)
	}
	return domain.Verdict{
		Label:         score,
		CoreIntent:    payload.CoreIntent,
		AdsCoreIntent: payload.AdsCoreIntent,
	}, nil
}

func parseScore(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("missing Score")
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || value != math.Trunc(value) {
		return 0, fmt.Errorf("score %s is not an integer", raw)
	}
	if value != 0 && value != 1 {
		return 0, fmt.Errorf("score %s outside {0,1}", raw)
	}
	return int(value), nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveSearch(string, time.Duration, error) {}
func (nopRecorder) ObserveWeights(domain.Depth, bool) {}
func (nopRecorder) ObserveJudgement(bool, time.Duration) {}
func (nopRecorder) ObserveKeyword(time.Duration) {}
func (nopRecorder) SetVariantMetrics(string, domain.CorpusMetrics) {}
