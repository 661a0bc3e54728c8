package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type labelsFake map[int64]string

func (f labelsFake) Label(id int64) (string, bool) {
	name, ok := f[id]
	return name, ok
}

// graderFake answers by title: the reply registered for the title is
// returned, unknown titles fail.
type graderFake struct {
	mu      sync.Mutex
	replies map[string]string
	prompts []string
	delay   time.Duration
}

func (f *graderFake) Grade(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	for title, reply := range f.replies {
		if strings.Contains(prompt, "Listing title: "+title+"\n") {
			return reply, nil
		}
	}
	return "", errors.New("grader unavailable")
}

type weightsFake struct {
	mu    sync.Mutex
	byKey map[string]map[domain.Depth]domain.WeightSet
	calls []domain.Depth
}

func (f *weightsFake) Weights(_ context.Context, keyword string, depth domain.Depth) domain.WeightSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, depth)
	return f.byKey[keyword][depth]
}

type searchFake struct {
	hits    map[string][]domain.Hit
	err     error
	queries []dsl.Query
}

func (f *searchFake) Search(_ context.Context, q dsl.Query) ([]domain.Hit, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range q.Filters {
		if c.Kind == dsl.KindMatch {
			return f.hits[c.Query], nil
		}
	}
	return nil, nil
}

type reportsFake struct {
	inputs   []domain.KeywordInput
	variants []domain.VariantReport
	err      error
}

func (f *reportsFake) WriteInputs(_ context.Context, _ domain.Run, inputs []domain.KeywordInput) error {
	f.inputs = inputs
	return nil
}

func (f *reportsFake) WriteVariant(_ context.Context, run domain.Run, report domain.VariantReport) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.variants = append(f.variants, report)
	return run.Dir + "/" + report.Name, nil
}

type runStoreFake struct {
	saved []string
	err   error
}

func (f *runStoreFake) SaveVariantReport(_ context.Context, _ domain.Run, report domain.VariantReport) error {
	f.saved = append(f.saved, report.Name)
	return f.err
}

type publisherFake struct {
	events []domain.RunCompleted
}

func (f *publisherFake) PublishRunCompleted(_ context.Context, event domain.RunCompleted) error {
	f.events = append(f.events, event)
	return nil
}

func verdictReply(score int) string {
	return fmt.Sprintf(`{"Core_intent":"intent","Ads_core_intent":"offer","Score":%d}`, score)
}

func volume(v float64) *float64 {
	return &v
}
