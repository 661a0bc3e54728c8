package ports

import (
	"context"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
)

// WeightProvider resolves category signals for a keyword. Failures are
// absorbed and reported as an empty set.
type WeightProvider interface {
	Weights(ctx context.Context, keyword string, depth domain.Depth) domain.WeightSet
}

// SearchIndex executes a built query and returns hits in relevance order.
type SearchIndex interface {
	Search(ctx context.Context, query dsl.Query) ([]domain.Hit, error)
}

// Grader sends a rendered prompt to the judging model and returns its raw reply.
type Grader interface {
	Grade(ctx context.Context, prompt string) (string, error)
}

// CategoryLabels maps category ids to display names.
type CategoryLabels interface {
	Label(categoryID int64) (string, bool)
}

// ReportWriter persists run artifacts.
type ReportWriter interface {
	WriteInputs(ctx context.Context, run domain.Run, inputs []domain.KeywordInput) error
	WriteVariant(ctx context.Context, run domain.Run, report domain.VariantReport) (string, error)
}

// RunStore keeps run history.
type RunStore interface {
	SaveVariantReport(ctx context.Context, run domain.Run, report domain.VariantReport) error
}

// EventPublisher announces finished variants.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, event domain.RunCompleted) error
}

// EvaluationRecorder receives evaluation telemetry.
type EvaluationRecorder interface {
	ObserveSearch(variant string, took time.Duration, err error)
	ObserveWeights(depth domain.Depth, empty bool)
	ObserveJudgement(ok bool, took time.Duration)
	ObserveKeyword(took time.Duration)
	SetVariantMetrics(variant string, metrics domain.CorpusMetrics)
}
