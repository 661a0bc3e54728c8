package ports

import (
	"context"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
)

// Evaluator runs every variant over the keyword list.
type Evaluator interface {
	Evaluate(ctx context.Context, run domain.Run, inputs []domain.KeywordInput, variants []dsl.Variant) ([]domain.VariantReport, error)
}

// QueryPreviewer builds the query a variant would send for one keyword.
type QueryPreviewer interface {
	Preview(ctx context.Context, keyword string, variant dsl.Variant) (dsl.Query, domain.WeightSet, error)
}
