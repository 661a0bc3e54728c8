package usecase

import (
	"log/slog"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/ports"
)

// Normalizer turns raw hits into result rows with resolved category labels.
type Normalizer struct {
	labels ports.CategoryLabels
	logger *slog.Logger
}

func NewNormalizer(labels ports.CategoryLabels, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{labels: labels, logger: logger}
}

// Normalize emits one row per hit. Rank follows response order starting at 1.
func (n *Normalizer) Normalize(keyword string, hits []domain.Hit) []domain.ResultRow {
	if len(hits) == 0 {
		n.logger.Warn("search_returned_no_hits", "keyword", keyword)
		return []domain.ResultRow{}
	}

	rows := make([]domain.ResultRow, 0, len(hits))
	for i, hit := range hits {
		rows = append(rows, domain.ResultRow{
			Keyword:        keyword,
			ProductID:      hit.ID,
			Title:          hit.Title,
			Category:       hit.PrimaryCategory,
			Depth1Category: n.label(hit, domain.Depth1),
			Depth2Category: n.label(hit, domain.Depth2),
			Depth3Category: n.label(hit, domain.Depth3),
			Rank:           i + 1,
			Score:          hit.Score,
		})
	}
	return rows
}

func (n *Normalizer) label(hit domain.Hit, d domain.Depth) *string {
	id, ok := hit.CategoryIDs[d]
	if !ok || n.labels == nil {
		return nil
	}
	name, ok := n.labels.Label(id)
	if !ok {
		return nil
	}
	return &name
}
