package usecase

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

// Precision is the share of positive labels, 0 for an empty group.
func Precision(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	relevant := 0
	for _, l := range labels {
		if l > 0 {
			relevant++
		}
	}
	return float64(relevant) / float64(len(labels))
}

// NDCG scores labels given in rank order against their ideal ordering.
// It is 0 when no label is positive.
func NDCG(labels []int) float64 {
	ideal := append([]int(nil), labels...)
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))

	idcg := dcg(ideal)
	if idcg == 0 {
		return 0
	}
	return dcg(labels) / idcg
}

func dcg(labels []int) float64 {
	sum := 0.0
	for i, l := range labels {
		sum += float64(l) / math.Log2(float64(i+2))
	}
	return sum
}

// KeywordScore reduces one keyword's judged rows, which must be in rank
// order. resultCount is the number of hits the search returned.
func KeywordScore(keyword string, judged []domain.JudgedRow, resultCount int) domain.KeywordMetrics {
	labels := make([]int, 0, len(judged))
	relevant := 0
	for _, row := range judged {
		labels = append(labels, row.Label)
		if row.Label > 0 {
			relevant++
		}
	}
	return domain.KeywordMetrics{
		Keyword:       keyword,
		Precision:     Precision(labels),
		NDCG:          NDCG(labels),
		RelevantCount: relevant,
		TotalCount:    len(judged),
		ResultCount:   resultCount,
	}
}

// Summarize aggregates per-keyword metrics. Volume-weighted figures use the
// keywords that carry a query count and are left nil when the known volume
// sums to zero.
func Summarize(outcomes []domain.KeywordOutcome) domain.CorpusMetrics {
	n := len(outcomes)
	out := domain.CorpusMetrics{TotalKeywords: n}
	if n == 0 {
		return out
	}

	precision := make([]float64, n)
	ndcg := make([]float64, n)
	relevant := make([]float64, n)
	results := make([]float64, n)
	for i, o := range outcomes {
		precision[i] = o.Metrics.Precision
		ndcg[i] = o.Metrics.NDCG
		relevant[i] = float64(o.Metrics.RelevantCount)
		results[i] = float64(o.Metrics.ResultCount)
		out.TotalRelevant += o.Metrics.RelevantCount
		out.TotalResults += o.Metrics.ResultCount
	}

	out.AvgPrecision = stat.Mean(precision, nil)
	out.AvgNDCG = stat.Mean(ndcg, nil)
	out.AvgRelevantPerKeyword = stat.Mean(relevant, nil)
	out.AvgResultsPerKeyword = stat.Mean(results, nil)
	out.PrecisionStd = sampleStd(precision)
	out.NDCGStd = sampleStd(ndcg)
	out.PrecisionMedian = median(precision)
	out.NDCGMedian = median(ndcg)

	var wPrecision, wNDCG, volumes []float64
	total := 0.0
	for _, o := range outcomes {
		v := o.Input.QueryCount
		if v == nil || math.IsNaN(*v) || *v < 0 {
			continue
		}
		wPrecision = append(wPrecision, o.Metrics.Precision)
		wNDCG = append(wNDCG, o.Metrics.NDCG)
		volumes = append(volumes, *v)
		total += *v
	}
	if total > 0 {
		p := stat.Mean(wPrecision, volumes)
		g := stat.Mean(wNDCG, volumes)
		out.WeightedPrecision = &p
		out.WeightedNDCG = &g
	}
	return out
}

func sampleStd(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
