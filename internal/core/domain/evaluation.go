package domain

import "time"

// KeywordInput is one line of the keyword file.
type KeywordInput struct {
	Keyword         string   `json:"keyword"`
	TopCategoryName string   `json:"top_category_name"`
	QueryCount      *float64 `json:"query_count,omitempty"`
}

// Hit is one document returned by the search index, in response order.
type Hit struct {
	ID              string
	Title           string
	Score           float64
	PrimaryCategory string
	// CategoryIDs holds llm category ids by depth; a missing depth means the
	// field was absent on the document.
	CategoryIDs map[Depth]int64
}

type ResultRow struct {
	Keyword        string  `json:"keyword"`
	ProductID      string  `json:"product_id"`
	Title          string  `json:"title"`
	Category       string  `json:"category"`
	Depth1Category *string `json:"depth1_category"`
	Depth2Category *string `json:"depth2_category"`
	Depth3Category *string `json:"depth3_category"`
	Rank           int     `json:"rank"`
	Score          float64 `json:"score"`
}

// CategoryLabel returns the resolved label for a depth.
func (r ResultRow) CategoryLabel(d Depth) *string {
	switch d {
	case Depth1:
		return r.Depth1Category
	case Depth2:
		return r.Depth2Category
	case Depth3:
		return r.Depth3Category
	default:
		return nil
	}
}

type Verdict struct {
	Label         int    `json:"label"`
	CoreIntent    string `json:"core_intent"`
	AdsCoreIntent string `json:"ads_core_intent"`
}

type JudgedRow struct {
	ResultRow
	Verdict
}

type KeywordMetrics struct {
	Keyword       string  `json:"keyword"`
	Precision     float64 `json:"precision"`
	NDCG          float64 `json:"ndcg"`
	RelevantCount int     `json:"relevant_count"`
	TotalCount    int     `json:"total_count"`
	ResultCount   int     `json:"result_count"`
}

type CorpusMetrics struct {
	AvgPrecision          float64  `json:"avg_precision"`
	AvgNDCG               float64  `json:"avg_ndcg"`
	AvgRelevantPerKeyword float64  `json:"avg_relevant_per_keyword"`
	AvgResultsPerKeyword  float64  `json:"avg_results_per_keyword"`
	TotalKeywords         int      `json:"total_keywords"`
	TotalResults          int      `json:"total_results"`
	TotalRelevant         int      `json:"total_relevant"`
	PrecisionStd          float64  `json:"precision_std"`
	NDCGStd               float64  `json:"ndcg_std"`
	PrecisionMedian       float64  `json:"precision_median"`
	NDCGMedian            float64  `json:"ndcg_median"`
	WeightedPrecision     *float64 `json:"weighted_precision,omitempty"`
	WeightedNDCG          *float64 `json:"weighted_ndcg,omitempty"`
}

// RunCompleted is published once per evaluated variant.
type RunCompleted struct {
	RunID      string        `json:"run_id"`
	Filter     string        `json:"filter"`
	Ranking    string        `json:"ranking"`
	Keywords   int           `json:"keywords"`
	Metrics    CorpusMetrics `json:"metrics"`
	OutputPath string        `json:"output_path,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// EvaluationRequest asks a worker to run an evaluation.
type EvaluationRequest struct {
	KeywordsFile string   `json:"keywords_file"`
	Variants     []string `json:"variants"`
}
