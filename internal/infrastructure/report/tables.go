package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

var (
	detailedHeader = []string{
		"keyword", "title", "label", "core_intent", "ads_core_intent", "score", "num_results",
		"query_count", "depth1_category", "depth2_category", "depth3_category",
	}
	slimHeader          = []string{"keyword", "title", "label", "score"}
	keywordMetricHeader = []string{"keyword", "precision", "ndcg", "relevant_count", "total_count", "result_count", "query_count"}
)

// detailedRows lists every judged row; keywords without verdicts contribute none.
func detailedRows(report domain.VariantReport) [][]string {
	rows := [][]string{detailedHeader}
	for _, o := range report.Outcomes {
		for _, j := range o.Judged {
			rows = append(rows, []string{
				o.Input.Keyword,
				j.Title,
				strconv.Itoa(j.Label),
				j.CoreIntent,
				j.AdsCoreIntent,
				formatFloat(j.Score),
				strconv.Itoa(len(o.Results)),
				formatOptional(o.Input.QueryCount),
				deref(j.Depth1Category),
				deref(j.Depth2Category),
				deref(j.Depth3Category),
			})
		}
	}
	return rows
}

func slimRows(report domain.VariantReport) [][]string {
	rows := [][]string{slimHeader}
	for _, o := range report.Outcomes {
		for _, j := range o.Judged {
			rows = append(rows, []string{o.Input.Keyword, j.Title, strconv.Itoa(j.Label), formatFloat(j.Score)})
		}
	}
	return rows
}

func keywordMetricRows(report domain.VariantReport) [][]string {
	rows := [][]string{keywordMetricHeader}
	for _, o := range report.Outcomes {
		m := o.Metrics
		rows = append(rows, []string{
			m.Keyword,
			formatFloat(m.Precision),
			formatFloat(m.NDCG),
			strconv.Itoa(m.RelevantCount),
			strconv.Itoa(m.TotalCount),
			strconv.Itoa(m.ResultCount),
			formatOptional(o.Input.QueryCount),
		})
	}
	return rows
}

func writeCSV(w io.Writer, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
