package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

const (
	sheetResults  = "results"
	sheetKeywords = "keyword_metrics"
	sheetSummary  = "summary"
)

// writeWorkbook renders the detailed results, per-keyword metrics and the
// corpus summary as three sheets.
func writeWorkbook(w io.Writer, report domain.VariantReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetResults); err != nil {
		return err
	}
	if err := writeSheet(f, sheetResults, detailedRows(report)); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetKeywords); err != nil {
		return err
	}
	if err := writeSheet(f, sheetKeywords, keywordMetricRows(report)); err != nil {
		return err
	}
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}
	if err := writeSheet(f, sheetSummary, summaryRows(report)); err != nil {
		return err
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, rows [][]string) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet %s: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("write sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return sw.Flush()
}

func summaryRows(report domain.VariantReport) [][]string {
	c := report.Corpus
	rows := [][]string{
		{"metric", "value"},
		{"filter", report.Filter},
		{"ranking", report.Ranking},
		{"avg_precision", formatFloat(c.AvgPrecision)},
		{"avg_ndcg", formatFloat(c.AvgNDCG)},
		{"avg_relevant_per_keyword", formatFloat(c.AvgRelevantPerKeyword)},
		{"avg_results_per_keyword", formatFloat(c.AvgResultsPerKeyword)},
		{"total_keywords", fmt.Sprint(c.TotalKeywords)},
		{"total_results", fmt.Sprint(c.TotalResults)},
		{"total_relevant", fmt.Sprint(c.TotalRelevant)},
		{"precision_std", formatFloat(c.PrecisionStd)},
		{"ndcg_std", formatFloat(c.NDCGStd)},
		{"precision_median", formatFloat(c.PrecisionMedian)},
		{"ndcg_median", formatFloat(c.NDCGMedian)},
	}
	if c.WeightedPrecision != nil {
		rows = append(rows, []string{"weighted_precision", formatFloat(*c.WeightedPrecision)})
	}
	if c.WeightedNDCG != nil {
		rows = append(rows, []string{"weighted_ndcg", formatFloat(*c.WeightedNDCG)})
	}
	return rows
}
