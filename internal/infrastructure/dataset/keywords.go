package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

const (
	ColumnKeyword         = "keyword"
	ColumnTopCategoryName = "top_category_name"
	ColumnQueryCount      = "query_count"
)

var keywordColumns = []string{ColumnKeyword, ColumnTopCategoryName, ColumnQueryCount}

// LoadKeywords reads the keyword file at path.
func LoadKeywords(path string, logger *slog.Logger) ([]domain.KeywordInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "open keywords file", err)
	}
	defer f.Close()
	return ReadKeywords(f, logger)
}

// ReadKeywords parses keyword rows. Extra columns are ignored, the first
// occurrence of a duplicate keyword wins and blank keywords are skipped.
func ReadKeywords(r io.Reader, logger *slog.Logger) ([]domain.KeywordInput, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reader := newReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "read keywords header", err)
	}
	index, err := columnIndex(header, keywordColumns)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "read keywords header", err)
	}

	seen := make(map[string]struct{})
	out := make([]domain.KeywordInput, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfig, "read keywords", err)
		}

		keyword := strings.TrimSpace(field(record, index[ColumnKeyword]))
		if keyword == "" {
			logger.Warn("keyword_row_skipped", "line", line, "reason", "empty keyword")
			continue
		}
		if _, dup := seen[keyword]; dup {
			logger.Warn("keyword_duplicate_dropped", "line", line, "keyword", keyword)
			continue
		}
		seen[keyword] = struct{}{}

		input := domain.KeywordInput{
			Keyword:         keyword,
			TopCategoryName: strings.TrimSpace(field(record, index[ColumnTopCategoryName])),
		}
		if raw := strings.TrimSpace(field(record, index[ColumnQueryCount])); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				logger.Warn("keyword_query_count_invalid", "line", line, "keyword", keyword, "value", raw)
			} else {
				input.QueryCount = &v
			}
		}
		out = append(out, input)
	}
	return out, nil
}

// WriteKeywords writes inputs back in the keyword file layout.
func WriteKeywords(w io.Writer, inputs []domain.KeywordInput) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(keywordColumns); err != nil {
		return fmt.Errorf("write keywords header: %w", err)
	}
	for _, in := range inputs {
		qc := ""
		if in.QueryCount != nil {
			qc = strconv.FormatFloat(*in.QueryCount, 'f', -1, 64)
		}
		if err := writer.Write([]string{in.Keyword, in.TopCategoryName, qc}); err != nil {
			return fmt.Errorf("write keyword %q: %w", in.Keyword, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

func columnIndex(header []string, required []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	var missing []string
	for _, name := range required {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}
