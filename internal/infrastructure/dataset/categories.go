package dataset

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

const (
	ColumnCategoryID   = "category_id"
	ColumnCategoryName = "category_name_ko"
)

// CategoryLabels is an in-memory id to name table.
type CategoryLabels struct {
	names map[int64]string
}

func NewCategoryLabels(names map[int64]string) *CategoryLabels {
	if names == nil {
		names = map[int64]string{}
	}
	return &CategoryLabels{names: names}
}

func (c *CategoryLabels) Label(categoryID int64) (string, bool) {
	name, ok := c.names[categoryID]
	return name, ok
}

func (c *CategoryLabels) Len() int {
	return len(c.names)
}

func LoadCategoryLabels(path string, logger *slog.Logger) (*CategoryLabels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "open category info", err)
	}
	defer f.Close()
	return ReadCategoryLabels(f, logger)
}

// ReadCategoryLabels parses the category table. Rows with an unparsable id
// are skipped; a repeated id keeps its last name.
func ReadCategoryLabels(r io.Reader, logger *slog.Logger) (*CategoryLabels, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reader := newReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "read category header", err)
	}
	index, err := columnIndex(header, []string{ColumnCategoryID, ColumnCategoryName})
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "read category header", err)
	}

	names := make(map[int64]string)
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrConfig, "read category info", err)
		}
		id, err := domain.ParseCategoryID(field(record, index[ColumnCategoryID]))
		if err != nil {
			skipped++
			continue
		}
		names[id] = strings.TrimSpace(field(record, index[ColumnCategoryName]))
	}
	if skipped > 0 {
		logger.Warn("category_rows_skipped", "count", skipped)
	}
	return NewCategoryLabels(names), nil
}
