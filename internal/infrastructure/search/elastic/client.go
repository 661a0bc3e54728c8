package elastic

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/resilience"
)

const defaultTimeout = 30 * time.Second

// Client runs function_score queries against one index over the _search API.
type Client struct {
	baseURL    string
	index      string
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(baseURL, index string, timeout time.Duration, executor *resilience.Executor, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		index:      strings.Trim(index, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
		logger:     logger,
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string                     `json:"_id"`
			Score  *float64                   `json:"_score"`
			Source map[string]json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (c *Client) Search(ctx context.Context, query dsl.Query) ([]domain.Hit, error) {
	var response searchResponse
	call := func(ctx context.Context) error {
		response = searchResponse{}
		return wrapTemporaryIfNeeded("search", c.postJSON(ctx, "/"+c.index+"/_search", query, &response, "search"))
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "elastic_search", call, classifySearchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	hits := make([]domain.Hit, 0, len(response.Hits.Hits))
	for _, h := range response.Hits.Hits {
		hit := domain.Hit{
			ID:              h.ID,
			Title:           firstString(h.Source, "title"),
			PrimaryCategory: firstString(h.Source, dsl.FieldCategoryName0),
			CategoryIDs:     make(map[domain.Depth]int64, len(domain.Depths)),
		}
		if hit.ID == "" {
			hit.ID = firstString(h.Source, "product_id", "original_id")
		}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		for _, d := range domain.Depths {
			field := dsl.CategoryField(d)
			raw, ok := h.Source[field]
			if !ok || isNull(raw) {
				continue
			}
			id, err := parseCategoryID(raw)
			if err != nil {
				c.logger.Warn("search_hit_category_dropped", "id", hit.ID, "field", field, "error", err)
				continue
			}
			hit.CategoryIDs[d] = id
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// firstString returns the first present field rendered as text. Ids are
// numbers on some documents and strings on others.
func firstString(source map[string]json.RawMessage, fields ...string) string {
	for _, f := range fields {
		raw, ok := source[f]
		if !ok || isNull(raw) {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// parseCategoryID accepts an integer or a string holding one.
func parseCategoryID(raw json.RawMessage) (int64, error) {
	text := string(raw)
	if strings.HasPrefix(text, `"`) {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
	}
	return domain.ParseCategoryID(text)
}
