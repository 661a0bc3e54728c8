package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

// Grader judges listings with a local model through /api/generate in JSON mode.
type Grader struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(baseURL, model string, timeout time.Duration) (*Grader, error) {
	if strings.TrimSpace(baseURL) == "" || strings.TrimSpace(model) == "" {
		return nil, domain.ConfigError("new ollama grader", "base url and model are required")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Grader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (g *Grader) Grade(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":   g.model,
		"prompt":  prompt,
		"stream":  false,
		"format":  "json",
		"options": map[string]any{"temperature": 0},
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := g.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return extractJSONObject(strings.TrimSpace(response.Response)), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
