package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/core/dsl"
	"github.com/kirillkom/search-dsl-eval/internal/core/ports"
	"github.com/kirillkom/search-dsl-eval/internal/core/usecase"
)

const (
	ToolBuildQuery  = "build_query"
	ToolScoreLabels = "score_labels"
	ToolListModes   = "list_modes"
)

// Server exposes query previews and label scoring as MCP tools.
type Server struct {
	previewer ports.QueryPreviewer
	logger    *slog.Logger
	mcp       *server.MCPServer
}

func NewServer(previewer ports.QueryPreviewer, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		previewer: previewer,
		logger:    logger,
		mcp:       server.NewMCPServer("search-dsl-eval", version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool(ToolBuildQuery,
		mcp.WithDescription("Build the search query a filter/ranking variant sends for one keyword, with the category weights it used."),
		mcp.WithString("keyword", mcp.Required(), mcp.Description("Search keyword")),
		mcp.WithString("filter", mcp.Required(), mcp.Description("Filter mode, see list_modes")),
		mcp.WithString("ranking", mcp.Required(), mcp.Description("Ranking mode, see list_modes")),
	), s.handleBuildQuery)

	s.mcp.AddTool(mcp.NewTool(ToolScoreLabels,
		mcp.WithDescription("Compute precision and NDCG for binary relevance labels in rank order."),
		mcp.WithArray("labels", mcp.Required(), mcp.Description("0/1 labels, best rank first"),
			mcp.Items(map[string]any{"type": "integer", "enum": []int{0, 1}})),
	), s.handleScoreLabels)

	s.mcp.AddTool(mcp.NewTool(ToolListModes,
		mcp.WithDescription("List the supported filter and ranking modes."),
	), s.handleListModes)

	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

type buildQueryResult struct {
	Variant string           `json:"variant"`
	Query   map[string]any   `json:"query"`
	Weights domain.WeightSet `json:"weights"`
}

func (s *Server) handleBuildQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword, err := req.RequireString("keyword")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	variant, err := dsl.ParseVariant(req.GetString("filter", ""), req.GetString("ranking", ""))
	if err != nil {
		return toolError(err), nil
	}

	q, weights, err := s.previewer.Preview(ctx, keyword, variant)
	if err != nil {
		s.logger.Warn("mcp_build_query_failed", "keyword", keyword, "variant", variant.String(), "error", err)
		return toolError(err), nil
	}
	return jsonResult(buildQueryResult{Variant: variant.String(), Query: q.Source(), Weights: weights})
}

type scoreResult struct {
	Precision     float64 `json:"precision"`
	NDCG          float64 `json:"ndcg"`
	RelevantCount int     `json:"relevant_count"`
	TotalCount    int     `json:"total_count"`
}

func (s *Server) handleScoreLabels(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	labels, err := parseLabels(req.GetArguments()["labels"])
	if err != nil {
		return toolError(err), nil
	}
	relevant := 0
	for _, l := range labels {
		relevant += l
	}
	return jsonResult(scoreResult{
		Precision:     usecase.Precision(labels),
		NDCG:          usecase.NDCG(labels),
		RelevantCount: relevant,
		TotalCount:    len(labels),
	})
}

func (s *Server) handleListModes(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"filters":  dsl.FilterModes(),
		"rankings": dsl.RankingModes(),
	})
}

func parseLabels(raw any) ([]int, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse labels", fmt.Errorf("labels must be an array, got %T", raw))
	}
	labels := make([]int, 0, len(items))
	for i, item := range items {
		v, ok := item.(float64)
		if !ok || (v != 0 && v != 1) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse labels", fmt.Errorf("label %d must be 0 or 1, got %v", i, item))
		}
		labels = append(labels, int(v))
	}
	return labels, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", errorKind(err), err))
}

func errorKind(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrConfig):
		return "configuration error"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid input"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporarily unavailable"
	case domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return "upstream unavailable"
	default:
		return "internal error"
	}
}
