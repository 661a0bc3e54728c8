package featureplatform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/resilience"
)

const defaultCallTimeout = 5 * time.Second

// keywordNoise matches every rune the weight tables are not keyed on.
var keywordNoise = regexp.MustCompile(`[^ㄱ-ㅎ가-힣a-zA-Z0-9]`)

func SanitizeKeyword(keyword string) string {
	return keywordNoise.ReplaceAllString(keyword, "")
}

// Caller performs one JSON-in, JSON-out feature lookup.
type Caller interface {
	Call(ctx context.Context, request []byte) ([]byte, error)
}

type selector struct {
	resolve string
	group   string
	flags   map[string]bool
	parse   func(p *Provider, keyword string, group map[string]json.RawMessage) (domain.WeightSet, error)
}

var selectors = map[domain.Depth]selector{
	domain.Depth1: {
		resolve: "resolve_fleamarketarticle_searchcategoryweight_v1_features",
		group:   "fleamarketarticle_searchcategoryweight_v1_features",
		flags:   map[string]bool{"resolve_category_weights": true, "resolve_run_date": true},
		parse:   (*Provider).parseBoost,
	},
	domain.Depth3: {
		resolve: "resolve_fleamarketarticle_searchkeywordllmcategoryweight_v1_features",
		group:   "fleamarketarticle_searchkeywordllmcategoryweight_v1_features",
		flags: map[string]bool{
			"resolve_category_1_weights": true,
			"resolve_category_2_weights": true,
			"resolve_category_3_weights": true,
		},
		parse: (*Provider).parseLLMWeights,
	},
}

// Provider resolves keyword category weights from the feature platform.
// Depth 1 yields the fasttext boost list; depth 3 yields llm weights for all
// three depths.
type Provider struct {
	caller   Caller
	executor *resilience.Executor
	timeout  time.Duration
	logger   *slog.Logger
}

func NewProvider(caller Caller, executor *resilience.Executor, timeout time.Duration, logger *slog.Logger) *Provider {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{caller: caller, executor: executor, timeout: timeout, logger: logger}
}

// Weights never fails: problems are logged and an empty set is returned.
func (p *Provider) Weights(ctx context.Context, keyword string, depth domain.Depth) domain.WeightSet {
	sel, ok := selectors[depth]
	if !ok {
		p.logger.Error("feature_weights_unsupported_depth", "keyword", keyword, "depth", int(depth))
		return domain.WeightSet{}
	}
	clean := SanitizeKeyword(keyword)
	if clean == "" {
		p.logger.Warn("feature_weights_empty_keyword", "keyword", keyword)
		return domain.WeightSet{}
	}

	request, err := json.Marshal(map[string]any{
		"keyword":          clean,
		"feature_selector": map[string]any{sel.resolve: sel.flags},
	})
	if err != nil {
		p.logger.Error("feature_weights_request_failed", "keyword", clean, "error", err)
		return domain.WeightSet{}
	}

	body, err := p.call(ctx, request)
	if err != nil {
		p.logger.Error("feature_weights_call_failed", "keyword", clean, "depth", int(depth), "error", err)
		return domain.WeightSet{}
	}
	group, err := featureGroup(body, sel.group)
	if err != nil {
		p.logger.Error("feature_weights_malformed", "keyword", clean, "depth", int(depth), "error", err)
		return domain.WeightSet{}
	}
	if group == nil {
		p.logger.Info("feature_weights_missing", "keyword", clean, "depth", int(depth))
		return domain.WeightSet{}
	}
	weights, err := sel.parse(p, clean, group)
	if err != nil {
		p.logger.Error("feature_weights_malformed", "keyword", clean, "depth", int(depth), "error", err)
		return domain.WeightSet{}
	}
	return weights
}

func (p *Provider) call(ctx context.Context, request []byte) ([]byte, error) {
	invoke := func(ctx context.Context) ([]byte, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return p.caller.Call(callCtx, request)
	}
	if p.executor == nil {
		return invoke(ctx)
	}
	return resilience.Call(ctx, p.executor, "feature_platform", invoke, resilience.ClassifyTemporary)
}

func (p *Provider) parseBoost(_ string, group map[string]json.RawMessage) (domain.WeightSet, error) {
	names, err := parseBoostCategories(group["category_weights"])
	if err != nil {
		return domain.WeightSet{}, err
	}
	return domain.WeightSet{BoostCategories: names}, nil
}

func (p *Provider) parseLLMWeights(keyword string, group map[string]json.RawMessage) (domain.WeightSet, error) {
	var out domain.WeightSet
	for _, d := range domain.Depths {
		field := fmt.Sprintf("category_%d_weights", d)
		weights, dropped, err := parseDepthWeights(group[field])
		if err != nil {
			return domain.WeightSet{}, fmt.Errorf("%s: %w", field, err)
		}
		if len(dropped) > 0 {
			p.logger.Warn("feature_weights_entries_dropped", "keyword", keyword, "field", field, "entries", dropped)
		}
		for id, score := range weights {
			out.Set(d, id, score)
		}
	}
	return out, nil
}
