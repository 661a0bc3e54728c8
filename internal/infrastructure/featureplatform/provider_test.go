package featureplatform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/resilience"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type callerFake struct {
	responses []string
	errs      []error
	requests  []map[string]any
}

func (f *callerFake) Call(ctx context.Context, request []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("call without deadline")
	}
	var req map[string]any
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, err
	}
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return []byte(f.responses[i]), nil
	}
	return []byte(f.responses[len(f.responses)-1]), nil
}

func TestSanitizeKeyword(t *testing.T) {
	cases := map[string]string{
		"마스크 KF94!":   "마스크KF94",
		"ㅋㅋ 캠핑-텐트":    "ㅋㅋ캠핑텐트",
		"  ":          "",
		"café (new)":  "cafnew",
		"아이폰15 pro…": "아이폰15pro",
	}
	for in, want := range cases {
		if got := SanitizeKeyword(in); got != want {
			t.Fatalf("SanitizeKeyword(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWeightsDepth1ReturnsBoostCategories(t *testing.T) {
	caller := &callerFake{responses: []string{`{"searchkeyword_view_entity":{"fleamarketarticle_searchcategoryweight_v1_features":{
		"category_weights":"[{\"hoian_category_name\":\"beauty\",\"is_boost\":1},{\"hoian_category_name\":\"toys\",\"is_boost\":0},{\"hoian_category_name\":\"health\",\"is_boost\":\"1\"}]",
		"run_date":"2024-05-01"}}}`}}
	p := NewProvider(caller, nil, time.Second, quietLogger())

	w := p.Weights(context.Background(), "마스크 팩!", domain.Depth1)
	if len(w.BoostCategories) != 2 || w.BoostCategories[0] != "beauty" || w.BoostCategories[1] != "health" {
		t.Fatalf("unexpected boost categories %v", w.BoostCategories)
	}

	req := caller.requests[0]
	if req["keyword"] != "마스크팩" {
		t.Fatalf("keyword must be sanitised, got %v", req["keyword"])
	}
	sel := req["feature_selector"].(map[string]any)["resolve_fleamarketarticle_searchcategoryweight_v1_features"].(map[string]any)
	if sel["resolve_category_weights"] != true || sel["resolve_run_date"] != true {
		t.Fatalf("unexpected selector %v", sel)
	}
}

func TestWeightsDepth3FillsAllDepths(t *testing.T) {
	caller := &callerFake{responses: []string{`{"searchkeyword_view_entity":{"fleamarketarticle_searchkeywordllmcategoryweight_v1_features":{
		"category_1_weights":"{\"101\":3,\"102\":\"2\",\"oops\":1}",
		"category_2_weights":[{"category_id":201,"score":1},{"id":"202","weight":3},{"category_id":"x","score":2}],
		"category_3_weights":""}}}`}}
	p := NewProvider(caller, nil, time.Second, quietLogger())

	w := p.Weights(context.Background(), "mask", domain.Depth3)
	if got := w.At(domain.Depth1); len(got) != 2 || got[101] != 3 || got[102] != 2 {
		t.Fatalf("unexpected depth1 weights %v", got)
	}
	if got := w.At(domain.Depth2); len(got) != 2 || got[201] != 1 || got[202] != 3 {
		t.Fatalf("unexpected depth2 weights %v", got)
	}
	if w.HasDepth(domain.Depth3) {
		t.Fatalf("empty depth3 payload must stay empty")
	}
}

func TestWeightsDegradeToEmpty(t *testing.T) {
	cases := map[string]*callerFake{
		"transport":  {errs: []error{errors.New("connection refused")}, responses: []string{"{}"}},
		"malformed":  {responses: []string{`not json`}},
		"bad field":  {responses: []string{`{"searchkeyword_view_entity":{"fleamarketarticle_searchkeywordllmcategoryweight_v1_features":{"category_1_weights":"[1,"}}}`}},
		"no feature": {responses: []string{`{"searchkeyword_view_entity":{}}`}},
	}
	for name, caller := range cases {
		t.Run(name, func(t *testing.T) {
			p := NewProvider(caller, nil, time.Second, quietLogger())
			if w := p.Weights(context.Background(), "mask", domain.Depth3); !w.Empty() {
				t.Fatalf("expected empty weights, got %+v", w)
			}
		})
	}
}

func TestWeightsUnsupportedDepthSkipsCall(t *testing.T) {
	caller := &callerFake{responses: []string{"{}"}}
	p := NewProvider(caller, nil, time.Second, quietLogger())
	if w := p.Weights(context.Background(), "mask", domain.Depth2); !w.Empty() {
		t.Fatalf("expected empty weights")
	}
	if len(caller.requests) != 0 {
		t.Fatalf("unsupported depth must not reach the platform")
	}
}

func TestWeightsRetryTemporaryFailures(t *testing.T) {
	caller := &callerFake{
		errs: []error{domain.WrapError(domain.ErrTemporary, "invoke", errors.New("unavailable"))},
		responses: []string{"", `{"searchkeyword_view_entity":{"fleamarketarticle_searchkeywordllmcategoryweight_v1_features":{
			"category_3_weights":{"301":2}}}}`},
	}
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	}, quietLogger())
	p := NewProvider(caller, exec, time.Second, quietLogger())

	w := p.Weights(context.Background(), "mask", domain.Depth3)
	ids := w.CategoryIDs(domain.Depth3)
	if len(ids) != 1 || ids[0] != 301 || len(caller.requests) != 2 {
		t.Fatalf("expected weights after one retry, got %v after %d calls", ids, len(caller.requests))
	}
}
