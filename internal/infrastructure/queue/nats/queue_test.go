package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

func TestDispatchRequestDecodesPayload(t *testing.T) {
	var got domain.EvaluationRequest
	err := dispatchRequest(context.Background(), []byte(`{"keywords_file":"kw.csv","variants":["none:random","fasttext:fasttext"]}`),
		func(_ context.Context, req domain.EvaluationRequest) error {
			got = req
			return nil
		})
	if err != nil {
		t.Fatalf("dispatchRequest() error = %v", err)
	}
	if got.KeywordsFile != "kw.csv" || len(got.Variants) != 2 || got.Variants[1] != "fasttext:fasttext" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestDispatchRequestRejectsBadPayload(t *testing.T) {
	called := false
	handler := func(context.Context, domain.EvaluationRequest) error {
		called = true
		return nil
	}
	for _, payload := range []string{"not json", `{"variants":["none:random"]}`} {
		err := dispatchRequest(context.Background(), []byte(payload), handler)
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("payload %q: expected invalid input, got %v", payload, err)
		}
	}
	if called {
		t.Fatalf("handler must not run for invalid payloads")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !c.Retryable || !c.RecordFailure {
		t.Fatalf("closed connection must be retryable, got %+v", c)
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not be retried or recorded, got %+v", c)
	}
	if c := classifyNATSError(nats.ErrBadSubject); c.Retryable {
		t.Fatalf("bad subject must not be retried")
	}

	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	plain := errors.New("boom")
	if err := wrapTemporaryIfNeeded(plain); err != plain {
		t.Fatalf("permanent errors must pass through, got %v", err)
	}
}
