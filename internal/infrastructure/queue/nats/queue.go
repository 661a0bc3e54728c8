package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
	"github.com/kirillkom/search-dsl-eval/internal/infrastructure/resilience"
)

const workerQueueGroup = "dsl-eval-workers"

type Queue struct {
	conn            *nats.Conn
	eventsSubject   string
	requestsSubject string
	executor        *resilience.Executor
	logger          *slog.Logger
}

type Options struct {
	EventsSubject        string
	RequestsSubject      string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("search-dsl-eval"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:            conn,
		eventsSubject:   options.EventsSubject,
		requestsSubject: options.RequestsSubject,
		executor:        options.ResilienceExecutor,
		logger:          logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRunCompleted(ctx context.Context, event domain.RunCompleted) error {
	return q.publishJSON(ctx, q.eventsSubject, event)
}

// PublishEvaluationRequest hands a run to the worker pool.
func (q *Queue) PublishEvaluationRequest(ctx context.Context, req domain.EvaluationRequest) error {
	return q.publishJSON(ctx, q.requestsSubject, req)
}

func (q *Queue) publishJSON(ctx context.Context, subject string, payload any) error {
	if subject == "" {
		return domain.ConfigError("nats publish", "subject is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal nats payload: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeEvaluationRequests consumes requests in the worker queue group
// until ctx is done, then drains the subscription.
func (q *Queue) SubscribeEvaluationRequests(ctx context.Context, handler func(context.Context, domain.EvaluationRequest) error) error {
	if q.requestsSubject == "" {
		return domain.ConfigError("nats subscribe", "requests subject is not configured")
	}
	sub, err := q.conn.QueueSubscribe(q.requestsSubject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := dispatchRequest(handlerCtx, msg.Data, handler); err != nil {
			q.logger.Error("evaluation_request_failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func dispatchRequest(ctx context.Context, data []byte, handler func(context.Context, domain.EvaluationRequest) error) error {
	var req domain.EvaluationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode evaluation request", err)
	}
	if req.KeywordsFile == "" {
		return domain.WrapError(domain.ErrInvalidInput, "decode evaluation request", errors.New("keywords_file is required"))
	}
	return handler(ctx, req)
}
