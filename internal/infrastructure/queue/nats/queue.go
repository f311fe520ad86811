package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medical-doc-assistant/internal/core/ports"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/resilience"
)

const workerQueueGroup = "analysis-workers"

// Queue carries analysis job IDs. Payloads are bare IDs; document bytes never travel on the bus.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

var _ ports.MessageQueue = (*Queue)(nil)

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

// Options tunes the connection. Zero values keep the client reconnecting for
// about two minutes before giving up.
type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func (o Options) natsOptions() []nats.Option {
	retry := o.RetryOnFailedConnect == nil || *o.RetryOnFailedConnect
	return []nats.Option{
		nats.Name("medical-doc-assistant"),
		nats.Timeout(orDefault(o.ConnectTimeout, 2*time.Second)),
		nats.ReconnectWait(orDefault(o.ReconnectWait, 2*time.Second)),
		nats.MaxReconnects(orDefault(o.MaxReconnects, 60)),
		nats.RetryOnFailedConnect(retry),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("nats_connection_closed")
		}),
	}
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	conn, err := nats.Connect(url, options.natsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{conn: conn, subject: subject, executor: options.ResilienceExecutor}, nil
}

func orDefault[T int | time.Duration](value, fallback T) T {
	if value <= 0 {
		return fallback
	}
	return value
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishAnalysisRequested(ctx context.Context, jobID string) error {
	payload, err := encodeJobID(jobID)
	if err != nil {
		return err
	}
	publish := func(context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if q.executor == nil {
		return asTemporary(publish(ctx))
	}
	return asTemporary(q.executor.Execute(ctx, "nats.publish", publish, classifyNATSError))
}

// SubscribeAnalysisRequested blocks until ctx is done, then drains in-flight messages.
func (q *Queue) SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		jobID, err := decodeJobID(msg.Data)
		if err != nil {
			slog.Warn("analysis_message_rejected", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, jobID); err != nil {
			slog.Error("analysis_job_handler_failed", "job_id", jobID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", q.subject, err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("analysis_subscription_started", "subject", q.subject, "queue_group", workerQueueGroup)

	<-ctx.Done()
	// Drain lets handlers that already hold a message finish before the worker exits.
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return q.conn.FlushTimeout(5 * time.Second)
}

func encodeJobID(jobID string) ([]byte, error) {
	id := strings.TrimSpace(jobID)
	if id == "" {
		return nil, errors.New("nats publish: empty job id")
	}
	return []byte(id), nil
}

func decodeJobID(data []byte) (string, error) {
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", errors.New("empty job id")
	}
	if len(id) > 64 {
		return "", fmt.Errorf("job id too long (%d bytes)", len(id))
	}
	return id, nil
}
