package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
	"github.com/kirillkom/dispute-retrieval/internal/infrastructure/resilience"
)

const (
	defaultQueueGroup = "retrieval-log-writers"
	headerMsgID       = "Nats-Msg-Id"
	headerRequestID   = "X-Request-ID"
)

// Queue carries retrieval audit events between the API and the worker.
type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
	logger     *slog.Logger
}

type Options struct {
	QueueGroup           string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Queue, error) {
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
		nats.Name("dispute-retrieval"),
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
	return newQueue(conn, subject, options, logger), nil
}

func newQueue(conn *nats.Conn, subject string, options Options, logger *slog.Logger) *Queue {
	group := options.QueueGroup
	if group == "" {
		group = defaultQueueGroup
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: group,
		executor:   options.ResilienceExecutor,
		logger:     logger,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRetrievalLog(ctx context.Context, event domain.RetrievalLog) error {
	msg, err := encodeRetrievalLog(q.subject, event)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
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
		return resilience.WrapTemporary("nats publish", err, classifyNATSError)
	}
	return nil
}

// SubscribeRetrievalLogs blocks until ctx is done, then drains the
// subscription. Undecodable messages are logged and dropped.
func (q *Queue) SubscribeRetrievalLogs(ctx context.Context, handler func(context.Context, domain.RetrievalLog) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		q.dispatch(ctx, msg, handler)
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

func (q *Queue) dispatch(ctx context.Context, msg *nats.Msg, handler func(context.Context, domain.RetrievalLog) error) {
	event, err := decodeRetrievalLog(msg)
	if err != nil {
		q.logger.Error("retrieval_log_decode_failed", "subject", msg.Subject, "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(domain.ContextWithRequestID(ctx, event.RequestID))
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		q.logger.Error("retrieval_log_handler_failed",
			"event_id", event.ID,
			"request_id", event.RequestID,
			"error", err,
		)
	}
}

func encodeRetrievalLog(subject string, event domain.RetrievalLog) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal retrieval log: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(headerMsgID, event.ID)
	if event.RequestID != "" {
		msg.Header.Set(headerRequestID, event.RequestID)
	}
	return msg, nil
}

func decodeRetrievalLog(msg *nats.Msg) (domain.RetrievalLog, error) {
	var event domain.RetrievalLog
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return domain.RetrievalLog{}, fmt.Errorf("unmarshal retrieval log: %w", err)
	}
	if event.RequestID == "" && msg.Header != nil {
		event.RequestID = msg.Header.Get(headerRequestID)
	}
	return event, nil
}
