package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/knocktern/hospital-booking/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is satisfied by *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers      []string
	GroupID      string
	Topic        string
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Consumer commits a message only after the handler has run. A handler that
// keeps failing is retried MaxAttempts times before the message is skipped.
type Consumer struct {
	reader      Reader
	logger      *slog.Logger
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

func New(logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(logger, reader, cfg, handler)
}

func NewWithReader(logger *slog.Logger, reader Reader, cfg Config, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Consumer{
		reader:      reader,
		logger:      logger,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.RetryBackoff,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		if !c.handle(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka commit error", "err", err, "offset", msg.Offset)
		}
	}
}

// handle returns false only when ctx ended before the handler settled, in
// which case the message stays uncommitted.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	for attempt := 1; ; attempt++ {
		err := c.handler(ctxSpan, msg)
		if err == nil {
			return true
		}
		span.RecordError(err)
		if ctx.Err() != nil {
			return false
		}
		if attempt >= c.maxAttempts {
			span.SetStatus(codes.Error, "gave up")
			c.logger.Error("handler failed, skipping event",
				"err", err, "event_id", meta.EventID, "event_type", meta.EventType, "attempts", attempt)
			return true
		}
		c.logger.Warn("handler error, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if !sleep(ctx, c.backoff*time.Duration(attempt)) {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
