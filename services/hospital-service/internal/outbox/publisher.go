package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/knocktern/hospital-booking/libs/db"
	"github.com/knocktern/hospital-booking/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	pool      *db.Pool
	logger    *slog.Logger
	brokers   []string
	topic     string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   []string
	Topic     string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		logger:    logger,
		brokers:   cfg.Brokers,
		topic:     cfg.Topic,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run polls the outbox until ctx is cancelled. Without brokers it returns
// immediately and events stay queued in the table.
func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  p.topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.publishBatch(ctx, writer)
			if err != nil {
				p.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("outbox published", "count", n)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	ids := make([]int64, len(records))
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		ids[i] = r.ID
		msgs[i] = toMessage(ctx, r)
	}

	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		if markErr := MarkFailed(ctx, tx, ids, err); markErr != nil {
			return 0, markErr
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			return 0, cerr
		}
		return 0, err
	}
	if err := MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(records), tx.Commit(ctx)
}

// toMessage leaves Topic empty; the writer supplies it.
func toMessage(ctx context.Context, r Record) kafka.Message {
	meta := kafkax.EventMeta{EventID: r.Event.EventID, EventType: r.Event.EventType}
	return kafka.Message{
		Key:     []byte(r.Event.AggregateID),
		Value:   r.Event.Payload,
		Headers: kafkax.InjectTraceHeaders(r.Trace.Into(ctx), meta.Headers()),
	}
}
