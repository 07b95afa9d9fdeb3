package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
	drained   func()
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.drained()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func run(t *testing.T, msgs []kafka.Message, cfg Config, h Handler) *fakeReader {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{msgs: msgs, drained: cancel}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewWithReader(logger, r, cfg, h).Run(ctx)
	return r
}

func TestCommitsAfterHandler(t *testing.T) {
	var seen []int64
	r := run(t, []kafka.Message{{Offset: 1}, {Offset: 2}}, Config{}, func(_ context.Context, msg kafka.Message) error {
		seen = append(seen, msg.Offset)
		return nil
	})
	if len(seen) != 2 || len(r.committed) != 2 || r.committed[1] != 2 {
		t.Fatalf("seen %v committed %v", seen, r.committed)
	}
	if !r.closed {
		t.Fatalf("reader not closed")
	}
}

func TestRetriesThenSucceeds(t *testing.T) {
	calls := 0
	r := run(t, []kafka.Message{{Offset: 5}}, Config{MaxAttempts: 3}, func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("db down")
		}
		return nil
	})
	if calls != 3 || len(r.committed) != 1 {
		t.Fatalf("calls %d committed %v", calls, r.committed)
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	r := run(t, []kafka.Message{{Offset: 9}, {Offset: 10}}, Config{MaxAttempts: 2}, func(_ context.Context, msg kafka.Message) error {
		calls++
		if msg.Offset == 9 {
			return errors.New("poison")
		}
		return nil
	})
	if calls != 3 {
		t.Fatalf("expected 2 attempts on the poison message and 1 on the next, got %d", calls)
	}
	if len(r.committed) != 2 {
		t.Fatalf("expected both offsets committed, got %v", r.committed)
	}
}

func TestCancelledHandlerLeavesMessageUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{msgs: []kafka.Message{{Offset: 3}}, drained: cancel}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewWithReader(logger, r, Config{MaxAttempts: 5}, func(context.Context, kafka.Message) error {
		cancel()
		return context.Canceled
	}).Run(ctx)
	if len(r.committed) != 0 {
		t.Fatalf("expected no commit, got %v", r.committed)
	}
}
