package outbox

import (
	"context"
	"time"

	"github.com/knocktern/hospital-booking/libs/db"
	otelx "github.com/knocktern/hospital-booking/libs/otel"
)

// Insert stores evt together with the caller's trace context so the
// publisher can continue the trace when it ships the event.
func Insert(ctx context.Context, q db.Querier, evt Event) error {
	tc := otelx.CaptureTraceContext(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, evt.EventID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, tc.Parent, tc.State)
	return err
}

type Record struct {
	ID        int64
	Event     Event
	Trace     otelx.TraceContext
	Attempts  int
	CreatedAt time.Time
}

// FetchUnpublished locks up to limit pending rows; concurrent publishers skip them.
func FetchUnpublished(ctx context.Context, q db.Querier, limit int) ([]Record, error) {
	rows, err := q.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), attempts, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Event.EventID, &r.Event.AggregateType, &r.Event.AggregateID,
			&r.Event.EventType, &r.Event.Payload, &r.Trace.Parent, &r.Trace.State, &r.Attempts, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func MarkPublished(ctx context.Context, q db.Querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}

func MarkFailed(ctx context.Context, q db.Querier, ids []int64, cause error) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = ANY($1)
	`, ids, cause.Error())
	return err
}
