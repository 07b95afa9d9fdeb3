package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/knocktern/hospital-booking/libs/db"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Notification is one delivery attempt for a consumed event.
type Notification struct {
	AggregateID string
	Channel     string
	Recipient   string
	Subject     string
	Status      string
	Error       string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Process claims eventID in the inbox and runs fn in the same transaction,
// storing the notifications it returns. It reports false without calling fn
// when the event was already processed. An error from fn, or from storing
// its notifications, rolls the claim back so the event is delivered again.
// Sends made by fn are not undone, so delivery is at-least-once.
func (r *Repository) Process(ctx context.Context, eventID, eventType string, fn func(context.Context) ([]Notification, error)) (bool, error) {
	processed := false
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO inbox_events (event_id, event_type)
			VALUES ($1, $2)
			ON CONFLICT (event_id) DO NOTHING
		`, eventID, eventType)
		if err != nil {
			return fmt.Errorf("record inbox event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		notes, err := fn(ctx)
		if err != nil {
			return err
		}
		for _, n := range notes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO notifications (event_id, event_type, aggregate_id, channel, recipient, subject, status, error)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, eventID, eventType, n.AggregateID, n.Channel, n.Recipient, n.Subject, n.Status, n.Error); err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
		}
		processed = true
		return nil
	})
	return processed, err
}
