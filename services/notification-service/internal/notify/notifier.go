// Package notify turns hospital-service events into patient email and SMS.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/knocktern/hospital-booking/libs/kafkax"
	"github.com/knocktern/hospital-booking/services/notification-service/internal/email"
	"github.com/knocktern/hospital-booking/services/notification-service/internal/sms"
	"github.com/knocktern/hospital-booking/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// Inbox is satisfied by *storage.Repository.
type Inbox interface {
	Process(ctx context.Context, eventID, eventType string, fn func(context.Context) ([]storage.Notification, error)) (bool, error)
}

type Notifier struct {
	inbox  Inbox
	mail   email.Sender
	sms    sms.Sender
	logger *slog.Logger
}

// New builds a Notifier. A nil sms sender disables text messages.
func New(inbox Inbox, mail email.Sender, text sms.Sender, logger *slog.Logger) *Notifier {
	return &Notifier{inbox: inbox, mail: mail, sms: text, logger: logger}
}

// Handle is a consumer.Handler. Delivery failures are recorded, not returned,
// so only storage errors make the consumer retry.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		n.logger.Warn("event without id ignored", "offset", msg.Offset, "event_type", meta.EventType)
		return nil
	}

	processed, err := n.inbox.Process(ctx, meta.EventID, meta.EventType, func(ctx context.Context) ([]storage.Notification, error) {
		return n.deliver(ctx, meta.EventType, string(msg.Key), msg.Value), nil
	})
	if err != nil {
		return err
	}
	if !processed {
		n.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, eventType, aggregateID string, payload []byte) []storage.Notification {
	c, ok, err := render(eventType, payload)
	if err != nil {
		n.logger.Error("invalid event payload", "err", err, "event_type", eventType)
		return []storage.Notification{{AggregateID: aggregateID, Channel: storage.ChannelEmail, Status: storage.StatusSkipped, Error: err.Error()}}
	}
	if !ok {
		return nil
	}

	out := []storage.Notification{n.sendEmail(ctx, aggregateID, c)}
	if n.sms != nil && strings.TrimSpace(c.Phone) != "" && c.SMS != "" {
		out = append(out, n.sendSMS(ctx, aggregateID, c))
	}
	return out
}

func (n *Notifier) sendEmail(ctx context.Context, aggregateID string, c content) storage.Notification {
	note := storage.Notification{
		AggregateID: aggregateID,
		Channel:     storage.ChannelEmail,
		Recipient:   strings.TrimSpace(c.Email),
		Subject:     c.Subject,
		Status:      storage.StatusSent,
	}
	if note.Recipient == "" {
		note.Status = storage.StatusSkipped
		note.Error = "no recipient"
		return note
	}
	if err := n.mail.Send(ctx, email.Message{To: note.Recipient, Subject: c.Subject, Body: c.Body}); err != nil {
		n.logger.Error("email send failed", "err", err, "recipient", note.Recipient)
		note.Status = storage.StatusFailed
		note.Error = err.Error()
		return note
	}
	n.logger.Info("email sent", "recipient", note.Recipient, "subject", c.Subject, "aggregate_id", aggregateID)
	return note
}

func (n *Notifier) sendSMS(ctx context.Context, aggregateID string, c content) storage.Notification {
	note := storage.Notification{
		AggregateID: aggregateID,
		Channel:     storage.ChannelSMS,
		Recipient:   strings.TrimSpace(c.Phone),
		Subject:     c.Subject,
		Status:      storage.StatusSent,
	}
	if err := n.sms.Send(ctx, note.Recipient, c.SMS); err != nil {
		n.logger.Error("sms send failed", "err", err, "recipient", note.Recipient)
		note.Status = storage.StatusFailed
		note.Error = err.Error()
	}
	return note
}
