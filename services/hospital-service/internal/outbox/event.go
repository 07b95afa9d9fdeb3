package outbox

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Event is a domain event waiting in the outbox table. It is written in the
// same transaction as the change it describes.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func NewEvent(aggregateType string, aggregateID int64, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   strconv.FormatInt(aggregateID, 10),
		EventType:     eventType,
		Payload:       body,
	}, nil
}
