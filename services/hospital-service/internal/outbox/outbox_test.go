package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/knocktern/hospital-booking/libs/kafkax"
	otelx "github.com/knocktern/hospital-booking/libs/otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("appointment", 42, "appointment.booked.v1", map[string]any{"doctor_id": 3})
	if err != nil {
		t.Fatal(err)
	}
	if evt.AggregateID != "42" || evt.EventID == "" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	var body map[string]int
	if err := json.Unmarshal(evt.Payload, &body); err != nil || body["doctor_id"] != 3 {
		t.Fatalf("unexpected payload %s (%v)", evt.Payload, err)
	}

	if _, err := NewEvent("appointment", 1, "x", make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestToMessageCarriesMetaAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	r := Record{
		ID:    7,
		Event: Event{EventID: "e-1", AggregateID: "42", EventType: "appointment.cancelled.v1", Payload: []byte(`{}`)},
		Trace: otelx.TraceContext{Parent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	}
	msg := toMessage(context.Background(), r)
	if string(msg.Key) != "42" {
		t.Fatalf("expected key 42, got %q", msg.Key)
	}
	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID != "e-1" || meta.EventType != "appointment.cancelled.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != r.Trace.Parent {
		t.Fatalf("expected stored traceparent to be forwarded, got %q", got)
	}
}
