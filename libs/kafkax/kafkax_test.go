package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "hospital.appointments", Key: []byte("evt-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != "hospital.appointments" {
		t.Fatalf("unexpected fallback meta: %+v", meta)
	}

	msg.Headers = EventMeta{EventID: "evt-2", EventType: "appointment.booked.v1"}.Headers()
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-2" || meta.EventType != "appointment.booked.v1" {
		t.Fatalf("unexpected header meta: %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "e", EventType: "t"}.Headers())
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %+v", headers)
	}

	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	if trace.SpanContextFromContext(out).TraceID() != traceID {
		t.Fatalf("trace id not propagated")
	}
}
