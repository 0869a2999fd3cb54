package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaders(t *testing.T) {
	msg := &kafka.Message{}
	h := headers{msg: msg}

	h.Set("traceparent", "first")
	h.Set("traceparent", "second")
	h.Set(ContentTypeHeader, "application/json")

	if len(msg.Headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(msg.Headers))
	}
	if h.Get("traceparent") != "second" {
		t.Errorf("expected overwritten value, got %s", h.Get("traceparent"))
	}
	if h.Get("missing") != "" {
		t.Error("expected empty value for missing key")
	}
	if keys := h.Keys(); len(keys) != 2 || keys[1] != ContentTypeHeader {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	previous := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(previous) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), parent)

	msg := &kafka.Message{}
	injectTraceContext(ctx, msg)

	extracted := trace.SpanContextFromContext(extractTraceContext(context.Background(), msg))
	if extracted.TraceID() != traceID {
		t.Errorf("expected trace id %s, got %s", traceID, extracted.TraceID())
	}
	if !extracted.IsRemote() {
		t.Error("expected extracted span context to be remote")
	}

	if got := extractTraceContext(context.Background(), &kafka.Message{}); trace.SpanContextFromContext(got).IsValid() {
		t.Error("expected no span context without headers")
	}
}
