//go:build integration

package messaging_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/printhub/internal/messaging"
	"github.com/joao-fontenele/printhub/internal/testutil"
)

type received struct {
	key     string
	payload []byte
	traceID trace.TraceID
}

func TestProduceConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	otel.SetTextMapPropagator(propagation.TraceContext{})
	brokers := testutil.SetupKafka(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	producer := messaging.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	pubCtx := trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	// The topic is created on first write, so retry until the broker accepts it.
	event := map[string]string{"notificationId": "ntf-1"}
	deadline := time.Now().Add(30 * time.Second)
	for {
		err := producer.Publish(pubCtx, "test.events", "ntf-1", event)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("failed to publish: %v", err)
		}
		time.Sleep(time.Second)
	}

	consumer := messaging.NewConsumer(brokers, "test.events", "test-group", logger,
		messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	got := make(chan received, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = consumer.Consume(consumeCtx, func(ctx context.Context, key string, payload []byte) error {
			got <- received{key: key, payload: payload, traceID: trace.SpanContextFromContext(ctx).TraceID()}
			stop()
			return nil
		})
	}()

	select {
	case msg := <-got:
		if msg.key != "ntf-1" {
			t.Errorf("expected key ntf-1, got %s", msg.key)
		}
		var decoded map[string]string
		if err := json.Unmarshal(msg.payload, &decoded); err != nil || decoded["notificationId"] != "ntf-1" {
			t.Errorf("unexpected payload %s: %v", msg.payload, err)
		}
		if msg.traceID != traceID {
			t.Errorf("expected consumer to continue trace %s, got %s", traceID, msg.traceID)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}
