package messaging

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ContentTypeHeader marks the encoding of every published value.
const ContentTypeHeader = "content-type"

var _ propagation.TextMapCarrier = headers{}

// headers adapts a message's header slice to the propagation carrier. Setting
// an existing key replaces its value so re-publishing never duplicates
// traceparent.
type headers struct {
	msg *kafka.Message
}

func (h headers) Get(key string) string {
	for _, hdr := range h.msg.Headers {
		if hdr.Key == key {
			return string(hdr.Value)
		}
	}
	return ""
}

func (h headers) Set(key, value string) {
	for i, hdr := range h.msg.Headers {
		if hdr.Key == key {
			h.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	h.msg.Headers = append(h.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (h headers) Keys() []string {
	keys := make([]string, len(h.msg.Headers))
	for i, hdr := range h.msg.Headers {
		keys[i] = hdr.Key
	}
	return keys
}

// injectTraceContext writes the span in ctx into msg's headers.
func injectTraceContext(ctx context.Context, msg *kafka.Message) {
	otel.GetTextMapPropagator().Inject(ctx, headers{msg: msg})
}

// extractTraceContext continues the producer's trace, if msg carries one.
func extractTraceContext(ctx context.Context, msg *kafka.Message) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, headers{msg: msg})
}
