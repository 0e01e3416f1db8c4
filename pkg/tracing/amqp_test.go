package tracing

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func withPropagator(t *testing.T) trace.Tracer {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
	return sdktrace.NewTracerProvider().Tracer("test")
}

func TestAMQPHeaders_RoundTrip(t *testing.T) {
	tracer := withPropagator(t)
	ctx, span := tracer.Start(context.Background(), "call")
	defer span.End()

	headers := InjectAMQPHeaders(ctx, nil)
	require.Contains(t, headers, "traceparent")

	extracted := trace.SpanContextFromContext(ExtractAMQPHeaders(context.Background(), headers))
	assert.Equal(t, span.SpanContext().TraceID(), extracted.TraceID())
}

func TestKafkaHeaders_RoundTrip(t *testing.T) {
	tracer := withPropagator(t)
	ctx, span := tracer.Start(context.Background(), "publish")
	defer span.End()

	headers := InjectKafkaHeaders(ctx, []kafka.Header{{Key: "event_type", Value: []byte("x")}})
	assert.Len(t, headers, 2)

	extracted := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	assert.Equal(t, span.SpanContext().TraceID(), extracted.TraceID())
}

func TestAMQPHeaderCarrier_Bytes(t *testing.T) {
	c := amqpHeaderCarrier(amqp.Table{"traceparent": []byte("abc")})
	assert.Equal(t, "abc", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
}
