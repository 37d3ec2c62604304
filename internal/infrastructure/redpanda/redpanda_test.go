package redpanda

import (
	"context"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/glaucomacare/gms/internal/domain/event"
)

func TestRecordCarrier(t *testing.T) {
	rec := &kgo.Record{}
	c := recordCarrier{record: rec}

	c.Set("traceparent", "a")
	c.Set("tracestate", "b")
	c.Set("traceparent", "c")

	if len(rec.Headers) != 2 {
		t.Fatalf("headers = %v", rec.Headers)
	}
	if got := c.Get("traceparent"); got != "c" {
		t.Errorf("traceparent = %q", got)
	}
	if got := c.Get("missing"); got != "" {
		t.Errorf("missing = %q", got)
	}
	if keys := c.Keys(); len(keys) != 2 || keys[0] != "traceparent" || keys[1] != "tracestate" {
		t.Errorf("keys = %v", keys)
	}
}

func TestTraceContextRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	rec := &kgo.Record{Topic: event.TopicAdherenceAlerts}
	injectTraceContext(ctx, rec)
	if len(rec.Headers) == 0 {
		t.Fatal("no trace headers injected")
	}

	got := trace.SpanContextFromContext(extractTraceContext(context.Background(), rec))
	if got.TraceID() != traceID || got.SpanID() != spanID {
		t.Errorf("extracted %s/%s", got.TraceID(), got.SpanID())
	}
}

func TestToMessage(t *testing.T) {
	ts := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	rec := &kgo.Record{
		Topic:     event.TopicAdherenceAlerts,
		Partition: 2,
		Offset:    41,
		Key:       []byte("alert-1"),
		Value:     []byte(`{}`),
		Headers:   []kgo.RecordHeader{{Key: "traceparent", Value: []byte("x")}},
		Timestamp: ts,
	}
	msg := toMessage(rec)
	if msg.Topic != rec.Topic || msg.Partition != 2 || msg.Offset != 41 || string(msg.Key) != "alert-1" {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Headers["traceparent"] != "x" || !msg.Timestamp.Equal(ts) {
		t.Errorf("msg = %+v", msg)
	}
}

func TestDefaultTopicConfigs(t *testing.T) {
	configs := DefaultTopicConfigs(0)
	names := map[string]bool{}
	for _, c := range configs {
		names[c.Name] = true
		if c.ReplicationFactor != 1 {
			t.Errorf("%s replication = %d", c.Name, c.ReplicationFactor)
		}
		if c.Partitions <= 0 {
			t.Errorf("%s partitions = %d", c.Name, c.Partitions)
		}
	}
	for _, want := range []string{event.TopicAdherenceAlerts, event.TopicAppointmentReminders, event.TopicDeadLetter} {
		if !names[want] {
			t.Errorf("missing topic %s", want)
		}
	}
	if DefaultTopicConfigs(3)[0].ReplicationFactor != 3 {
		t.Error("replication factor not applied")
	}
}

func TestNewConsumerValidates(t *testing.T) {
	cfg := DefaultConsumerConfig()
	cfg.Topics = []string{event.TopicAdherenceAlerts}
	if _, err := NewConsumer(cfg, nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil handler")
	}

	cfg.Topics = nil
	handler := func(ctx context.Context, msg *ConsumedMessage) error { return nil }
	if _, err := NewConsumer(cfg, handler, nil, nil, nil); err == nil {
		t.Error("expected error for missing topics")
	}
}
