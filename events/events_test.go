package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"auction-importer/models"
)

func sampleEvent() models.ImportCompleted {
	return models.ImportCompleted{
		RunID:      "2b1f6a9e-run",
		Source:     "file:cars.json",
		Inserted:   42,
		Skipped:    3,
		FinishedAt: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

// fakeKafkaWriter implements kafkaMessageWriter for tests
type fakeKafkaWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	fk := &fakeKafkaWriter{}
	p := &KafkaPublisher{writer: fk}
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fk.msgs) != 1 {
		t.Fatalf("want 1 msg, got %d", len(fk.msgs))
	}
	if string(fk.msgs[0].Key) != "2b1f6a9e-run" {
		t.Errorf("bad key: %s", fk.msgs[0].Key)
	}
	var got models.ImportCompleted
	if err := json.Unmarshal(fk.msgs[0].Value, &got); err != nil || got.Inserted != 42 {
		t.Errorf("payload: got %+v, %v", got, err)
	}

	if err := (&KafkaPublisher{writer: &fakeKafkaWriter{fail: true}}).Publish(context.Background(), sampleEvent()); err == nil {
		t.Error("expected error")
	}
}

type fakeNATS struct {
	msgs []*nats.Msg
}

func (f *fakeNATS) PublishMsg(m *nats.Msg) error {
	f.msgs = append(f.msgs, m)
	return nil
}

func TestNATSPublisherPropagatesTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	fn := &fakeNATS{}
	p := &NATSPublisher{conn: fn, subject: "auctions.imports"}
	if err := p.Publish(ctx, sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fn.msgs) != 1 {
		t.Fatalf("want 1 msg, got %d", len(fn.msgs))
	}
	m := fn.msgs[0]
	if m.Subject != "auctions.imports" {
		t.Errorf("subject: got %q", m.Subject)
	}
	if tp := m.Header.Get("traceparent"); tp == "" {
		t.Error("traceparent header not injected")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Errorf("nop publish: %v", err)
	}
}
