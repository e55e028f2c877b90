// Package events announces completed imports to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"auction-importer/models"
	"auction-importer/utils"
)

// Publisher sends an ImportCompleted event.
type Publisher interface {
	Publish(ctx context.Context, ev models.ImportCompleted) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.ImportCompleted) error { return nil }
func (NopPublisher) Close() error                                          { return nil }

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// msgPublisher abstracts *nats.Conn for testability.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher publishes events as JSON on a subject, with the trace
// context in the message headers.
type NATSPublisher struct {
	conn    msgPublisher
	closer  func()
	subject string
}

// NewNATSPublisher connects to url, retrying the initial dial.
func NewNATSPublisher(ctx context.Context, url, subject string, logger *utils.Logger) (*NATSPublisher, error) {
	var nc *nats.Conn
	retry := utils.RetryConfig{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Logger: logger}
	err := retry.Do(ctx, "nats connect", func(context.Context) error {
		var err error
		nc, err = nats.Connect(url, nats.Name("auction-importer"), nats.MaxReconnects(-1))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	return &NATSPublisher{conn: nc, closer: nc.Close, subject: subject}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, ev models.ImportCompleted) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	msg := &nats.Msg{Subject: p.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: nats publish: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.closer != nil {
		p.closer()
	}
	return nil
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events to a topic keyed by run ID.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev models.ImportCompleted) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	msg := kafka.Message{
		Key:     []byte(ev.RunID),
		Value:   b,
		Headers: []kafka.Header{{Key: "source", Value: []byte(ev.Source)}},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: kafka write: %w", err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	if c, ok := k.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
