package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DefaultPublishTimeout bounds a single Kafka publish.
const DefaultPublishTimeout = 2 * time.Second

// KafkaPublisher writes events as JSON to a Kafka topic, keyed by portfolio
// id so one portfolio's trades stay ordered within a partition.
//
// A publish runs detached from the caller's cancellation and is bounded by
// timeout, so an unreachable broker delays a trade response by at most that
// long.
type KafkaPublisher struct {
	w       messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		MaxAttempts:  3,
		WriteTimeout: DefaultPublishTimeout,
	}
	return &KafkaPublisher{w: w, topic: topic, timeout: DefaultPublishTimeout}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.Trade.PortfolioID, 10)),
		Value: b,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	timeout := p.timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := p.w.WriteMessages(wctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
