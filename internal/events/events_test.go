package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
)

type recordingPublisher struct {
	got []Event
	err error
}

func (r *recordingPublisher) Publish(_ context.Context, ev Event) error {
	r.got = append(r.got, ev)
	return r.err
}

func sampleTrade() domain.Trade {
	return domain.Trade{
		ID:          "6f1c1c5e-6a1b-4a53-9d55-1f3b0e2f9d10",
		Action:      domain.Buy,
		Symbol:      "REL",
		NoOfShares:  10,
		Price:       decimal.RequireFromString("95.50"),
		PortfolioID: 3,
		CreatedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestFanoutAttemptsAll(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}
	f := Fanout{failing, ok}

	err := f.Publish(context.Background(), TradeRecorded(sampleTrade()))
	if err == nil {
		t.Fatal("Fanout.Publish returned nil, want the failing publisher's error")
	}
	if len(failing.got) != 1 || len(ok.got) != 1 {
		t.Errorf("deliveries = %d, %d; want 1, 1", len(failing.got), len(ok.got))
	}
	if ok.got[0].Type != TypeTradeRecorded {
		t.Errorf("Type = %q, want %q", ok.got[0].Type, TypeTradeRecorded)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherMessage(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w, topic: "trades"}

	if err := p.Publish(context.Background(), TradeRecorded(sampleTrade())); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "3" {
		t.Errorf("Key = %q, want portfolio id 3", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != TypeTradeRecorded {
		t.Errorf("Headers = %+v", msg.Headers)
	}

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Trade.Symbol != "REL" || ev.Trade.NoOfShares != 10 || !ev.Trade.Price.Equal(decimal.RequireFromString("95.5")) {
		t.Errorf("decoded trade = %+v", ev.Trade)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close = %v, closed = %v", err, w.closed)
	}
}

// stalledWriter blocks until the write context ends, like a writer retrying
// against an unreachable broker.
type stalledWriter struct{ fakeWriter }

func (w *stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestKafkaPublisherBoundedWrite(t *testing.T) {
	p := &KafkaPublisher{w: &stalledWriter{}, topic: "trades", timeout: 50 * time.Millisecond}

	start := time.Now()
	err := p.Publish(context.Background(), TradeRecorded(sampleTrade()))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Publish = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Publish took %v, want about 50ms", elapsed)
	}
}

func TestKafkaPublisherIgnoresCallerCancel(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{w: w, topic: "trades"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, TradeRecorded(sampleTrade())); err != nil {
		t.Fatalf("Publish after caller cancel: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Errorf("wrote %d messages, want 1", len(w.msgs))
	}
}
