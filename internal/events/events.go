// Package events carries notifications about recorded trades to downstream
// consumers: Kafka, websocket subscribers, or both.
package events

import (
	"context"
	"errors"
	"time"

	"crossexchange/internal/domain"
)

// TypeTradeRecorded is the Type of an Event emitted after a trade is
// appended to the ledger.
const TypeTradeRecorded = "trade.recorded"

// Event is the payload published to subscribers.
type Event struct {
	Type       string       `json:"type"`
	Trade      domain.Trade `json:"trade"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// TradeRecorded builds the event for a freshly recorded trade.
func TradeRecorded(t domain.Trade) Event {
	return Event{Type: TypeTradeRecorded, Trade: t, OccurredAt: t.CreatedAt}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes every event to each of its publishers in order. All
// publishers are attempted; their errors are joined.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
