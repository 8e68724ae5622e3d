package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
	"crossexchange/internal/store"
)

// TradeRecorder turns an accepted request into exactly one ledger entry.
type TradeRecorder struct {
	trades store.TradeStore
	now    func() time.Time
	newID  func() string
}

// NewTradeRecorder creates a TradeRecorder appending to trades.
func NewTradeRecorder(trades store.TradeStore) *TradeRecorder {
	return &TradeRecorder{trades: trades, now: time.Now, newID: uuid.NewString}
}

// Record builds the trade for req at price and appends it.
func (r *TradeRecorder) Record(ctx context.Context, req domain.TradeRequest, price decimal.Decimal, portfolioID int64) (domain.Trade, error) {
	t := domain.Trade{
		ID:          r.newID(),
		Action:      req.Action,
		Symbol:      req.Symbol,
		NoOfShares:  req.NoOfShares,
		Price:       price,
		PortfolioID: portfolioID,
		CreatedAt:   r.now().UTC(),
	}
	stored, err := r.trades.InsertTrade(ctx, t)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Trade{}, fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, portfolioID)
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("recording trade: %w", err)
	}
	return stored, nil
}
