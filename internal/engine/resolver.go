package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
	"crossexchange/internal/store"
)

// PriceResolver finds the most recent recorded price of a share.
type PriceResolver struct {
	prices store.PriceStore
}

// NewPriceResolver creates a PriceResolver reading from prices.
func NewPriceResolver(prices store.PriceStore) *PriceResolver {
	return &PriceResolver{prices: prices}
}

// Latest returns the record with the greatest timestamp for symbol. Among
// records with equal timestamps the one stored last wins. found is false
// when the symbol has never been priced.
func (r *PriceResolver) Latest(ctx context.Context, symbol domain.Symbol) (rec domain.SharePriceRecord, found bool, err error) {
	recs, err := r.prices.QueryPrices(ctx, symbol)
	if err != nil {
		return domain.SharePriceRecord{}, false, fmt.Errorf("resolving price of %s: %w", symbol, err)
	}
	if len(recs) == 0 {
		return domain.SharePriceRecord{}, false, nil
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})
	return recs[len(recs)-1], true, nil
}

// LatestPrice is Latest reduced to the price.
func (r *PriceResolver) LatestPrice(ctx context.Context, symbol domain.Symbol) (decimal.Decimal, bool, error) {
	rec, found, err := r.Latest(ctx, symbol)
	return rec.Price, found, err
}
