// Package store defines the storage ports consumed by the trade engine and
// provides adapters for them: in-memory, SQLite, PostgreSQL and a Parquet
// share-price archive.
package store

import (
	"context"
	"errors"

	"crossexchange/internal/domain"
)

// ErrNotFound is returned when a lookup by key finds nothing.
var ErrNotFound = errors.New("not found")

// PriceStore reads the share price history.
type PriceStore interface {
	// QueryPrices returns every recorded price for symbol, in no guaranteed
	// order. A never-priced symbol yields an empty slice and no error.
	QueryPrices(ctx context.Context, symbol domain.Symbol) ([]domain.SharePriceRecord, error)
}

// PriceWriter appends to the share price history.
type PriceWriter interface {
	// AppendPrice records a new price observation.
	AppendPrice(ctx context.Context, rec domain.SharePriceRecord) error
}

// ShareCatalog answers whether a share is registered, i.e. has at least one
// price record.
type ShareCatalog interface {
	ShareExists(ctx context.Context, symbol domain.Symbol) (bool, error)
}

// PortfolioStore reads portfolios.
type PortfolioStore interface {
	// FindPortfolio returns the portfolio with its trades in ledger order, or
	// ErrNotFound.
	FindPortfolio(ctx context.Context, id int64) (*domain.Portfolio, error)
}

// PortfolioWriter creates portfolios. The trade engine never uses it.
type PortfolioWriter interface {
	CreatePortfolio(ctx context.Context, name string) (*domain.Portfolio, error)
}

// TradeFilter selects trades. Zero-valued fields do not filter.
type TradeFilter struct {
	PortfolioID int64
	Symbol      domain.Symbol
	Action      domain.Action
	Limit       int
}

// Match reports whether t satisfies the filter (ignoring Limit).
func (f TradeFilter) Match(t domain.Trade) bool {
	if f.PortfolioID != 0 && t.PortfolioID != f.PortfolioID {
		return false
	}
	if f.Symbol != "" && t.Symbol != f.Symbol {
		return false
	}
	if f.Action != "" && t.Action != f.Action {
		return false
	}
	return true
}

// TradeStore is the append-only trade ledger.
type TradeStore interface {
	// QueryTrades returns the trades matching filter in insertion order.
	QueryTrades(ctx context.Context, filter TradeFilter) ([]domain.Trade, error)

	// InsertTrade appends t and returns the stored trade.
	InsertTrade(ctx context.Context, t domain.Trade) (domain.Trade, error)
}

// Stores bundles the ports a deployment provides. Adapters such as
// SQLiteStore implement several of them at once.
type Stores struct {
	Prices     PriceStore
	PriceLog   PriceWriter
	Catalog    ShareCatalog
	Portfolios PortfolioStore
	Admin      PortfolioWriter
	Trades     TradeStore
}
