package store

import (
	"context"
	"sync"
	"time"

	"crossexchange/internal/domain"
)

// Compile-time interface checks.
var _ PriceStore = (*Memory)(nil)
var _ PriceWriter = (*Memory)(nil)
var _ ShareCatalog = (*Memory)(nil)
var _ PortfolioStore = (*Memory)(nil)
var _ PortfolioWriter = (*Memory)(nil)
var _ TradeStore = (*Memory)(nil)

// Memory implements every store port in memory. It is used for tests and
// for the "memory" storage driver; nothing survives a restart.
type Memory struct {
	mu         sync.RWMutex
	prices     map[domain.Symbol][]domain.SharePriceRecord
	portfolios map[int64]*domain.Portfolio
	trades     []domain.Trade
	nextID     int64
	now        func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		prices:     make(map[domain.Symbol][]domain.SharePriceRecord),
		portfolios: make(map[int64]*domain.Portfolio),
		nextID:     1,
		now:        time.Now,
	}
}

// Stores returns a Stores bundle backed entirely by m.
func (m *Memory) Stores() Stores {
	return Stores{Prices: m, PriceLog: m, Catalog: m, Portfolios: m, Admin: m, Trades: m}
}

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// QueryPrices returns a copy of the recorded prices for symbol.
func (m *Memory) QueryPrices(_ context.Context, symbol domain.Symbol) ([]domain.SharePriceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.prices[symbol]
	out := make([]domain.SharePriceRecord, len(recs))
	copy(out, recs)
	return out, nil
}

// AppendPrice records a price observation.
func (m *Memory) AppendPrice(_ context.Context, rec domain.SharePriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[rec.Symbol] = append(m.prices[rec.Symbol], rec)
	return nil
}

// ShareExists reports whether symbol has at least one price record.
func (m *Memory) ShareExists(_ context.Context, symbol domain.Symbol) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.prices[symbol]) > 0, nil
}

// ---------------------------------------------------------------------------
// Portfolios
// ---------------------------------------------------------------------------

// CreatePortfolio allocates the next portfolio id.
func (m *Memory) CreatePortfolio(_ context.Context, name string) (*domain.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &domain.Portfolio{ID: m.nextID, Name: name, CreatedAt: m.now().UTC()}
	m.portfolios[p.ID] = p
	m.nextID++
	out := *p
	return &out, nil
}

// PutPortfolio stores a portfolio under a caller-chosen id, replacing any
// existing one. Trades on p are ignored; the ledger is the source of truth.
func (m *Memory) PutPortfolio(p domain.Portfolio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Trades = nil
	m.portfolios[p.ID] = &p
	if p.ID >= m.nextID {
		m.nextID = p.ID + 1
	}
}

// FindPortfolio returns the portfolio with its trades hydrated from the
// ledger.
func (m *Memory) FindPortfolio(_ context.Context, id int64) (*domain.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.portfolios[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	out.Trades = m.filterLocked(TradeFilter{PortfolioID: id})
	return &out, nil
}

// ---------------------------------------------------------------------------
// Trades
// ---------------------------------------------------------------------------

// QueryTrades returns trades matching filter in insertion order.
func (m *Memory) QueryTrades(_ context.Context, filter TradeFilter) ([]domain.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(filter), nil
}

// InsertTrade appends t to the ledger.
func (m *Memory) InsertTrade(_ context.Context, t domain.Trade) (domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.portfolios[t.PortfolioID]; !ok {
		return domain.Trade{}, ErrNotFound
	}
	m.trades = append(m.trades, t)
	return t, nil
}

// filterLocked must be called with mu held.
func (m *Memory) filterLocked(filter TradeFilter) []domain.Trade {
	out := make([]domain.Trade, 0)
	for _, t := range m.trades {
		if !filter.Match(t) {
			continue
		}
		out = append(out, t)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}
