package store

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
)

// ---------------------------------------------------------------------------
// Shared port behaviour, run against every embedded adapter.
// ---------------------------------------------------------------------------

type portsFactory func(t *testing.T) Stores

func embeddedAdapters() map[string]portsFactory {
	return map[string]portsFactory{
		"memory": func(t *testing.T) Stores { return NewMemory().Stores() },
		"sqlite": func(t *testing.T) Stores {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s.Stores()
		},
	}
}

func newTrade(action domain.Action, sym domain.Symbol, n int64, price string, portfolioID int64) domain.Trade {
	return domain.Trade{
		ID:          uuid.NewString(),
		Action:      action,
		Symbol:      sym,
		NoOfShares:  n,
		Price:       decimal.RequireFromString(price),
		PortfolioID: portfolioID,
		CreatedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestPricesRoundTrip(t *testing.T) {
	for name, factory := range embeddedAdapters() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			recs, err := s.Prices.QueryPrices(ctx, "REL")
			if err != nil {
				t.Fatalf("QueryPrices on empty store: %v", err)
			}
			if len(recs) != 0 {
				t.Fatalf("QueryPrices on empty store returned %d records", len(recs))
			}
			if ok, _ := s.Catalog.ShareExists(ctx, "REL"); ok {
				t.Fatal("ShareExists(REL) = true before any price")
			}

			t0 := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
			for i, p := range []string{"94.12", "95.50"} {
				err := s.PriceLog.AppendPrice(ctx, domain.SharePriceRecord{
					Symbol: "REL", Price: decimal.RequireFromString(p), Timestamp: t0.Add(time.Duration(i) * time.Minute),
				})
				if err != nil {
					t.Fatalf("AppendPrice: %v", err)
				}
			}

			recs, err = s.Prices.QueryPrices(ctx, "REL")
			if err != nil {
				t.Fatalf("QueryPrices: %v", err)
			}
			if len(recs) != 2 {
				t.Fatalf("QueryPrices returned %d records, want 2", len(recs))
			}
			if !recs[1].Price.Equal(decimal.RequireFromString("95.50")) {
				t.Errorf("second price = %s, want 95.50", recs[1].Price)
			}
			if !recs[0].Timestamp.Equal(t0) {
				t.Errorf("first timestamp = %v, want %v", recs[0].Timestamp, t0)
			}
			if ok, err := s.Catalog.ShareExists(ctx, "REL"); err != nil || !ok {
				t.Errorf("ShareExists(REL) = %v, %v; want true", ok, err)
			}
			if ok, _ := s.Catalog.ShareExists(ctx, "CBI"); ok {
				t.Error("ShareExists(CBI) = true, want false")
			}
		})
	}
}

func TestPricesDistantTimestamps(t *testing.T) {
	for name, factory := range embeddedAdapters() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			times := []time.Time{
				time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
				time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC),
			}
			for i := len(times) - 1; i >= 0; i-- {
				err := s.PriceLog.AppendPrice(ctx, domain.SharePriceRecord{
					Symbol: "REL", Price: decimal.NewFromInt(int64(i + 1)), Timestamp: times[i],
				})
				if err != nil {
					t.Fatalf("AppendPrice(%v): %v", times[i], err)
				}
			}

			recs, err := s.Prices.QueryPrices(ctx, "REL")
			if err != nil {
				t.Fatalf("QueryPrices: %v", err)
			}
			if len(recs) != len(times) {
				t.Fatalf("QueryPrices returned %d records, want %d", len(recs), len(times))
			}
			slices.SortStableFunc(recs, func(a, b domain.SharePriceRecord) int {
				return a.Timestamp.Compare(b.Timestamp)
			})
			for i, r := range recs {
				if !r.Timestamp.Equal(times[i]) {
					t.Errorf("record %d timestamp = %v, want %v", i, r.Timestamp, times[i])
				}
				if !r.Price.Equal(decimal.NewFromInt(int64(i + 1))) {
					t.Errorf("record %d price = %s, want %d", i, r.Price, i+1)
				}
			}
		})
	}
}

func TestPortfolioAndLedger(t *testing.T) {
	for name, factory := range embeddedAdapters() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			if _, err := s.Portfolios.FindPortfolio(ctx, 42); !errors.Is(err, ErrNotFound) {
				t.Fatalf("FindPortfolio(42) error = %v, want ErrNotFound", err)
			}

			p, err := s.Admin.CreatePortfolio(ctx, "alice")
			if err != nil {
				t.Fatalf("CreatePortfolio: %v", err)
			}
			if p.ID <= 0 {
				t.Fatalf("CreatePortfolio id = %d, want positive", p.ID)
			}

			if _, err := s.Trades.InsertTrade(ctx, newTrade(domain.Buy, "REL", 10, "95.50", p.ID+100)); !errors.Is(err, ErrNotFound) {
				t.Errorf("InsertTrade for missing portfolio error = %v, want ErrNotFound", err)
			}

			inserts := []domain.Trade{
				newTrade(domain.Buy, "REL", 10, "95.50", p.ID),
				newTrade(domain.Sell, "REL", 4, "96.00", p.ID),
				newTrade(domain.Buy, "CBI", 3, "12.10", p.ID),
			}
			for _, tr := range inserts {
				if _, err := s.Trades.InsertTrade(ctx, tr); err != nil {
					t.Fatalf("InsertTrade: %v", err)
				}
			}

			got, err := s.Portfolios.FindPortfolio(ctx, p.ID)
			if err != nil {
				t.Fatalf("FindPortfolio: %v", err)
			}
			if got.Name != "alice" {
				t.Errorf("Name = %q, want alice", got.Name)
			}
			if len(got.Trades) != 3 {
				t.Fatalf("hydrated %d trades, want 3", len(got.Trades))
			}
			for i := range inserts {
				if got.Trades[i].ID != inserts[i].ID {
					t.Errorf("trade %d id = %s, want %s (insertion order)", i, got.Trades[i].ID, inserts[i].ID)
				}
			}
			if held := got.Held("REL"); held != 6 {
				t.Errorf("Held(REL) = %d, want 6", held)
			}
			if !got.Trades[0].Price.Equal(decimal.RequireFromString("95.5")) {
				t.Errorf("price = %s, want 95.5", got.Trades[0].Price)
			}

			sells, err := s.Trades.QueryTrades(ctx, TradeFilter{PortfolioID: p.ID, Action: domain.Sell})
			if err != nil {
				t.Fatalf("QueryTrades: %v", err)
			}
			if len(sells) != 1 || sells[0].NoOfShares != 4 {
				t.Errorf("sell filter returned %+v", sells)
			}

			limited, err := s.Trades.QueryTrades(ctx, TradeFilter{PortfolioID: p.ID, Limit: 2})
			if err != nil {
				t.Fatalf("QueryTrades limit: %v", err)
			}
			if len(limited) != 2 {
				t.Errorf("limit 2 returned %d trades", len(limited))
			}

			cbi, err := s.Trades.QueryTrades(ctx, TradeFilter{Symbol: "CBI"})
			if err != nil {
				t.Fatalf("QueryTrades symbol: %v", err)
			}
			if len(cbi) != 1 {
				t.Errorf("symbol filter returned %d trades, want 1", len(cbi))
			}
		})
	}
}

func TestTradeFilterMatch(t *testing.T) {
	tr := domain.Trade{Action: domain.Buy, Symbol: "REL", PortfolioID: 1}
	tests := []struct {
		f    TradeFilter
		want bool
	}{
		{TradeFilter{}, true},
		{TradeFilter{PortfolioID: 1}, true},
		{TradeFilter{PortfolioID: 2}, false},
		{TradeFilter{Symbol: "REL", Action: domain.Buy}, true},
		{TradeFilter{Symbol: "CBI"}, false},
		{TradeFilter{Action: domain.Sell}, false},
	}
	for _, tt := range tests {
		if got := tt.f.Match(tr); got != tt.want {
			t.Errorf("%+v.Match = %v, want %v", tt.f, got, tt.want)
		}
	}
}

func TestMemoryPutPortfolio(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.PutPortfolio(domain.Portfolio{ID: 7, Name: "seeded"})

	p, err := m.CreatePortfolio(ctx, "next")
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if p.ID != 8 {
		t.Errorf("CreatePortfolio after PutPortfolio(7) id = %d, want 8", p.ID)
	}
	got, err := m.FindPortfolio(ctx, 7)
	if err != nil || got.Name != "seeded" {
		t.Errorf("FindPortfolio(7) = %+v, %v", got, err)
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	p, err := s.CreatePortfolio(ctx, "persisted")
	if err != nil {
		t.Fatalf("CreatePortfolio: %v", err)
	}
	if _, err := s.InsertTrade(ctx, newTrade(domain.Buy, "REL", 5, "10.00", p.ID)); err != nil {
		t.Fatalf("InsertTrade: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.FindPortfolio(ctx, p.ID)
	if err != nil {
		t.Fatalf("FindPortfolio after reopen: %v", err)
	}
	if len(got.Trades) != 1 || got.Trades[0].NoOfShares != 5 {
		t.Errorf("trades after reopen = %+v", got.Trades)
	}
}
