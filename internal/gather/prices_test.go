package gather

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"crossexchange/internal/config"
	"crossexchange/internal/store"
)

type fakeClient struct {
	mu     sync.Mutex
	calls  int
	fail   int // number of leading calls that fail
	trades map[string]marketdata.Trade
	asked  [][]string
}

func (f *fakeClient) GetLatestTrades(symbols []string, _ marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.asked = append(f.asked, append([]string(nil), symbols...))
	if f.calls <= f.fail {
		return nil, errors.New("503 service unavailable")
	}
	out := make(map[string]marketdata.Trade)
	for _, s := range symbols {
		if tr, ok := f.trades[s]; ok {
			out[s] = tr
		}
	}
	return out, nil
}

func newTestGatherer(t *testing.T, client LatestTradeClient, sink store.PriceWriter, symbols ...string) *PriceGatherer {
	t.Helper()
	g, err := NewPriceGatherer(client, sink, config.GatherConfig{Symbols: symbols, Retries: 3, Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewPriceGatherer: %v", err)
	}
	g.limiter = rate.NewLimiter(rate.Inf, 1)
	g.backoff = 0
	return g
}

var ts = time.Date(2024, 3, 1, 15, 59, 59, 0, time.UTC)

func TestRunOnceAppendsLatestTrades(t *testing.T) {
	mem := store.NewMemory()
	client := &fakeClient{trades: map[string]marketdata.Trade{
		"REL": {Price: 95.5, Timestamp: ts},
		"CBI": {Price: 12.25, Timestamp: ts},
	}}
	g := newTestGatherer(t, client, mem, "rel", "CBI", "NONE", "REL")

	n, err := g.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Errorf("appended %d records, want 2", n)
	}
	if len(client.asked) != 1 || len(client.asked[0]) != 3 {
		t.Errorf("asked = %v, want one call with 3 unique symbols", client.asked)
	}

	recs, err := mem.QueryPrices(context.Background(), "REL")
	if err != nil {
		t.Fatalf("QueryPrices: %v", err)
	}
	if len(recs) != 1 || !recs[0].Price.Equal(decimal.RequireFromString("95.5")) || !recs[0].Timestamp.Equal(ts) {
		t.Errorf("REL prices = %+v", recs)
	}
	if ok, _ := mem.ShareExists(context.Background(), "NONE"); ok {
		t.Error("symbol without a trade should stay unregistered")
	}

	// Same trades again: nothing new.
	if n, err := g.RunOnce(context.Background()); err != nil || n != 0 {
		t.Errorf("second RunOnce = %d, %v; want 0, nil", n, err)
	}

	client.trades["REL"] = marketdata.Trade{Price: 96, Timestamp: ts.Add(time.Second)}
	if n, err := g.RunOnce(context.Background()); err != nil || n != 1 {
		t.Errorf("third RunOnce = %d, %v; want 1, nil", n, err)
	}
}

func TestRunOnceRetries(t *testing.T) {
	mem := store.NewMemory()
	client := &fakeClient{fail: 2, trades: map[string]marketdata.Trade{"REL": {Price: 1, Timestamp: ts}}}
	g := newTestGatherer(t, client, mem, "REL")

	n, err := g.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 || client.calls != 3 {
		t.Errorf("appended %d after %d calls, want 1 after 3", n, client.calls)
	}

	client.fail = client.calls + 3
	if _, err := g.RunOnce(context.Background()); err == nil {
		t.Error("RunOnce should fail once retries are exhausted")
	}
}

func TestRunOnceSkipsBadPrices(t *testing.T) {
	mem := store.NewMemory()
	client := &fakeClient{trades: map[string]marketdata.Trade{"REL": {Price: 0, Timestamp: ts}}}
	g := newTestGatherer(t, client, mem, "REL")
	if n, err := g.RunOnce(context.Background()); err != nil || n != 0 {
		t.Errorf("RunOnce = %d, %v; want 0, nil", n, err)
	}
}

func TestNewPriceGathererValidation(t *testing.T) {
	if _, err := NewPriceGatherer(&fakeClient{}, store.NewMemory(), config.GatherConfig{}); err == nil {
		t.Error("no symbols should be an error")
	}
	if _, err := NewPriceGatherer(&fakeClient{}, store.NewMemory(), config.GatherConfig{Symbols: []string{"bad symbol"}}); err == nil {
		t.Error("invalid symbol should be an error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	mem := store.NewMemory()
	client := &fakeClient{trades: map[string]marketdata.Trade{"REL": {Price: 1, Timestamp: ts}}}
	g := newTestGatherer(t, client, mem, "REL")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunAll(ctx, slog.Default(), g) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if ok, _ := mem.ShareExists(context.Background(), "REL"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("gatherer never appended a price")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunAll = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gatherer did not stop")
	}
}
