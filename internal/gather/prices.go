package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"crossexchange/internal/config"
	"crossexchange/internal/domain"
	"crossexchange/internal/store"
	"crossexchange/internal/util"
)

var _ Gatherer = (*PriceGatherer)(nil)

// maxSymbolsPerCall bounds the symbols of one latest-trades request.
const maxSymbolsPerCall = 100

// LatestTradeClient is the subset of *marketdata.Client the gatherer uses.
type LatestTradeClient interface {
	GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error)
}

// NewAlpacaClient builds a market data client from the Alpaca config.
func NewAlpacaClient(cfg config.Alpaca) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return marketdata.NewClient(opts)
}

// PriceGatherer polls the latest trade of each configured symbol and appends
// it to the share price history. A trade already recorded is not appended
// twice.
type PriceGatherer struct {
	client   LatestTradeClient
	sink     store.PriceWriter
	symbols  []domain.Symbol
	interval time.Duration
	retries  int
	backoff  time.Duration
	limiter  *rate.Limiter
	last     map[domain.Symbol]time.Time
	log      *slog.Logger
}

// NewPriceGatherer creates a PriceGatherer for the symbols in cfg.
func NewPriceGatherer(client LatestTradeClient, sink store.PriceWriter, cfg config.GatherConfig) (*PriceGatherer, error) {
	symbols := make([]domain.Symbol, 0, len(cfg.Symbols))
	seen := make(map[domain.Symbol]bool, len(cfg.Symbols))
	for _, raw := range cfg.Symbols {
		sym, err := domain.ParseSymbol(raw)
		if err != nil {
			return nil, fmt.Errorf("gather symbol: %w", err)
		}
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("gather: no symbols configured")
	}

	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 200
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 1
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	return &PriceGatherer{
		client:   client,
		sink:     sink,
		symbols:  symbols,
		interval: interval,
		retries:  retries,
		backoff:  time.Second,
		limiter:  rate.NewLimiter(rate.Limit(float64(perMin)/60.0), 1),
		last:     make(map[domain.Symbol]time.Time),
		log:      slog.Default().With("gatherer", "prices"),
	}, nil
}

// Name returns the gatherer identifier.
func (g *PriceGatherer) Name() string { return "prices" }

// Run polls immediately and then every interval until ctx is cancelled.
// Poll failures are logged and retried on the next tick.
func (g *PriceGatherer) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		n, err := g.RunOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			g.log.Error("price poll failed", "error", err)
		default:
			g.log.Debug("price poll done", "appended", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce fetches the latest trade of every symbol once and returns the
// number of price records appended.
func (g *PriceGatherer) RunOnce(ctx context.Context) (int, error) {
	appended := 0
	for i := 0; i < len(g.symbols); i += maxSymbolsPerCall {
		end := min(i+maxSymbolsPerCall, len(g.symbols))
		batch := g.symbols[i:end]

		trades, err := g.fetch(ctx, batch)
		if err != nil {
			return appended, err
		}
		for _, sym := range batch {
			tr, ok := trades[sym.String()]
			if !ok {
				g.log.Debug("no latest trade", "symbol", sym)
				continue
			}
			added, err := g.record(ctx, sym, tr)
			if err != nil {
				return appended, err
			}
			if added {
				appended++
			}
		}
	}
	return appended, nil
}

func (g *PriceGatherer) fetch(ctx context.Context, batch []domain.Symbol) (map[string]marketdata.Trade, error) {
	names := make([]string, len(batch))
	for i, s := range batch {
		names[i] = s.String()
	}

	var trades map[string]marketdata.Trade
	err := util.Retry(ctx, g.retries, g.backoff, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		got, err := g.client.GetLatestTrades(names, marketdata.GetLatestTradeRequest{Feed: marketdata.IEX})
		if err != nil {
			return fmt.Errorf("GetLatestTrades: %w", err)
		}
		trades = make(map[string]marketdata.Trade, len(got))
		for sym, tr := range got {
			trades[strings.ToUpper(sym)] = tr
		}
		return nil
	})
	return trades, err
}

func (g *PriceGatherer) record(ctx context.Context, sym domain.Symbol, tr marketdata.Trade) (bool, error) {
	if tr.Price <= 0 {
		g.log.Warn("ignoring non-positive trade price", "symbol", sym, "price", tr.Price)
		return false, nil
	}
	ts := tr.Timestamp.UTC()
	if last, ok := g.last[sym]; ok && !ts.After(last) {
		return false, nil
	}

	rec := domain.SharePriceRecord{
		Symbol:    sym,
		Price:     decimal.NewFromFloat(tr.Price),
		Timestamp: ts,
	}
	if err := g.sink.AppendPrice(ctx, rec); err != nil {
		return false, fmt.Errorf("appending price of %s: %w", sym, err)
	}
	g.last[sym] = ts
	return true, nil
}
