// Package engine validates trade requests against portfolio holdings and the
// latest recorded share price, and records the accepted ones.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"crossexchange/internal/domain"
	"crossexchange/internal/events"
	"crossexchange/internal/store"
)

// State is a step of a single execution.
type State int

const (
	StateStart State = iota
	StatePriceResolved
	StateEligibilityChecked
	StateRecorded
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StatePriceResolved:
		return "price_resolved"
	case StateEligibilityChecked:
		return "eligibility_checked"
	case StateRecorded:
		return "recorded"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Locker serialises work on a key. The returned unlock must be called
// exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Deps are the collaborators of an Executor. The four stores are required.
type Deps struct {
	Prices     store.PriceStore
	Catalog    store.ShareCatalog
	Portfolios store.PortfolioStore
	Trades     store.TradeStore

	// Locker guards a portfolio from its load until the trade insert.
	// Required; lock.NewLocal() serves a single process.
	Locker Locker

	// Publisher receives a TradeRecorded event per accepted trade. Optional.
	Publisher events.Publisher

	Logger    *slog.Logger
	Telemetry *Telemetry
}

// Executor runs trade requests through price resolution, eligibility and
// recording.
type Executor struct {
	resolver  *PriceResolver
	checker   *EligibilityChecker
	recorder  *TradeRecorder
	portfolio store.PortfolioStore
	trades    store.TradeStore
	locker    Locker
	publisher events.Publisher
	logger    *slog.Logger
	tel       *Telemetry
}

// NewExecutor wires an Executor from d.
func NewExecutor(d Deps) (*Executor, error) {
	if d.Prices == nil || d.Catalog == nil || d.Portfolios == nil || d.Trades == nil {
		return nil, errors.New("engine: price, catalog, portfolio and trade stores are required")
	}
	if d.Locker == nil {
		return nil, errors.New("engine: locker is required")
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Telemetry == nil {
		tel, err := NewTelemetry()
		if err != nil {
			return nil, fmt.Errorf("engine telemetry: %w", err)
		}
		d.Telemetry = tel
	}
	return &Executor{
		resolver:  NewPriceResolver(d.Prices),
		checker:   NewEligibilityChecker(d.Catalog),
		recorder:  NewTradeRecorder(d.Trades),
		portfolio: d.Portfolios,
		trades:    d.Trades,
		locker:    d.Locker,
		publisher: d.Publisher,
		logger:    d.Logger.With("component", "engine"),
		tel:       d.Telemetry,
	}, nil
}

// Execute validates req and, if allowed, appends the trade at the latest
// recorded price. A rejection is returned as an error matching one of the
// domain rejection sentinels and never writes to the ledger. Any other error
// is an infrastructure fault.
func (e *Executor) Execute(ctx context.Context, req domain.TradeRequest) (domain.Trade, error) {
	ctx, span := e.tel.start(ctx, "engine.Execute",
		attribute.String("trade.action", string(req.Action)),
		attribute.String("trade.symbol", string(req.Symbol)),
		attribute.Int64("trade.shares", req.NoOfShares),
		attribute.Int64("portfolio.id", req.PortfolioID),
	)
	defer span.End()

	log := e.logger.With(
		"action", req.Action,
		"symbol", req.Symbol,
		"shares", req.NoOfShares,
		"portfolio_id", req.PortfolioID,
	)

	t, state, err := e.execute(ctx, req, log)
	span.SetAttributes(attribute.String("engine.state", state.String()))
	if err == nil {
		e.tel.recordTrade(ctx, t)
		span.SetAttributes(attribute.String("trade.id", t.ID))
		log.Info("trade recorded", "trade_id", t.ID, "price", t.Price.String())
		e.publish(ctx, t, log)
		return t, nil
	}

	span.RecordError(err)
	if reason := domain.ReasonOf(err); reason != domain.ReasonNone {
		e.tel.recordRejection(ctx, reason)
		span.SetStatus(codes.Error, string(reason))
		log.Info("trade rejected", "reason", reason, "error", err)
	} else {
		span.SetStatus(codes.Error, err.Error())
		log.Error("trade execution failed", "state", state, "error", err)
	}
	return domain.Trade{}, err
}

// execute runs the state machine and returns the last state reached.
func (e *Executor) execute(ctx context.Context, req domain.TradeRequest, log *slog.Logger) (domain.Trade, State, error) {
	state := StateStart
	if err := req.Validate(); err != nil {
		return domain.Trade{}, StateRejected, err
	}

	pctx, span := e.tel.start(ctx, "engine.ResolvePrice")
	price, found, err := e.resolver.LatestPrice(pctx, req.Symbol)
	span.End()
	if err != nil {
		return domain.Trade{}, state, err
	}
	state = StatePriceResolved
	log.Debug("price resolved", "found", found, "price", price.String())

	unlock, err := e.locker.Lock(ctx, portfolioKey(req.PortfolioID))
	if err != nil {
		return domain.Trade{}, state, fmt.Errorf("locking portfolio %d: %w", req.PortfolioID, err)
	}
	defer unlock()

	p, err := e.portfolio.FindPortfolio(ctx, req.PortfolioID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.Trade{}, StateRejected, fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, req.PortfolioID)
	case err != nil:
		return domain.Trade{}, state, fmt.Errorf("loading portfolio %d: %w", req.PortfolioID, err)
	}
	if !found {
		return domain.Trade{}, StateRejected, fmt.Errorf("%w: no recorded price for %s", domain.ErrPriceUnavailable, req.Symbol)
	}

	cctx, span := e.tel.start(ctx, "engine.CheckEligibility")
	err = e.checker.Check(cctx, req, p)
	span.End()
	if err != nil {
		if domain.IsRejection(err) {
			return domain.Trade{}, StateRejected, err
		}
		return domain.Trade{}, state, err
	}
	state = StateEligibilityChecked
	log.Debug("eligibility checked")

	rctx, span := e.tel.start(ctx, "engine.RecordTrade")
	t, err := e.recorder.Record(rctx, req, price, p.ID)
	span.End()
	if err != nil {
		if domain.IsRejection(err) {
			return domain.Trade{}, StateRejected, err
		}
		return domain.Trade{}, state, err
	}
	return t, StateRecorded, nil
}

func (e *Executor) publish(ctx context.Context, t domain.Trade, log *slog.Logger) {
	if err := e.publisher.Publish(ctx, events.TradeRecorded(t)); err != nil {
		log.Warn("publishing trade event failed", "trade_id", t.ID, "error", err)
	}
}

// Trades returns the ledger of a portfolio in insertion order.
func (e *Executor) Trades(ctx context.Context, portfolioID int64) ([]domain.Trade, error) {
	if err := e.requirePortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	trades, err := e.trades.QueryTrades(ctx, store.TradeFilter{PortfolioID: portfolioID})
	if err != nil {
		return nil, fmt.Errorf("listing trades of portfolio %d: %w", portfolioID, err)
	}
	return trades, nil
}

// Position returns the net holding of symbol in a portfolio.
func (e *Executor) Position(ctx context.Context, portfolioID int64, symbol domain.Symbol) (domain.Holding, error) {
	p, err := e.portfolio.FindPortfolio(ctx, portfolioID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Holding{}, fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, portfolioID)
	}
	if err != nil {
		return domain.Holding{}, fmt.Errorf("loading portfolio %d: %w", portfolioID, err)
	}
	return domain.Net(p.Trades, symbol), nil
}

// LatestPrice returns the most recent price record of symbol; found is
// false when it was never priced.
func (e *Executor) LatestPrice(ctx context.Context, symbol domain.Symbol) (domain.SharePriceRecord, bool, error) {
	return e.resolver.Latest(ctx, symbol)
}

func (e *Executor) requirePortfolio(ctx context.Context, id int64) error {
	_, err := e.portfolio.FindPortfolio(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("loading portfolio %d: %w", id, err)
	}
	return nil
}

func portfolioKey(id int64) string {
	return "portfolio:" + strconv.FormatInt(id, 10)
}
