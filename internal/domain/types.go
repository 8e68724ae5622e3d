// Package domain defines the core types shared across crossexchange: trade
// actions, share symbols, price records, portfolios and trades.
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Action
// ---------------------------------------------------------------------------

// Action is the side of a trade. It is a closed set: only Buy and Sell are
// valid.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// ParseAction converts a wire string into an Action. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseAction(s string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, s)
	}
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool { return a == Buy || a == Sell }

func (a Action) String() string { return string(a) }

// ---------------------------------------------------------------------------
// Symbol
// ---------------------------------------------------------------------------

// Symbol is a validated, upper-case share ticker such as "REL" or "BRK.B".
type Symbol string

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)

// ParseSymbol normalises s to upper case and validates it.
func ParseSymbol(s string) (Symbol, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if !symbolPattern.MatchString(up) {
		return "", fmt.Errorf("%w: invalid symbol %q", ErrInvalidRequest, s)
	}
	return Symbol(up), nil
}

// MustSymbol is like ParseSymbol but panics on invalid input. Intended for
// tests and constants.
func MustSymbol(s string) Symbol {
	sym, err := ParseSymbol(s)
	if err != nil {
		panic(err)
	}
	return sym
}

func (s Symbol) String() string { return string(s) }

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// SharePriceRecord is one observed price for a symbol. Records are immutable
// and append-only; the record with the greatest Timestamp is the latest.
type SharePriceRecord struct {
	Symbol    Symbol          `json:"symbol"`
	Price     decimal.Decimal `json:"rate"`
	Timestamp time.Time       `json:"timeStamp"`
}

// Trade is a ledger entry. Trades are created once by the trade recorder and
// never updated or deleted.
type Trade struct {
	ID          string          `json:"id"`
	Action      Action          `json:"action"`
	Symbol      Symbol          `json:"symbol"`
	NoOfShares  int64           `json:"noOfShares"`
	Price       decimal.Decimal `json:"price"`
	PortfolioID int64           `json:"portfolioId"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Notional returns Price * NoOfShares.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.NoOfShares))
}

// Portfolio is a collection of trades owned by a single holder. Trades are in
// ledger (insertion) order.
type Portfolio struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Trades    []Trade   `json:"trades"`
}

// Held returns the net quantity of symbol held by the portfolio.
func (p *Portfolio) Held(symbol Symbol) int64 {
	return NetHeld(p.Trades, symbol)
}

// Holdings returns the net position of every symbol the portfolio has
// traded, including fully liquidated ones.
func (p *Portfolio) Holdings() []Holding {
	return NetPositions(p.Trades)
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// MaxShares bounds NoOfShares in a single request.
const MaxShares int64 = 1_000_000_000_000

// TradeRequest is the input of a trade execution.
type TradeRequest struct {
	Action      Action `json:"action"`
	Symbol      Symbol `json:"symbol"`
	NoOfShares  int64  `json:"noOfShares"`
	PortfolioID int64  `json:"portfolioId"`
}

// NewTradeRequest parses raw wire fields into a validated TradeRequest.
func NewTradeRequest(action, symbol string, noOfShares, portfolioID int64) (TradeRequest, error) {
	a, err := ParseAction(action)
	if err != nil {
		return TradeRequest{}, err
	}
	sym, err := ParseSymbol(symbol)
	if err != nil {
		return TradeRequest{}, err
	}
	req := TradeRequest{Action: a, Symbol: sym, NoOfShares: noOfShares, PortfolioID: portfolioID}
	return req, req.Validate()
}

// Validate checks the request's fields. It does not consult any store.
func (r TradeRequest) Validate() error {
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, r.Action)
	}
	if !symbolPattern.MatchString(string(r.Symbol)) {
		return fmt.Errorf("%w: invalid symbol %q", ErrInvalidRequest, r.Symbol)
	}
	if r.NoOfShares <= 0 {
		return fmt.Errorf("%w: noOfShares must be positive, got %d", ErrInvalidRequest, r.NoOfShares)
	}
	if r.NoOfShares > MaxShares {
		return fmt.Errorf("%w: noOfShares exceeds %d, got %d", ErrInvalidRequest, MaxShares, r.NoOfShares)
	}
	if r.PortfolioID <= 0 {
		return fmt.Errorf("%w: portfolioId must be positive, got %d", ErrInvalidRequest, r.PortfolioID)
	}
	return nil
}
