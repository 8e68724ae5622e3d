package engine

import (
	"context"
	"fmt"

	"crossexchange/internal/domain"
	"crossexchange/internal/store"
)

// EligibilityChecker decides whether a trade request may be recorded against
// a portfolio. It has no side effects.
type EligibilityChecker struct {
	catalog store.ShareCatalog
}

// NewEligibilityChecker creates an EligibilityChecker consulting catalog for
// share registration.
func NewEligibilityChecker(catalog store.ShareCatalog) *EligibilityChecker {
	return &EligibilityChecker{catalog: catalog}
}

// Check returns nil when req is allowed against p, a rejection error
// (ErrPortfolioNotFound, ErrShareNotRegistered, ErrInsufficientShares) when
// it is not, or a wrapped catalog error.
//
// A BUY needs only an existing portfolio and a registered share. A SELL
// additionally needs the portfolio's net holding of the symbol to cover the
// requested quantity; selling the entire holding is allowed.
func (c *EligibilityChecker) Check(ctx context.Context, req domain.TradeRequest, p *domain.Portfolio) error {
	if p == nil {
		return fmt.Errorf("%w: %d", domain.ErrPortfolioNotFound, req.PortfolioID)
	}

	registered, err := c.catalog.ShareExists(ctx, req.Symbol)
	if err != nil {
		return fmt.Errorf("checking registration of %s: %w", req.Symbol, err)
	}
	if !registered {
		return fmt.Errorf("%w: %s", domain.ErrShareNotRegistered, req.Symbol)
	}

	if req.Action != domain.Sell {
		return nil
	}
	h := domain.Net(p.Trades, req.Symbol)
	if h.Held < req.NoOfShares {
		return fmt.Errorf("%w: portfolio %d holds %d %s (bought %d, sold %d), requested %d",
			domain.ErrInsufficientShares, p.ID, h.Held, req.Symbol, h.Bought, h.Sold, req.NoOfShares)
	}
	return nil
}
