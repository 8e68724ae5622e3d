// Package cli implements the crossexchange-cli subcommands on top of the
// HTTP SDK.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
	"crossexchange/pkg/crossexchange"
)

// API is the server surface the commands use. *crossexchange.Client
// implements it.
type API interface {
	ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.Trade, error)
	Trades(ctx context.Context, portfolioID int64) ([]domain.Trade, error)
	RecordPrice(ctx context.Context, symbol string, rate decimal.Decimal, ts time.Time) (domain.SharePriceRecord, error)
	LatestPrice(ctx context.Context, symbol string) (domain.SharePriceRecord, error)
	CreatePortfolio(ctx context.Context, name string) (crossexchange.PortfolioView, error)
	Portfolio(ctx context.Context, id int64) (crossexchange.PortfolioView, error)
}

// Env is shared by every command.
type Env struct {
	API      API
	Out      io.Writer
	Err      io.Writer
	Currency string
	// Plain prints raw markdown instead of rendering it for the terminal.
	Plain bool
}

// Commands returns every crossexchange-cli subcommand.
func Commands(env *Env) []subcommands.Command {
	return []subcommands.Command{
		&tradeCmd{env: env, action: domain.Buy},
		&tradeCmd{env: env, action: domain.Sell},
		&priceCmd{env: env},
		&recordPriceCmd{env: env},
		&tradesCmd{env: env},
		&positionCmd{env: env},
		&portfolioCmd{env: env},
		&createPortfolioCmd{env: env},
	}
}

// printMarkdown renders md for the terminal, or prints it verbatim in plain
// mode or when rendering fails.
func (e *Env) printMarkdown(md string) {
	if !e.Plain {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			if out, err := r.Render(md); err == nil {
				fmt.Fprint(e.Out, out)
				return
			}
		}
	}
	fmt.Fprint(e.Out, md)
}

// fail reports err and returns the matching exit status.
func (e *Env) fail(what string, err error) subcommands.ExitStatus {
	if reason := domain.ReasonOf(err); reason != domain.ReasonNone {
		fmt.Fprintf(e.Err, "%s rejected (%s): %v\n", what, reason, err)
	} else {
		fmt.Fprintf(e.Err, "Error %s: %v\n", what, err)
	}
	return subcommands.ExitFailure
}

// formatMoney formats a major-unit amount in the Env currency.
func (e *Env) formatMoney(d decimal.Decimal) string {
	code := e.Currency
	if code == "" {
		code = "USD"
	}
	cur := money.New(0, code).Currency()
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
