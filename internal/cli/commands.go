package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
)

// tradeCmd implements both 'buy' and 'sell'.
type tradeCmd struct {
	env       *Env
	action    domain.Action
	portfolio int64
}

func (c *tradeCmd) Name() string { return strings.ToLower(c.action.String()) }
func (c *tradeCmd) Synopsis() string {
	return strings.ToLower(c.action.String()) + " shares at the latest recorded price"
}
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf(`crossexchange-cli %s -p <portfolio> <SYMBOL> <shares>

  Executes a %s trade for the portfolio at the share's latest price.
`, c.Name(), c.action)
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.portfolio, "p", 0, "portfolio id")
}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprint(c.env.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	shares, err := strconv.ParseInt(f.Arg(1), 10, 64)
	if err != nil {
		fmt.Fprintf(c.env.Err, "Error parsing shares %q: %v\n", f.Arg(1), err)
		return subcommands.ExitUsageError
	}
	req, err := domain.NewTradeRequest(c.action.String(), f.Arg(0), shares, c.portfolio)
	if err != nil {
		fmt.Fprintf(c.env.Err, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	t, err := c.env.API.ExecuteTrade(ctx, req)
	if err != nil {
		return c.env.fail(c.Name(), err)
	}
	c.env.printMarkdown(fmt.Sprintf("Recorded **%s** %d %s @ %s (total %s) in portfolio %d\n\nTrade id: `%s`\n",
		t.Action, t.NoOfShares, t.Symbol, c.env.formatMoney(t.Price), c.env.formatMoney(t.Notional()), t.PortfolioID, t.ID))
	return subcommands.ExitSuccess
}

type priceCmd struct{ env *Env }

func (*priceCmd) Name() string     { return "price" }
func (*priceCmd) Synopsis() string { return "show the latest recorded price of a share" }
func (*priceCmd) Usage() string {
	return `crossexchange-cli price <SYMBOL>
`
}
func (*priceCmd) SetFlags(*flag.FlagSet) {}

func (c *priceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(c.env.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	rec, err := c.env.API.LatestPrice(ctx, f.Arg(0))
	if err != nil {
		return c.env.fail("price", err)
	}
	c.env.printMarkdown(fmt.Sprintf("**%s** %s as of %s\n", rec.Symbol, c.env.formatMoney(rec.Price), rec.Timestamp.UTC().Format(time.RFC3339)))
	return subcommands.ExitSuccess
}

type recordPriceCmd struct {
	env *Env
	at  string
}

func (*recordPriceCmd) Name() string     { return "record-price" }
func (*recordPriceCmd) Synopsis() string { return "append a share price observation" }
func (*recordPriceCmd) Usage() string {
	return `crossexchange-cli record-price [-t <RFC3339 time>] <SYMBOL> <rate>

  Records a price. Without -t the server stamps the current time.
`
}

func (c *recordPriceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.at, "t", "", "observation time (RFC3339)")
}

func (c *recordPriceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprint(c.env.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	rate, err := decimal.NewFromString(f.Arg(1))
	if err != nil || !rate.IsPositive() {
		fmt.Fprintf(c.env.Err, "Error: rate must be a positive decimal, got %q\n", f.Arg(1))
		return subcommands.ExitUsageError
	}
	var ts time.Time
	if c.at != "" {
		if ts, err = time.Parse(time.RFC3339, c.at); err != nil {
			fmt.Fprintf(c.env.Err, "Error parsing time: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	rec, err := c.env.API.RecordPrice(ctx, f.Arg(0), rate, ts)
	if err != nil {
		return c.env.fail("record-price", err)
	}
	c.env.printMarkdown(fmt.Sprintf("Recorded **%s** at %s (%s)\n", rec.Symbol, c.env.formatMoney(rec.Price), rec.Timestamp.UTC().Format(time.RFC3339)))
	return subcommands.ExitSuccess
}

type tradesCmd struct {
	env       *Env
	portfolio int64
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "list the trades of a portfolio" }
func (*tradesCmd) Usage() string {
	return `crossexchange-cli trades -p <portfolio>
`
}

func (c *tradesCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.portfolio, "p", 0, "portfolio id")
}

func (c *tradesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	trades, err := c.env.API.Trades(ctx, c.portfolio)
	if err != nil {
		return c.env.fail("trades", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Portfolio %d trades\n\n", c.portfolio)
	if len(trades) == 0 {
		b.WriteString("No trades.\n")
		c.env.printMarkdown(b.String())
		return subcommands.ExitSuccess
	}
	b.WriteString("| Time | Action | Symbol | Shares | Price | Total |\n")
	b.WriteString("|:-----|:-------|:-------|-------:|------:|------:|\n")
	for _, t := range trades {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s | %s |\n",
			t.CreatedAt.UTC().Format(time.RFC3339), t.Action, escapeCell(t.Symbol.String()),
			t.NoOfShares, c.env.formatMoney(t.Price), c.env.formatMoney(t.Notional()))
	}
	c.env.printMarkdown(b.String())
	return subcommands.ExitSuccess
}

type positionCmd struct {
	env       *Env
	portfolio int64
}

func (*positionCmd) Name() string     { return "position" }
func (*positionCmd) Synopsis() string { return "show the net position of a portfolio in one share" }
func (*positionCmd) Usage() string {
	return `crossexchange-cli position -p <portfolio> <SYMBOL>
`
}

func (c *positionCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.portfolio, "p", 0, "portfolio id")
}

func (c *positionCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(c.env.Err, c.Usage())
		return subcommands.ExitUsageError
	}
	sym, err := domain.ParseSymbol(f.Arg(0))
	if err != nil {
		fmt.Fprintf(c.env.Err, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	p, err := c.env.API.Portfolio(ctx, c.portfolio)
	if err != nil {
		return c.env.fail("position", err)
	}
	h := domain.Net(p.Trades, sym)
	c.env.printMarkdown(fmt.Sprintf("Portfolio %d holds **%d** %s (bought %d, sold %d)\n", p.ID, h.Held, sym, h.Bought, h.Sold))
	return subcommands.ExitSuccess
}

type portfolioCmd struct {
	env       *Env
	portfolio int64
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "show a portfolio and its holdings" }
func (*portfolioCmd) Usage() string {
	return `crossexchange-cli portfolio -p <portfolio>
`
}

func (c *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.portfolio, "p", 0, "portfolio id")
}

func (c *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	p, err := c.env.API.Portfolio(ctx, c.portfolio)
	if err != nil {
		return c.env.fail("portfolio", err)
	}

	var b strings.Builder
	title := fmt.Sprintf("Portfolio %d", p.ID)
	if p.Name != "" {
		title += " (" + p.Name + ")"
	}
	fmt.Fprintf(&b, "# %s\n\n%d trades\n\n", title, len(p.Trades))
	if len(p.Holdings) > 0 {
		b.WriteString("| Symbol | Bought | Sold | Held |\n")
		b.WriteString("|:-------|-------:|-----:|-----:|\n")
		for _, h := range p.Holdings {
			fmt.Fprintf(&b, "| %s | %d | %d | %d |\n", escapeCell(h.Symbol.String()), h.Bought, h.Sold, h.Held)
		}
	}
	c.env.printMarkdown(b.String())
	return subcommands.ExitSuccess
}

type createPortfolioCmd struct{ env *Env }

func (*createPortfolioCmd) Name() string     { return "create-portfolio" }
func (*createPortfolioCmd) Synopsis() string { return "create an empty portfolio" }
func (*createPortfolioCmd) Usage() string {
	return `crossexchange-cli create-portfolio [name]
`
}
func (*createPortfolioCmd) SetFlags(*flag.FlagSet) {}

func (c *createPortfolioCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	p, err := c.env.API.CreatePortfolio(ctx, strings.Join(f.Args(), " "))
	if err != nil {
		return c.env.fail("create-portfolio", err)
	}
	c.env.printMarkdown(fmt.Sprintf("Created portfolio **%d**\n", p.ID))
	return subcommands.ExitSuccess
}
