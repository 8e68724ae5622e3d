// Package crossexchange is a Go SDK for the crossexchange-server HTTP API.
package crossexchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
)

// Client provides a Go SDK for interacting with the crossexchange-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new crossexchange API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response. Rejections unwrap to the matching domain
// sentinel, so errors.Is(err, domain.ErrInsufficientShares) works.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("crossexchange: HTTP %d", e.Status)
	}
	return fmt.Sprintf("crossexchange: %s: %s", e.Code, e.Message)
}

// Unwrap returns the domain rejection named by Code, if any.
func (e *APIError) Unwrap() error {
	switch domain.Reason(e.Code) {
	case domain.ReasonInvalidRequest:
		return domain.ErrInvalidRequest
	case domain.ReasonPortfolioNotFound:
		return domain.ErrPortfolioNotFound
	case domain.ReasonShareNotRegistered:
		return domain.ErrShareNotRegistered
	case domain.ReasonInsufficientShares:
		return domain.ErrInsufficientShares
	case domain.ReasonPriceUnavailable:
		return domain.ErrPriceUnavailable
	}
	return nil
}

// PortfolioView is a portfolio with its net holdings.
type PortfolioView struct {
	domain.Portfolio
	Holdings []domain.Holding `json:"holdings"`
}

// ExecuteTrade submits a BUY or SELL and returns the recorded trade.
func (c *Client) ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.Trade, error) {
	var t domain.Trade
	err := c.do(ctx, http.MethodPost, "/api/Trade", req, &t)
	return t, err
}

// Trades lists the ledger of a portfolio.
func (c *Client) Trades(ctx context.Context, portfolioID int64) ([]domain.Trade, error) {
	var trades []domain.Trade
	err := c.do(ctx, http.MethodGet, "/api/Trade/"+strconv.FormatInt(portfolioID, 10), nil, &trades)
	return trades, err
}

// RecordPrice appends a share price. A zero ts lets the server stamp it.
func (c *Client) RecordPrice(ctx context.Context, symbol string, rate decimal.Decimal, ts time.Time) (domain.SharePriceRecord, error) {
	body := map[string]any{"symbol": symbol, "rate": rate}
	if !ts.IsZero() {
		body["timeStamp"] = ts.UTC()
	}
	var rec domain.SharePriceRecord
	err := c.do(ctx, http.MethodPost, "/api/Share", body, &rec)
	return rec, err
}

// LatestPrice returns the most recent price of symbol.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (domain.SharePriceRecord, error) {
	var rec domain.SharePriceRecord
	err := c.do(ctx, http.MethodGet, "/api/Share/"+url.PathEscape(symbol), nil, &rec)
	return rec, err
}

// CreatePortfolio creates a new, empty portfolio.
func (c *Client) CreatePortfolio(ctx context.Context, name string) (PortfolioView, error) {
	var p PortfolioView
	err := c.do(ctx, http.MethodPost, "/api/Portfolio", map[string]string{"name": name}, &p)
	return p, err
}

// Portfolio returns a portfolio with its trades and holdings.
func (c *Client) Portfolio(ctx context.Context, id int64) (PortfolioView, error) {
	var p PortfolioView
	err := c.do(ctx, http.MethodGet, "/api/Portfolio/"+strconv.FormatInt(id, 10), nil, &p)
	return p, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
