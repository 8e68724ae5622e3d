package crossexchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c == nil {
		t.Fatal("expected non-nil client")
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
}

func TestExecuteTrade(t *testing.T) {
	var got domain.TradeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/Trade" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"t-1","action":"BUY","symbol":"REL","noOfShares":3,"price":"95.5","portfolioId":1,"createdAt":"2024-03-01T09:30:00Z"}`))
	}))
	defer srv.Close()

	tr, err := NewClient(srv.URL).ExecuteTrade(context.Background(), domain.TradeRequest{
		Action: domain.Buy, Symbol: "REL", NoOfShares: 3, PortfolioID: 1,
	})
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if got.Symbol != "REL" || got.NoOfShares != 3 {
		t.Errorf("server received %+v", got)
	}
	if tr.ID != "t-1" || !tr.Price.Equal(decimal.RequireFromString("95.5")) {
		t.Errorf("trade = %+v", tr)
	}
}

func TestRejectionUnwraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"insufficient_shares","message":"insufficient shares: held 2, requested 5"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ExecuteTrade(context.Background(), domain.TradeRequest{
		Action: domain.Sell, Symbol: "REL", NoOfShares: 5, PortfolioID: 1,
	})
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("err = %v, want ErrInsufficientShares", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Errorf("err = %#v", err)
	}
}

func TestServerErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Trades(context.Background(), 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Unwrap() != nil {
		t.Errorf("Unwrap = %v, want nil", apiErr.Unwrap())
	}
}

func TestRecordPriceAndPortfolio(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/Share", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Symbol    string          `json:"symbol"`
			Rate      decimal.Decimal `json:"rate"`
			TimeStamp time.Time       `json:"timeStamp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding: %v", err)
		}
		if !body.TimeStamp.Equal(ts) || !body.Rate.Equal(decimal.RequireFromString("12.34")) {
			t.Errorf("body = %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.SharePriceRecord{Symbol: "CBI", Price: body.Rate, Timestamp: body.TimeStamp})
	})
	mux.HandleFunc("GET /api/Portfolio/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			t.Errorf("id = %q", r.PathValue("id"))
		}
		_, _ = w.Write([]byte(`{"id":7,"name":"savings","trades":[],"holdings":[{"symbol":"CBI","bought":5,"sold":2,"held":3}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	rec, err := c.RecordPrice(context.Background(), "CBI", decimal.RequireFromString("12.34"), ts)
	if err != nil || rec.Symbol != "CBI" {
		t.Fatalf("RecordPrice = %+v, %v", rec, err)
	}

	p, err := c.Portfolio(context.Background(), 7)
	if err != nil {
		t.Fatalf("Portfolio: %v", err)
	}
	if p.ID != 7 || p.Name != "savings" || len(p.Holdings) != 1 || p.Holdings[0].Held != 3 {
		t.Errorf("portfolio = %+v", p)
	}
}
