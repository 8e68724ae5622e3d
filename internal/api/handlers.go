package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
	"crossexchange/internal/engine"
	"crossexchange/internal/store"
)

// Deps are the collaborators of the HTTP and gRPC surfaces.
type Deps struct {
	Executor   *engine.Executor
	PriceLog   store.PriceWriter
	Portfolios store.PortfolioStore
	Admin      store.PortfolioWriter
	Hub        *Hub
	Logger     *slog.Logger
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tradeRequest struct {
	Action      string `json:"action"`
	Symbol      string `json:"symbol"`
	NoOfShares  int64  `json:"noOfShares"`
	PortfolioID int64  `json:"portfolioId"`
}

type sharePriceRequest struct {
	Symbol    string          `json:"symbol"`
	Rate      decimal.Decimal `json:"rate"`
	TimeStamp *time.Time      `json:"timeStamp"`
}

type portfolioRequest struct {
	Name string `json:"name"`
}

type portfolioResponse struct {
	*domain.Portfolio
	Holdings []domain.Holding `json:"holdings"`
}

type handler struct {
	d      Deps
	logger *slog.Logger
}

// NewRouter wires the gin engine with every HTTP route.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &handler{d: d, logger: d.Logger.With("component", "http")}

	g := gin.New()
	g.Use(h.requestLog)
	g.Use(gin.Recovery())

	g.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	api := g.Group("/api")
	api.POST("/Trade", h.postTrade)
	api.GET("/Trade/:portfolioId", h.getTrades)
	api.POST("/Share", h.postShare)
	api.GET("/Share/:symbol", h.getShare)
	api.POST("/Portfolio", h.postPortfolio)
	api.GET("/Portfolio/:id", h.getPortfolio)

	if d.Hub != nil {
		g.GET("/ws/trades", func(c *gin.Context) { d.Hub.ServeWS(c.Writer, c.Request) })
	}
	return g
}

func (h *handler) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Debug("http_request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"ip", c.ClientIP(),
		"latency", time.Since(start),
	)
}

// --- Helpers ---

func (h *handler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: string(domain.ReasonInvalidRequest), Message: msg})
}

func (h *handler) internalError(c *gin.Context, where string, err error) {
	h.logger.Error("internal_error", "where", where, "error", err)
	c.JSON(http.StatusInternalServerError, apiError{Code: "internal_error", Message: "internal server error"})
}

// reject writes a rejection with status, or a 500 when err is not a
// rejection.
func (h *handler) reject(c *gin.Context, where string, status int, err error) {
	reason := domain.ReasonOf(err)
	if reason == domain.ReasonNone {
		h.internalError(c, where, err)
		return
	}
	c.JSON(status, apiError{Code: string(reason), Message: err.Error()})
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return id, err == nil && id > 0
}

// --- Trades ---

func (h *handler) postTrade(c *gin.Context) {
	var body tradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "malformed trade request: "+err.Error())
		return
	}
	req, err := domain.NewTradeRequest(body.Action, body.Symbol, body.NoOfShares, body.PortfolioID)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	t, err := h.d.Executor.Execute(c.Request.Context(), req)
	if err != nil {
		h.reject(c, "Execute", http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *handler) getTrades(c *gin.Context) {
	id, ok := parseID(c.Param("portfolioId"))
	if !ok {
		h.badRequest(c, "portfolioId must be a positive integer")
		return
	}
	trades, err := h.d.Executor.Trades(c.Request.Context(), id)
	if err != nil {
		h.reject(c, "Trades", http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

// --- Shares ---

func (h *handler) postShare(c *gin.Context) {
	var body sharePriceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "malformed share price: "+err.Error())
		return
	}
	sym, err := domain.ParseSymbol(body.Symbol)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if !body.Rate.IsPositive() {
		h.badRequest(c, "rate must be positive")
		return
	}
	rec := domain.SharePriceRecord{Symbol: sym, Price: body.Rate, Timestamp: time.Now().UTC()}
	if body.TimeStamp != nil {
		rec.Timestamp = body.TimeStamp.UTC()
	}

	if err := h.d.PriceLog.AppendPrice(c.Request.Context(), rec); err != nil {
		h.internalError(c, "AppendPrice", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *handler) getShare(c *gin.Context) {
	sym, err := domain.ParseSymbol(c.Param("symbol"))
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	rec, found, err := h.d.Executor.LatestPrice(c.Request.Context(), sym)
	if err != nil {
		h.internalError(c, "LatestPrice", err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, apiError{
			Code:    string(domain.ReasonShareNotRegistered),
			Message: "no recorded price for " + sym.String(),
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Portfolios ---

func (h *handler) postPortfolio(c *gin.Context) {
	var body portfolioRequest
	// An empty body creates an unnamed portfolio.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.badRequest(c, "malformed portfolio: "+err.Error())
			return
		}
	}
	p, err := h.d.Admin.CreatePortfolio(c.Request.Context(), strings.TrimSpace(body.Name))
	if err != nil {
		h.internalError(c, "CreatePortfolio", err)
		return
	}
	if p.Trades == nil {
		p.Trades = []domain.Trade{}
	}
	c.JSON(http.StatusCreated, portfolioResponse{Portfolio: p, Holdings: []domain.Holding{}})
}

func (h *handler) getPortfolio(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		h.badRequest(c, "id must be a positive integer")
		return
	}
	p, err := h.d.Portfolios.FindPortfolio(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, apiError{
			Code:    string(domain.ReasonPortfolioNotFound),
			Message: "portfolio " + strconv.FormatInt(id, 10) + " not found",
		})
		return
	}
	if err != nil {
		h.internalError(c, "FindPortfolio", err)
		return
	}
	c.JSON(http.StatusOK, portfolioResponse{Portfolio: p, Holdings: p.Holdings()})
}
