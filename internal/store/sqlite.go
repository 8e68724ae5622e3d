package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ PriceStore = (*SQLiteStore)(nil)
var _ PriceWriter = (*SQLiteStore)(nil)
var _ ShareCatalog = (*SQLiteStore)(nil)
var _ PortfolioStore = (*SQLiteStore)(nil)
var _ PortfolioWriter = (*SQLiteStore)(nil)
var _ TradeStore = (*SQLiteStore)(nil)

// Timestamps are stored as Unix microseconds (UTC).
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS portfolios (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS share_prices (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT    NOT NULL,
	price  TEXT    NOT NULL,
	ts     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS share_prices_symbol_ts ON share_prices (symbol, ts);
CREATE TABLE IF NOT EXISTS trades (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT    NOT NULL UNIQUE,
	action       TEXT    NOT NULL CHECK (action IN ('BUY', 'SELL')),
	symbol       TEXT    NOT NULL,
	no_of_shares INTEGER NOT NULL CHECK (no_of_shares > 0),
	price        TEXT    NOT NULL,
	portfolio_id INTEGER NOT NULL REFERENCES portfolios (id),
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_portfolio_symbol ON trades (portfolio_id, symbol);
`

// SQLiteStore implements every store port backed by a single SQLite
// database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers anyway; a single connection keeps the
	// pragmas below in effect and avoids SQLITE_BUSY between our own
	// connections.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", stmt, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stores returns a Stores bundle backed entirely by s.
func (s *SQLiteStore) Stores() Stores {
	return Stores{Prices: s, PriceLog: s, Catalog: s, Portfolios: s, Admin: s, Trades: s}
}

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// QueryPrices returns all recorded prices for symbol ordered by timestamp.
func (s *SQLiteStore) QueryPrices(ctx context.Context, symbol domain.Symbol) ([]domain.SharePriceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, price, ts FROM share_prices WHERE symbol = ? ORDER BY ts, id`, string(symbol))
	if err != nil {
		return nil, fmt.Errorf("querying share prices: %w", err)
	}
	defer rows.Close()

	var out []domain.SharePriceRecord
	for rows.Next() {
		var (
			sym, price string
			ts         int64
		)
		if err := rows.Scan(&sym, &price, &ts); err != nil {
			return nil, fmt.Errorf("scanning share price: %w", err)
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parsing price %q: %w", price, err)
		}
		out = append(out, domain.SharePriceRecord{
			Symbol:    domain.Symbol(sym),
			Price:     d,
			Timestamp: time.UnixMicro(ts).UTC(),
		})
	}
	return out, rows.Err()
}

// AppendPrice inserts a price record.
func (s *SQLiteStore) AppendPrice(ctx context.Context, rec domain.SharePriceRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO share_prices (symbol, price, ts) VALUES (?, ?, ?)`,
		string(rec.Symbol), rec.Price.String(), rec.Timestamp.UnixMicro())
	if err != nil {
		return fmt.Errorf("inserting share price: %w", err)
	}
	return nil
}

// ShareExists reports whether symbol has at least one price record.
func (s *SQLiteStore) ShareExists(ctx context.Context, symbol domain.Symbol) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM share_prices WHERE symbol = ?)`, string(symbol)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking share %s: %w", symbol, err)
	}
	return exists, nil
}

// ---------------------------------------------------------------------------
// Portfolios
// ---------------------------------------------------------------------------

// CreatePortfolio inserts a new portfolio and returns it with its id.
func (s *SQLiteStore) CreatePortfolio(ctx context.Context, name string) (*domain.Portfolio, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO portfolios (name, created_at) VALUES (?, ?)`, name, now.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("inserting portfolio: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.Portfolio{ID: id, Name: name, CreatedAt: now, Trades: []domain.Trade{}}, nil
}

// FindPortfolio returns the portfolio and its trades, or ErrNotFound.
func (s *SQLiteStore) FindPortfolio(ctx context.Context, id int64) (*domain.Portfolio, error) {
	var (
		p       domain.Portfolio
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM portfolios WHERE id = ?`, id).Scan(&p.ID, &p.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying portfolio %d: %w", id, err)
	}
	p.CreatedAt = time.UnixMicro(created).UTC()

	p.Trades, err = s.QueryTrades(ctx, TradeFilter{PortfolioID: id})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ---------------------------------------------------------------------------
// Trades
// ---------------------------------------------------------------------------

// QueryTrades returns trades matching filter in insertion order.
func (s *SQLiteStore) QueryTrades(ctx context.Context, filter TradeFilter) ([]domain.Trade, error) {
	var (
		where []string
		args  []any
	)
	if filter.PortfolioID != 0 {
		where = append(where, "portfolio_id = ?")
		args = append(args, filter.PortfolioID)
	}
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, string(filter.Symbol))
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(filter.Action))
	}

	q := `SELECT id, action, symbol, no_of_shares, price, portfolio_id, created_at FROM trades`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Trade, 0)
	for rows.Next() {
		var (
			t              domain.Trade
			action, symbol string
			price          string
			created        int64
		)
		if err := rows.Scan(&t.ID, &action, &symbol, &t.NoOfShares, &price, &t.PortfolioID, &created); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.Action = domain.Action(action)
		t.Symbol = domain.Symbol(symbol)
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parsing trade price %q: %w", price, err)
		}
		t.CreatedAt = time.UnixMicro(created).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTrade appends t to the ledger. It returns ErrNotFound when the
// portfolio does not exist.
func (s *SQLiteStore) InsertTrade(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("beginning trade insert: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM portfolios WHERE id = ?)`, t.PortfolioID).Scan(&exists); err != nil {
		return domain.Trade{}, fmt.Errorf("checking portfolio %d: %w", t.PortfolioID, err)
	}
	if !exists {
		return domain.Trade{}, ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trades (id, action, symbol, no_of_shares, price, portfolio_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Action), string(t.Symbol), t.NoOfShares, t.Price.String(), t.PortfolioID,
		t.CreatedAt.UnixMicro()); err != nil {
		return domain.Trade{}, fmt.Errorf("inserting trade: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Trade{}, fmt.Errorf("committing trade: %w", err)
	}
	return t, nil
}
