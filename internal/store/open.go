package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"crossexchange/internal/config"
)

// Backend is an opened storage deployment: the ports plus whatever must be
// closed on shutdown.
type Backend struct {
	Stores
	Driver  string
	closers []func()
}

// Close releases every resource opened by Open, newest first.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open builds the stores selected by cfg.Driver ("memory", "sqlite" or
// "postgres"). With cfg.PriceArchive the share price ports are served by a
// ParquetPriceStore under cfg.DataDir. The catalog is fronted by a
// CachedCatalog sized by cache.
func Open(ctx context.Context, cfg config.Storage, cache config.Cache, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{Driver: cfg.Driver}

	switch cfg.Driver {
	case "memory":
		b.Stores = NewMemory().Stores()

	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "crossexchange.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		b.closers = append(b.closers, func() { s.Close() })
		b.Stores = s.Stores()
		b.Driver = "sqlite"

	case "postgres":
		pool, err := OpenPostgresPool(ctx, PostgresConfig{URL: cfg.DatabaseURL, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		s, err := NewPostgresStore(pool, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrating postgres: %w", err)
		}
		b.Stores = s.Stores()

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}

	if cfg.PriceArchive {
		archive := NewParquetPriceStore(cfg.DataDir)
		b.Prices = archive
		b.PriceLog = archive
		b.Catalog = archive
	}

	cached, err := NewCachedCatalog(b.Catalog, cache.MaxEntries, cache.TTL)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("creating catalog cache: %w", err)
	}
	b.closers = append(b.closers, cached.Close)
	b.Catalog = cached

	logger.Info("storage opened", "driver", b.Driver, "price_archive", cfg.PriceArchive)
	return b, nil
}
