package store

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"crossexchange/internal/domain"
)

// Compile-time interface check.
var _ ShareCatalog = (*CachedCatalog)(nil)

// CachedCatalog remembers positive ShareExists answers of an underlying
// catalog. Registration is monotonic (price records are never deleted), so
// a cached "registered" never goes stale; negative answers always hit the
// underlying catalog.
type CachedCatalog struct {
	next ShareCatalog
	c    *ristretto.Cache
	ttl  time.Duration
}

// NewCachedCatalog wraps next with a ristretto cache of at most maxCost
// entries, each kept for ttl (0 means no expiry).
func NewCachedCatalog(next ShareCatalog, maxCost int64, ttl time.Duration) (*CachedCatalog, error) {
	if maxCost <= 0 {
		maxCost = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedCatalog{next: next, c: c, ttl: ttl}, nil
}

// ShareExists answers from the cache when the symbol is known to be
// registered, otherwise asks the underlying catalog.
func (c *CachedCatalog) ShareExists(ctx context.Context, symbol domain.Symbol) (bool, error) {
	if _, ok := c.c.Get(string(symbol)); ok {
		return true, nil
	}
	ok, err := c.next.ShareExists(ctx, symbol)
	if err != nil || !ok {
		return ok, err
	}
	c.c.SetWithTTL(string(symbol), struct{}{}, 1, c.ttl)
	return true, nil
}

// Wait blocks until buffered cache writes have been applied.
func (c *CachedCatalog) Wait() { c.c.Wait() }

// Close releases the cache's goroutines.
func (c *CachedCatalog) Close() { c.c.Close() }
