package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"crossexchange/internal/domain"
)

type countingCatalog struct {
	ShareCatalog
	calls atomic.Int64
}

func (c *countingCatalog) ShareExists(ctx context.Context, symbol domain.Symbol) (bool, error) {
	c.calls.Add(1)
	return c.ShareCatalog.ShareExists(ctx, symbol)
}

func TestCachedCatalog(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	under := &countingCatalog{ShareCatalog: mem}

	cc, err := NewCachedCatalog(under, 100, time.Hour)
	if err != nil {
		t.Fatalf("NewCachedCatalog: %v", err)
	}
	defer cc.Close()

	// Negative answers are not cached.
	for i := 0; i < 2; i++ {
		if ok, _ := cc.ShareExists(ctx, "REL"); ok {
			t.Fatal("ShareExists(REL) = true before registration")
		}
	}
	if n := under.calls.Load(); n != 2 {
		t.Fatalf("underlying calls = %d, want 2", n)
	}

	if err := mem.AppendPrice(ctx, domain.SharePriceRecord{
		Symbol: "REL", Price: decimal.NewFromInt(10), Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("AppendPrice: %v", err)
	}

	if ok, err := cc.ShareExists(ctx, "REL"); err != nil || !ok {
		t.Fatalf("ShareExists(REL) after registration = %v, %v", ok, err)
	}
	cc.Wait()

	before := under.calls.Load()
	if ok, _ := cc.ShareExists(ctx, "REL"); !ok {
		t.Fatal("cached ShareExists(REL) = false")
	}
	if n := under.calls.Load(); n != before {
		t.Errorf("positive answer not served from cache: %d underlying calls, want %d", n, before)
	}
}
