// Package gather feeds the share price history from external market data.
package gather

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run starts the data gathering process. It blocks until ctx is cancelled.
	Run(ctx context.Context) error
}

// RunAll runs every gatherer concurrently and waits for all of them. A
// gatherer that fails does not stop the others.
func RunAll(ctx context.Context, log *slog.Logger, gatherers ...Gatherer) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, g := range gatherers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("gatherer starting", "gatherer", g.Name())
			if err := g.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("gatherer failed", "gatherer", g.Name(), "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			log.Info("gatherer stopped", "gatherer", g.Name())
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
