// Package lock provides keyed mutual exclusion for the trade engine, either
// within one process or across processes through Redis.
package lock

import (
	"context"
	"sync"
)

// Local is an in-process keyed mutex. Keys nobody holds or waits on are
// forgotten, so memory is bounded by the number of contended keys.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{} // buffered(1); a token in the channel means free
	refs int
}

// NewLocal creates an empty Local lock.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		s.ch <- struct{}{}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case <-s.ch:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.ch <- struct{}{}
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held returns the number of keys currently tracked.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
