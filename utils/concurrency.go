package utils

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FetchGate bounds outbound page fetches: at most maxInFlight at once and no
// faster than one every minInterval.
type FetchGate struct {
	semaphore chan struct{}
	limiter   *rate.Limiter
}

// NewFetchGate creates a gate. A zero minInterval disables the rate limit.
func NewFetchGate(maxInFlight int, minInterval time.Duration) *FetchGate {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &FetchGate{
		semaphore: make(chan struct{}, maxInFlight),
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Do waits for a free slot and a rate token, then runs fn.
func (g *FetchGate) Do(ctx context.Context, fn func(context.Context) error) error {
	select {
	case g.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.semaphore }()

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// InFlight reports how many calls currently hold a slot.
func (g *FetchGate) InFlight() int {
	return len(g.semaphore)
}

// KeySet is a thread-safe set of strings, used to drop repeated detail URLs
// and auction IDs.
type KeySet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewKeySet creates an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{seen: make(map[string]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *KeySet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Size returns the number of unique keys tracked.
func (s *KeySet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
