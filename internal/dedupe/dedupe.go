// Package dedupe suppresses re-processing of signals already seen within a
// trailing time window. State is in-memory and process-scoped: a restart
// clears it, which is an accepted limitation of the gateway.
package dedupe

import (
	"sync"
	"time"
)

// DefaultTTL is the trailing window within which an order id counts as a
// duplicate.
const DefaultTTL = 90 * time.Second

// Filter is a thread-safe order-id -> first-seen map with lazy TTL purging.
type Filter struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// New creates a filter with the given TTL (DefaultTTL if zero or negative).
func New(ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen reports whether orderID was already observed within the TTL. Absent
// ids are recorded and return false; the check and insert happen under one
// lock so concurrent identical ids cannot both be admitted. An empty id is
// never a duplicate: the gateway cannot deduplicate what it cannot identify.
func (f *Filter) Seen(orderID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for id, first := range f.seen {
		if now.Sub(first) > f.ttl {
			delete(f.seen, id)
		}
	}

	if orderID == "" {
		return false
	}
	if _, ok := f.seen[orderID]; ok {
		return true
	}
	f.seen[orderID] = now
	return false
}

// Size returns the number of tracked ids.
func (f *Filter) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
