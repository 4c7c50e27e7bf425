// Package dedup implements the Order/Fill Deduplicator and Order Throttle
// described in spec.md §4.2 (component C2).
package dedup

import (
	"sync"
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
)

// Deduplicator drops duplicate fill events keyed by (order_id, delta_qty)
// within a TTL window, and unconditionally drops non-positive deltas.
// Required because push streams may replay state transitions and must not
// double-apply to position (spec.md §4.2).
type Deduplicator struct {
	mu  sync.Mutex
	ttl time.Duration
	// seen maps a dedup key to the time it was first observed.
	seen map[key]time.Time
	now  func() time.Time
}

type key struct {
	orderID  string
	deltaQty string
}

const defaultTTL = 60 * time.Second

func New(ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Deduplicator{
		ttl:  ttl,
		seen: make(map[key]time.Time),
		now:  time.Now,
	}
}

// Allow reports whether this (orderID, deltaQty) fill should be applied.
// A non-positive deltaQty is always rejected. A previously-seen key within
// the TTL is rejected (replay). Otherwise the key is recorded and true is
// returned.
func (d *Deduplicator) Allow(orderID string, deltaQty fixedpoint.Value) bool {
	if deltaQty.Sign() <= 0 {
		return false
	}

	k := key{orderID: orderID, deltaQty: deltaQty.String()}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.evictLocked(now)

	if seenAt, ok := d.seen[k]; ok && now.Sub(seenAt) < d.ttl {
		return false
	}

	d.seen[k] = now
	return true
}

func (d *Deduplicator) evictLocked(now time.Time) {
	for k, seenAt := range d.seen {
		if now.Sub(seenAt) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// Size reports the number of currently-tracked keys, for tests/metrics.
func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
