package dedup

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantcore/permaker/pkg/types"
)

// Throttle is the per-side order placement gate of spec.md §4.2: a
// successful TryAcquire both checks and records; a failed acquire means
// "another placement attempted too recently; skip". Prevents bursty
// re-placement during adverse market moves. Backed by a one-token-per-side
// rate.Limiter, matching the teacher's own hedgeErrorLimiter gate.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	limiters map[types.Side]*rate.Limiter
}

const defaultCooldown = 5 * time.Second

func NewThrottle(cooldown time.Duration) *Throttle {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Throttle{
		cooldown: cooldown,
		limiters: make(map[types.Side]*rate.Limiter),
	}
}

func (t *Throttle) limiterFor(side types.Side) *rate.Limiter {
	l, ok := t.limiters[side]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.cooldown), 1)
		t.limiters[side] = l
	}
	return l
}

// TryAcquire atomically checks-and-records a placement attempt for side.
func (t *Throttle) TryAcquire(side types.Side) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limiterFor(side).Allow()
}

// Reset clears the recorded attempt for side, allowing an immediate retry.
// Used when an external event (e.g. explicit cancel) invalidates the
// cooldown rationale.
func (t *Throttle) Reset(side types.Side) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, side)
}
