package mmstate

import (
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
)

type midSample struct {
	at  time.Time
	mid fixedpoint.Value
}

// VolatilityWindow is the §3 "Volatility window": a ring of (timestamp,
// mid_price) pairs bounded by a time horizon. Entries are evicted by age
// and never mutated.
type VolatilityWindow struct {
	horizon time.Duration
	samples []midSample
}

func NewVolatilityWindow(horizon time.Duration) *VolatilityWindow {
	return &VolatilityWindow{horizon: horizon}
}

// Add appends a sample and evicts anything older than the horizon.
func (w *VolatilityWindow) Add(at time.Time, mid fixedpoint.Value) {
	w.samples = append(w.samples, midSample{at: at, mid: mid})
	w.evict(at)
}

func (w *VolatilityWindow) evict(now time.Time) {
	cutoff := now.Add(-w.horizon)
	i := 0
	for ; i < len(w.samples); i++ {
		if w.samples[i].at.After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.samples = w.samples[i:]
	}
}

// VolatilityBps computes (max-min)/avg * 10000 over the current window.
// Returns zero with ok=false when fewer than two samples are present.
func (w *VolatilityWindow) VolatilityBps() (bps fixedpoint.Value, ok bool) {
	if len(w.samples) < 2 {
		return fixedpoint.Zero, false
	}

	max := w.samples[0].mid
	min := w.samples[0].mid
	sum := fixedpoint.Zero
	for _, s := range w.samples {
		if s.mid.Compare(max) > 0 {
			max = s.mid
		}
		if s.mid.Compare(min) < 0 {
			min = s.mid
		}
		sum = sum.Add(s.mid)
	}

	avg := sum.Div(fixedpoint.NewFromInt(int64(len(w.samples))))
	if avg.IsZero() {
		return fixedpoint.Zero, false
	}

	bps = max.Sub(min).Div(avg).Mul(fixedpoint.NewFromInt(10000))
	return bps, true
}

func (w *VolatilityWindow) Len() int { return len(w.samples) }
