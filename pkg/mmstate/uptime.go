package mmstate

import (
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
)

// UptimeTier buckets distance-from-mid into the ranges reward-program
// analysis cares about (spec.md §4.3).
type UptimeTier string

const (
	Tier0To10    UptimeTier = "0_10_bps"
	Tier10To30   UptimeTier = "10_30_bps"
	Tier30To100  UptimeTier = "30_100_bps"
	TierOver100  UptimeTier = "over_100_bps"
	TierNoQuotes UptimeTier = "no_quotes"
)

// UptimeAccumulator tracks cumulative wall-clock time spent in each tier.
type UptimeAccumulator struct {
	totals    map[UptimeTier]time.Duration
	lastTier  UptimeTier
	lastAt    time.Time
	hasLast   bool
}

func NewUptimeAccumulator() *UptimeAccumulator {
	return &UptimeAccumulator{totals: make(map[UptimeTier]time.Duration)}
}

// ClassifyBps maps a distance-from-mid in bps to its tier. A negative
// distance (no quotes resting) must be passed as TierNoQuotes by the
// caller instead.
func ClassifyBps(distanceBps fixedpoint.Value) UptimeTier {
	ten := fixedpoint.NewFromInt(10)
	thirty := fixedpoint.NewFromInt(30)
	hundred := fixedpoint.NewFromInt(100)

	switch {
	case distanceBps.Compare(ten) < 0:
		return Tier0To10
	case distanceBps.Compare(thirty) < 0:
		return Tier10To30
	case distanceBps.Compare(hundred) < 0:
		return Tier30To100
	default:
		return TierOver100
	}
}

// Observe records that, at instant `at`, the book distance classified as
// `tier`. The elapsed duration since the previous observation is credited
// to the previous tier (the tier held during that interval), matching the
// intent of a continuously-sampled uptime accumulator.
func (u *UptimeAccumulator) Observe(at time.Time, tier UptimeTier) {
	if u.hasLast {
		u.totals[u.lastTier] += at.Sub(u.lastAt)
	}
	u.lastTier = tier
	u.lastAt = at
	u.hasLast = true
}

func (u *UptimeAccumulator) Total(tier UptimeTier) time.Duration {
	return u.totals[tier]
}

func (u *UptimeAccumulator) Snapshot() map[UptimeTier]time.Duration {
	out := make(map[UptimeTier]time.Duration, len(u.totals))
	for k, v := range u.totals {
		out[k] = v
	}
	return out
}
