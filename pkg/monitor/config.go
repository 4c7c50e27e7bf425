// Package monitor is the Multi-Exchange Monitor (C6): a per-adapter
// orderbook poller feeding a single detector loop that joins the latest
// snapshot per (venue, symbol) into arbitrage candidates.
package monitor

import (
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
)

// Config tunes the poller/detector cadence and the candidate filter.
type Config struct {
	// UpdateInterval is how often each adapter's orderbook is polled.
	UpdateInterval time.Duration
	// OrderbookDepth requested from each adapter.
	OrderbookDepth int
	// MinProfitPct is the minimum (sell_bid - buy_ask) / buy_ask, in percent,
	// for a joined pair to become a candidate.
	MinProfitPct fixedpoint.Value
}

func (c *Config) setDefaults() {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 2 * time.Second
	}
	if c.OrderbookDepth <= 0 {
		c.OrderbookDepth = 10
	}
}

// detectorInterval runs the join/candidate loop at half the poll cadence,
// per spec.md §4.6.
func (c *Config) detectorInterval() time.Duration {
	return c.UpdateInterval / 2
}
