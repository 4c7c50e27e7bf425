// Package arbitrage implements the Arbitrage Executor (C7): subscribes to
// the Multi-Exchange Monitor, picks the best qualifying candidate per
// detector cycle, and fires concurrent buy/sell market orders against it.
package arbitrage

import (
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
)

// Config tunes candidate selection and execution.
type Config struct {
	// CycleInterval batches incoming candidates for this long before
	// picking the best; should match the monitor's detector cadence.
	CycleInterval time.Duration
	// ExecutionTimeout bounds the combined buy+sell submission, default 5s.
	ExecutionTimeout time.Duration
	MinProfitUSD     fixedpoint.Value
	MinQty           fixedpoint.Value
	// DryRun, when true, selects and logs candidates without submitting
	// orders. The zero value is false, so a Config that leaves DryRun unset
	// submits orders; dry-run is not the default.
	DryRun bool
}

func (c *Config) setDefaults() {
	if c.CycleInterval <= 0 {
		c.CycleInterval = time.Second
	}
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = 5 * time.Second
	}
}
