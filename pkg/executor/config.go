package executor

import (
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
)

// Mode selects the quote-pricing regime of spec.md §4.5.5.
type Mode string

const (
	ModeUptime Mode = "uptime"
	ModeRebate Mode = "rebate"
)

// RebateAggressiveness is the rebate-mode base distance selector.
type RebateAggressiveness string

const (
	RebateAggressive   RebateAggressiveness = "aggressive"
	RebateModerate     RebateAggressiveness = "moderate"
	RebateConservative RebateAggressiveness = "conservative"
)

// rebateBaseBps maps the three named tiers to the {0,1,2} bps base
// distances of spec.md §4.5.5.
func rebateBaseBps(a RebateAggressiveness) fixedpoint.Value {
	switch a {
	case RebateAggressive:
		return fixedpoint.Zero
	case RebateModerate:
		return fixedpoint.One
	default:
		return fixedpoint.NewFromInt(2)
	}
}

// Config holds the Market Maker Executor's tunables (spec.md §4.5, §6).
type Config struct {
	TickInterval time.Duration

	// Volatility pause/resume hysteresis (§4.5.1).
	PauseThresholdBps  fixedpoint.Value
	ResumeThresholdBps fixedpoint.Value
	StableSecs         time.Duration

	// Hard-stop position cooldown (§4.5.1).
	HardStopPosition fixedpoint.Value
	CooldownSec      time.Duration
	ResumePosition   fixedpoint.Value
	ResumeCheckCount int

	// REST gate cadence (§4.5.3).
	UsePushStream        bool
	ReconcileEveryNTicks int

	// Quote geometry (§4.5.5).
	Mode                  Mode
	OrderDistanceBps      fixedpoint.Value // uptime mode base distance
	RebateAggressiveness  RebateAggressiveness
	CancelDistanceBps     fixedpoint.Value // uptime mode only
	RebalanceDistanceBps  fixedpoint.Value
	OrderSize             fixedpoint.Value
	MaxPosition           fixedpoint.Value
	HardFloorPosition     fixedpoint.Value // the "floor" term in pos_ratio's denominator

	// Inventory skew (§4.5.5, optional).
	EnableSkew    bool
	PushBps       fixedpoint.Value
	PullBps       fixedpoint.Value
	MinQuoteBpsBase fixedpoint.Value
	MinQuoteBpsPull fixedpoint.Value

	// Volatility widening (§4.5.5).
	VolWideningMaxMultiplier fixedpoint.Value

	// Breakeven reversion (§4.5.5/§4.5.6).
	BreakevenOffsetBps  fixedpoint.Value
	StaleOrderTimeout   time.Duration
	StaleRepriceBps     fixedpoint.Value
	MinRepriceInterval  time.Duration

	// Spread floor protection (rebate mode, §4.5.5).
	MinSpreadTicks fixedpoint.Value

	// Layered quoting, SUPPLEMENTED beyond spec.md §4.5.5: NumLayers == 1
	// reproduces the base single-quote behavior exactly.
	NumLayers     int
	LayerPips     fixedpoint.Value
	QuantityScale fixedpoint.Value

	// Depth-weighted pricing, SUPPLEMENTED: uses the book's volume-weighted
	// price instead of best bid/ask when the order is large relative to
	// top-of-book depth.
	UseDepthPrice bool
	DepthQuantity fixedpoint.Value

	// Balance gating, SUPPLEMENTED: refuses a placement the account cannot
	// actually cover.
	EnableBalanceGate bool

	VolatilityHorizon time.Duration
}

func (c *Config) setDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.ReconcileEveryNTicks == 0 {
		c.ReconcileEveryNTicks = 5
	}
	if c.ResumeCheckCount == 0 {
		c.ResumeCheckCount = 3
	}
	if c.NumLayers == 0 {
		c.NumLayers = 1
	}
	if c.QuantityScale.IsZero() {
		c.QuantityScale = fixedpoint.One
	}
	if c.VolWideningMaxMultiplier.IsZero() {
		c.VolWideningMaxMultiplier = fixedpoint.NewFromInt(3)
	}
	if c.VolatilityHorizon == 0 {
		c.VolatilityHorizon = 30 * time.Second
	}
	if c.Mode == "" {
		c.Mode = ModeUptime
	}
}
