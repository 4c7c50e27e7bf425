// Package mmstate implements the MM State container of spec.md §4.3
// (component C3): a thread-safe store for intended orders, per-venue
// positions, fill/operation history, the volatility window, and
// rebate/uptime counters. All mutations hold a single container mutex per
// Design Notes §9 ("one coarse mutex on MM State keeps the design simple
// and matches the current semantics").
package mmstate

import (
	"sync"
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/types"
)

// CancelReason labels why a cancel happened, for the per-side counters.
type CancelReason string

const (
	CancelReasonReconcile   CancelReason = "reconcile_orphan"
	CancelReasonRebalance   CancelReason = "rebalance_stale"
	CancelReasonApproachMid CancelReason = "approach_mid"
	CancelReasonHardStop    CancelReason = "hard_stop"
	CancelReasonVolatility  CancelReason = "volatility_pause"
	CancelReasonStaleRepric CancelReason = "stale_reprice"
	CancelReasonShutdown    CancelReason = "shutdown"
	CancelReasonHedgeRisk   CancelReason = "hedge_risk_control"
)

// SideCounters are the per-side counters of spec.md §4.3.
type SideCounters struct {
	Placements      int
	Cancels         map[CancelReason]int
	Rebalances      int
	PostOnlyRejects int
}

func newSideCounters() *SideCounters {
	return &SideCounters{Cancels: make(map[CancelReason]int)}
}

// FillCounters are the fill counters of spec.md §4.3.
type FillCounters struct {
	Total              int
	Partial            int
	CanceledOrUnknown  int
	UnknownFillDetected int
}

// OperationRecord is one entry of the bounded in-memory operation history
// (spec.md §6: "last 50 operations").
type OperationRecord struct {
	At      time.Time
	Kind    string
	Detail  string
}

const operationHistoryLimit = 50

// State is the thread-safe MM State container.
type State struct {
	mu sync.Mutex

	symbol types.Symbol

	bid *types.IntendedOrder
	ask *types.IntendedOrder

	positions map[string]fixedpoint.Value // venueID -> qty

	bidCounters *SideCounters
	askCounters *SideCounters
	fills       FillCounters

	uptime *UptimeAccumulator
	vol    *VolatilityWindow

	lastEntryPrice fixedpoint.Value
	lastEntrySide  types.Side
	hasEntry       bool

	operations []OperationRecord

	realizedPnL fixedpoint.Value
}

func New(symbol types.Symbol, volatilityHorizon time.Duration) *State {
	return &State{
		symbol:      symbol,
		positions:   make(map[string]fixedpoint.Value),
		bidCounters: newSideCounters(),
		askCounters: newSideCounters(),
		uptime:      NewUptimeAccumulator(),
		vol:         NewVolatilityWindow(volatilityHorizon),
	}
}

// --- Intended orders (I1: at most one per side) ---

// SetIntendedOrder installs order for side, rejecting a second order on a
// side that already has one (I1). Returns false if rejected.
func (s *State) SetIntendedOrder(side types.Side, order *types.IntendedOrder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if side == types.SideBuy {
		if s.bid != nil {
			return false
		}
		s.bid = order
		s.bidCounters.Placements++
	} else {
		if s.ask != nil {
			return false
		}
		s.ask = order
		s.askCounters.Placements++
	}
	return true
}

// ClearIntendedOrder removes the intended order for side (if any).
func (s *State) ClearIntendedOrder(side types.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if side == types.SideBuy {
		s.bid = nil
	} else {
		s.ask = nil
	}
}

// IntendedOrder returns a copy of the intended order for side, if any.
func (s *State) IntendedOrder(side types.Side) (types.IntendedOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var o *types.IntendedOrder
	if side == types.SideBuy {
		o = s.bid
	} else {
		o = s.ask
	}
	if o == nil {
		return types.IntendedOrder{}, false
	}
	return *o, true
}

// MutateIntendedOrder applies fn to the live pointer for side under the
// state lock, used by the reconciliation loop to update cumulative_filled
// / remaining / status in place (I3).
func (s *State) MutateIntendedOrder(side types.Side, fn func(*types.IntendedOrder)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var o *types.IntendedOrder
	if side == types.SideBuy {
		o = s.bid
	} else {
		o = s.ask
	}
	if o == nil {
		return false
	}
	fn(o)
	return true
}

func (s *State) RecordCancel(side types.Side, reason CancelReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if side == types.SideBuy {
		s.bidCounters.Cancels[reason]++
	} else {
		s.askCounters.Cancels[reason]++
	}
}

func (s *State) RecordPostOnlyReject(side types.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if side == types.SideBuy {
		s.bidCounters.PostOnlyRejects++
	} else {
		s.askCounters.PostOnlyRejects++
	}
}

func (s *State) RecordRebalance(side types.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if side == types.SideBuy {
		s.bidCounters.Rebalances++
	} else {
		s.askCounters.Rebalances++
	}
}

func (s *State) SideCounters(side types.Side) SideCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c *SideCounters
	if side == types.SideBuy {
		c = s.bidCounters
	} else {
		c = s.askCounters
	}
	cp := *c
	cp.Cancels = make(map[CancelReason]int, len(c.Cancels))
	for k, v := range c.Cancels {
		cp.Cancels[k] = v
	}
	return cp
}

// --- Positions ---

func (s *State) SetPosition(venueID string, qty fixedpoint.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[venueID] = qty
}

func (s *State) Position(venueID string) fixedpoint.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[venueID]
}

// --- Fill counters ---

func (s *State) RecordFill(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case "full":
		s.fills.Total++
	case "partial":
		s.fills.Total++
		s.fills.Partial++
	case "canceled_or_unknown":
		s.fills.CanceledOrUnknown++
	case "unknown_fill_detected":
		s.fills.UnknownFillDetected++
	}
}

func (s *State) FillCounters() FillCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fills
}

// --- Volatility / uptime ---

func (s *State) AddMidSample(at time.Time, mid fixedpoint.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vol.Add(at, mid)
}

func (s *State) VolatilityBps() (fixedpoint.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vol.VolatilityBps()
}

func (s *State) ObserveUptime(at time.Time, tier UptimeTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uptime.Observe(at, tier)
}

func (s *State) UptimeSnapshot() map[UptimeTier]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uptime.Snapshot()
}

// --- Breakeven entry memo ---

func (s *State) SetEntry(price fixedpoint.Value, side types.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEntryPrice = price
	s.lastEntrySide = side
	s.hasEntry = true
}

func (s *State) ClearEntry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasEntry = false
}

func (s *State) Entry() (price fixedpoint.Value, side types.Side, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEntryPrice, s.lastEntrySide, s.hasEntry
}

// --- Realized PnL ---

// AddRealizedPnL accumulates a fill's realized PnL contribution.
func (s *State) AddRealizedPnL(delta fixedpoint.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realizedPnL = s.realizedPnL.Add(delta)
}

func (s *State) RealizedPnL() fixedpoint.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realizedPnL
}

// --- Operation history ---

func (s *State) RecordOperation(at time.Time, kind, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations = append(s.operations, OperationRecord{At: at, Kind: kind, Detail: detail})
	if len(s.operations) > operationHistoryLimit {
		s.operations = s.operations[len(s.operations)-operationHistoryLimit:]
	}
}

func (s *State) Operations() []OperationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OperationRecord, len(s.operations))
	copy(out, s.operations)
	return out
}
