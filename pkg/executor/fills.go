package executor

import (
	"context"
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/metrics"
	"github.com/quantcore/permaker/pkg/types"
)

// onPushFill is the push-stream half of fill detection (spec.md §4.5.4).
func (e *Executor) onPushFill(fill types.FillEvent) {
	if !e.dedup.Allow(fill.OrderID, fill.FillQty) {
		return
	}
	e.handleFill(context.Background(), fill)
}

// onPushOrderState applies a non-fill order state change (ack/cancel/reject)
// pushed by the adapter.
func (e *Executor) onPushOrderState(o types.Order) {
	local, ok := e.st.IntendedOrder(o.Side)
	if !ok || local.ExchangeOrderID != o.ExchangeOrderID {
		return
	}
	if o.Status == types.OrderStatusCancelled {
		e.st.ClearIntendedOrder(o.Side)
		return
	}
	e.st.MutateIntendedOrder(o.Side, func(io *types.IntendedOrder) {
		io.Status = o.Status
		io.CumulativeFilled = o.CumulativeFilled
	})
}

// pollForFills is the polling half of fill detection (spec.md §4.5.2 step 3,
// §4.5.4): position deltas between ticks synthesize Fill Events.
func (e *Executor) pollForFills(ctx context.Context, mid fixedpoint.Value) {
	positions, err := e.primary.GetPositions(ctx, e.symbol)
	if err != nil || len(positions) == 0 {
		return
	}
	current := positions[0].Qty
	e.st.SetPosition(e.primary.VenueID(), current)

	e.mu.Lock()
	last := e.lastPosition
	hasLast := e.hasLastPosition
	e.lastPosition = current
	e.hasLastPosition = true
	e.mu.Unlock()

	if !hasLast {
		return
	}

	delta := current.Sub(last)
	if delta.IsZero() {
		e.checkDisappearedOrders(ctx, current, last)
		return
	}

	side := types.SideBuy
	if delta.Sign() < 0 {
		side = types.SideSell
	}

	fill := types.FillEvent{
		Symbol:        e.symbol,
		Side:          side,
		FillQty:       delta.Abs(),
		FillPrice:     mid,
		Timestamp:     time.Now(),
		IsMaker:       types.MakerUnknown,
		IsFullyFilled: true,
	}
	if local, ok := e.st.IntendedOrder(side); ok {
		fill.OrderID = local.ExchangeOrderID
		fill.ClientOrderID = local.ClientOrderID
	}

	if !e.dedup.Allow(orderKeyOrFallback(fill.OrderID), delta.Abs()) {
		return
	}
	e.handleFill(ctx, fill)
}

func orderKeyOrFallback(orderID string) string {
	if orderID == "" {
		return "synthetic"
	}
	return orderID
}

// checkDisappearedOrders implements the partial-fill discrimination rule of
// spec.md §4.5.4: only after two consecutive "disappeared + position
// unchanged" observations is a side concluded canceled_or_unknown.
func (e *Executor) checkDisappearedOrders(ctx context.Context, current, previous fixedpoint.Value) {
	disappearedSides := []types.Side{}
	for _, side := range []types.Side{types.SideBuy, types.SideSell} {
		local, ok := e.st.IntendedOrder(side)
		if !ok {
			e.disappearedCount[side] = 0
			continue
		}
		order, err := e.primary.GetOrder(ctx, e.symbol, local.ExchangeOrderID)
		if err != nil || order != nil {
			e.disappearedCount[side] = 0
			continue
		}
		e.disappearedCount[side]++
		disappearedSides = append(disappearedSides, side)
	}

	if len(disappearedSides) >= 2 && !current.Sub(previous).IsZero() {
		for _, side := range disappearedSides {
			e.st.ClearIntendedOrder(side)
			e.disappearedCount[side] = 0
		}
		e.st.RecordFill("unknown_fill_detected")
		e.st.RecordOperation(time.Now(), "unknown_fill_detected", e.symbol.String())
		return
	}

	for _, side := range disappearedSides {
		if e.disappearedCount[side] >= 2 {
			e.st.ClearIntendedOrder(side)
			e.st.RecordFill("canceled_or_unknown")
			e.st.RecordOperation(time.Now(), "canceled_or_unknown", string(side))
			e.disappearedCount[side] = 0
		}
	}
}

// handleFill is the single handler both fill-detection paths converge on
// (spec.md §4.5.4): locks against re-entry, records the fill, enters
// HEDGING if a hedge engine is attached, then restores RUNNING unless hedge
// risk-control forced PAUSE.
func (e *Executor) handleFill(ctx context.Context, fill types.FillEvent) {
	e.fillMu.Lock()
	defer e.fillMu.Unlock()

	kind := "full"
	if !fill.IsFullyFilled {
		kind = "partial"
	}
	e.st.RecordFill(kind)
	e.st.RecordOperation(fill.Timestamp, "fill", kind+":"+string(fill.Side)+":"+fill.FillQty.String())
	metrics.FillsTotal.WithLabelValues(string(e.symbol), string(fill.Side), kind).Inc()

	e.st.MutateIntendedOrder(fill.Side, func(o *types.IntendedOrder) {
		o.CumulativeFilled = o.CumulativeFilled.Add(fill.FillQty)
	})
	if fill.IsFullyFilled {
		e.st.ClearIntendedOrder(fill.Side)
	}

	e.applyRealizedPnL(fill)
	e.updateBreakevenEntry(fill)

	if e.hedge == nil {
		return
	}

	prevState := e.state()
	e.setState(StateHedging)
	defer func() {
		if e.state() == StateHedging {
			e.setState(prevState)
		}
	}()

	result := e.hedge.ExecuteHedge(ctx, fill.OrderID, fill.Side, fill.FillQty, fill.FillPrice, e.symbol)
	metrics.HedgeAttemptsTotal.WithLabelValues(string(e.symbol), string(result.Status)).Inc()
	metrics.HedgeLatencyMs.WithLabelValues(string(e.symbol)).Observe(float64(result.LatencyMillis))

	switch result.Status {
	case types.HedgeStatusWaitingRecovery, types.HedgeStatusPartialFallback, types.HedgeStatusFallbackFailed:
		e.notify.Notify("executor %s: hedge risk control engaged (%s), pausing", e.symbol, result.Status)
		e.cancelAllLocked(PauseReasonHedgeRisk)
	}
}

// applyRealizedPnL accumulates this fill's realized PnL contribution
// (spec.md §4.5.4): a fill on the opposite side of the current entry closes
// out against it at (fill price - entry price), signed by the entry's
// original direction.
func (e *Executor) applyRealizedPnL(fill types.FillEvent) {
	entryPrice, entrySide, hasEntry := e.st.Entry()
	if !hasEntry || entrySide == fill.Side {
		return
	}
	diff := fill.FillPrice.Sub(entryPrice)
	if entrySide == types.SideSell {
		diff = diff.Neg()
	}
	e.st.AddRealizedPnL(diff.Mul(fill.FillQty))
}

// updateBreakevenEntry tracks the entry memo for breakeven-reversion quoting
// (spec.md §4.5.5/§9): a same-side fill before the position returns to zero
// overwrites the entry price (last-fill-wins).
func (e *Executor) updateBreakevenEntry(fill types.FillEvent) {
	position := e.st.Position(e.primary.VenueID())
	if position.IsZero() {
		e.st.ClearEntry()
		return
	}
	e.st.SetEntry(fill.FillPrice, fill.Side)
}
