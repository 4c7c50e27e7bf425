// Package executor implements the Market Maker Executor of spec.md §4.5
// (component C5): the FSM-driven tick loop that quotes both sides of one
// symbol on one primary venue, reconciles against the exchange's
// authoritative open-order list, detects fills, and drives the attached
// Hedge Engine.
package executor

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantcore/permaker/pkg/dedup"
	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/hedge"
	"github.com/quantcore/permaker/pkg/mmstate"
	"github.com/quantcore/permaker/pkg/notify"
	"github.com/quantcore/permaker/pkg/types"
)

// Executor is the Market Maker Executor (C5). One instance quotes one
// symbol on one primary adapter.
type Executor struct {
	symbol  types.Symbol
	primary exchange.Adapter
	hedge   *hedge.Engine // nil when no hedge venue is attached

	st       *mmstate.State
	dedup    *dedup.Deduplicator
	throttle *dedup.Throttle

	cfg    Config
	log    *logrus.Entry
	notify notify.Sink

	mu            sync.Mutex
	fsmState      State
	pauseReason   PauseReason
	onStateChange func(from, to State)

	hardStopAt             time.Time
	hardStopResumeStreak   int
	volStableSince         time.Time
	volStableSinceValid    bool
	restGateFailureStreak  int
	safeMode               bool
	tickCount              int
	lastPosition           fixedpoint.Value
	hasLastPosition        bool
	disappearedCount       map[types.Side]int

	fillMu sync.Mutex
}

func New(symbol types.Symbol, primary exchange.Adapter, hedgeEngine *hedge.Engine, cfg Config, log *logrus.Entry, sink notify.Sink) *Executor {
	cfg.setDefaults()
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Executor{
		symbol:           symbol,
		primary:          primary,
		hedge:            hedgeEngine,
		st:               mmstate.New(symbol, cfg.VolatilityHorizon),
		dedup:            dedup.New(60 * time.Second),
		throttle:         dedup.NewThrottle(5 * time.Second),
		cfg:              cfg,
		log:              log,
		notify:           sink,
		fsmState:         StateStopped,
		disappearedCount: make(map[types.Side]int),
	}
}

// State returns the executor's current FSM state.
func (e *Executor) State() State { return e.state() }

// MMState exposes the underlying state container, for monitoring/tests.
func (e *Executor) MMState() *mmstate.State { return e.st }

// Start runs the initial reconciliation and transitions STARTING→RUNNING.
func (e *Executor) Start(ctx context.Context) error {
	e.setState(StateStarting)

	if _, err := e.primary.GetMarket(ctx, e.symbol); err != nil {
		e.setState(StateError)
		return errors.Wrap(err, "executor: initial market load failed")
	}
	if err := e.reconcile(ctx); err != nil {
		e.setState(StateError)
		return errors.Wrap(err, "executor: initial reconciliation failed")
	}

	if e.primary.SupportsPushStream() {
		if err := e.primary.StartStream(ctx, []types.Symbol{e.symbol}, e.onPushFill, e.onPushOrderState); err != nil {
			e.log.WithError(err).Warn("push stream unavailable, falling back to polling fill detection")
		}
	}

	e.setState(StateRunning)
	return nil
}

// Run drives the fixed-period tick loop until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown(context.Background())
			return ctx.Err()
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.log.WithError(err).Error("tick failed")
			}
		}
	}
}

func (e *Executor) shutdown(ctx context.Context) {
	e.cancelSide(ctx, types.SideBuy, mmstate.CancelReasonShutdown)
	e.cancelSide(ctx, types.SideSell, mmstate.CancelReasonShutdown)
	e.setState(StateStopped)
}

// Tick runs the nine numbered steps of spec.md §4.5.2.
func (e *Executor) Tick(ctx context.Context) error {
	e.mu.Lock()
	e.tickCount++
	tick := e.tickCount
	e.mu.Unlock()

	if e.state() == StatePaused {
		// 1. state-based recovery checks
		e.checkRecovery(ctx)
		if e.state() != StateRunning {
			return nil
		}
	}

	// 2. orderbook + volatility + uptime
	ob, err := e.primary.GetOrderbook(ctx, e.symbol, 10)
	if err != nil {
		return errors.Wrap(err, "get_orderbook")
	}
	if ok, err := ob.IsValid(); !ok {
		return errors.Wrap(err, "orderbook invalid")
	}
	mid, _ := ob.Mid()
	e.st.AddMidSample(time.Now(), mid)
	e.recordUptime(ob, mid)

	// 3. poll-mode fill synthesis
	if !e.cfg.UsePushStream || !e.primary.SupportsPushStream() {
		e.pollForFills(ctx, mid)
	}

	// 4. REST gate reconciliation
	if e.shouldReconcile(tick) {
		if err := e.reconcile(ctx); err != nil {
			e.onReconcileFailure()
		} else {
			e.onReconcileSuccess()
		}
	}

	// 5. volatility check
	volBps, haveVol := e.st.VolatilityBps()
	if haveVol && e.checkVolatilityPause(volBps) {
		return nil
	}

	// hard-stop check
	if e.checkHardStop(ctx) {
		return nil
	}

	if e.state() != StateRunning {
		return nil
	}

	// 6. stale breakeven reversion reprice
	e.checkStaleReversion(ctx, ob)

	// 7. cancel-on-approach (uptime mode only)
	if e.cfg.Mode == ModeUptime {
		e.cancelOnApproach(ctx, ob, mid)
	}

	// 8. rebalance: cancel both sides if beyond rebalance distance
	e.cancelIfStale(ctx, ob, mid)

	// 9. place missing sides
	if !e.safeMode {
		e.placeMissingSides(ctx, ob, volBps)
	}

	return nil
}

func (e *Executor) shouldReconcile(tick int) bool {
	if !e.cfg.UsePushStream || !e.primary.SupportsPushStream() {
		return true
	}
	return tick%e.cfg.ReconcileEveryNTicks == 0
}

func (e *Executor) onReconcileFailure() {
	e.mu.Lock()
	e.restGateFailureStreak++
	streak := e.restGateFailureStreak
	e.mu.Unlock()
	if streak >= 3 {
		e.mu.Lock()
		e.safeMode = true
		e.mu.Unlock()
		e.notify.Notify("executor %s: entering safe mode after %d consecutive REST gate failures", e.symbol, streak)
	}
}

func (e *Executor) onReconcileSuccess() {
	e.mu.Lock()
	e.restGateFailureStreak = 0
	wasSafe := e.safeMode
	e.safeMode = false
	e.mu.Unlock()
	if wasSafe {
		e.notify.Notify("executor %s: REST gate recovered, leaving safe mode", e.symbol)
	}
}

func (e *Executor) recordUptime(ob *types.Orderbook, mid fixedpoint.Value) {
	bid, okB := e.st.IntendedOrder(types.SideBuy)
	ask, okA := e.st.IntendedOrder(types.SideSell)
	if !okB && !okA {
		e.st.ObserveUptime(time.Now(), mmstate.TierNoQuotes)
		return
	}

	var distBps fixedpoint.Value
	if okB {
		d := mid.Sub(bid.Price).Div(mid).Mul(bpsDivisor).Abs()
		distBps = d
	}
	if okA {
		d := ask.Price.Sub(mid).Div(mid).Mul(bpsDivisor).Abs()
		if distBps.IsZero() || d.Compare(distBps) < 0 {
			distBps = d
		}
	}
	e.st.ObserveUptime(time.Now(), mmstate.ClassifyBps(distBps))
}

// cancelSide cancels the resting order on side, if any, and clears state.
func (e *Executor) cancelSide(ctx context.Context, side types.Side, reason mmstate.CancelReason) {
	order, ok := e.st.IntendedOrder(side)
	if !ok {
		return
	}
	if _, err := e.primary.CancelOrder(ctx, e.symbol, order.ExchangeOrderID, order.ClientOrderID); err != nil {
		e.log.WithError(err).WithField("side", side).Warn("cancel failed")
		return
	}
	e.st.ClearIntendedOrder(side)
	e.st.RecordCancel(side, reason)
	e.st.RecordOperation(time.Now(), "cancel", string(side)+":"+string(reason))
}

func (e *Executor) cancelAll(ctx context.Context, reason mmstate.CancelReason) {
	e.cancelSide(ctx, types.SideBuy, reason)
	e.cancelSide(ctx, types.SideSell, reason)
}

// placeSide submits the first layer's order for side (layered quoting
// submits only the innermost layer as the tracked Intended Order; outer
// layers are submitted best-effort and not tracked under I1, matching
// xmaker's treatment of secondary layers as supplementary liquidity).
func (e *Executor) placeSide(ctx context.Context, side types.Side, layers []QuoteLayer) {
	if len(layers) == 0 {
		return
	}
	if !e.throttle.TryAcquire(side) {
		return
	}

	postOnly := e.cfg.Mode == ModeRebate
	for i, layer := range layers {
		params := exchange.PlaceOrderParams{
			Symbol:        e.symbol,
			Side:          side,
			Type:          types.OrderTypeLimit,
			Price:         layer.Price,
			Quantity:      layer.Quantity,
			PostOnly:      postOnly,
			TimeInForce:   types.TimeInForceGTC,
			ClientOrderID: uuid.NewString(),
		}
		order, err := e.primary.PlaceOrder(ctx, params)
		if err != nil {
			var aerr *exchange.AdapterError
			if stderrors.As(err, &aerr) && aerr.Kind == exchange.ErrPostOnlyWouldCross {
				e.st.RecordPostOnlyReject(side)
			}
			e.log.WithError(err).WithField("side", side).WithField("layer", i).Warn("place_order failed")
			return
		}
		if i == 0 {
			intended := &types.IntendedOrder{
				ClientOrderID:    order.ClientOrderID,
				ExchangeOrderID:  order.ExchangeOrderID,
				Symbol:           e.symbol,
				Side:             side,
				Price:            order.Price,
				Quantity:         order.Quantity,
				OriginalQuantity: order.Quantity,
				CumulativeFilled: fixedpoint.Zero,
				Status:           types.OrderStatusOpen,
				CreatedAt:        time.Now(),
				IsBreakevenReversion: layer.IsBreakeven,
				LastRepriceAt:    time.Now(),
			}
			e.st.SetIntendedOrder(side, intended)
			e.st.RecordOperation(time.Now(), "place", string(side)+":"+order.Price.String()+"@"+order.Quantity.String())
		}
	}
}
