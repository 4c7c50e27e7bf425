// Package hedge implements the Hedge Engine of spec.md §4.4 (component
// C4): submits an offsetting order on the hedge venue after each fill,
// with retry, a two-phase submit/wait-for-fill protocol, a partial-
// fallback risk control, and a throttled recovery check.
package hedge

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/notify"
	"github.com/quantcore/permaker/pkg/types"
)

// Config holds the Hedge Engine's tunables, spec.md §4.4/§6.
type Config struct {
	MaxRetries          int
	RetryDelay          time.Duration
	TotalTimeout        time.Duration
	HardUnhedgedLimit   fixedpoint.Value
	SoftLimitFactor     fixedpoint.Value // default 0.5
	RecoverySuccessReq  int              // default 3
	RecoveryMinInterval time.Duration    // default 2s
	PollInterval        time.Duration    // default 100ms
}

func (c *Config) setDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.TotalTimeout == 0 {
		c.TotalTimeout = 5 * time.Second
	}
	if c.SoftLimitFactor.IsZero() {
		c.SoftLimitFactor = fixedpoint.NewFromFloat(0.5)
	}
	if c.RecoverySuccessReq == 0 {
		c.RecoverySuccessReq = 3
	}
	if c.RecoveryMinInterval == 0 {
		c.RecoveryMinInterval = 2 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 100 * time.Millisecond
	}
}

// Engine is the Hedge Engine (C4).
type Engine struct {
	hedgeAdapter   exchange.Adapter
	primaryAdapter exchange.Adapter
	mapper         *SymbolMapper
	cfg            Config
	log            *logrus.Entry
	notify         notify.Sink

	recoveryConsecutive int
	lastRecoveryCheck   time.Time

	optimisticFilledUsed bool
}

func NewEngine(hedgeAdapter, primaryAdapter exchange.Adapter, mapper *SymbolMapper, cfg Config, log *logrus.Entry, sink notify.Sink) *Engine {
	cfg.setDefaults()
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Engine{
		hedgeAdapter:   hedgeAdapter,
		primaryAdapter: primaryAdapter,
		mapper:         mapper,
		cfg:            cfg,
		log:            log,
		notify:         sink,
	}
}

// ExecuteHedge implements spec.md §4.4's contract.
func (e *Engine) ExecuteHedge(ctx context.Context, fillID string, fillSide types.Side, fillQty, fillPrice fixedpoint.Value, sourceSymbol types.Symbol) types.HedgeResult {
	start := time.Now()

	hedgeSymbol, valid := e.mapper.Resolve(sourceSymbol)
	if !valid {
		return types.HedgeResult{
			Success:      false,
			Status:       types.HedgeStatusFailed,
			SourceFillID: fillID,
			RequestedQty: fillQty,
			Error:        errf("no valid hedge symbol for %s", sourceSymbol),
		}
	}

	market, err := e.hedgeAdapter.GetMarket(ctx, hedgeSymbol)
	if err != nil {
		return types.HedgeResult{Success: false, Status: types.HedgeStatusFailed, SourceFillID: fillID, RequestedQty: fillQty, Error: err}
	}

	normalizedQty := market.TruncateQuantity(fillQty)
	if normalizedQty.Compare(market.MinQuantity) < 0 {
		return types.HedgeResult{
			Success:       false,
			Status:        types.HedgeStatusBelowMinimum,
			SourceFillID:  fillID,
			RequestedQty:  fillQty,
			NormalizedQty: normalizedQty,
		}
	}

	hedgeSide := fillSide.Opposite()

	var lastErr error
	attempts := 0
	e.optimisticFilledUsed = false

	for attempts < e.cfg.MaxRetries {
		attempts++

		result, err := e.twoPhaseHedge(ctx, hedgeSymbol, hedgeSide, normalizedQty, fillPrice)
		if err == nil {
			result.Attempts = attempts
			result.SourceFillID = fillID
			result.RequestedQty = fillQty
			result.NormalizedQty = normalizedQty
			result.LatencyMillis = time.Since(start).Milliseconds()
			return result
		}

		lastErr = err
		e.notify.Notify("hedge attempt %d/%d for %s failed: %v", attempts, e.cfg.MaxRetries, sourceSymbol, err)

		if attempts < e.cfg.MaxRetries {
			b := backoff.NewConstantBackOff(e.cfg.RetryDelay)
			select {
			case <-time.After(b.NextBackOff()):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempts = e.cfg.MaxRetries
			}
		}
	}

	// retries exhausted: enter risk control (spec.md §4.4 step 4)
	return e.riskControl(ctx, sourceSymbol, fillID, fillQty, fillPrice, attempts, start, lastErr)
}

// twoPhaseHedge runs Phase A (submit, bounded 30% of timeout, min 500ms)
// then Phase B (poll for fill, remaining timeout).
func (e *Engine) twoPhaseHedge(ctx context.Context, symbol types.Symbol, side types.Side, qty, expectedPrice fixedpoint.Value) (types.HedgeResult, error) {
	phaseA := e.cfg.TotalTimeout * 3 / 10
	if phaseA < 500*time.Millisecond {
		phaseA = 500 * time.Millisecond
	}
	phaseB := e.cfg.TotalTimeout - phaseA
	if phaseB <= 0 {
		phaseB = e.cfg.PollInterval
	}

	submitCtx, cancel := context.WithTimeout(ctx, phaseA)
	defer cancel()

	order, err := e.hedgeAdapter.PlaceOrder(submitCtx, exchange.PlaceOrderParams{
		Symbol:   symbol,
		Side:     side,
		Type:     types.OrderTypeMarket,
		Quantity: qty,
	})
	if err != nil {
		return types.HedgeResult{}, err
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, phaseB)
	defer waitCancel()

	return e.waitForFill(waitCtx, symbol, side, order, expectedPrice)
}

func (e *Engine) waitForFill(ctx context.Context, symbol types.Symbol, side types.Side, order *types.Order, expectedPrice fixedpoint.Value) (types.HedgeResult, error) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.HedgeResult{}, errf("hedge wait-for-fill timed out for order %s", order.ExchangeOrderID)

		case <-ticker.C:
			current, err := e.hedgeAdapter.GetOrder(ctx, symbol, order.ExchangeOrderID)
			if err != nil {
				return types.HedgeResult{}, err
			}

			if current == nil {
				// cross-check via get_open_orders; if absent there too,
				// treat as filled optimistically, only once per ExecuteHedge call.
				open, err := e.hedgeAdapter.GetOpenOrders(ctx, symbol)
				if err != nil {
					return types.HedgeResult{}, err
				}
				if !containsOrder(open, order.ExchangeOrderID) {
					if e.optimisticFilledUsed {
						return types.HedgeResult{}, errf("order %s vanished a second time; refusing optimistic fill", order.ExchangeOrderID)
					}
					e.optimisticFilledUsed = true
					return types.HedgeResult{
						Success:     true,
						Status:      types.HedgeStatusFilled,
						HedgeOrderID: order.ExchangeOrderID,
						FillPrice:   expectedPrice,
						SlippageBps: fixedpoint.Zero,
					}, nil
				}
				continue
			}

			switch current.Status {
			case types.OrderStatusFilled:
				return e.successResult(order.ExchangeOrderID, side, current.Price, expectedPrice), nil
			case types.OrderStatusPartiallyFilled:
				if current.CumulativeFilled.Sign() > 0 {
					result := e.successResult(order.ExchangeOrderID, side, current.Price, expectedPrice)
					result.Status = types.HedgeStatusPartial
					return result, nil
				}
			case types.OrderStatusCancelled, types.OrderStatusUnknownDisappeared:
				return types.HedgeResult{}, errf("hedge order %s terminated as %s", order.ExchangeOrderID, current.Status)
			}
		}
	}
}

func containsOrder(orders []types.Order, exchangeOrderID string) bool {
	for _, o := range orders {
		if o.ExchangeOrderID == exchangeOrderID {
			return true
		}
	}
	return false
}

// successResult computes signed slippage: positive is always a loss to the
// hedger, per spec.md §4.4.
func (e *Engine) successResult(orderID string, side types.Side, fillPrice, expectedPrice fixedpoint.Value) types.HedgeResult {
	slippage := fixedpoint.Zero
	if !expectedPrice.IsZero() {
		slippage = fillPrice.Sub(expectedPrice).Div(expectedPrice).Mul(fixedpoint.NewFromInt(10000))
		if side == types.SideSell {
			slippage = slippage.Neg()
		}
	}
	return types.HedgeResult{
		Success:      true,
		Status:       types.HedgeStatusFilled,
		HedgeOrderID: orderID,
		FillPrice:    fillPrice,
		SlippageBps:  slippage,
	}
}

// riskControl is spec.md §4.4 step 4: fetch authoritative primary position;
// above hard_unhedged_limit, reduce on primary toward the soft limit;
// otherwise wait for recovery.
func (e *Engine) riskControl(ctx context.Context, sourceSymbol types.Symbol, fillID string, requestedQty, fillPrice fixedpoint.Value, attempts int, start time.Time, lastErr error) types.HedgeResult {
	base := types.HedgeResult{
		Success:       false,
		SourceFillID:  fillID,
		RequestedQty:  requestedQty,
		Attempts:      attempts,
		LatencyMillis: time.Since(start).Milliseconds(),
		Error:         lastErr,
	}

	positions, err := e.primaryAdapter.GetPositions(ctx, sourceSymbol)
	if err != nil || len(positions) == 0 {
		base.Status = types.HedgeStatusWaitingRecovery
		return base
	}

	pos := positions[0].Qty
	if pos.Abs().Compare(e.cfg.HardUnhedgedLimit) <= 0 {
		base.Status = types.HedgeStatusWaitingRecovery
		return base
	}

	softLimit := e.cfg.HardUnhedgedLimit.Mul(e.cfg.SoftLimitFactor)
	reduceQty := pos.Abs().Sub(softLimit)
	if reduceQty.Sign() <= 0 {
		base.Status = types.HedgeStatusWaitingRecovery
		return base
	}

	reduceSide := types.SideSell
	if pos.Sign() < 0 {
		reduceSide = types.SideBuy
	}

	order, err := e.primaryAdapter.PlaceOrder(ctx, exchange.PlaceOrderParams{
		Symbol:     positions[0].Symbol,
		Side:       reduceSide,
		Type:       types.OrderTypeMarket,
		Quantity:   reduceQty,
		ReduceOnly: true,
	})
	if err != nil {
		base.Status = types.HedgeStatusFallbackFailed
		base.Error = err
		return base
	}

	base.Status = types.HedgeStatusPartialFallback
	base.HedgeOrderID = order.ExchangeOrderID
	base.NormalizedQty = reduceQty
	return base
}

// CheckRecovery is spec.md §4.4 step 5: throttled to at most one probe per
// RecoveryMinInterval; success when the hedge venue answers both a
// market-metadata request and a positions request for RecoverySuccessReq
// consecutive times. Both probes are scoped to symbol; no unscoped market
// listing is requested. Any failure resets the
// counter; hitting the threshold reports recovered once and immediately
// resets the counter so a later disconnect is detected again from zero.
func (e *Engine) CheckRecovery(ctx context.Context, symbol types.Symbol) bool {
	now := time.Now()
	if now.Sub(e.lastRecoveryCheck) < e.cfg.RecoveryMinInterval {
		return false
	}
	e.lastRecoveryCheck = now

	_, err1 := e.hedgeAdapter.GetMarket(ctx, symbol)
	_, err2 := e.hedgeAdapter.GetPositions(ctx, symbol)

	if err1 != nil || err2 != nil {
		e.recoveryConsecutive = 0
		return false
	}

	e.recoveryConsecutive++
	if e.recoveryConsecutive >= e.cfg.RecoverySuccessReq {
		e.recoveryConsecutive = 0
		return true
	}
	return false
}

// CheckRecoveryForSource resolves sourceSymbol through the engine's mapper
// and runs CheckRecovery against the resulting hedge-venue symbol. This is
// what callers outside the package (the executor's resume path) should use,
// so they never need to reach into the mapper themselves.
func (e *Engine) CheckRecoveryForSource(ctx context.Context, sourceSymbol types.Symbol) bool {
	hedgeSymbol, valid := e.mapper.Resolve(sourceSymbol)
	if !valid {
		return false
	}
	return e.CheckRecovery(ctx, hedgeSymbol)
}

func errf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
