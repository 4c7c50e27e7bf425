package executor

import (
	"context"
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/mmstate"
	"github.com/quantcore/permaker/pkg/types"
)

// checkStaleReversion implements spec.md §4.5.6: a breakeven-reversion quote
// outstanding too long, too far from the current best, and not recently
// repriced is cancelled so the next tick can re-quote under the standard
// skew rule.
func (e *Executor) checkStaleReversion(ctx context.Context, ob *types.Orderbook) {
	for _, side := range []types.Side{types.SideBuy, types.SideSell} {
		order, ok := e.st.IntendedOrder(side)
		if !ok || !order.IsBreakevenReversion {
			continue
		}

		if time.Since(order.CreatedAt) < e.cfg.StaleOrderTimeout {
			continue
		}
		if time.Since(order.LastRepriceAt) < e.cfg.MinRepriceInterval {
			continue
		}

		var best fixedpoint.Value
		var ok2 bool
		if side == types.SideBuy {
			bid, o := ob.BestBid()
			best, ok2 = bid.Price, o
		} else {
			ask, o := ob.BestAsk()
			best, ok2 = ask.Price, o
		}
		if !ok2 {
			continue
		}

		distBps := order.Price.Sub(best).Div(best).Mul(bpsDivisor).Abs()
		if distBps.Compare(e.cfg.StaleRepriceBps) <= 0 {
			continue
		}

		e.st.ClearEntry()
		e.cancelSide(ctx, side, mmstate.CancelReasonStaleRepric)
	}
}

// cancelOnApproach cancels a resting uptime-mode quote once it is within
// cancel_distance_bps of mid (taker-risk mitigation, spec.md §4.5.5).
func (e *Executor) cancelOnApproach(ctx context.Context, ob *types.Orderbook, mid fixedpoint.Value) {
	if mid.IsZero() {
		return
	}
	for _, side := range []types.Side{types.SideBuy, types.SideSell} {
		order, ok := e.st.IntendedOrder(side)
		if !ok || order.IsBreakevenReversion {
			continue
		}
		distBps := mid.Sub(order.Price).Div(mid).Mul(bpsDivisor).Abs()
		if distBps.Compare(e.cfg.CancelDistanceBps) < 0 {
			e.cancelSide(ctx, side, mmstate.CancelReasonApproachMid)
		}
	}
}

// cancelIfStale cancels both sides if either has drifted beyond
// rebalance_distance_bps from mid, ahead of a fresh re-quote.
func (e *Executor) cancelIfStale(ctx context.Context, ob *types.Orderbook, mid fixedpoint.Value) {
	if mid.IsZero() {
		return
	}
	stale := false
	for _, side := range []types.Side{types.SideBuy, types.SideSell} {
		order, ok := e.st.IntendedOrder(side)
		if !ok || order.IsBreakevenReversion {
			continue
		}
		distBps := mid.Sub(order.Price).Div(mid).Mul(bpsDivisor).Abs()
		if distBps.Compare(e.cfg.RebalanceDistanceBps) > 0 {
			stale = true
		}
	}
	if !stale {
		return
	}
	e.st.RecordRebalance(types.SideBuy)
	e.st.RecordRebalance(types.SideSell)
	e.cancelSide(ctx, types.SideBuy, mmstate.CancelReasonRebalance)
	e.cancelSide(ctx, types.SideSell, mmstate.CancelReasonRebalance)
}

// placeMissingSides is spec.md §4.5.2 step 9 / §4.5.5: place any missing
// side the position caps (and, in rebate mode, the spread floor) allow.
func (e *Executor) placeMissingSides(ctx context.Context, ob *types.Orderbook, volBps fixedpoint.Value) {
	market, err := e.primary.GetMarket(ctx, e.symbol)
	if err != nil {
		return
	}

	position := e.st.Position(e.primary.VenueID())
	ratio := e.posRatio(position)

	suppressBid := e.cfg.MaxPosition.Sign() > 0 && position.Compare(e.cfg.MaxPosition) >= 0
	suppressAsk := e.cfg.MaxPosition.Sign() > 0 && position.Neg().Compare(e.cfg.MaxPosition) >= 0

	if e.cfg.Mode == ModeRebate {
		spread, ok := ob.Spread()
		tick := market.TickSize
		if ok && !tick.IsZero() && spread.Compare(tick.Mul(e.cfg.MinSpreadTicks)) < 0 {
			if position.Sign() >= 0 {
				suppressBid = true
			} else {
				suppressAsk = true
			}
		}
	}

	entryPrice, entrySide, hasEntry := e.st.Entry()

	if !suppressBid {
		if _, ok := e.st.IntendedOrder(types.SideBuy); !ok {
			breakeven := fixedpoint.Zero
			if hasEntry && entrySide == types.SideSell {
				breakeven = entryPrice.Mul(fixedpoint.One.Sub(e.cfg.BreakevenOffsetBps.Div(bpsDivisor)))
			}
			if e.balanceAllows(ctx, types.SideBuy, e.cfg.OrderSize, ob) {
				layers := e.buildLayers(ob, market, types.SideBuy, volBps, ratio, breakeven)
				e.placeSide(ctx, types.SideBuy, layers)
			}
		}
	}

	if !suppressAsk {
		if _, ok := e.st.IntendedOrder(types.SideSell); !ok {
			breakeven := fixedpoint.Zero
			if hasEntry && entrySide == types.SideBuy {
				breakeven = entryPrice.Mul(fixedpoint.One.Add(e.cfg.BreakevenOffsetBps.Div(bpsDivisor)))
			}
			if e.balanceAllows(ctx, types.SideSell, e.cfg.OrderSize, ob) {
				layers := e.buildLayers(ob, market, types.SideSell, volBps, ratio, breakeven)
				e.placeSide(ctx, types.SideSell, layers)
			}
		}
	}
}

// balanceAllows is the quota-transaction-style balance gate, SUPPLEMENTED
// beyond spec.md §4.5.5 and grounded on xmaker's bbgo.QuotaTransaction: a
// placement that the account cannot actually cover is refused even when the
// risk caps above would otherwise allow it.
func (e *Executor) balanceAllows(ctx context.Context, side types.Side, qty fixedpoint.Value, ob *types.Orderbook) bool {
	if !e.cfg.EnableBalanceGate {
		return true
	}
	balances, err := e.primary.GetBalance(ctx)
	if err != nil {
		return false
	}

	market, err := e.primary.GetMarket(ctx, e.symbol)
	if err != nil {
		return false
	}

	if side == types.SideSell {
		bal, ok := balances[market.BaseCurrency]
		return ok && bal.Available.Compare(qty) >= 0
	}

	price, ok := e.baseSourcePrice(ob, side)
	if !ok {
		return false
	}
	notional := price.Mul(qty)
	bal, ok := balances[market.QuoteCurrency]
	return ok && bal.Available.Compare(notional) >= 0
}
