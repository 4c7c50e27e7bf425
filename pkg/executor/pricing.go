package executor

import (
	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/types"
)

// QuoteLayer is one priced, sized order to place on one side, per the
// layered-quoting supplement to spec.md §4.5.5.
type QuoteLayer struct {
	Side         types.Side
	Price        fixedpoint.Value
	Quantity     fixedpoint.Value
	IsBreakeven  bool
}

var bpsDivisor = fixedpoint.NewFromInt(10000)

func bpsOf(v fixedpoint.Value, bps fixedpoint.Value) fixedpoint.Value {
	return v.Mul(bps).Div(bpsDivisor)
}

// baseSourcePrice returns the per-side reference price: depth-weighted when
// UseDepthPrice is set (SUPPLEMENTED, grounded on xmaker's aggregatePrice),
// otherwise best bid/ask.
func (e *Executor) baseSourcePrice(ob *types.Orderbook, side types.Side) (fixedpoint.Value, bool) {
	if e.cfg.UseDepthPrice {
		qty := e.cfg.DepthQuantity
		if qty.IsZero() {
			qty = e.cfg.OrderSize
		}
		pvs := ob.Bids
		if side == types.SideSell {
			pvs = ob.Asks
		}
		p := types.AggregatePrice(pvs, qty)
		if p.IsZero() {
			return fixedpoint.Zero, false
		}
		return p, true
	}
	if side == types.SideBuy {
		bid, ok := ob.BestBid()
		return bid.Price, ok
	}
	ask, ok := ob.BestAsk()
	return ask.Price, ok
}

// posRatio is spec.md §4.5.5's clamp(position / max(max_position,
// 3*order_size, floor), -1, 1).
func (e *Executor) posRatio(position fixedpoint.Value) fixedpoint.Value {
	denom := fixedpoint.Max(e.cfg.MaxPosition, e.cfg.OrderSize.Mul(fixedpoint.NewFromInt(3)))
	denom = fixedpoint.Max(denom, e.cfg.HardFloorPosition)
	if denom.IsZero() {
		return fixedpoint.Zero
	}
	ratio := position.Div(denom)
	return ratio.Clamp(fixedpoint.NewFromInt(-1), fixedpoint.One)
}

// skewBps applies the inventory skew rule of spec.md §4.5.5 to a base
// distance, returning the adjusted (bidBps, askBps).
func (e *Executor) skewBps(baseBps fixedpoint.Value, ratio fixedpoint.Value) (bidBps, askBps fixedpoint.Value) {
	if !e.cfg.EnableSkew || ratio.IsZero() {
		return baseBps, baseBps
	}

	pullCap := fixedpoint.NewFromFloat(0.7)
	minBase := e.cfg.MinQuoteBpsBase
	minPull := e.cfg.MinQuoteBpsPull

	if ratio.Sign() > 0 {
		// long-biased: push the bid out, pull the ask in
		bidBps = baseBps.Add(ratio.Mul(e.cfg.PushBps))
		askBps = baseBps.Sub(fixedpoint.Min(ratio.Abs(), pullCap).Mul(e.cfg.PullBps))
	} else {
		askBps = baseBps.Add(ratio.Abs().Mul(e.cfg.PushBps))
		bidBps = baseBps.Sub(fixedpoint.Min(ratio.Abs(), pullCap).Mul(e.cfg.PullBps))
	}

	bidBps = fixedpoint.Max(bidBps, minBase)
	askBps = fixedpoint.Max(askBps, minBase)
	if ratio.Sign() > 0 {
		askBps = fixedpoint.Max(askBps, minPull)
	} else {
		bidBps = fixedpoint.Max(bidBps, minPull)
	}
	return bidBps, askBps
}

// volatilityMultiplier widens distances linearly between 70% and 100% of
// the pause threshold, capped at the configured max multiplier.
func (e *Executor) volatilityMultiplier(volBps fixedpoint.Value) fixedpoint.Value {
	pause := e.cfg.PauseThresholdBps
	if pause.IsZero() {
		return fixedpoint.One
	}
	low := pause.Mul(fixedpoint.NewFromFloat(0.7))
	if volBps.Compare(low) <= 0 {
		return fixedpoint.One
	}
	if volBps.Compare(pause) >= 0 {
		return e.cfg.VolWideningMaxMultiplier
	}
	span := pause.Sub(low)
	progress := volBps.Sub(low).Div(span)
	extra := e.cfg.VolWideningMaxMultiplier.Sub(fixedpoint.One).Mul(progress)
	return fixedpoint.One.Add(extra)
}

// postPrice floors a bid / ceils an ask to the market tick, per spec.md
// §4.5.5's post-pricing step. Breakeven quotes skip this (allowed inside
// best).
func (e *Executor) postPrice(market types.Market, side types.Side, price fixedpoint.Value, isBreakeven bool) fixedpoint.Value {
	if isBreakeven {
		return price
	}
	return market.NormalizePrice(price, side)
}

// buildLayers prices and sizes the layered quote ladder for one side. A
// breakevenPrice of non-zero overrides the base distance with the
// breakeven-reversion rule and disables layering (a single protective
// quote).
func (e *Executor) buildLayers(ob *types.Orderbook, market types.Market, side types.Side, volBps fixedpoint.Value, ratio fixedpoint.Value, breakevenPrice fixedpoint.Value) []QuoteLayer {
	if !breakevenPrice.IsZero() {
		return []QuoteLayer{{
			Side:        side,
			Price:       breakevenPrice,
			Quantity:    e.cfg.OrderSize,
			IsBreakeven: true,
		}}
	}

	var baseBps fixedpoint.Value
	if e.cfg.Mode == ModeRebate {
		baseBps = rebateBaseBps(e.cfg.RebateAggressiveness)
	} else {
		baseBps = e.cfg.OrderDistanceBps
	}

	bidBps, askBps := e.skewBps(baseBps, ratio)
	distanceBps := bidBps
	if side == types.SideSell {
		distanceBps = askBps
	}

	mult := e.volatilityMultiplier(volBps)
	distanceBps = distanceBps.Mul(mult)

	source, ok := e.baseSourcePrice(ob, side)
	if !ok {
		return nil
	}

	layers := make([]QuoteLayer, 0, e.cfg.NumLayers)
	qty := e.cfg.OrderSize
	layerDistance := distanceBps
	for i := 0; i < e.cfg.NumLayers; i++ {
		var price fixedpoint.Value
		offset := bpsOf(source, layerDistance)
		if side == types.SideBuy {
			price = source.Sub(offset)
		} else {
			price = source.Add(offset)
		}
		price = e.postPrice(market, side, price, false)

		layers = append(layers, QuoteLayer{Side: side, Price: price, Quantity: qty})

		layerDistance = layerDistance.Add(e.cfg.LayerPips)
		qty = qty.Mul(e.cfg.QuantityScale)
	}
	return layers
}
