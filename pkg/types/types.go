// Package types holds the shared data model described in the core's
// §3 data model: symbols, orderbooks, intended orders, positions, fills,
// volatility samples, hedge results and arbitrage candidates.
package types

import (
	"fmt"
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
)

// Side is a trading side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType enumerates the placement types the Exchange Adapter contract
// (spec.md §4.1) must support.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypePostOnly OrderType = "POST_ONLY"
)

// TimeInForce is the order's lifetime instruction.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// OrderStatus is the lifecycle state of an Intended Order (spec.md §3).
type OrderStatus string

const (
	OrderStatusPending            OrderStatus = "pending"
	OrderStatusOpen               OrderStatus = "open"
	OrderStatusPartiallyFilled    OrderStatus = "partially_filled"
	OrderStatusFilled             OrderStatus = "filled"
	OrderStatusCancelled          OrderStatus = "cancelled"
	OrderStatusUnknownDisappeared OrderStatus = "unknown_disappeared"
)

// Symbol is a canonical trading instrument identifier in base-quote form,
// e.g. "BTC-USDT". Venue-native mapping is the adapter's responsibility.
type Symbol string

func (s Symbol) String() string { return string(s) }

// PriceVolume is one level of an orderbook.
type PriceVolume struct {
	Price  fixedpoint.Value
	Volume fixedpoint.Value
}

// PriceVolumeSlice is one side of an orderbook, best level first.
type PriceVolumeSlice []PriceVolume

// AggregatePrice returns the volume-weighted price needed to fill
// requiredQuantity by walking the book from the best level down,
// grounded on xmaker's aggregatePrice helper.
func AggregatePrice(pvs PriceVolumeSlice, requiredQuantity fixedpoint.Value) fixedpoint.Value {
	if len(pvs) == 0 {
		return fixedpoint.Zero
	}
	if pvs[0].Volume.Compare(requiredQuantity) >= 0 {
		return pvs[0].Price
	}

	q := requiredQuantity
	totalAmount := fixedpoint.Zero
	for _, pv := range pvs {
		if pv.Volume.Compare(q) >= 0 {
			totalAmount = totalAmount.Add(q.Mul(pv.Price))
			break
		}
		q = q.Sub(pv.Volume)
		totalAmount = totalAmount.Add(pv.Volume.Mul(pv.Price))
	}

	if requiredQuantity.IsZero() {
		return fixedpoint.Zero
	}
	return totalAmount.Div(requiredQuantity)
}

// Orderbook is the §3 "Orderbook snapshot".
type Orderbook struct {
	Symbol    Symbol
	Bids      PriceVolumeSlice
	Asks      PriceVolumeSlice
	Timestamp time.Time
}

func (ob *Orderbook) BestBid() (PriceVolume, bool) {
	if len(ob.Bids) == 0 {
		return PriceVolume{}, false
	}
	return ob.Bids[0], true
}

func (ob *Orderbook) BestAsk() (PriceVolume, bool) {
	if len(ob.Asks) == 0 {
		return PriceVolume{}, false
	}
	return ob.Asks[0], true
}

func (ob *Orderbook) Mid() (fixedpoint.Value, bool) {
	bid, ok1 := ob.BestBid()
	ask, ok2 := ob.BestAsk()
	if !ok1 || !ok2 {
		return fixedpoint.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(fixedpoint.NewFromInt(2)), true
}

func (ob *Orderbook) Spread() (fixedpoint.Value, bool) {
	bid, ok1 := ob.BestBid()
	ask, ok2 := ob.BestAsk()
	if !ok1 || !ok2 {
		return fixedpoint.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// SpreadBps returns the spread expressed in basis points of mid.
func (ob *Orderbook) SpreadBps() (fixedpoint.Value, bool) {
	spread, ok := ob.Spread()
	if !ok {
		return fixedpoint.Zero, false
	}
	mid, ok := ob.Mid()
	if !ok || mid.IsZero() {
		return fixedpoint.Zero, false
	}
	return spread.Div(mid).Mul(fixedpoint.NewFromInt(10000)), true
}

// IsValid reports whether the book has both sides and is not crossed; when
// it is not valid, the error says which check failed.
func (ob *Orderbook) IsValid() (bool, error) {
	bid, ok1 := ob.BestBid()
	ask, ok2 := ob.BestAsk()
	if !ok1 || !ok2 {
		return false, fmt.Errorf("orderbook %s missing a side", ob.Symbol)
	}
	if bid.Price.Compare(ask.Price) >= 0 {
		return false, fmt.Errorf("orderbook %s crossed: bid %s >= ask %s", ob.Symbol, bid.Price, ask.Price)
	}
	return true, nil
}

// IntendedOrder is the executor's locally-held intent for one side, per
// spec.md §3.
type IntendedOrder struct {
	ClientOrderID            string
	ExchangeOrderID          string
	Symbol                   Symbol
	Side                     Side
	Price                    fixedpoint.Value
	Quantity                 fixedpoint.Value
	OriginalQuantity         fixedpoint.Value
	CumulativeFilled         fixedpoint.Value
	LastKnownRemaining       fixedpoint.Value
	Status                   OrderStatus
	CreatedAt                time.Time
	FirstDisappearedAt       *time.Time
	UnknownConfirmationCount int

	// IsBreakevenReversion marks a quote priced at entry price rather than
	// at the standard skew distance (spec.md §4.5.5 breakeven reversion).
	IsBreakevenReversion bool
	LastRepriceAt        time.Time
}

// Remaining returns OriginalQuantity - CumulativeFilled, floored at zero.
func (o *IntendedOrder) Remaining() fixedpoint.Value {
	r := o.OriginalQuantity.Sub(o.CumulativeFilled)
	if r.Sign() < 0 {
		return fixedpoint.Zero
	}
	return r
}

// Order is an exchange-acknowledged order record, as returned by
// get_open_orders / place_order in the Exchange Adapter contract.
type Order struct {
	ExchangeOrderID  string
	ClientOrderID    string
	Symbol           Symbol
	Side             Side
	Type             OrderType
	Price            fixedpoint.Value
	Quantity         fixedpoint.Value
	CumulativeFilled fixedpoint.Value
	Status           OrderStatus
	ReduceOnly       bool
	PostOnly         bool
	CreatedAt        time.Time
}

// Remaining of an acknowledged order.
func (o *Order) Remaining() fixedpoint.Value {
	r := o.Quantity.Sub(o.CumulativeFilled)
	if r.Sign() < 0 {
		return fixedpoint.Zero
	}
	return r
}

// MakerState is the tri-state maker/taker classification of a fill.
type MakerState int

const (
	MakerUnknown MakerState = iota
	MakerTrue
	MakerFalse
)

// FillEvent is the §3 "Fill Event".
type FillEvent struct {
	OrderID       string
	ClientOrderID string
	Symbol        Symbol
	Side          Side
	FillQty       fixedpoint.Value
	FillPrice     fixedpoint.Value
	RemainingQty  fixedpoint.Value
	IsFullyFilled bool
	Timestamp     time.Time
	IsMaker       MakerState
}

// DeltaKey identifies a fill event for dedup purposes: the same order can
// legitimately report multiple distinct fills, so the key also carries the
// filled delta, not just the order id.
type DeltaKey struct {
	OrderID string
	DeltaQty string
}

// Position is the §3 "Position (per venue)": signed base-asset quantity.
type Position struct {
	VenueID string
	Symbol  Symbol
	Qty     fixedpoint.Value
}

func (p *Position) IsLong() bool  { return p.Qty.Sign() > 0 }
func (p *Position) IsShort() bool { return p.Qty.Sign() < 0 }

// HedgeStatus is the terminal/interim status of a HedgeResult.
type HedgeStatus string

const (
	HedgeStatusFilled          HedgeStatus = "filled"
	HedgeStatusPartial         HedgeStatus = "partial"
	HedgeStatusFailed          HedgeStatus = "failed"
	HedgeStatusWaitingRecovery HedgeStatus = "waiting_recovery"
	HedgeStatusPartialFallback HedgeStatus = "partial_fallback"
	HedgeStatusFallbackFailed  HedgeStatus = "fallback_failed"
	HedgeStatusBelowMinimum    HedgeStatus = "below_minimum"
)

// HedgeResult is the §3 "Hedge Result".
type HedgeResult struct {
	Success        bool
	Status         HedgeStatus
	SourceFillID   string
	RequestedQty   fixedpoint.Value
	NormalizedQty  fixedpoint.Value
	HedgeOrderID   string
	FillPrice      fixedpoint.Value
	SlippageBps    fixedpoint.Value
	Attempts       int
	LatencyMillis  int64
	Error          error
}

// ArbitrageOpportunity is the §3 "Arbitrage Opportunity".
type ArbitrageOpportunity struct {
	BuyVenue         string
	SellVenue        string
	Symbol           Symbol
	BuyPrice         fixedpoint.Value
	SellPrice        fixedpoint.Value
	ProfitUSD        fixedpoint.Value
	ProfitPct        fixedpoint.Value
	MaxExecutableQty fixedpoint.Value
	Timestamp        time.Time
}

// Balance is one currency's available/locked amounts in an account.
type Balance struct {
	Currency  string
	Available fixedpoint.Value
	Locked    fixedpoint.Value
}

// Market carries the venue's tick/step/minimum rules for one symbol,
// grounded on bbgo's types.Market (see coinbase/convert.go's toGlobalMarket).
type Market struct {
	Symbol        Symbol
	BaseCurrency  string
	QuoteCurrency string
	TickSize      fixedpoint.Value
	StepSize      fixedpoint.Value
	MinQuantity   fixedpoint.Value
	MinNotional   fixedpoint.Value
}

// TruncateQuantity floors qty to the market's step size.
func (m Market) TruncateQuantity(qty fixedpoint.Value) fixedpoint.Value {
	return qty.RoundDown(m.StepSize)
}

// NormalizePrice rounds a price to the market tick, bid-floor / ask-ceil
// per spec.md §4.1's normalization rule.
func (m Market) NormalizePrice(price fixedpoint.Value, side Side) fixedpoint.Value {
	if side == SideBuy {
		return price.RoundDown(m.TickSize)
	}
	return price.RoundUp(m.TickSize)
}
