// Package exchange defines the Exchange Adapter contract (spec.md §4.1 /
// §6): the sole boundary through which every other component talks to a
// venue. Concrete adapters are the only code allowed to speak a venue's
// wire protocol; everything upstream works only against this interface.
package exchange

import (
	"context"

	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/types"
)

// ErrorKind enumerates the taxonomy of spec.md §6 so callers can branch on
// adapter failures without string matching.
type ErrorKind string

const (
	ErrOrderNotFound      ErrorKind = "ORDER_NOT_FOUND"
	ErrAlreadyFilled      ErrorKind = "ALREADY_FILLED"
	ErrAlreadyCancelled   ErrorKind = "ALREADY_CANCELLED"
	ErrRateLimited        ErrorKind = "RATE_LIMITED"
	ErrNetwork            ErrorKind = "NETWORK"
	ErrAuth               ErrorKind = "AUTH"
	ErrPostOnlyWouldCross ErrorKind = "POST_ONLY_WOULD_CROSS"
	ErrOther              ErrorKind = "OTHER"
)

// AdapterError carries a classified ErrorKind plus the underlying cause.
type AdapterError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + ": " + e.Op
	}
	return string(e.Kind) + ": " + e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, exchange.ErrOrderNotFound-shaped sentinel) work by
// comparing Kind, mirroring the (ORDER_NOT_FOUND, ALREADY_FILLED, ...)
// classification spec.md §6 requires adapters to distinguish.
func (e *AdapterError) Is(target error) bool {
	other, ok := target.(*AdapterError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func NewAdapterError(kind ErrorKind, op string, err error) *AdapterError {
	return &AdapterError{Kind: kind, Op: op, Err: err}
}

// HealthStatus is the result of Adapter.HealthCheck.
type HealthStatus struct {
	Healthy   bool
	LatencyMs int64
	Err       error
}

// PlaceOrderParams is the place_order request shape of spec.md §4.1.
type PlaceOrderParams struct {
	Symbol        types.Symbol
	Side          types.Side
	Type          types.OrderType
	Quantity      fixedpoint.Value
	Price         fixedpoint.Value // zero for market orders
	TimeInForce   types.TimeInForce
	ReduceOnly    bool
	PostOnly      bool
	ClientOrderID string // accepted verbatim when supplied, echoed back
}

// FillCallback is invoked by a push stream whenever a fill is observed.
type FillCallback func(types.FillEvent)

// OrderStateCallback is invoked by a push stream on any order state change
// (ack, cancel, reject) that isn't itself a fill.
type OrderStateCallback func(types.Order)

// Adapter is the uniform capability surface over one venue, spec.md §4.1.
// A concrete adapter owns exactly one venue's wire protocol and symbol
// normalization; nothing upstream may assume venue-specific behavior.
type Adapter interface {
	VenueID() string

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) HealthStatus

	GetOrderbook(ctx context.Context, symbol types.Symbol, depth int) (*types.Orderbook, error)
	GetBalance(ctx context.Context) (map[string]types.Balance, error)
	GetPositions(ctx context.Context, symbol types.Symbol) ([]types.Position, error)

	PlaceOrder(ctx context.Context, params PlaceOrderParams) (*types.Order, error)
	CancelOrder(ctx context.Context, symbol types.Symbol, exchangeOrderID, clientOrderID string) (bool, error)
	GetOpenOrders(ctx context.Context, symbol types.Symbol) ([]types.Order, error)
	GetOrder(ctx context.Context, symbol types.Symbol, exchangeOrderID string) (*types.Order, error)

	// GetMarket returns the venue's tick/step/minimum rules for symbol.
	GetMarket(ctx context.Context, symbol types.Symbol) (types.Market, error)

	// NormalizeSymbol/DenormalizeSymbol map between the canonical internal
	// form and the venue's native form (spec.md §4.1).
	NormalizeSymbol(venueSymbol string) types.Symbol
	DenormalizeSymbol(symbol types.Symbol) string

	// SupportsPushStream reports whether StartStream is meaningful; an
	// adapter that returns false is polling-only and callers must
	// synthesize fills from position deltas (spec.md §4.5.4).
	SupportsPushStream() bool
	StartStream(ctx context.Context, symbols []types.Symbol, onFill FillCallback, onOrderState OrderStateCallback) error
	StopStream(ctx context.Context) error
}
