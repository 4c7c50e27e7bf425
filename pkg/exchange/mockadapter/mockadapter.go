// Package mockadapter is an in-memory exchange.Adapter used by unit tests
// across the executor, hedge, and monitor packages. It is deliberately
// simple: tests drive its state directly (SetOrderbook, Fill, ...) rather
// than exercising real wire behavior.
package mockadapter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/types"
)

type Adapter struct {
	mu sync.Mutex

	venueID string
	market  types.Market
	book    *types.Orderbook
	balances map[string]types.Balance
	positions map[types.Symbol]fixedpoint.Value
	openOrders map[string]types.Order

	healthy bool

	onFill       exchange.FillCallback
	onOrderState exchange.OrderStateCallback
	pushEnabled  bool

	// Hooks let tests inject adapter failures/latency deterministically.
	PlaceOrderHook  func(p exchange.PlaceOrderParams) (*types.Order, error)
	CancelOrderHook func(symbol types.Symbol, exchangeOrderID, clientOrderID string) (bool, error)
	GetOrderHook    func(symbol types.Symbol, exchangeOrderID string) (*types.Order, error)
}

var _ exchange.Adapter = (*Adapter)(nil)

func New(venueID string, market types.Market) *Adapter {
	return &Adapter{
		venueID:    venueID,
		market:     market,
		balances:   map[string]types.Balance{},
		positions:  map[types.Symbol]fixedpoint.Value{},
		openOrders: map[string]types.Order{},
		healthy:    true,
	}
}

func (a *Adapter) VenueID() string { return a.venueID }

func (a *Adapter) Connect(ctx context.Context) error    { return nil }
func (a *Adapter) Disconnect(ctx context.Context) error { return nil }

func (a *Adapter) SetHealthy(h bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthy = h
}

func (a *Adapter) HealthCheck(ctx context.Context) exchange.HealthStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.healthy {
		return exchange.HealthStatus{Healthy: false, Err: exchange.NewAdapterError(exchange.ErrNetwork, "health_check", nil)}
	}
	return exchange.HealthStatus{Healthy: true, LatencyMs: 1}
}

func (a *Adapter) SetOrderbook(book *types.Orderbook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.book = book
}

func (a *Adapter) GetOrderbook(ctx context.Context, symbol types.Symbol, depth int) (*types.Orderbook, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.book == nil {
		return nil, exchange.NewAdapterError(exchange.ErrOther, "get_orderbook", nil)
	}
	cp := *a.book
	return &cp, nil
}

func (a *Adapter) SetBalance(currency string, bal types.Balance) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[currency] = bal
}

func (a *Adapter) GetBalance(ctx context.Context) (map[string]types.Balance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]types.Balance, len(a.balances))
	for k, v := range a.balances {
		out[k] = v
	}
	return out, nil
}

func (a *Adapter) SetPosition(symbol types.Symbol, qty fixedpoint.Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[symbol] = qty
}

func (a *Adapter) GetPositions(ctx context.Context, symbol types.Symbol) ([]types.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	qty := a.positions[symbol]
	return []types.Position{{VenueID: a.venueID, Symbol: symbol, Qty: qty}}, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, params exchange.PlaceOrderParams) (*types.Order, error) {
	a.mu.Lock()
	hook := a.PlaceOrderHook
	a.mu.Unlock()
	if hook != nil {
		return hook(params)
	}

	clientOrderID := params.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}

	order := types.Order{
		ExchangeOrderID:  uuid.NewString(),
		ClientOrderID:    clientOrderID,
		Symbol:           params.Symbol,
		Side:             params.Side,
		Type:             params.Type,
		Price:            params.Price,
		Quantity:         params.Quantity,
		CumulativeFilled: fixedpoint.Zero,
		Status:           types.OrderStatusOpen,
		ReduceOnly:       params.ReduceOnly,
		PostOnly:         params.PostOnly,
		CreatedAt:        time.Now(),
	}

	a.mu.Lock()
	a.openOrders[order.ExchangeOrderID] = order
	a.mu.Unlock()

	return &order, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, symbol types.Symbol, exchangeOrderID, clientOrderID string) (bool, error) {
	a.mu.Lock()
	hook := a.CancelOrderHook
	a.mu.Unlock()
	if hook != nil {
		return hook(symbol, exchangeOrderID, clientOrderID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.openOrders[exchangeOrderID]; !ok {
		return true, nil // already gone
	}
	delete(a.openOrders, exchangeOrderID)
	return true, nil
}

func (a *Adapter) GetOpenOrders(ctx context.Context, symbol types.Symbol) ([]types.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Order, 0)
	for _, o := range a.openOrders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (a *Adapter) GetOrder(ctx context.Context, symbol types.Symbol, exchangeOrderID string) (*types.Order, error) {
	a.mu.Lock()
	hook := a.GetOrderHook
	a.mu.Unlock()
	if hook != nil {
		return hook(symbol, exchangeOrderID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.openOrders[exchangeOrderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (a *Adapter) GetMarket(ctx context.Context, symbol types.Symbol) (types.Market, error) {
	return a.market, nil
}

func (a *Adapter) NormalizeSymbol(venueSymbol string) types.Symbol { return types.Symbol(venueSymbol) }
func (a *Adapter) DenormalizeSymbol(symbol types.Symbol) string    { return string(symbol) }

func (a *Adapter) SetPushEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushEnabled = enabled
}

func (a *Adapter) SupportsPushStream() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pushEnabled
}

func (a *Adapter) StartStream(ctx context.Context, symbols []types.Symbol, onFill exchange.FillCallback, onOrderState exchange.OrderStateCallback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onFill = onFill
	a.onOrderState = onOrderState
	return nil
}

func (a *Adapter) StopStream(ctx context.Context) error { return nil }

// PushFill lets a test simulate a push-stream fill event.
func (a *Adapter) PushFill(fill types.FillEvent) {
	a.mu.Lock()
	cb := a.onFill
	a.mu.Unlock()
	if cb != nil {
		cb(fill)
	}
}

// FillOrder marks an open order (partially) filled in this mock's book,
// for tests that exercise GetOrder-based reconciliation.
func (a *Adapter) FillOrder(exchangeOrderID string, filledQty fixedpoint.Value, fullyFilled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.openOrders[exchangeOrderID]
	if !ok {
		return
	}
	o.CumulativeFilled = o.CumulativeFilled.Add(filledQty)
	if fullyFilled {
		o.Status = types.OrderStatusFilled
		delete(a.openOrders, exchangeOrderID)
	} else {
		o.Status = types.OrderStatusPartiallyFilled
		a.openOrders[exchangeOrderID] = o
	}
}
