package hedge

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/exchange/mockadapter"
	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/notify"
	"github.com/quantcore/permaker/pkg/types"
)

func testMarket(symbol types.Symbol) types.Market {
	return types.Market{
		Symbol:      symbol,
		TickSize:    fixedpoint.MustNewFromString("0.01"),
		StepSize:    fixedpoint.MustNewFromString("0.001"),
		MinQuantity: fixedpoint.MustNewFromString("0.001"),
	}
}

func newTestEngine(hedgeAdapter, primaryAdapter exchange.Adapter, cfg Config) *Engine {
	mapper := NewSymbolMapper(nil, "-PERP", nil)
	log := logrus.NewEntry(logrus.New())
	return NewEngine(hedgeAdapter, primaryAdapter, mapper, cfg, log, notify.NopSink{})
}

func TestExecuteHedge_ImmediateFill(t *testing.T) {
	hedgeAdapter := mockadapter.New("hedge", testMarket("BTC-PERP"))
	primaryAdapter := mockadapter.New("primary", testMarket("BTC-PERP"))

	hedgeAdapter.GetOrderHook = func(symbol types.Symbol, exchangeOrderID string) (*types.Order, error) {
		return &types.Order{ExchangeOrderID: exchangeOrderID, Status: types.OrderStatusFilled, Price: fixedpoint.NewFromFloat(100), CumulativeFilled: fixedpoint.NewFromFloat(1)}, nil
	}

	e := newTestEngine(hedgeAdapter, primaryAdapter, Config{TotalTimeout: time.Second, PollInterval: 10 * time.Millisecond})

	result := e.ExecuteHedge(context.Background(), "fill-1", types.SideBuy, fixedpoint.NewFromFloat(1), fixedpoint.NewFromFloat(100), "BTC-USDT")

	require.True(t, result.Success)
	assert.Equal(t, types.HedgeStatusFilled, result.Status)
	assert.Equal(t, 1, result.Attempts)
}

func TestExecuteHedge_BelowMinimum(t *testing.T) {
	hedgeAdapter := mockadapter.New("hedge", testMarket("BTC-PERP"))
	primaryAdapter := mockadapter.New("primary", testMarket("BTC-PERP"))

	e := newTestEngine(hedgeAdapter, primaryAdapter, Config{TotalTimeout: time.Second})

	result := e.ExecuteHedge(context.Background(), "fill-1", types.SideBuy, fixedpoint.NewFromFloat(0.0001), fixedpoint.NewFromFloat(100), "BTC-USDT")

	assert.False(t, result.Success)
	assert.Equal(t, types.HedgeStatusBelowMinimum, result.Status)
}

func TestExecuteHedge_OptimisticFillOnVanishedOrder(t *testing.T) {
	hedgeAdapter := mockadapter.New("hedge", testMarket("BTC-PERP"))
	primaryAdapter := mockadapter.New("primary", testMarket("BTC-PERP"))

	e := newTestEngine(hedgeAdapter, primaryAdapter, Config{TotalTimeout: time.Second, PollInterval: 10 * time.Millisecond})

	// place then immediately fully-fill+remove the order from the mock's
	// open orders, so subsequent GetOrder/GetOpenOrders both report absence.
	hedgeAdapter.PlaceOrderHook = func(p exchange.PlaceOrderParams) (*types.Order, error) {
		hedgeAdapter.PlaceOrderHook = nil
		order, _ := hedgeAdapter.PlaceOrder(context.Background(), exchange.PlaceOrderParams{Symbol: p.Symbol, Side: p.Side, Type: p.Type, Quantity: p.Quantity})
		hedgeAdapter.FillOrder(order.ExchangeOrderID, p.Quantity, true)
		return order, nil
	}

	result := e.ExecuteHedge(context.Background(), "fill-1", types.SideBuy, fixedpoint.NewFromFloat(1), fixedpoint.NewFromFloat(100), "BTC-USDT")

	require.True(t, result.Success)
	assert.Equal(t, types.HedgeStatusFilled, result.Status)
}

func TestExecuteHedge_RiskControlWaitsWithinSoftLimit(t *testing.T) {
	hedgeAdapter := mockadapter.New("hedge", testMarket("BTC-PERP"))
	primaryAdapter := mockadapter.New("primary", testMarket("BTC-PERP"))

	hedgeAdapter.PlaceOrderHook = func(p exchange.PlaceOrderParams) (*types.Order, error) {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "place_order", nil)
	}
	primaryAdapter.SetPosition("BTC-USDT", fixedpoint.NewFromFloat(0.2))

	e := newTestEngine(hedgeAdapter, primaryAdapter, Config{
		MaxRetries:        2,
		RetryDelay:        time.Millisecond,
		TotalTimeout:      50 * time.Millisecond,
		HardUnhedgedLimit: fixedpoint.NewFromFloat(1.0),
	})

	result := e.ExecuteHedge(context.Background(), "fill-1", types.SideBuy, fixedpoint.NewFromFloat(1), fixedpoint.NewFromFloat(100), "BTC-USDT")

	assert.False(t, result.Success)
	assert.Equal(t, types.HedgeStatusWaitingRecovery, result.Status)
	assert.Equal(t, 2, result.Attempts)
}

func TestExecuteHedge_RiskControlPartialFallback(t *testing.T) {
	hedgeAdapter := mockadapter.New("hedge", testMarket("BTC-PERP"))
	primaryAdapter := mockadapter.New("primary", testMarket("BTC-PERP"))

	hedgeAdapter.PlaceOrderHook = func(p exchange.PlaceOrderParams) (*types.Order, error) {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "place_order", nil)
	}
	primaryAdapter.SetPosition("BTC-USDT", fixedpoint.NewFromFloat(2.0))

	e := newTestEngine(hedgeAdapter, primaryAdapter, Config{
		MaxRetries:        1,
		RetryDelay:        time.Millisecond,
		TotalTimeout:      50 * time.Millisecond,
		HardUnhedgedLimit: fixedpoint.NewFromFloat(1.0),
		SoftLimitFactor:   fixedpoint.NewFromFloat(0.5),
	})

	result := e.ExecuteHedge(context.Background(), "fill-1", types.SideBuy, fixedpoint.NewFromFloat(1), fixedpoint.NewFromFloat(100), "BTC-USDT")

	assert.False(t, result.Success)
	assert.Equal(t, types.HedgeStatusPartialFallback, result.Status)
	// reduce toward soft limit: 2.0 - (1.0*0.5) = 1.5
	assert.Equal(t, 0, result.NormalizedQty.Compare(fixedpoint.NewFromFloat(1.5)))
}

func TestCheckRecovery_RequiresConsecutiveSuccesses(t *testing.T) {
	hedgeAdapter := mockadapter.New("hedge", testMarket("BTC-PERP"))
	primaryAdapter := mockadapter.New("primary", testMarket("BTC-PERP"))

	e := newTestEngine(hedgeAdapter, primaryAdapter, Config{RecoveryMinInterval: 0, RecoverySuccessReq: 3})

	for i := 0; i < 2; i++ {
		e.lastRecoveryCheck = time.Time{} // bypass the interval gate between back-to-back probes
		ok := e.CheckRecovery(context.Background(), "BTC-PERP")
		assert.False(t, ok)
	}
	e.lastRecoveryCheck = time.Time{}
	ok := e.CheckRecovery(context.Background(), "BTC-PERP")
	assert.True(t, ok)
}

// flakyAdapter fails GetMarket exactly once, to exercise the recovery
// counter reset path.
type flakyAdapter struct {
	*mockadapter.Adapter
	failNext bool
}

func (f *flakyAdapter) GetMarket(ctx context.Context, symbol types.Symbol) (types.Market, error) {
	if f.failNext {
		f.failNext = false
		return types.Market{}, exchange.NewAdapterError(exchange.ErrNetwork, "get_market", nil)
	}
	return f.Adapter.GetMarket(ctx, symbol)
}

func TestCheckRecovery_FailureResetsCounter(t *testing.T) {
	hedgeAdapter := &flakyAdapter{Adapter: mockadapter.New("hedge", testMarket("BTC-PERP"))}
	primaryAdapter := mockadapter.New("primary", testMarket("BTC-PERP"))

	e := newTestEngine(hedgeAdapter, primaryAdapter, Config{RecoveryMinInterval: 0, RecoverySuccessReq: 2})

	assert.False(t, e.CheckRecovery(context.Background(), "BTC-PERP"))
	e.lastRecoveryCheck = time.Time{}
	assert.True(t, e.CheckRecovery(context.Background(), "BTC-PERP"), "second consecutive success hits the threshold")

	hedgeAdapter.failNext = true
	e.lastRecoveryCheck = time.Time{}
	assert.False(t, e.CheckRecovery(context.Background(), "BTC-PERP"), "a failed probe must reset the consecutive counter")
	e.lastRecoveryCheck = time.Time{}
	assert.False(t, e.CheckRecovery(context.Background(), "BTC-PERP"), "counter restarts from zero after a reset")
	e.lastRecoveryCheck = time.Time{}
	assert.True(t, e.CheckRecovery(context.Background(), "BTC-PERP"), "second consecutive success after the reset hits the threshold again")
}
