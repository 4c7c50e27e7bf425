package executor

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
	"github.com/quantcore/permaker/pkg/hedge"
	"github.com/quantcore/permaker/pkg/notify"
	"github.com/quantcore/permaker/pkg/types"
)

const testSymbol types.Symbol = "BTC-USDT"

func testMarket() types.Market {
	return types.Market{
		Symbol:      testSymbol,
		BaseCurrency:  "BTC",
		QuoteCurrency: "USDT",
		TickSize:    fixedpoint.MustNewFromString("0.01"),
		StepSize:    fixedpoint.MustNewFromString("0.001"),
		MinQuantity: fixedpoint.MustNewFromString("0.001"),
	}
}

func testBook(bid, ask fixedpoint.Value) *types.Orderbook {
	return &types.Orderbook{
		Symbol: testSymbol,
		Bids:   types.PriceVolumeSlice{{Price: bid, Volume: fixedpoint.NewFromFloat(10)}},
		Asks:   types.PriceVolumeSlice{{Price: ask, Volume: fixedpoint.NewFromFloat(10)}},
	}
}

func newTestExecutor(t *testing.T, cfg Config) (*Executor, *mockadapter.Adapter) {
	t.Helper()
	adapter := mockadapter.New("primary", testMarket())
	log := logrus.NewEntry(logrus.New())
	ex := New(testSymbol, adapter, nil, cfg, log, notify.NopSink{})
	return ex, adapter
}

// S1 (quote geometry half): bid quotes below mid, ask above, both on-tick.
func TestTick_PlacesBothSidesOnTick(t *testing.T) {
	ex, adapter := newTestExecutor(t, Config{
		OrderDistanceBps: fixedpoint.NewFromInt(8),
		OrderSize:        fixedpoint.NewFromFloat(1),
		MaxPosition:      fixedpoint.NewFromFloat(10),
	})
	adapter.SetOrderbook(testBook(fixedpoint.NewFromFloat(100.00), fixedpoint.NewFromFloat(100.10)))

	require.NoError(t, ex.Start(context.Background()))
	require.NoError(t, ex.Tick(context.Background()))

	bid, ok := ex.MMState().IntendedOrder(types.SideBuy)
	require.True(t, ok)
	ask, ok := ex.MMState().IntendedOrder(types.SideSell)
	require.True(t, ok)

	assert.True(t, bid.Price.Compare(fixedpoint.NewFromFloat(100.00)) < 0)
	assert.True(t, ask.Price.Compare(fixedpoint.NewFromFloat(100.10)) > 0)

	// on-tick: price must be an exact multiple of the tick size
	tick := testMarket().TickSize
	assert.True(t, bid.Price.RoundDown(tick).Compare(bid.Price) == 0)
	assert.True(t, ask.Price.RoundUp(tick).Compare(ask.Price) == 0)
}

// S2: hard-stop hysteresis — pause at threshold, refuse to resume before
// cooldown, then resume after resume_check_count consecutive low-position
// ticks.
func TestHardStopHysteresis(t *testing.T) {
	ex, adapter := newTestExecutor(t, Config{
		OrderDistanceBps:  fixedpoint.NewFromInt(8),
		OrderSize:         fixedpoint.NewFromFloat(0.1),
		MaxPosition:       fixedpoint.NewFromFloat(1),
		HardStopPosition:  fixedpoint.NewFromFloat(0.7),
		ResumePosition:    fixedpoint.NewFromFloat(0.45),
		CooldownSec:       30 * time.Second,
		ResumeCheckCount:  3,
	})
	adapter.SetOrderbook(testBook(fixedpoint.NewFromFloat(100.00), fixedpoint.NewFromFloat(100.10)))
	require.NoError(t, ex.Start(context.Background()))

	adapter.SetPosition(testSymbol, fixedpoint.NewFromFloat(0.72))
	require.NoError(t, ex.Tick(context.Background()))
	assert.Equal(t, StatePaused, ex.State())

	// simulate t+20s, still within cooldown
	ex.hardStopAt = time.Now().Add(-20 * time.Second)
	adapter.SetPosition(testSymbol, fixedpoint.NewFromFloat(0.50))
	require.NoError(t, ex.Tick(context.Background()))
	assert.Equal(t, StatePaused, ex.State(), "must stay paused during cooldown")

	// simulate t+35s, position now under resume_position for 3 consecutive ticks
	ex.hardStopAt = time.Now().Add(-35 * time.Second)
	adapter.SetPosition(testSymbol, fixedpoint.NewFromFloat(0.40))
	for i := 0; i < 3; i++ {
		require.NoError(t, ex.Tick(context.Background()))
	}
	assert.Equal(t, StateRunning, ex.State())
}

// S3: volatility gate with hysteresis — never resumes before stable_secs of
// continuous low volatility (P5).
func TestVolatilityHysteresis(t *testing.T) {
	ex, adapter := newTestExecutor(t, Config{
		OrderDistanceBps:   fixedpoint.NewFromInt(8),
		OrderSize:          fixedpoint.NewFromFloat(1),
		MaxPosition:        fixedpoint.NewFromFloat(10),
		PauseThresholdBps:  fixedpoint.NewFromInt(5),
		ResumeThresholdBps: fixedpoint.NewFromInt(4),
		StableSecs:         2 * time.Second,
	})
	adapter.SetOrderbook(testBook(fixedpoint.NewFromFloat(100.00), fixedpoint.NewFromFloat(100.10)))
	require.NoError(t, ex.Start(context.Background()))

	ex.checkVolatilityPause(fixedpoint.NewFromInt(6))
	assert.Equal(t, StatePaused, ex.State())

	// drop below resume threshold, but spike once before stable_secs elapses
	assert.True(t, ex.checkVolatilityPause(fixedpoint.NewFromInt(3)))
	assert.Equal(t, StatePaused, ex.State())
	assert.True(t, ex.checkVolatilityPause(fixedpoint.NewFromFloat(4.5)))
	assert.Equal(t, StatePaused, ex.State(), "a spike above resume_threshold must reset the hysteresis timer")

	ex.volStableSince = time.Now().Add(-3 * time.Second)
	ex.volStableSinceValid = true
	ex.checkVolatilityPause(fixedpoint.NewFromInt(4))
	assert.Equal(t, StateRunning, ex.State())
}

// S4: REST-gate orphan cancellation — an older unmatched remote order is
// cancelled, local state for the matching order is preserved.
func TestReconcile_CancelsOrphanKeepsLocal(t *testing.T) {
	ex, adapter := newTestExecutor(t, Config{OrderSize: fixedpoint.NewFromFloat(1)})

	// the orphan is older; the REST gate keeps the newest same-side order
	// (spec.md §4.5.3) and cancels the rest.
	_, err := adapter.PlaceOrder(context.Background(), exchange.PlaceOrderParams{
		Symbol: testSymbol, Side: types.SideBuy, Type: types.OrderTypeLimit,
		Price: fixedpoint.NewFromFloat(99.8), Quantity: fixedpoint.NewFromFloat(1),
	})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	local, err := adapter.PlaceOrder(context.Background(), exchange.PlaceOrderParams{
		Symbol: testSymbol, Side: types.SideBuy, Type: types.OrderTypeLimit,
		Price: fixedpoint.NewFromFloat(99.9), Quantity: fixedpoint.NewFromFloat(1),
	})
	require.NoError(t, err)
	ex.MMState().SetIntendedOrder(types.SideBuy, &types.IntendedOrder{
		ClientOrderID: local.ClientOrderID, ExchangeOrderID: local.ExchangeOrderID,
		Side: types.SideBuy, Price: local.Price, OriginalQuantity: local.Quantity,
	})

	require.NoError(t, ex.reconcile(context.Background()))

	open, err := adapter.GetOpenOrders(context.Background(), testSymbol)
	require.NoError(t, err)
	assert.Len(t, open, 1)
	assert.Equal(t, local.ExchangeOrderID, open[0].ExchangeOrderID)

	bid, ok := ex.MMState().IntendedOrder(types.SideBuy)
	require.True(t, ok)
	assert.Equal(t, local.ExchangeOrderID, bid.ExchangeOrderID)
}

// P2: cumulative_filled + remaining == original_qty survives a partial
// reconciliation pass.
func TestReconcile_PreservesFillAccounting(t *testing.T) {
	ex, adapter := newTestExecutor(t, Config{OrderSize: fixedpoint.NewFromFloat(1)})

	order, err := adapter.PlaceOrder(context.Background(), exchange.PlaceOrderParams{
		Symbol: testSymbol, Side: types.SideBuy, Type: types.OrderTypeLimit,
		Price: fixedpoint.NewFromFloat(99.9), Quantity: fixedpoint.NewFromFloat(1),
	})
	require.NoError(t, err)
	ex.MMState().SetIntendedOrder(types.SideBuy, &types.IntendedOrder{
		ClientOrderID: order.ClientOrderID, ExchangeOrderID: order.ExchangeOrderID,
		Side: types.SideBuy, Price: order.Price, OriginalQuantity: order.Quantity,
	})

	adapter.FillOrder(order.ExchangeOrderID, fixedpoint.NewFromFloat(0.4), false)
	require.NoError(t, ex.reconcile(context.Background()))

	bid, ok := ex.MMState().IntendedOrder(types.SideBuy)
	require.True(t, ok)
	sum := bid.CumulativeFilled.Add(bid.Remaining())
	assert.Equal(t, 0, sum.Compare(bid.OriginalQuantity))
}

// End-to-end fill → hedge handoff (S1's hedging half).
func TestHandleFill_InvokesHedgeAndReturnsToRunning(t *testing.T) {
	primary := mockadapter.New("primary", testMarket())
	hedgeAdapter := mockadapter.New("hedge", testMarket())
	hedgeAdapter.GetOrderHook = func(symbol types.Symbol, exchangeOrderID string) (*types.Order, error) {
		return &types.Order{ExchangeOrderID: exchangeOrderID, Status: types.OrderStatusFilled, Price: fixedpoint.NewFromFloat(100), CumulativeFilled: fixedpoint.NewFromFloat(1)}, nil
	}

	mapper := hedge.NewSymbolMapper(nil, "-PERP", nil)
	log := logrus.NewEntry(logrus.New())
	hedgeEngine := hedge.NewEngine(hedgeAdapter, primary, mapper, hedge.Config{TotalTimeout: time.Second, PollInterval: 10 * time.Millisecond}, log, notify.NopSink{})

	ex := New(testSymbol, primary, hedgeEngine, Config{OrderSize: fixedpoint.NewFromFloat(1), MaxPosition: fixedpoint.NewFromFloat(10)}, log, notify.NopSink{})
	require.NoError(t, ex.Start(context.Background()))

	ex.handleFill(context.Background(), types.FillEvent{
		OrderID: "o1", Side: types.SideBuy, FillQty: fixedpoint.NewFromFloat(1),
		FillPrice: fixedpoint.NewFromFloat(100), IsFullyFilled: true,
	})

	assert.Equal(t, StateRunning, ex.State())
	counters := ex.MMState().FillCounters()
	assert.Equal(t, 1, counters.Total)
}

// Hedge risk control pauses on its own reason, and resumes only once the
// hedge venue's own recovery probe succeeds, not via the position-hysteresis
// hard-stop check (spec.md §4.4 step 5 / S6).
func TestHandleFill_HedgeRiskControlPause_ResumesOnHedgeRecoveryOnly(t *testing.T) {
	primary := mockadapter.New("primary", testMarket())
	hedgeAdapter := mockadapter.New("hedge", testMarket())
	hedgeAdapter.PlaceOrderHook = func(p exchange.PlaceOrderParams) (*types.Order, error) {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "place_order", nil)
	}

	mapper := hedge.NewSymbolMapper(nil, "-USDT", nil)
	log := logrus.NewEntry(logrus.New())
	hedgeEngine := hedge.NewEngine(hedgeAdapter, primary, mapper, hedge.Config{
		MaxRetries:          1,
		RetryDelay:          time.Millisecond,
		TotalTimeout:        20 * time.Millisecond,
		HardUnhedgedLimit:   fixedpoint.NewFromFloat(100),
		RecoveryMinInterval: 0,
		RecoverySuccessReq:  1,
	}, log, notify.NopSink{})

	ex := New(testSymbol, primary, hedgeEngine, Config{OrderSize: fixedpoint.NewFromFloat(1), MaxPosition: fixedpoint.NewFromFloat(10)}, log, notify.NopSink{})
	require.NoError(t, ex.Start(context.Background()))

	ex.handleFill(context.Background(), types.FillEvent{
		OrderID: "o1", Side: types.SideBuy, FillQty: fixedpoint.NewFromFloat(1),
		FillPrice: fixedpoint.NewFromFloat(100), IsFullyFilled: true,
	})

	require.Equal(t, StatePaused, ex.State())
	ex.mu.Lock()
	reason := ex.pauseReason
	ex.mu.Unlock()
	assert.Equal(t, PauseReasonHedgeRisk, reason)

	// the primary position hard-stop check alone must not resume the executor
	ex.checkHardStop(context.Background())
	assert.Equal(t, StatePaused, ex.State(), "hard-stop recovery must not resume a hedge-risk pause")

	// fix the hedge venue, then the dedicated recovery check resumes
	hedgeAdapter.PlaceOrderHook = nil
	ex.checkRecovery(context.Background())
	assert.Equal(t, StateRunning, ex.State())
}
