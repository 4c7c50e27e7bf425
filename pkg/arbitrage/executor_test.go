package arbitrage

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

const testSymbol types.Symbol = "BTC-USDT"

func testOpp(buyVenue, sellVenue string, profitUSD, qty float64) types.ArbitrageOpportunity {
	return types.ArbitrageOpportunity{
		BuyVenue:         buyVenue,
		SellVenue:        sellVenue,
		Symbol:           testSymbol,
		BuyPrice:         fixedpoint.NewFromFloat(100),
		SellPrice:        fixedpoint.NewFromFloat(101),
		ProfitUSD:        fixedpoint.NewFromFloat(profitUSD),
		ProfitPct:        fixedpoint.NewFromFloat(1),
		MaxExecutableQty: fixedpoint.NewFromFloat(qty),
	}
}

func TestSelectBest_PicksHighestProfitAmongQualifying(t *testing.T) {
	cfg := Config{MinProfitUSD: fixedpoint.NewFromFloat(5), MinQty: fixedpoint.NewFromFloat(0.1)}
	batch := []types.ArbitrageOpportunity{
		testOpp("a", "b", 3, 1),   // below MinProfitUSD
		testOpp("a", "c", 10, 1),  // qualifies
		testOpp("b", "c", 20, 0.01), // below MinQty
		testOpp("c", "a", 15, 1), // qualifies, highest
	}

	best, ok := selectBest(batch, cfg)
	require.True(t, ok)
	assert.Equal(t, "c", best.BuyVenue)
	assert.Equal(t, "a", best.SellVenue)
}

func TestSelectBest_NoneQualify(t *testing.T) {
	cfg := Config{MinProfitUSD: fixedpoint.NewFromFloat(100), MinQty: fixedpoint.NewFromFloat(0.1)}
	batch := []types.ArbitrageOpportunity{testOpp("a", "b", 3, 1)}

	_, ok := selectBest(batch, cfg)
	assert.False(t, ok)
}

func TestRunCycle_DryRunSkipsExecution(t *testing.T) {
	buyAdapter := mockadapter.New("a", types.Market{Symbol: testSymbol})
	sellAdapter := mockadapter.New("b", types.Market{Symbol: testSymbol})
	placed := false
	buyAdapter.PlaceOrderHook = func(p exchange.PlaceOrderParams) (*types.Order, error) {
		placed = true
		return &types.Order{}, nil
	}

	adapters := map[string]exchange.Adapter{"a": buyAdapter, "b": sellAdapter}
	ch := make(chan types.ArbitrageOpportunity, 1)
	e := New(adapters, ch, Config{DryRun: true, MinProfitUSD: fixedpoint.Zero, MinQty: fixedpoint.Zero}, logrus.NewEntry(logrus.New()), notify.NopSink{})

	e.batch = []types.ArbitrageOpportunity{testOpp("a", "b", 10, 1)}
	e.runCycle(context.Background())

	assert.False(t, placed)
}

func TestExecute_PlacesBothLegs(t *testing.T) {
	buyAdapter := mockadapter.New("a", types.Market{Symbol: testSymbol})
	sellAdapter := mockadapter.New("b", types.Market{Symbol: testSymbol})

	adapters := map[string]exchange.Adapter{"a": buyAdapter, "b": sellAdapter}
	e := New(adapters, nil, Config{ExecutionTimeout: time.Second}, logrus.NewEntry(logrus.New()), notify.NopSink{})

	e.execute(context.Background(), testOpp("a", "b", 10, 1))

	buyOrders, err := buyAdapter.GetOpenOrders(context.Background(), testSymbol)
	require.NoError(t, err)
	assert.Len(t, buyOrders, 1)
	assert.Equal(t, types.SideBuy, buyOrders[0].Side)

	sellOrders, err := sellAdapter.GetOpenOrders(context.Background(), testSymbol)
	require.NoError(t, err)
	assert.Len(t, sellOrders, 1)
	assert.Equal(t, types.SideSell, sellOrders[0].Side)
}

func TestExecute_LegFailureRecordsPartialFailure(t *testing.T) {
	buyAdapter := mockadapter.New("a", types.Market{Symbol: testSymbol})
	sellAdapter := mockadapter.New("b", types.Market{Symbol: testSymbol})
	sellAdapter.PlaceOrderHook = func(p exchange.PlaceOrderParams) (*types.Order, error) {
		return nil, exchange.NewAdapterError(exchange.ErrNetwork, "place_order", nil)
	}

	adapters := map[string]exchange.Adapter{"a": buyAdapter, "b": sellAdapter}
	e := New(adapters, nil, Config{ExecutionTimeout: time.Second}, logrus.NewEntry(logrus.New()), notify.NopSink{})

	// Should not panic; failure is logged/notified, not propagated.
	e.execute(context.Background(), testOpp("a", "b", 10, 1))
}
