package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/types"
)

const testSymbol types.Symbol = "BTC-USDT"

func book(bid, bidQty, ask, askQty float64) *types.Orderbook {
	return &types.Orderbook{
		Symbol: testSymbol,
		Bids: types.PriceVolumeSlice{{Price: fixedpoint.NewFromFloat(bid), Volume: fixedpoint.NewFromFloat(bidQty)}},
		Asks: types.PriceVolumeSlice{{Price: fixedpoint.NewFromFloat(ask), Volume: fixedpoint.NewFromFloat(askQty)}},
	}
}

func newTestMonitor(cfg Config) *Monitor {
	return New(nil, []types.Symbol{testSymbol}, cfg, testLogger(), testSink{})
}

func TestEvaluatePair_ProfitableClearsThreshold(t *testing.T) {
	m := newTestMonitor(Config{MinProfitPct: fixedpoint.NewFromFloat(0.1)})
	m.store.put("venueA", testSymbol, book(99.9, 2, 100.0, 2), time.Now())
	m.store.put("venueB", testSymbol, book(100.5, 1, 100.6, 1), time.Now())

	opp, ok := m.evaluatePair("venueA", "venueB", testSymbol)
	require.True(t, ok)
	assert.Equal(t, "venueA", opp.BuyVenue)
	assert.Equal(t, "venueB", opp.SellVenue)
	assert.Equal(t, 0, opp.MaxExecutableQty.Compare(fixedpoint.NewFromFloat(1)))
}

func TestEvaluatePair_BelowThresholdRejected(t *testing.T) {
	m := newTestMonitor(Config{MinProfitPct: fixedpoint.NewFromFloat(5)})
	m.store.put("venueA", testSymbol, book(99.9, 2, 100.0, 2), time.Now())
	m.store.put("venueB", testSymbol, book(100.05, 1, 100.1, 1), time.Now())

	_, ok := m.evaluatePair("venueA", "venueB", testSymbol)
	assert.False(t, ok)
}

func TestEvaluatePair_MissingSnapshotRejected(t *testing.T) {
	m := newTestMonitor(Config{MinProfitPct: fixedpoint.NewFromFloat(0.1)})
	m.store.put("venueA", testSymbol, book(99.9, 2, 100.0, 2), time.Now())

	_, ok := m.evaluatePair("venueA", "venueB", testSymbol)
	assert.False(t, ok)
}

func TestDetectOnce_PublishesToSubscribers(t *testing.T) {
	m := newTestMonitor(Config{MinProfitPct: fixedpoint.NewFromFloat(0.1)})
	m.store.put("venueA", testSymbol, book(99.9, 2, 100.0, 2), time.Now())
	m.store.put("venueB", testSymbol, book(100.5, 1, 100.6, 1), time.Now())

	ch := m.Subscribe()
	m.detectOnce()

	select {
	case opp := <-ch:
		assert.Equal(t, testSymbol, opp.Symbol)
	default:
		t.Fatal("expected a published candidate")
	}
}
