package mmstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/types"
)

func TestState_I1_SecondIntendedOrderRejected(t *testing.T) {
	s := New("BTC-USDT", time.Minute)

	first := &types.IntendedOrder{ClientOrderID: "a", Side: types.SideBuy}
	second := &types.IntendedOrder{ClientOrderID: "b", Side: types.SideBuy}

	require.True(t, s.SetIntendedOrder(types.SideBuy, first))
	assert.False(t, s.SetIntendedOrder(types.SideBuy, second), "I1: a second bid must be rejected until the first is cleared")

	s.ClearIntendedOrder(types.SideBuy)
	assert.True(t, s.SetIntendedOrder(types.SideBuy, second), "after clearing, placement succeeds again")
}

func TestState_MutateIntendedOrder_I3(t *testing.T) {
	s := New("BTC-USDT", time.Minute)
	order := &types.IntendedOrder{
		ClientOrderID:    "a",
		Side:             types.SideBuy,
		OriginalQuantity: fixedpoint.NewFromFloat(1.0),
		CumulativeFilled: fixedpoint.Zero,
	}
	require.True(t, s.SetIntendedOrder(types.SideBuy, order))

	ok := s.MutateIntendedOrder(types.SideBuy, func(o *types.IntendedOrder) {
		o.CumulativeFilled = o.CumulativeFilled.Add(fixedpoint.NewFromFloat(0.4))
	})
	require.True(t, ok)

	got, ok := s.IntendedOrder(types.SideBuy)
	require.True(t, ok)

	// P2 check: cumulative_filled + remaining == original_qty
	sum := got.CumulativeFilled.Add(got.Remaining())
	assert.Equal(t, 0, sum.Compare(got.OriginalQuantity))
}

func TestState_VolatilityBps(t *testing.T) {
	s := New("BTC-USDT", 2*time.Second)
	base := time.Now()

	s.AddMidSample(base, fixedpoint.NewFromFloat(100))
	s.AddMidSample(base.Add(500*time.Millisecond), fixedpoint.NewFromFloat(106))

	bps, ok := s.VolatilityBps()
	require.True(t, ok)
	// (106-100)/avg(103)*10000 ~= 582.5
	assert.InDelta(t, 582.5, bps.Float64(), 1.0)
}

func TestState_VolatilityWindowEvictsByAge(t *testing.T) {
	s := New("BTC-USDT", 1*time.Second)
	base := time.Now()

	s.AddMidSample(base, fixedpoint.NewFromFloat(100))
	s.AddMidSample(base.Add(2*time.Second), fixedpoint.NewFromFloat(200))

	// the first sample should have been evicted; only one sample remains
	_, ok := s.VolatilityBps()
	assert.False(t, ok, "fewer than two live samples after eviction")
}

func TestState_FillCounters(t *testing.T) {
	s := New("BTC-USDT", time.Minute)
	s.RecordFill("full")
	s.RecordFill("partial")
	s.RecordFill("unknown_fill_detected")

	c := s.FillCounters()
	assert.Equal(t, 2, c.Total)
	assert.Equal(t, 1, c.Partial)
	assert.Equal(t, 1, c.UnknownFillDetected)
}

func TestState_OperationHistoryBounded(t *testing.T) {
	s := New("BTC-USDT", time.Minute)
	for i := 0; i < operationHistoryLimit+10; i++ {
		s.RecordOperation(time.Now(), "place", "bid")
	}
	assert.Len(t, s.Operations(), operationHistoryLimit)
}

func TestClassifyBps(t *testing.T) {
	assert.Equal(t, Tier0To10, ClassifyBps(fixedpoint.NewFromFloat(5)))
	assert.Equal(t, Tier10To30, ClassifyBps(fixedpoint.NewFromFloat(15)))
	assert.Equal(t, Tier30To100, ClassifyBps(fixedpoint.NewFromFloat(50)))
	assert.Equal(t, TierOver100, ClassifyBps(fixedpoint.NewFromFloat(150)))
}
