package monitor

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
	"github.com/quantcore/permaker/pkg/types"
)

type testSink struct{}

func (testSink) Notify(format string, args ...any) {}

func testLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

func TestPollOnce_StoresValidBook(t *testing.T) {
	adapter := mockadapter.New("venueA", types.Market{Symbol: testSymbol})
	adapter.SetOrderbook(book(99.9, 2, 100.0, 2))

	m := New(map[string]exchange.Adapter{"venueA": adapter}, []types.Symbol{testSymbol}, Config{}, testLogger(), testSink{})
	m.pollOnce(context.Background(), "venueA", adapter)

	snap, ok := m.store.get("venueA", testSymbol)
	require.True(t, ok)
	bid, _ := snap.book.BestBid()
	assert.Equal(t, 0, bid.Price.Compare(fixedpoint.NewFromFloat(99.9)))
}

func TestPollOnce_SkipsCrossedBook(t *testing.T) {
	adapter := mockadapter.New("venueA", types.Market{Symbol: testSymbol})
	adapter.SetOrderbook(book(101, 1, 100, 1)) // crossed: bid > ask

	m := New(map[string]exchange.Adapter{"venueA": adapter}, []types.Symbol{testSymbol}, Config{}, testLogger(), testSink{})
	m.pollOnce(context.Background(), "venueA", adapter)

	_, ok := m.store.get("venueA", testSymbol)
	assert.False(t, ok)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	adapter := mockadapter.New("venueA", types.Market{Symbol: testSymbol})
	adapter.SetOrderbook(book(99.9, 2, 100.0, 2))

	m := New(map[string]exchange.Adapter{"venueA": adapter}, []types.Symbol{testSymbol}, Config{UpdateInterval: 5 * time.Millisecond}, testLogger(), testSink{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
