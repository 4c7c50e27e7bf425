package system

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/exchange/mockadapter"
	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/types"
)

const testVenue = "mock_system_test"

func init() {
	exchange.Register(testVenue, func(config map[string]string) (exchange.Adapter, error) {
		market := types.Market{
			Symbol:      "BTC-USDT",
			BaseCurrency:  "BTC",
			QuoteCurrency: "USDT",
			TickSize:    fixedpoint.MustNewFromString("0.01"),
			StepSize:    fixedpoint.MustNewFromString("0.001"),
			MinQuantity: fixedpoint.MustNewFromString("0.001"),
		}
		return mockadapter.New(config["account_id"], market), nil
	})
}

func testLog() *logrus.Entry { return logrus.NewEntry(logrus.New()) }

func twoAccountConfig(hedgeEnabled bool) Config {
	hedgeID := "hedge-1"
	if !hedgeEnabled {
		hedgeID = ""
	}
	return Config{
		Accounts: []AccountConfig{
			{ID: "main-1", Venue: testVenue},
			{ID: "hedge-1", Venue: testVenue},
		},
		Strategies: []StrategyConfig{
			{
				ID:             "strat-1",
				Name:           "primary",
				Enabled:        true,
				MainAccountID:  "main-1",
				HedgeAccountID: hedgeID,
				Symbol:         "BTC-USDT",
				HedgeSymbol:    "BTC-USDT",
			},
		},
	}
}

func TestInitSystem_RequiredAdapterHealthy_ReadyForTrading(t *testing.T) {
	m := NewManager(twoAccountConfig(true), testLog())
	err := m.InitSystem(context.Background())
	require.NoError(t, err)

	status := m.Status()
	assert.True(t, status.ReadyForTrading)
	assert.True(t, status.HedgingAvailable)
	assert.Equal(t, 1, status.ActiveStrategies)
}

func TestInitSystem_RequiredAdapterUnhealthy_NotReadyForTrading(t *testing.T) {
	m := NewManager(twoAccountConfig(true), testLog())
	require.NoError(t, m.InitSystem(context.Background()))

	m.mu.Lock()
	mainAdapter := m.adapterCache["main-1"].(*mockadapter.Adapter)
	m.mu.Unlock()
	mainAdapter.SetHealthy(false)

	report := m.CheckAllHealth(context.Background())
	assert.False(t, report.ReadyForTrading)
	assert.False(t, m.Status().ReadyForTrading)
	assert.NotEmpty(t, m.Status().HealthError)
}

func TestInitSystem_HedgeAdapterUnhealthy_HedgingUnavailableButReady(t *testing.T) {
	m := NewManager(twoAccountConfig(true), testLog())
	require.NoError(t, m.InitSystem(context.Background()))

	m.mu.Lock()
	hedgeAdapter := m.adapterCache["hedge-1"].(*mockadapter.Adapter)
	m.mu.Unlock()
	hedgeAdapter.SetHealthy(false)

	report := m.CheckAllHealth(context.Background())
	assert.True(t, report.ReadyForTrading)
	assert.False(t, report.HedgingAvailable)
}

func TestInitSystem_NoHedgeAccount_HedgingUnavailableFromStart(t *testing.T) {
	m := NewManager(twoAccountConfig(false), testLog())
	require.NoError(t, m.InitSystem(context.Background()))

	status := m.Status()
	assert.True(t, status.ReadyForTrading)
	assert.False(t, status.HedgingAvailable)

	m.mu.Lock()
	rs := m.strategies["strat-1"]
	m.mu.Unlock()
	require.NotNil(t, rs)
	assert.Nil(t, rs.HedgeEngine)
}

func TestAdapterCache_SharedAccountReusesSingleConnection(t *testing.T) {
	cfg := Config{
		Accounts: []AccountConfig{
			{ID: "main-1", Venue: testVenue},
		},
		Strategies: []StrategyConfig{
			{ID: "s1", Enabled: true, MainAccountID: "main-1", Symbol: "BTC-USDT"},
			{ID: "s2", Enabled: true, MainAccountID: "main-1", Symbol: "ETH-USDT"},
		},
	}
	m := NewManager(cfg, testLog())
	require.NoError(t, m.InitSystem(context.Background()))

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.adapterCache, 1)
	assert.Same(t, m.strategies["s1"].MainAdapter, m.strategies["s2"].MainAdapter)
}

func TestStartStopStrategy(t *testing.T) {
	m := NewManager(twoAccountConfig(true), testLog())
	require.NoError(t, m.InitSystem(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.StartStrategy(ctx, "strat-1"))
	m.mu.Lock()
	rs := m.strategies["strat-1"]
	m.mu.Unlock()
	require.NotNil(t, rs)

	require.NoError(t, m.StopStrategy("strat-1"))
}

func TestShutdown_ClearsStateAndDisconnects(t *testing.T) {
	m := NewManager(twoAccountConfig(true), testLog())
	require.NoError(t, m.InitSystem(context.Background()))

	m.Shutdown(context.Background())

	status := m.Status()
	assert.False(t, status.Running)
	assert.False(t, status.ReadyForTrading)
	assert.False(t, status.HedgingAvailable)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.adapterCache)
	assert.Empty(t, m.strategies)
}
