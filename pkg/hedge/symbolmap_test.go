package hedge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/permaker/pkg/types"
)

func TestSymbolMapper_ExplicitOverridesFallback(t *testing.T) {
	m := NewSymbolMapper(map[types.Symbol]types.Symbol{"BTC-USDT": "XBT-PERP"}, "-PERP", nil)

	got, ok := m.Resolve("BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, types.Symbol("XBT-PERP"), got)
}

func TestSymbolMapper_FallbackConstruction(t *testing.T) {
	m := NewSymbolMapper(nil, "-PERP", nil)

	got, ok := m.Resolve("ETH-USDT")
	require.True(t, ok)
	assert.Equal(t, types.Symbol("ETH-PERP"), got)
}

func TestSymbolMapper_FailedRefreshPreservesPriorValue(t *testing.T) {
	valid := true
	m := NewSymbolMapper(nil, "-PERP", func(types.Symbol) bool { return valid })

	now := time.Now()
	m.now = func() time.Time { return now }

	first, ok := m.Resolve("SOL-USDT")
	require.True(t, ok)
	assert.Equal(t, types.Symbol("SOL-PERP"), first)

	// expire the cache entry, then fail validation on refresh
	m.now = func() time.Time { return now.Add(m.cacheTTL + time.Second) }
	valid = false

	second, ok := m.Resolve("SOL-USDT")
	assert.True(t, ok, "a failed refresh preserves the prior valid flag")
	assert.Equal(t, first, second)
}

func TestSymbolMapper_CacheHitSkipsValidation(t *testing.T) {
	calls := 0
	m := NewSymbolMapper(nil, "-PERP", func(types.Symbol) bool { calls++; return true })

	m.Resolve("DOGE-USDT")
	m.Resolve("DOGE-USDT")

	assert.Equal(t, 1, calls, "a live cache entry must not re-invoke validateFn")
}
