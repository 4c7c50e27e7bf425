package hedge

import (
	"strings"
	"sync"
	"time"

	"github.com/quantcore/permaker/pkg/types"
)

// SymbolMapper resolves a source symbol to its hedge-venue equivalent via
// an explicit map, falling back to a base-asset + quote-suffix
// construction rule, per spec.md §4.4. Validity is cached with a 5 minute
// TTL; a failed refresh preserves the prior cached value.
type SymbolMapper struct {
	explicit     map[types.Symbol]types.Symbol
	quoteSuffix  string
	validateFn   func(types.Symbol) bool
	cacheTTL     time.Duration

	mu    sync.Mutex
	cache map[types.Symbol]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	symbol    types.Symbol
	valid     bool
	expiresAt time.Time
}

const defaultCacheTTL = 5 * time.Minute

// NewSymbolMapper builds a mapper. validateFn reports whether a candidate
// hedge symbol is tradable on the hedge venue (typically a GetMarket probe).
func NewSymbolMapper(explicit map[types.Symbol]types.Symbol, quoteSuffix string, validateFn func(types.Symbol) bool) *SymbolMapper {
	return &SymbolMapper{
		explicit:    explicit,
		quoteSuffix: quoteSuffix,
		validateFn:  validateFn,
		cacheTTL:    defaultCacheTTL,
		cache:       make(map[types.Symbol]cacheEntry),
		now:         time.Now,
	}
}

func baseAsset(symbol types.Symbol) string {
	s := string(symbol)
	if idx := strings.IndexAny(s, "-_/"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// Resolve returns the hedge-venue symbol for sourceSymbol and whether it is
// currently known-valid.
func (m *SymbolMapper) Resolve(sourceSymbol types.Symbol) (types.Symbol, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if entry, ok := m.cache[sourceSymbol]; ok && now.Before(entry.expiresAt) {
		return entry.symbol, entry.valid
	}

	candidate, ok := m.explicit[sourceSymbol]
	if !ok {
		candidate = types.Symbol(baseAsset(sourceSymbol) + m.quoteSuffix)
	}

	valid := true
	if m.validateFn != nil {
		valid = m.validateFn(candidate)
	}

	if !valid {
		// failure to refresh preserves the prior cache entry (spec.md §4.4)
		if prior, had := m.cache[sourceSymbol]; had {
			return prior.symbol, prior.valid
		}
	}

	m.cache[sourceSymbol] = cacheEntry{symbol: candidate, valid: valid, expiresAt: now.Add(m.cacheTTL)}
	return candidate, valid
}
