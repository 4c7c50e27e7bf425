package monitor

import (
	"sync"
	"time"

	"github.com/quantcore/permaker/pkg/types"
)

// venueSymbol is the snapshot store's join key.
type venueSymbol struct {
	venue  string
	symbol types.Symbol
}

// snapshot pairs an orderbook with its arrival time so staleness can be
// judged independently per (venue, symbol), per spec.md §5's "orderbook
// snapshots from different venues are independent" ordering guarantee.
type snapshot struct {
	book       *types.Orderbook
	receivedAt time.Time
}

// store is the monitor's read-mostly latest-snapshot cache.
type store struct {
	mu   sync.RWMutex
	data map[venueSymbol]snapshot
}

func newStore() *store {
	return &store{data: make(map[venueSymbol]snapshot)}
}

func (s *store) put(venue string, symbol types.Symbol, book *types.Orderbook, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[venueSymbol{venue: venue, symbol: symbol}] = snapshot{book: book, receivedAt: at}
}

func (s *store) get(venue string, symbol types.Symbol) (snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[venueSymbol{venue: venue, symbol: symbol}]
	return snap, ok
}

// venuesFor returns every distinct venue currently holding a snapshot for
// symbol.
func (s *store) venuesFor(symbol types.Symbol) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for key := range s.data {
		if key.symbol == symbol {
			out = append(out, key.venue)
		}
	}
	return out
}
