package monitor

import (
	"context"
	"time"

	"github.com/quantcore/permaker/pkg/fixedpoint"
	"github.com/quantcore/permaker/pkg/metrics"
	"github.com/quantcore/permaker/pkg/types"
)

// detectLoop runs at half the poll cadence (spec.md §4.6), joining the
// latest snapshot per (venue, symbol) across every venue pair and
// publishing any candidate that clears MinProfitPct.
func (m *Monitor) detectLoop(ctx context.Context) {
	interval := m.cfg.detectorInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.detectOnce()
		}
	}
}

func (m *Monitor) detectOnce() {
	for _, symbol := range m.symbols {
		venues := m.store.venuesFor(symbol)
		for _, buyVenue := range venues {
			for _, sellVenue := range venues {
				if buyVenue == sellVenue {
					continue
				}
				opp, ok := m.evaluatePair(buyVenue, sellVenue, symbol)
				if !ok {
					continue
				}
				metrics.ArbitrageCandidatesTotal.WithLabelValues(buyVenue, sellVenue, symbol.String()).Inc()
				m.publish(opp)
			}
		}
	}
}

// evaluatePair implements spec.md §4.6's candidate formula: buying at
// buyVenue's best ask and selling at sellVenue's best bid.
func (m *Monitor) evaluatePair(buyVenue, sellVenue string, symbol types.Symbol) (types.ArbitrageOpportunity, bool) {
	buySnap, ok := m.store.get(buyVenue, symbol)
	if !ok {
		return types.ArbitrageOpportunity{}, false
	}
	sellSnap, ok := m.store.get(sellVenue, symbol)
	if !ok {
		return types.ArbitrageOpportunity{}, false
	}

	buyAsk, ok := buySnap.book.BestAsk()
	if !ok {
		return types.ArbitrageOpportunity{}, false
	}
	sellBid, ok := sellSnap.book.BestBid()
	if !ok {
		return types.ArbitrageOpportunity{}, false
	}

	if sellBid.Price.Compare(buyAsk.Price) <= 0 {
		return types.ArbitrageOpportunity{}, false
	}

	profit := sellBid.Price.Sub(buyAsk.Price)
	profitPct := profit.Div(buyAsk.Price).Mul(fixedpoint.NewFromInt(100))
	if profitPct.Compare(m.cfg.MinProfitPct) < 0 {
		return types.ArbitrageOpportunity{}, false
	}

	qty := buyAsk.Volume
	if sellBid.Volume.Compare(qty) < 0 {
		qty = sellBid.Volume
	}

	return types.ArbitrageOpportunity{
		BuyVenue:         buyVenue,
		SellVenue:        sellVenue,
		Symbol:           symbol,
		BuyPrice:         buyAsk.Price,
		SellPrice:        sellBid.Price,
		ProfitUSD:        profit.Mul(qty),
		ProfitPct:        profitPct,
		MaxExecutableQty: qty,
		Timestamp:        time.Now(),
	}, true
}
