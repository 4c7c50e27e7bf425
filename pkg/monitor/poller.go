package monitor

import (
	"context"
	"time"

	"github.com/quantcore/permaker/pkg/exchange"
)

// pollLoop is one adapter's polling task (spec.md §4.6, §5 "one background
// task per exchange adapter's orderbook poller"). A single failed fetch is
// logged and skipped; the loop itself never exits on a transient error.
func (m *Monitor) pollLoop(ctx context.Context, venueID string, adapter exchange.Adapter) {
	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()

	m.pollOnce(ctx, venueID, adapter)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx, venueID, adapter)
		}
	}
}

func (m *Monitor) pollOnce(ctx context.Context, venueID string, adapter exchange.Adapter) {
	for _, symbol := range m.symbols {
		book, err := adapter.GetOrderbook(ctx, symbol, m.cfg.OrderbookDepth)
		if err != nil {
			m.log.WithError(err).WithField("venue", venueID).WithField("symbol", symbol).Debug("monitor: orderbook fetch failed")
			continue
		}
		if ok, err := book.IsValid(); !ok {
			m.log.WithError(err).WithField("venue", venueID).WithField("symbol", symbol).Debug("monitor: discarding invalid orderbook")
			continue
		}
		m.store.put(venueID, symbol, book, time.Now())
	}
}
