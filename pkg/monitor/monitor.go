package monitor

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/notify"
	"github.com/quantcore/permaker/pkg/types"
)

// Monitor is the Multi-Exchange Monitor (C6): one polling task per adapter
// feeding a shared snapshot store, joined by a single detector loop into
// arbitrage candidates.
type Monitor struct {
	adapters map[string]exchange.Adapter
	symbols  []types.Symbol
	cfg      Config
	log      *logrus.Entry
	notify   notify.Sink

	store *store

	subMu sync.Mutex
	subs  []chan types.ArbitrageOpportunity
}

// New builds a Monitor over adapters keyed by venue id, watching symbols.
func New(adapters map[string]exchange.Adapter, symbols []types.Symbol, cfg Config, log *logrus.Entry, sink notify.Sink) *Monitor {
	cfg.setDefaults()
	return &Monitor{
		adapters: adapters,
		symbols:  symbols,
		cfg:      cfg,
		log:      log,
		notify:   sink,
		store:    newStore(),
	}
}

// Subscribe returns a channel of arbitrage candidates. The channel is
// buffered; a slow subscriber drops the oldest pending candidate rather
// than blocking the detector loop.
func (m *Monitor) Subscribe() <-chan types.ArbitrageOpportunity {
	ch := make(chan types.ArbitrageOpportunity, 16)
	m.subMu.Lock()
	m.subs = append(m.subs, ch)
	m.subMu.Unlock()
	return ch
}

func (m *Monitor) publish(opp types.ArbitrageOpportunity) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- opp:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- opp:
			default:
			}
		}
	}
}

// Run starts the per-adapter pollers and the detector loop, and blocks
// until ctx is cancelled, then returns ctx.Err(). Per spec.md
// §5, poller failures are transient (logged, skipped) and never tear down
// the group — only ctx cancellation ends Run.
func (m *Monitor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for venueID, adapter := range m.adapters {
		venueID, adapter := venueID, adapter
		g.Go(func() error {
			m.pollLoop(gctx, venueID, adapter)
			return nil
		})
	}

	g.Go(func() error {
		m.detectLoop(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
