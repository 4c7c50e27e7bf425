package arbitrage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/metrics"
	"github.com/quantcore/permaker/pkg/notify"
	"github.com/quantcore/permaker/pkg/types"
)

// Executor is the Arbitrage Executor (C7). It subscribes to a monitor's
// candidate channel, batches candidates per detector cycle, and executes
// the best qualifying one.
type Executor struct {
	adapters map[string]exchange.Adapter
	candidates <-chan types.ArbitrageOpportunity
	cfg        Config
	log        *logrus.Entry
	notify     notify.Sink

	mu    sync.Mutex
	batch []types.ArbitrageOpportunity
}

// New builds an Executor over adapters keyed by venue id (the same keying
// the monitor uses), consuming its candidate stream.
func New(adapters map[string]exchange.Adapter, candidates <-chan types.ArbitrageOpportunity, cfg Config, log *logrus.Entry, sink notify.Sink) *Executor {
	cfg.setDefaults()
	return &Executor{
		adapters:   adapters,
		candidates: candidates,
		cfg:        cfg,
		log:        log,
		notify:     sink,
	}
}

// Run drains the candidate channel into the current cycle's batch and,
// every CycleInterval, selects and executes the best qualifying candidate.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case opp, ok := <-e.candidates:
			if !ok {
				return nil
			}
			e.mu.Lock()
			e.batch = append(e.batch, opp)
			e.mu.Unlock()
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Executor) runCycle(ctx context.Context) {
	e.mu.Lock()
	batch := e.batch
	e.batch = nil
	e.mu.Unlock()

	best, ok := selectBest(batch, e.cfg)
	if !ok {
		return
	}

	if e.cfg.DryRun {
		metrics.ArbitrageExecutionsTotal.WithLabelValues(best.BuyVenue, best.SellVenue, best.Symbol.String(), "dry_run").Inc()
		e.notify.Notify("arbitrage: dry-run candidate %s/%s %s profit_usd=%s qty=%s",
			best.BuyVenue, best.SellVenue, best.Symbol, best.ProfitUSD, best.MaxExecutableQty)
		return
	}

	e.execute(ctx, best)
}

// selectBest implements spec.md §4.7: the highest-profit candidate in the
// batch satisfying both the minimum USD profit and minimum quantity gates.
func selectBest(batch []types.ArbitrageOpportunity, cfg Config) (types.ArbitrageOpportunity, bool) {
	var best types.ArbitrageOpportunity
	found := false
	for _, opp := range batch {
		if opp.ProfitUSD.Compare(cfg.MinProfitUSD) < 0 {
			continue
		}
		if opp.MaxExecutableQty.Compare(cfg.MinQty) < 0 {
			continue
		}
		if !found || opp.ProfitUSD.Compare(best.ProfitUSD) > 0 {
			best = opp
			found = true
		}
	}
	return best, found
}

// execute submits the buy and sell market orders concurrently under a
// single bounded deadline (spec.md §4.7/§5).
func (e *Executor) execute(ctx context.Context, opp types.ArbitrageOpportunity) {
	buyAdapter, okBuy := e.adapters[opp.BuyVenue]
	sellAdapter, okSell := e.adapters[opp.SellVenue]
	if !okBuy || !okSell {
		e.log.WithField("buy_venue", opp.BuyVenue).WithField("sell_venue", opp.SellVenue).Warn("arbitrage: unknown venue in candidate")
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(execCtx)
	g.Go(func() error {
		_, err := buyAdapter.PlaceOrder(gctx, exchange.PlaceOrderParams{
			Symbol:   opp.Symbol,
			Side:     types.SideBuy,
			Type:     types.OrderTypeMarket,
			Quantity: opp.MaxExecutableQty,
		})
		return err
	})
	g.Go(func() error {
		_, err := sellAdapter.PlaceOrder(gctx, exchange.PlaceOrderParams{
			Symbol:   opp.Symbol,
			Side:     types.SideSell,
			Type:     types.OrderTypeMarket,
			Quantity: opp.MaxExecutableQty,
		})
		return err
	})

	outcome := "filled"
	if err := g.Wait(); err != nil {
		outcome = "partial_failure"
		e.log.WithError(err).WithField("buy_venue", opp.BuyVenue).WithField("sell_venue", opp.SellVenue).Error("arbitrage: execution leg failed")
		e.notify.Notify("arbitrage: execution failed for %s/%s %s: %v", opp.BuyVenue, opp.SellVenue, opp.Symbol, err)
	} else {
		metrics.ArbitrageProfitUSD.WithLabelValues(opp.BuyVenue, opp.SellVenue, opp.Symbol.String()).Add(opp.ProfitUSD.Float64())
		e.notify.Notify("arbitrage: executed %s/%s %s qty=%s profit_usd=%s", opp.BuyVenue, opp.SellVenue, opp.Symbol, opp.MaxExecutableQty, opp.ProfitUSD)
	}
	metrics.ArbitrageExecutionsTotal.WithLabelValues(opp.BuyVenue, opp.SellVenue, opp.Symbol.String(), outcome).Inc()
}
