package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"

	"github.com/quantcore/permaker/pkg/arbitrage"
	"github.com/quantcore/permaker/pkg/exchange"
	"github.com/quantcore/permaker/pkg/executor"
	"github.com/quantcore/permaker/pkg/hedge"
	"github.com/quantcore/permaker/pkg/monitor"
	"github.com/quantcore/permaker/pkg/notify"
	"github.com/quantcore/permaker/pkg/types"
)

// RunningStrategy bundles one strategy's adapters and components, mirroring
// original_source/src/web/system_manager.py's RunningStrategy dataclass.
type RunningStrategy struct {
	Config       StrategyConfig
	MainAdapter  exchange.Adapter
	HedgeAdapter exchange.Adapter // nil when no hedge venue is attached
	Executor     *executor.Executor
	HedgeEngine  *hedge.Engine // nil when the hedge adapter is unavailable

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func (r *RunningStrategy) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Status mirrors original_source's system_status dict (spec.md §4.8):
// ready_for_trading is gated on required (primary) adapters only,
// hedging_available on optional (hedge) adapters.
type Status struct {
	Running          bool
	ReadyForTrading  bool
	HedgingAvailable bool
	HealthError      string
	ActiveStrategies int
	TotalStrategies  int
	StartedAt        time.Time
}

// Manager is the System Manager (C8). It owns every exchange.Adapter's
// lifetime (Design Notes §9: "System Manager owns adapters and executor"),
// caches adapters by account id so strategies sharing an account share one
// connection, and distinguishes required (primary) from optional (hedge)
// venues for health-check/ready_for_trading purposes.
type Manager struct {
	cfg Config
	log *logrus.Entry

	mu            sync.Mutex
	adapterCache  map[string]exchange.Adapter // account id -> adapter
	requiredRoles map[string]bool             // account id -> used as a primary venue
	strategies    map[string]*RunningStrategy
	status        Status

	monitor *monitor.Monitor
	arb     *arbitrage.Executor
}

func NewManager(cfg Config, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		cfg:           cfg,
		log:           log.WithField("component", "system"),
		adapterCache:  make(map[string]exchange.Adapter),
		requiredRoles: make(map[string]bool),
		strategies:    make(map[string]*RunningStrategy),
	}
}

// Status returns a snapshot of the manager's aggregate status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// getOrCreateAdapter builds (or reuses) the adapter for accountID, per
// original_source's SystemManager._get_or_create_adapter: a cache keyed by
// account id avoids opening a second connection for an account shared by
// two strategies.
func (m *Manager) getOrCreateAdapter(ctx context.Context, accountID string) (exchange.Adapter, error) {
	m.mu.Lock()
	if a, ok := m.adapterCache[accountID]; ok {
		m.mu.Unlock()
		return a, nil
	}
	m.mu.Unlock()

	account, ok := m.cfg.account(accountID)
	if !ok {
		return nil, fmt.Errorf("system: account %q not found", accountID)
	}

	params := map[string]string{
		"account_id": account.ID,
		"api_key":    account.APIKey,
		"api_secret": account.APISecret,
		"passphrase": account.Passphrase,
	}
	if account.Testnet {
		params["testnet"] = "true"
	}
	if account.HasProxy() {
		params["proxy_url"] = account.ProxyURL
		params["proxy_username"] = account.ProxyUsername
		params["proxy_password"] = account.ProxyPassword
	}

	adapter, err := exchange.Build(account.Venue, params)
	if err != nil {
		return nil, fmt.Errorf("system: build adapter for account %q: %w", accountID, err)
	}
	if err := adapter.Connect(ctx); err != nil {
		return nil, fmt.Errorf("system: connect account %q: %w", accountID, err)
	}

	m.mu.Lock()
	m.adapterCache[accountID] = adapter
	m.mu.Unlock()
	return adapter, nil
}

// InitSystem loads every enabled strategy, per original_source's
// SystemManager.init_system / _init_strategies.
func (m *Manager) InitSystem(ctx context.Context) error {
	successful := 0
	enabled := 0
	for _, sc := range m.cfg.Strategies {
		if !sc.Enabled {
			continue
		}
		enabled++
		rs, err := m.initStrategy(ctx, sc)
		if err != nil {
			m.log.WithError(err).WithField("strategy", sc.ID).Error("strategy init failed")
			continue
		}
		m.mu.Lock()
		m.strategies[sc.ID] = rs
		m.mu.Unlock()
		successful++
		m.log.WithField("strategy", sc.Name).Info("strategy initialized")
	}

	m.mu.Lock()
	m.status.TotalStrategies = enabled
	m.status.ActiveStrategies = successful
	m.status.Running = true
	m.status.StartedAt = time.Now()
	m.mu.Unlock()

	m.buildMonitor()
	m.performHealthChecks(ctx)

	if successful == 0 && enabled > 0 {
		return fmt.Errorf("system: no strategy initialized successfully (%d enabled)", enabled)
	}
	return nil
}

// initStrategy builds one strategy's adapters/components, matching
// original_source's SystemManager._init_strategy. A main-account failure
// aborts the strategy; a hedge-account failure degrades to no-hedge.
func (m *Manager) initStrategy(ctx context.Context, sc StrategyConfig) (*RunningStrategy, error) {
	mainAdapter, err := m.getOrCreateAdapter(ctx, sc.MainAccountID)
	if err != nil {
		return nil, fmt.Errorf("main account %q: %w", sc.MainAccountID, err)
	}
	m.mu.Lock()
	m.requiredRoles[sc.MainAccountID] = true
	m.mu.Unlock()

	rs := &RunningStrategy{Config: sc, MainAdapter: mainAdapter}

	var hedgeEngine *hedge.Engine
	if sc.HasHedge() {
		hedgeAdapter, herr := m.getOrCreateAdapter(ctx, sc.HedgeAccountID)
		if herr != nil {
			m.log.WithError(herr).WithField("strategy", sc.Name).Warn("hedge account unavailable, hedging disabled")
		} else {
			explicit := map[types.Symbol]types.Symbol{}
			if sc.HedgeSymbol != "" {
				explicit[sc.Symbol] = sc.HedgeSymbol
			}
			validate := func(sym types.Symbol) bool {
				_, err := hedgeAdapter.GetMarket(ctx, sym)
				return err == nil
			}
			mapper := hedge.NewSymbolMapper(explicit, "-USDT", validate)
			sink := notify.NewLogrusSink(m.log)
			hedgeEngine = hedge.NewEngine(hedgeAdapter, mainAdapter, mapper, sc.Hedge, m.log.WithField("strategy", sc.Name), sink)
			rs.HedgeAdapter = hedgeAdapter
		}
	}
	rs.HedgeEngine = hedgeEngine

	sink := notify.NewLogrusSink(m.log)
	rs.Executor = executor.New(sc.Symbol, mainAdapter, hedgeEngine, sc.Executor, m.log.WithField("strategy", sc.Name), sink)
	return rs, nil
}

// buildMonitor constructs the shared Multi-Exchange Monitor and Arbitrage
// Executor (C6/C7) over every cached adapter that is not hedge-only,
// matching original_source's `monitor_adapters = {k: v ... if k != 'STANDX_HEDGE'}`.
func (m *Manager) buildMonitor() {
	m.mu.Lock()
	adapters := make(map[string]exchange.Adapter, len(m.adapterCache))
	for id, a := range m.adapterCache {
		if m.requiredRoles[id] {
			adapters[id] = a
		}
	}
	var symbols []types.Symbol
	seen := map[types.Symbol]bool{}
	var monCfg monitor.Config
	var arbCfg arbitrage.Config
	for _, sc := range m.cfg.Strategies {
		if !sc.Enabled || seen[sc.Symbol] {
			continue
		}
		seen[sc.Symbol] = true
		symbols = append(symbols, sc.Symbol)
		monCfg = sc.Monitor
		arbCfg = sc.Arbitrage
	}
	m.mu.Unlock()

	if len(adapters) == 0 || len(symbols) == 0 {
		return
	}

	sink := notify.NewLogrusSink(m.log)
	mon := monitor.New(adapters, symbols, monCfg, m.log, sink)
	arb := arbitrage.New(adapters, mon.Subscribe(), arbCfg, m.log, sink)

	m.mu.Lock()
	m.monitor = mon
	m.arb = arb
	m.mu.Unlock()
}

// Monitor/Arbitrage expose the shared C6/C7 instances, nil until
// InitSystem has run and at least one account and symbol are configured.
func (m *Manager) Monitor() *monitor.Monitor     { m.mu.Lock(); defer m.mu.Unlock(); return m.monitor }
func (m *Manager) Arbitrage() *arbitrage.Executor { m.mu.Lock(); defer m.mu.Unlock(); return m.arb }

// StartStrategy runs the given strategy's executor loop in its own
// goroutine, per original_source's start_strategy.
func (m *Manager) StartStrategy(ctx context.Context, strategyID string) error {
	m.mu.Lock()
	rs, ok := m.strategies[strategyID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("system: strategy %q not found", strategyID)
	}

	rs.mu.Lock()
	if rs.running {
		rs.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.running = true
	rs.mu.Unlock()

	go func() {
		if err := rs.Executor.Run(runCtx); err != nil && runCtx.Err() == nil {
			m.log.WithError(err).WithField("strategy", strategyID).Error("strategy executor exited")
		}
		rs.mu.Lock()
		rs.running = false
		rs.mu.Unlock()
	}()
	return nil
}

// StopStrategy cancels the strategy's run loop, letting Executor.Run's
// shutdown path cancel outstanding orders on the primary venue.
func (m *Manager) StopStrategy(strategyID string) error {
	m.mu.Lock()
	rs, ok := m.strategies[strategyID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("system: strategy %q not found", strategyID)
	}
	rs.mu.Lock()
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.mu.Unlock()
	return nil
}

// HealthReport is the result of a full adapter health sweep, per
// original_source's check_all_health.
type HealthReport struct {
	AllHealthy       bool
	ReadyForTrading  bool
	HedgingAvailable bool
	Exchanges        map[string]exchange.HealthStatus
}

// performHealthChecks runs exchange.Adapter.HealthCheck against every
// cached adapter and updates m.status, matching
// original_source's SystemManager._perform_health_checks: required
// (primary) adapter failure means not ready_for_trading; optional (hedge)
// adapter failure only disables hedging_available.
func (m *Manager) performHealthChecks(ctx context.Context) HealthReport {
	m.mu.Lock()
	adapters := make(map[string]exchange.Adapter, len(m.adapterCache))
	for id, a := range m.adapterCache {
		adapters[id] = a
	}
	required := make(map[string]bool, len(m.requiredRoles))
	for id, v := range m.requiredRoles {
		required[id] = v
	}
	m.mu.Unlock()

	results := make(map[string]exchange.HealthStatus, len(adapters))
	var unhealthyRequired, unhealthyOptional []string
	for id, adapter := range adapters {
		health := adapter.HealthCheck(ctx)
		results[id] = health
		if health.Healthy {
			m.log.WithField("account", id).WithField("latency_ms", health.LatencyMs).Info("health check passed")
			continue
		}
		if required[id] {
			unhealthyRequired = append(unhealthyRequired, id)
			m.log.WithField("account", id).WithError(health.Err).Error("required adapter unhealthy")
		} else {
			unhealthyOptional = append(unhealthyOptional, id)
			m.log.WithField("account", id).WithError(health.Err).Warn("optional adapter unhealthy")
		}
	}

	m.mu.Lock()
	if len(unhealthyRequired) > 0 {
		m.status.ReadyForTrading = false
		m.status.HealthError = fmt.Sprintf("required accounts unavailable: %v", unhealthyRequired)
	} else {
		m.status.ReadyForTrading = true
		m.status.HealthError = ""
	}
	m.status.HedgingAvailable = len(unhealthyOptional) == 0 && hasOptionalAdapter(adapters, required)
	report := HealthReport{
		AllHealthy:       len(unhealthyRequired) == 0 && len(unhealthyOptional) == 0,
		ReadyForTrading:  m.status.ReadyForTrading,
		HedgingAvailable: m.status.HedgingAvailable,
		Exchanges:        results,
	}
	m.mu.Unlock()
	return report
}

func hasOptionalAdapter(adapters map[string]exchange.Adapter, required map[string]bool) bool {
	for id := range adapters {
		if !required[id] {
			return true
		}
	}
	return false
}

// CheckAllHealth is the public entrypoint for on-demand health probing
// (e.g. a dashboard adjunct), matching original_source's check_all_health.
func (m *Manager) CheckAllHealth(ctx context.Context) HealthReport {
	return m.performHealthChecks(ctx)
}

// ReconnectAll tears down and rebuilds every cached adapter, matching
// original_source's reconnect_all: new connections are established before
// old ones are torn down, minimizing the gap with no live adapter.
func (m *Manager) ReconnectAll(ctx context.Context) error {
	m.log.Info("reconnecting all accounts")

	m.mu.Lock()
	oldAdapters := make(map[string]exchange.Adapter, len(m.adapterCache))
	for id, a := range m.adapterCache {
		oldAdapters[id] = a
	}
	m.adapterCache = make(map[string]exchange.Adapter)
	m.mu.Unlock()

	var firstErr error
	for id := range oldAdapters {
		if _, err := m.getOrCreateAdapter(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for id, adapter := range oldAdapters {
		if err := adapter.Disconnect(ctx); err != nil {
			m.log.WithError(err).WithField("account", id).Warn("error disconnecting stale adapter")
		}
	}

	m.buildMonitor()
	m.performHealthChecks(ctx)
	return firstErr
}

// Shutdown stops every running strategy and disconnects every adapter,
// matching original_source's SystemManager.shutdown.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	strategies := make([]*RunningStrategy, 0, len(m.strategies))
	for _, rs := range m.strategies {
		strategies = append(strategies, rs)
	}
	adapters := make(map[string]exchange.Adapter, len(m.adapterCache))
	for id, a := range m.adapterCache {
		adapters[id] = a
	}
	m.mu.Unlock()

	for _, rs := range strategies {
		rs.mu.Lock()
		if rs.cancel != nil {
			rs.cancel()
		}
		rs.mu.Unlock()
	}

	for id, adapter := range adapters {
		if err := adapter.Disconnect(ctx); err != nil {
			m.log.WithError(err).WithField("account", id).Warn("error disconnecting adapter on shutdown")
		}
	}

	m.mu.Lock()
	m.adapterCache = make(map[string]exchange.Adapter)
	m.strategies = make(map[string]*RunningStrategy)
	m.status.Running = false
	m.status.ReadyForTrading = false
	m.status.HedgingAvailable = false
	m.mu.Unlock()
	m.log.Info("system shut down")
}

// PrintDiagnostics renders a startup health-check table to stdout, the
// teacher's go-pretty/fatih-color diagnostic style (SPEC_FULL.md's
// AMBIENT STACK), not a persistent dashboard.
func (m *Manager) PrintDiagnostics(report HealthReport) {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Account", "Healthy", "Latency (ms)", "Error"})

	for id, health := range report.Exchanges {
		healthyCell := color.RedString("no")
		if health.Healthy {
			healthyCell = color.GreenString("yes")
		}
		errStr := ""
		if health.Err != nil {
			errStr = health.Err.Error()
		}
		t.AppendRow(table.Row{id, healthyCell, health.LatencyMs, errStr})
	}

	t.AppendSeparator()
	readyCell := color.RedString("false")
	if report.ReadyForTrading {
		readyCell = color.GreenString("true")
	}
	hedgeCell := color.RedString("false")
	if report.HedgingAvailable {
		hedgeCell = color.GreenString("true")
	}
	t.AppendRow(table.Row{"ready_for_trading", readyCell, "", ""})
	t.AppendRow(table.Row{"hedging_available", hedgeCell, "", ""})

	fmt.Println(t.Render())
}
