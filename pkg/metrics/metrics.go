// Package metrics registers the prometheus gauges/counters the core
// exposes, grounded directly on the teacher's xmaker/metrics.go (same
// prometheus.GaugeOpts/GaugeVec shape, same init-time MustRegister call).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OpenOrderBidExposureUSD = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permaker_open_order_bid_exposure_usd",
			Help: "Notional USD value of the resting bid quote.",
		}, []string{"exchange", "symbol"})

	OpenOrderAskExposureUSD = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permaker_open_order_ask_exposure_usd",
			Help: "Notional USD value of the resting ask quote.",
		}, []string{"exchange", "symbol"})

	BestBidPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permaker_maker_best_bid_price",
			Help: "",
		}, []string{"exchange", "symbol"})

	BestAskPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permaker_maker_best_ask_price",
			Help: "",
		}, []string{"exchange", "symbol"})

	VolatilityBps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permaker_volatility_bps",
			Help: "Rolling volatility window value in basis points.",
		}, []string{"symbol"})

	PositionQty = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permaker_position_qty",
			Help: "Signed base-asset position.",
		}, []string{"venue", "symbol"})

	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permaker_fills_total",
			Help: "",
		}, []string{"symbol", "side", "kind"}) // kind: full, partial

	HedgeAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permaker_hedge_attempts_total",
			Help: "",
		}, []string{"symbol", "status"})

	HedgeLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "permaker_hedge_latency_ms",
			Help:    "",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"symbol"})

	ArbitrageCandidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permaker_arbitrage_candidates_total",
			Help: "",
		}, []string{"buy_venue", "sell_venue", "symbol"})

	UptimeTierSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permaker_uptime_tier_seconds_total",
			Help: "Accumulated seconds spent in each bps-from-mid tier.",
		}, []string{"symbol", "tier"})

	ArbitrageExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permaker_arbitrage_executions_total",
			Help: "",
		}, []string{"buy_venue", "sell_venue", "symbol", "outcome"}) // outcome: filled, partial_failure, dry_run

	ArbitrageProfitUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permaker_arbitrage_profit_usd_total",
			Help: "Estimated realized profit in USD from executed arbitrage trades.",
		}, []string{"buy_venue", "sell_venue", "symbol"})
)

func init() {
	prometheus.MustRegister(
		OpenOrderBidExposureUSD,
		OpenOrderAskExposureUSD,
		BestBidPrice,
		BestAskPrice,
		VolatilityBps,
		PositionQty,
		FillsTotal,
		HedgeAttemptsTotal,
		HedgeLatencyMs,
		ArbitrageCandidatesTotal,
		UptimeTierSeconds,
		ArbitrageExecutionsTotal,
		ArbitrageProfitUSD,
	)
}
