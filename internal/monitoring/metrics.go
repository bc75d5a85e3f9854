// Package monitoring exposes Prometheus metrics and a health endpoint for
// the scanning engine.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reversal_bot_signals_total",
			Help: "Signals detected, before filters",
		},
		[]string{"symbol", "timeframe", "side"},
	)

	signalsBlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reversal_bot_signals_blocked_total",
			Help: "Signals discarded by a filter",
		},
		[]string{"reason"},
	)

	ordersPlacedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reversal_bot_orders_placed_total",
			Help: "Orders submitted to the venue",
		},
		[]string{"symbol", "kind"},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reversal_bot_open_positions",
			Help: "Open positions currently tracked",
		},
	)

	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reversal_bot_account_equity_usd",
			Help: "Account equity reported by the venue",
		},
	)

	realizedPnl = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reversal_bot_realized_pnl_usd_total",
			Help: "Cumulative realized PnL booked to the ledger",
		},
		[]string{"symbol"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reversal_bot_cycle_seconds",
			Help:    "Duration of one scan cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reversal_bot_errors_total",
			Help: "Errors by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(signalsBlockedTotal)
	prometheus.MustRegister(ordersPlacedTotal)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(accountEquity)
	prometheus.MustRegister(realizedPnl)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler serves the Prometheus scrape endpoint.
type MetricsHandler struct{}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func RecordSignal(symbol, timeframe, side string) {
	signalsTotal.WithLabelValues(symbol, timeframe, side).Inc()
}

func RecordBlockedSignal(reason string) {
	signalsBlockedTotal.WithLabelValues(reason).Inc()
}

func RecordOrderPlaced(symbol, kind string) {
	ordersPlacedTotal.WithLabelValues(symbol, kind).Inc()
}

func SetOpenPositions(n int) {
	openPositions.Set(float64(n))
}

func SetAccountEquity(equity float64) {
	accountEquity.Set(equity)
}

func RecordRealizedPnl(symbol string, pnl float64) {
	// Counters only go up; losses are tracked by the ledger itself.
	if pnl > 0 {
		realizedPnl.WithLabelValues(symbol).Add(pnl)
	}
}

func RecordCycleDuration(seconds float64) {
	cycleDuration.Observe(seconds)
}

func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
