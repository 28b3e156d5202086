// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SignalsTotal counts webhook signals by final status.
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_signals_total",
			Help: "Webhook signals processed, by final status.",
		},
		[]string{"status"},
	)

	// GuardVetoes counts admission vetoes by guard name.
	GuardVetoes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_guard_vetoes_total",
			Help: "Signals vetoed by an admission guard, by guard.",
		},
		[]string{"guard"},
	)

	// OrdersRouted counts downstream order attempts by target and result.
	OrdersRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_orders_routed_total",
			Help: "Downstream order attempts, by target and result.",
		},
		[]string{"target", "result"},
	)

	// Balance is the most recent account balance used for sizing.
	Balance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_balance",
			Help: "Account balance last used for position sizing.",
		},
	)

	// OracleDegraded counts fallback reads from the account oracles.
	OracleDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_oracle_degraded_total",
			Help: "Oracle reads served from a fallback value, by oracle.",
		},
		[]string{"oracle"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsTotal,
		GuardVetoes,
		OrdersRouted,
		Balance,
		OracleDegraded,
	)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRouting updates the per-target routing counters.
func RecordRouting(target string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	OrdersRouted.WithLabelValues(target, result).Inc()
}
