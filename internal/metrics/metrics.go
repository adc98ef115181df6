// Package metrics exposes Prometheus counters for labeling and backtest runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LabelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "triplebarrier_labels_total", Help: "Bars labeled, by outcome"},
		[]string{"outcome"},
	)
	BacktestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "triplebarrier_backtests_total", Help: "Backtest replays completed"},
		[]string{"strategy"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "triplebarrier_trades_total", Help: "Closed replay positions, by exit reason"},
		[]string{"reason"},
	)
	BarsGathered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "triplebarrier_bars_gathered_total", Help: "Bars fetched from the market data API"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(LabelsTotal, BacktestsTotal, TradesTotal, BarsGathered)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a standalone /metrics listener on addr.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
