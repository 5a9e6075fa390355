package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairflow_ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	ResamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pairflow_resamples_total", Help: "Completed resampling passes"},
		[]string{"symbol", "timeframe"},
	)
	PersistErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "pairflow_persist_errors_total", Help: "Failed durable bar writes"},
	)
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "pairflow_analysis_duration_seconds", Help: "Pair analysis wall time", Buckets: prometheus.DefBuckets},
	)
	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "pairflow_stream_clients", Help: "Connected websocket subscribers"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, ResamplesTotal, PersistErrorsTotal, AnalysisDuration, StreamClients)
}

// Handler exposes the registry for mounting on the main router.
func Handler() http.Handler {
	return promhttp.Handler()
}
