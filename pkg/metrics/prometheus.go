package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/cryptopredict/internal/contracts"
)

const namespace = "cryptopredict"

// Recorder records analysis and HTTP metrics on its own registry
// ⭐ SSOT: Prometheus 지표 정의는 여기서만
type Recorder struct {
	registry *prometheus.Registry

	layerDuration *prometheus.HistogramVec
	layerDegraded *prometheus.CounterVec
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	aggregate     prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates a recorder with Go/process collectors registered
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		layerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "layer_duration_seconds",
				Help:      "Fetch + evaluate latency per layer",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"layer"},
		),
		layerDegraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "layer_degraded_total",
				Help:      "Layers that returned unknown",
			},
			[]string{"layer"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Analysis runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "End-to-end run latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		aggregate: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_aggregate_confidence",
				Help:      "Aggregate confidence of the last completed run",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// ObserveLayer records one layer evaluation
func (r *Recorder) ObserveLayer(layer contracts.LayerID, d time.Duration, degraded bool) {
	r.layerDuration.WithLabelValues(string(layer)).Observe(d.Seconds())
	if degraded {
		r.layerDegraded.WithLabelValues(string(layer)).Inc()
	}
}

// ObserveRun records a finished run. Failed runs carry no aggregate.
func (r *Recorder) ObserveRun(outcome string, aggregate float64, d time.Duration) {
	r.runsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		r.runDuration.Observe(d.Seconds())
	}
	if outcome != "failed" {
		r.aggregate.Set(aggregate)
	}
}

// ObserveHTTP records one request. route must be the route template, not the raw path.
func (r *Recorder) ObserveHTTP(route, method string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
