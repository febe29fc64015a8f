package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayMetrics counts credential renewals by outcome.
type GatewayMetrics interface {
	IncRefresh(outcome string)
}

// PollMetrics counts job fetches and how poll sessions end.
type PollMetrics interface {
	IncFetch(monitor, outcome string)
	IncSessionEnd(monitor, reason string)
}

// HTTPMetrics captures request metrics for the local bridge.
type HTTPMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Refresh outcomes
const (
	RefreshOK          = "ok"
	RefreshReused      = "reused" // Another caller already replaced the rejected credential
	RefreshMissing     = "missing"
	RefreshFailed      = "failed"
	RefreshStoreFailed = "store_failed"
)

// Noop implements every metrics interface without emitting anything.
type Noop struct{}

func (Noop) IncRefresh(string)                              {}
func (Noop) IncFetch(string, string)                        {}
func (Noop) IncSessionEnd(string, string)                   {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements the metrics interfaces on its own registry, so several
// instances can live in one process.
type Prom struct {
	registry    *prometheus.Registry
	refreshes   *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	sessionEnds *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_refreshes_total",
			Help:      "Access credential renewals by outcome",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_fetches_total",
			Help:      "Job status fetches by monitor and outcome",
		}, []string{"monitor", "outcome"}),
		sessionEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_sessions_ended_total",
			Help:      "Poll sessions ended by monitor and reason",
		}, []string{"monitor", "reason"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Bridge HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Bridge HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.registry.MustRegister(
		p.refreshes, p.fetches, p.sessionEnds, p.requests, p.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prom) IncRefresh(outcome string) {
	p.refreshes.WithLabelValues(outcome).Inc()
}

func (p *Prom) IncFetch(monitor, outcome string) {
	p.fetches.WithLabelValues(monitor, outcome).Inc()
}

func (p *Prom) IncSessionEnd(monitor, reason string) {
	p.sessionEnds.WithLabelValues(monitor, reason).Inc()
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler returns an HTTP handler for /metrics.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
