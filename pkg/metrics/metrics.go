// Package metrics exposes supervisor, file and media API counters in the
// Prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fgp-bot/fgpbot/internal/report"
)

// Metrics owns a private registry so tests and embedded uses never clash
// with the global one.
type Metrics struct {
	registry *prometheus.Registry

	runs          prometheus.Counter
	exits         *prometheus.CounterVec
	restarts      prometheus.Counter
	runDuration   prometheus.Histogram
	filesSynced   prometheus.Counter
	mediaRequests *prometheus.CounterVec
}

// New builds and registers every collector, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fgpbot_supervisor_runs_total",
			Help: "Bot processes started by the supervisor",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fgpbot_supervisor_exits_total",
			Help: "Bot process exits by outcome",
		}, []string{"outcome"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fgpbot_supervisor_restarts_total",
			Help: "Restarts chosen at the prompt",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fgpbot_bot_run_seconds",
			Help:    "Wall time of each bot run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		filesSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fgpbot_files_synced_total",
			Help: "Files added to the tracking database",
		}),
		mediaRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fgpbot_media_requests_total",
			Help: "Media API requests by HTTP status",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.runs,
		m.exits,
		m.restarts,
		m.runDuration,
		m.filesSynced,
		m.mediaRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RunStarted() {
	m.runs.Inc()
}

func (m *Metrics) RunFinished(r *report.Result) {
	m.exits.WithLabelValues(string(r.Outcome)).Inc()
	m.runDuration.Observe(r.Duration.Seconds())
}

func (m *Metrics) Restarting() {
	m.restarts.Inc()
}

func (m *Metrics) FilesSynced(n int) {
	if n > 0 {
		m.filesSynced.Add(float64(n))
	}
}

func (m *Metrics) MediaRequest(status string) {
	m.mediaRequests.WithLabelValues(status).Inc()
}
