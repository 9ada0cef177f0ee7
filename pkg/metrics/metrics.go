// Package metrics exposes Prometheus instrumentation for the investigator
// worker, the cluster-exec pool, and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HostsTotal is the number of known hosts by lifecycle status.
	HostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "commissaire_hosts_total",
			Help: "Total number of hosts by status",
		},
		[]string{"status"},
	)

	ClustersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "commissaire_clusters_total",
			Help: "Total number of clusters",
		},
	)

	// Investigator metrics
	InvestigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissaire_investigations_total",
			Help: "Total number of investigations completed, by terminal status",
		},
		[]string{"status"},
	)

	InvestigationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "commissaire_investigation_duration_seconds",
			Help:    "Time taken to drive one host through the investigator state machine",
			Buckets: prometheus.DefBuckets,
		},
	)

	GetInfoDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "commissaire_get_info_duration_seconds",
			Help:    "Time taken by the host transport's get_info call",
			Buckets: prometheus.DefBuckets,
		},
	)

	BootstrapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "commissaire_bootstrap_duration_seconds",
			Help:    "Time taken by the host transport's bootstrap call",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerManagerPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissaire_container_manager_polls_total",
			Help: "Total number of container-manager registration polls, by outcome",
		},
		[]string{"outcome"},
	)

	InvestigateQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "commissaire_investigate_queue_depth",
			Help: "Current number of pending items in the investigate queue",
		},
	)

	// Cluster-exec metrics
	ClusterExecRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissaire_cluster_exec_runs_total",
			Help: "Total number of cluster-exec runs, by operation and terminal status",
		},
		[]string{"operation", "status"},
	)

	ClusterExecHostDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commissaire_cluster_exec_host_duration_seconds",
			Help:    "Time taken by one per-host step within a cluster-exec run",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ClusterExecRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commissaire_cluster_exec_run_duration_seconds",
			Help:    "Total wall time of one cluster-exec run across its whole hostset",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commissaire_http_requests_total",
			Help: "Total number of HTTP requests by route and HTTP status text",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "commissaire_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(HostsTotal)
	prometheus.MustRegister(ClustersTotal)
	prometheus.MustRegister(InvestigationsTotal)
	prometheus.MustRegister(InvestigationDuration)
	prometheus.MustRegister(GetInfoDuration)
	prometheus.MustRegister(BootstrapDuration)
	prometheus.MustRegister(ContainerManagerPollsTotal)
	prometheus.MustRegister(InvestigateQueueDepth)
	prometheus.MustRegister(ClusterExecRunsTotal)
	prometheus.MustRegister(ClusterExecHostDuration)
	prometheus.MustRegister(ClusterExecRunDuration)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing an in-flight operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vector with
// labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
