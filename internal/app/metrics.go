package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is shared by the API and dashboard listeners and served on the
// ops listener.
type Metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	ingestTotal       *prometheus.CounterVec
	jobsCreated       prometheus.Counter
	statusChanges     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtrack_http_requests_total",
			Help: "Total HTTP requests handled.",
		}, []string{"server", "method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobtrack_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtrack_rate_limit_rejections_total",
			Help: "Total requests rejected by rate limiting.",
		}, []string{"route"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtrack_ingest_total",
			Help: "Ingested activities, by whether the job was created.",
		}, []string{"job"}),
		jobsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobtrack_jobs_created_total",
			Help: "Jobs created through POST /jobs.",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtrack_job_status_changes_total",
			Help: "Job status changes, by target status.",
		}, []string{"status"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.ingestTotal,
		m.jobsCreated,
		m.statusChanges,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) withHTTPMetrics(server string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)
		m.requestTotal.WithLabelValues(server, r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(server, r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeIngest(created bool) {
	if m == nil {
		return
	}
	label := "existing"
	if created {
		label = "created"
	}
	m.ingestTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) observeJobCreated() {
	if m == nil {
		return
	}
	m.jobsCreated.Inc()
}

func (m *Metrics) observeStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) observeRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimitRejected.WithLabelValues(route).Inc()
}

// routeLabel collapses ids so label cardinality stays bounded.
func routeLabel(path string) string {
	parts := splitPath(path)
	for i, part := range parts {
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			parts[i] = "{id}"
		} else if i > 0 && parts[i-1] == "users" {
			parts[i] = "{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}
