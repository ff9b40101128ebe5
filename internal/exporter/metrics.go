// Package exporter owns the service's Prometheus instrumentation.
package exporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "timetrack"

// Metrics records report, permission, and time logging activity.
type Metrics struct {
	registry *prometheus.Registry

	githubRequests   *prometheus.CounterVec
	reports          *prometheus.CounterVec
	reportDuration   *prometheus.HistogramVec
	reportUsers      prometheus.Histogram
	userFailures     *prometheus.CounterVec
	permissionChecks *prometheus.CounterVec
	timeLogged       prometheus.Counter
	timeEntries      prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		githubRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_requests_total",
			Help:      "GitHub API calls by endpoint and result status.",
		}, []string{"endpoint", "status"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Report generations by outcome.",
		}, []string{"outcome"}),
		reportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Report generation latency by outcome.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		reportUsers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_users",
			Help:      "Users covered by one report.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		userFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_user_failures_total",
			Help:      "Per-user report failures by reason.",
		}, []string{"reason"}),
		permissionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_checks_total",
			Help:      "Repository permission checks by reason.",
		}, []string{"reason"}),
		timeLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "time_logged_hours_total",
			Help:      "Hours recorded through time entry comments.",
		}),
		timeEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "time_entries_total",
			Help:      "Time entry comments created.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.githubRequests,
		m.reports,
		m.reportDuration,
		m.reportUsers,
		m.userFailures,
		m.permissionChecks,
		m.timeLogged,
		m.timeEntries,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveGitHubRequest counts one GitHub API call.
func (m *Metrics) ObserveGitHubRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.githubRequests.WithLabelValues(endpoint, status).Inc()
}

// ObserveReport records one finished report generation.
func (m *Metrics) ObserveReport(outcome string, users int, duration time.Duration) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(outcome).Inc()
	m.reportDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if users > 0 {
		m.reportUsers.Observe(float64(users))
	}
}

// ObserveUserFailure counts a user whose report could not be built.
func (m *Metrics) ObserveUserFailure(reason string) {
	if m == nil {
		return
	}
	m.userFailures.WithLabelValues(reason).Inc()
}

// ObservePermissionCheck counts a permission decision.
func (m *Metrics) ObservePermissionCheck(reason string) {
	if m == nil {
		return
	}
	m.permissionChecks.WithLabelValues(reason).Inc()
}

// ObserveTimeLogged counts a created time entry.
func (m *Metrics) ObserveTimeLogged(hours float64) {
	if m == nil {
		return
	}
	m.timeEntries.Inc()
	m.timeLogged.Add(hours)
}
