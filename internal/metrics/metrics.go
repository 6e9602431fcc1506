// Package metrics holds the Prometheus collectors shared by the gateway and
// the integrations worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors. It is separate from the
	// default registry so tests can gather it without global noise.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roofpro",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roofpro",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roofpro",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	emailsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roofpro",
			Subsystem: "notifications",
			Name:      "emails_total",
			Help:      "Email notification jobs by template and outcome.",
		},
		[]string{"template", "outcome"},
	)

	crmSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roofpro",
			Subsystem: "crm",
			Name:      "syncs_total",
			Help:      "CRM poll runs by outcome.",
		},
		[]string{"outcome"},
	)

	crmJobsUpserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roofpro",
			Subsystem: "crm",
			Name:      "jobs_upserted_total",
			Help:      "CRM job rows written by the poller.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		emailsProcessed,
		crmSyncs,
		crmJobsUpserted,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// TrackInFlight bumps the in-flight gauge and returns the matching decrement.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// ObserveHTTP records one finished request. path should be the route
// template, not the raw URL, to keep label cardinality bounded.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func RecordEmail(template, outcome string) {
	emailsProcessed.WithLabelValues(template, outcome).Inc()
}

func RecordCRMSync(outcome string, upserted int) {
	crmSyncs.WithLabelValues(outcome).Inc()
	if upserted > 0 {
		crmJobsUpserted.Add(float64(upserted))
	}
}
