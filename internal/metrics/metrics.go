package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ScheduleLoads counts schedule parse attempts by outcome
	// (ok, malformed, missing_day, empty).
	ScheduleLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "schedule_loads_total", Help: "Schedule load attempts by outcome."},
		[]string{"outcome"},
	)
	// AssignRuns counts completed scheduling runs.
	AssignRuns = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "assign_runs_total", Help: "Completed scheduling runs."},
	)
	// AssignDuration tracks the duration of one scheduling pass in seconds.
	AssignDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "assign_run_duration_seconds", Help: "Scheduling pass duration in seconds.", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1}},
	)
	// OrderOutcomes counts order results per run (assigned, unassigned).
	OrderOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "order_outcomes_total", Help: "Order outcomes across scheduling runs."},
		[]string{"outcome"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers all collectors on the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ScheduleLoads)
		Registry.MustRegister(AssignRuns)
		Registry.MustRegister(AssignDuration)
		Registry.MustRegister(OrderOutcomes)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
