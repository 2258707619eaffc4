package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the seat hold collectors. Each instance owns its registry so
// tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	HoldAttempts       *prometheus.CounterVec
	BookingTransitions *prometheus.CounterVec
	SweepRuns          prometheus.Counter
	SweepFailures      prometheus.Counter
	SweepDuration      prometheus.Histogram
	OrphansReleased    prometheus.Counter
	Subscribers        prometheus.Gauge
	EventsPublished    *prometheus.CounterVec
	EventsDropped      prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		HoldAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seat_hold_attempts_total",
			Help: "Seat hold attempts by result (held, conflict, invalid, error).",
		}, []string{"result"}),
		BookingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking state transitions by target status and outcome.",
		}, []string{"status", "outcome"}),
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expiration_sweep_runs_total",
			Help: "Completed expiration sweeps.",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "expiration_sweep_failures_total",
			Help: "Bookings or holds that failed to expire during a sweep.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "expiration_sweep_duration_seconds",
			Help:    "Duration of one expiration sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		OrphansReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orphan_holds_released_total",
			Help: "Stale holds released without an owning pending booking.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seat_event_subscribers",
			Help: "Live seat event subscriptions.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seat_events_published_total",
			Help: "Seat events published by type.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seat_events_dropped_total",
			Help: "Seat events dropped because a subscriber buffer was full.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HoldAttempts,
		m.BookingTransitions,
		m.SweepRuns,
		m.SweepFailures,
		m.SweepDuration,
		m.OrphansReleased,
		m.Subscribers,
		m.EventsPublished,
		m.EventsDropped,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
