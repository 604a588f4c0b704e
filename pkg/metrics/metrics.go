package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Availability Checker metrics
	PortsProbedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portguard_ports_probed_total",
			Help: "Total number of availability probes by method and result",
		},
		[]string{"method", "result"},
	)

	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portguard_probe_duration_seconds",
			Help:    "Duration of a single availability probe in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	ProbeFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portguard_probe_fallbacks_total",
			Help: "Total number of times probing fell back to another method (ss -> netstat)",
		},
	)

	// Reservation metrics
	ReservationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "portguard_reservations_active",
			Help: "Current number of active reservations",
		},
	)

	ReservationsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portguard_reservations_created_total",
			Help: "Total number of reservations created",
		},
	)

	ReservationsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portguard_reservations_rejected_total",
			Help: "Total number of reservation requests rejected, by reason",
		},
		[]string{"reason"},
	)

	ReservationsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portguard_reservations_expired_total",
			Help: "Total number of reservations removed by GC",
		},
	)

	// Conflict Detector metrics
	ConflictsDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portguard_conflicts_detected_total",
			Help: "Total number of conflicts detected, by kind",
		},
		[]string{"kind"},
	)

	MonitorSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "portguard_monitor_sessions_active",
			Help: "Current number of active monitor sessions",
		},
	)

	// Suggestion Engine metrics
	SuggestionsServedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portguard_suggestions_served_total",
			Help: "Total number of suggestions served, by alternative type",
		},
		[]string{"type"},
	)

	// Cache metrics
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portguard_cache_hits_total",
			Help: "Total cache hits by namespace",
		},
		[]string{"namespace"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portguard_cache_misses_total",
			Help: "Total cache misses by namespace",
		},
		[]string{"namespace"},
	)

	// Supervisor / scan metrics
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portguard_scan_duration_seconds",
			Help:    "Time taken for one periodic rescan cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScanCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portguard_scan_cycles_total",
			Help: "Total number of scan cycles completed",
		},
	)

	ScanFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "portguard_scan_failures_total",
			Help: "Total number of scan cycles that failed",
		},
	)

	// Container Integration metrics
	ContainerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portguard_container_events_total",
			Help: "Total number of container lifecycle events processed, by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(PortsProbedTotal)
	prometheus.MustRegister(ProbeDuration)
	prometheus.MustRegister(ProbeFallbacksTotal)
	prometheus.MustRegister(ReservationsActive)
	prometheus.MustRegister(ReservationsCreatedTotal)
	prometheus.MustRegister(ReservationsRejectedTotal)
	prometheus.MustRegister(ReservationsExpiredTotal)
	prometheus.MustRegister(ConflictsDetectedTotal)
	prometheus.MustRegister(MonitorSessionsActive)
	prometheus.MustRegister(SuggestionsServedTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(ScanCyclesTotal)
	prometheus.MustRegister(ScanFailuresTotal)
	prometheus.MustRegister(ContainerEventsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
