/*
Package metrics provides Prometheus metrics collection and exposition for
portguard.

Every metric is registered here at package init, and components update
them inline as they do their work; there is no separate polling
collector. MonitorSessionsActive and SuggestionsServedTotal are registered
but no component updates them. Metrics are exposed over HTTP for scraping.

# Categories

Availability Checker: PortsProbedTotal, ProbeDuration, ProbeFallbacksTotal.

Reservation Manager: ReservationsActive, ReservationsCreatedTotal,
ReservationsRejectedTotal, ReservationsExpiredTotal.

Conflict Detector: ConflictsDetectedTotal, MonitorSessionsActive.

Suggestion Engine: SuggestionsServedTotal.

Cache: CacheHitsTotal, CacheMissesTotal.

Supervisor: ScanDuration, ScanCyclesTotal, ScanFailuresTotal.

Container Integration: ContainerEventsTotal.

# Usage

	timer := metrics.NewTimer()
	status, err := checker.IsAvailable(ctx, port, proto, host)
	timer.ObserveDurationVec(metrics.ProbeDuration, string(method))

	http.Handle("/metrics", metrics.Handler())

/health and /ready are served by pkg/api.HealthServer, which
probes the supervisor directly rather than through a health singleton
in this package.
*/
package metrics
