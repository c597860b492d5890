// internal/metrics/metrics.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ApplicationsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "voluntaris_applications_total", Help: "Total applications created"},
	)
	CapacityConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "voluntaris_capacity_full_total", Help: "Applications rejected because the event was full"},
	)
	CheckIns = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "voluntaris_checkins_total", Help: "Successful event check-ins"},
	)
	ReviewsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "voluntaris_reviews_total", Help: "Reviews created"},
	)
)

// Register installs all collectors on the default registry.
func Register() {
	prometheus.MustRegister(ApplicationsCreated, CapacityConflicts, CheckIns, ReviewsWritten)
}
