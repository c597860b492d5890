// internal/event/phase.go
package event

import "time"

// Lifecycle phases. Only CANCELLED is ever stored (as the override flag);
// the rest are derived from the start time and duration on every read, so
// the phase can never drift from the clock.
const (
	PhaseScheduled  = "SCHEDULED"
	PhaseInProgress = "IN_PROGRESS"
	PhaseCompleted  = "COMPLETED"
	PhaseCancelled  = "CANCELLED"
)

// End returns the instant the event finishes.
func (e *Event) End() time.Time {
	return e.StartTime.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// Phase projects the event's lifecycle phase at the given instant. It is a
// pure function: callers must recompute on every read instead of caching
// the result.
func (e *Event) Phase(now time.Time) string {
	if e.Cancelled {
		return PhaseCancelled
	}
	switch {
	case now.Before(e.StartTime):
		return PhaseScheduled
	case now.Before(e.End()):
		return PhaseInProgress
	default:
		return PhaseCompleted
	}
}
