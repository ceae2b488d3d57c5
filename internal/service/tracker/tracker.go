package tracker

import (
	"time"

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
)

// Outcome describes what the change filter did with an event.
type Outcome int

const (
	// Recorded means the event was a meaningful change and updated the state.
	Recorded Outcome = iota
	// Missing means the event carried no new value.
	Missing
	// Sentinel means the new value was unavailable or unknown.
	Sentinel
	// Duplicate means the new value equals the last recorded one.
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case Missing:
		return "missing"
	case Sentinel:
		return "sentinel"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// ChangeTracker records meaningful changes of the source entity into a TrackedState.
// It is not safe for concurrent use; the owning Sensor serializes calls.
type ChangeTracker struct {
	state *domain.TrackedState
}

// NewChangeTracker creates a tracker mutating state.
func NewChangeTracker(state *domain.TrackedState) *ChangeTracker {
	return &ChangeTracker{state: state}
}

// OnSourceEvent applies the change filter. The new value is compared against
// the last recorded value, not against previous: repeated reports of the same
// value are suppressed whatever they transitioned from.
func (t *ChangeTracker) OnSourceEvent(_, next *string, now time.Time) Outcome {
	switch {
	case next == nil || *next == "":
		return Missing
	case *next == domain.StateUnavailable || *next == domain.StateUnknown:
		return Sentinel
	case t.state.LastValue != nil && *t.state.LastValue == *next:
		return Duplicate
	}

	// LastChangedAt never moves backward.
	if last := t.state.LastChangedAt; last != nil && now.Before(*last) {
		now = *last
	}

	value := *next
	t.state.LastChangedAt = &now
	t.state.LastValue = &value

	return Recorded
}
