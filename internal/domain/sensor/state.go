package sensor

import "time"

const (
	// StateUnavailable is reported by sources that lost their device.
	StateUnavailable = "unavailable"
	// StateUnknown is reported by sources that have not produced a value yet.
	StateUnknown = "unknown"

	// SecondsPerDay converts elapsed seconds into fractional days.
	SecondsPerDay = 24 * 60 * 60
)

// neverChanged is exposed as the native value before the first change.
//
//nolint:gochecknoglobals // Immutable sentinel.
var neverChanged = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// TrackedState is the state of one configured sensor.
type TrackedState struct {
	// SourceEntityID is the watched entity; it never changes for an instance.
	SourceEntityID string
	// LastChangedAt is the time of the last meaningful change, nil until the first one.
	LastChangedAt *time.Time
	// LastValue is the source value recorded together with LastChangedAt.
	LastValue *string
	// ExpirationDays is the expiration threshold, nil when expiration is disabled.
	ExpirationDays *int
	// IsExpired is recomputed by the daily expiration check only.
	IsExpired bool
}

// NewTrackedState returns a fresh state for the entity with all fields at defaults.
func NewTrackedState(entityID string, expirationDays *int) *TrackedState {
	return &TrackedState{
		SourceEntityID: entityID,
		ExpirationDays: cloneInt(expirationDays),
	}
}

// ExpirationEnabled reports whether the daily expiration check applies.
// Zero days disables expiration like an absent value does.
func (s *TrackedState) ExpirationEnabled() bool {
	return s.ExpirationDays != nil && *s.ExpirationDays > 0
}

// NativeValue is the timestamp exposed as the sensor value.
func (s *TrackedState) NativeValue() time.Time {
	if s.LastChangedAt == nil {
		return neverChanged
	}

	return *s.LastChangedAt
}

// LocalFormat renders LastChangedAt in loc, or returns "" before the first change.
func (s *TrackedState) LocalFormat(loc *time.Location) string {
	if s.LastChangedAt == nil {
		return ""
	}

	if loc == nil {
		loc = time.Local
	}

	return s.LastChangedAt.In(loc).Format(time.RFC3339)
}

// Clone returns a deep copy of the state.
func (s *TrackedState) Clone() *TrackedState {
	if s == nil {
		return nil
	}

	cloned := *s
	cloned.ExpirationDays = cloneInt(s.ExpirationDays)

	if s.LastChangedAt != nil {
		ts := *s.LastChangedAt
		cloned.LastChangedAt = &ts
	}

	if s.LastValue != nil {
		v := *s.LastValue
		cloned.LastValue = &v
	}

	return &cloned
}

// Snapshot converts the state into its durable slot representation.
func (s *TrackedState) Snapshot(loc *time.Location) *Snapshot {
	snapshot := &Snapshot{
		Attributes: Attributes{
			Entity:         s.SourceEntityID,
			LastState:      cloneString(s.LastValue),
			LocalFormat:    s.LocalFormat(loc),
			ExpirationTime: cloneInt(s.ExpirationDays),
			IsExpired:      s.IsExpired,
		},
	}

	if s.LastChangedAt != nil {
		snapshot.State = FormatTimestamp(*s.LastChangedAt)
	}

	return snapshot
}

// Restore re-establishes timestamp, last value and expired flag from a prior snapshot.
// The expired flag is only carried over while expiration is enabled.
func (s *TrackedState) Restore(prior *Snapshot) error {
	if prior == nil {
		return nil
	}

	ts, err := prior.LastChangedAt()
	if err != nil {
		return err
	}

	s.LastChangedAt = ts
	s.LastValue = cloneString(prior.Attributes.LastState)
	s.IsExpired = prior.Attributes.IsExpired && s.ExpirationEnabled()

	return nil
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}

	c := *v

	return &c
}
