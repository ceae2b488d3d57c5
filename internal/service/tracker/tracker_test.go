package tracker

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// TestChangeTracker_Sequence replays off,off,unavailable,on,on,off and checks which ticks are recorded.
func TestChangeTracker_Sequence(t *testing.T) {
	t.Parallel()

	state := domain.NewTrackedState("binary_sensor.door", nil)
	tracker := NewChangeTracker(state)

	values := []string{"off", "off", "unavailable", "on", "on", "off"}
	want := []Outcome{Recorded, Duplicate, Sentinel, Recorded, Duplicate, Recorded}

	var previous *string

	for i, v := range values {
		now := t0.Add(time.Duration(i) * time.Minute)
		require.Equal(t, want[i], tracker.OnSourceEvent(previous, strPtr(v), now), "tick %d", i)

		previous = strPtr(v)
	}

	require.Equal(t, "off", *state.LastValue)
	require.Equal(t, t0.Add(5*time.Minute), *state.LastChangedAt)
}

// TestChangeTracker_ComparesAgainstRecordedValue ensures the event's own previous value is ignored.
func TestChangeTracker_ComparesAgainstRecordedValue(t *testing.T) {
	t.Parallel()

	state := domain.NewTrackedState("sensor.mode", nil)
	tracker := NewChangeTracker(state)

	// previous == new still counts when nothing was recorded yet.
	require.Equal(t, Recorded, tracker.OnSourceEvent(strPtr("b"), strPtr("b"), t0))

	// Same new value from a different previous value is a duplicate.
	require.Equal(t, Duplicate, tracker.OnSourceEvent(strPtr("a"), strPtr("b"), t0.Add(time.Second)))
	require.Equal(t, Duplicate, tracker.OnSourceEvent(strPtr("c"), strPtr("b"), t0.Add(2*time.Second)))

	// Cycling back after a different value registers again.
	require.Equal(t, Recorded, tracker.OnSourceEvent(strPtr("b"), strPtr("c"), t0.Add(3*time.Second)))
	require.Equal(t, Recorded, tracker.OnSourceEvent(strPtr("c"), strPtr("b"), t0.Add(4*time.Second)))
	require.Equal(t, t0.Add(4*time.Second), *state.LastChangedAt)
}

// TestChangeTracker_Idempotent delivers the same qualifying event twice.
func TestChangeTracker_Idempotent(t *testing.T) {
	t.Parallel()

	state := domain.NewTrackedState("light.kitchen", nil)
	tracker := NewChangeTracker(state)

	require.Equal(t, Recorded, tracker.OnSourceEvent(strPtr("off"), strPtr("on"), t0))
	require.Equal(t, Duplicate, tracker.OnSourceEvent(strPtr("off"), strPtr("on"), t0.Add(time.Hour)))
	require.Equal(t, t0, *state.LastChangedAt)
}

// TestChangeTracker_Noise covers missing, empty and sentinel values.
func TestChangeTracker_Noise(t *testing.T) {
	t.Parallel()

	state := domain.NewTrackedState("light.kitchen", nil)
	tracker := NewChangeTracker(state)

	require.Equal(t, Missing, tracker.OnSourceEvent(strPtr("on"), nil, t0))
	require.Equal(t, Missing, tracker.OnSourceEvent(strPtr("on"), strPtr(""), t0))
	require.Equal(t, Sentinel, tracker.OnSourceEvent(strPtr("on"), strPtr(domain.StateUnavailable), t0))
	require.Equal(t, Sentinel, tracker.OnSourceEvent(nil, strPtr(domain.StateUnknown), t0))
	require.Nil(t, state.LastChangedAt)
	require.Nil(t, state.LastValue)
	require.Equal(t, "sentinel", Sentinel.String())
}

// TestChangeTracker_Monotonic ensures an earlier clock reading never moves the timestamp back.
func TestChangeTracker_Monotonic(t *testing.T) {
	t.Parallel()

	state := domain.NewTrackedState("switch.pump", nil)
	tracker := NewChangeTracker(state)

	require.Equal(t, Recorded, tracker.OnSourceEvent(nil, strPtr("on"), t0))
	require.Equal(t, Recorded, tracker.OnSourceEvent(nil, strPtr("off"), t0.Add(-time.Hour)))
	require.Equal(t, t0, *state.LastChangedAt)
	require.Equal(t, "off", *state.LastValue)
}

// TestChangeTracker_RandomSequences checks the filter against a straightforward model.
func TestChangeTracker_RandomSequences(t *testing.T) {
	t.Parallel()

	alphabet := []string{"on", "off", "idle", "", domain.StateUnavailable, domain.StateUnknown}
	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // Deterministic test input.

	for round := range 200 {
		state := domain.NewTrackedState("sensor.random", nil)
		tracker := NewChangeTracker(state)

		var (
			model     *string
			modelTime *time.Time
		)

		for i := range 30 {
			now := t0.Add(time.Duration(round*100+i) * time.Second)
			v := alphabet[rng.IntN(len(alphabet))]

			tracker.OnSourceEvent(nil, strPtr(v), now)

			meaningful := v != "" && v != domain.StateUnavailable && v != domain.StateUnknown
			if meaningful && (model == nil || *model != v) {
				model = strPtr(v)
				modelTime = &now
			}

			require.Equal(t, model, state.LastValue)
			require.Equal(t, modelTime, state.LastChangedAt)
		}
	}
}
