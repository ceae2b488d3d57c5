package sensor

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Attribute keys of the durable slot record.
const (
	AttrEntity         = "entity"
	AttrLastState      = "last_state"
	AttrLocalFormat    = "local_format"
	AttrExpirationTime = "expiration_time"
	AttrIsExpired      = "is_expired"
)

// errBadTimestamp is returned when a persisted state is not an ISO-8601 timestamp.
var errBadTimestamp = errors.New("invalid persisted timestamp")

// Snapshot is the record stored in the durable slot and exposed to readers.
type Snapshot struct {
	// State is the ISO-8601 last-changed timestamp, empty before the first change.
	State string
	// Attributes carries the extra state attributes.
	Attributes Attributes
}

// Attributes are the extra attributes published with the sensor value.
type Attributes struct {
	// Entity is the watched source entity id.
	Entity string
	// LastState is the value that caused the last change.
	LastState *string
	// LocalFormat is derived from State and never read back on restore.
	LocalFormat string
	// ExpirationTime is the configured expiration in days.
	ExpirationTime *int
	// IsExpired is the expiration flag.
	IsExpired bool
}

// FormatTimestamp renders ts the way it is stored in the slot.
func FormatTimestamp(ts time.Time) string {
	return ts.Format(time.RFC3339Nano)
}

// LastChangedAt parses State. Empty and sentinel values yield nil.
func (s *Snapshot) LastChangedAt() (*time.Time, error) {
	if s == nil || s.State == "" || s.State == StateUnknown || s.State == StateUnavailable {
		return nil, nil //nolint:nilnil // Absent timestamp is not an error.
	}

	ts, err := time.Parse(time.RFC3339Nano, s.State)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", errBadTimestamp, s.State, err)
	}

	if ts.Equal(neverChanged) {
		return nil, nil //nolint:nilnil // The epoch fallback means "never changed".
	}

	return &ts, nil
}

// Map returns the attributes as a loosely typed map with JSON-compatible values.
func (a *Attributes) Map() map[string]any {
	m := map[string]any{
		AttrEntity:         a.Entity,
		AttrLastState:      nil,
		AttrLocalFormat:    nil,
		AttrExpirationTime: nil,
		AttrIsExpired:      a.IsExpired,
	}

	if a.LastState != nil {
		m[AttrLastState] = *a.LastState
	}

	if a.LocalFormat != "" {
		m[AttrLocalFormat] = a.LocalFormat
	}

	if a.ExpirationTime != nil {
		m[AttrExpirationTime] = *a.ExpirationTime
	}

	return m
}

// AttributesFromMap is the inverse of Attributes.Map. Unknown keys are ignored
// and values of the wrong type are treated as absent.
func AttributesFromMap(m map[string]any) Attributes {
	var attrs Attributes

	if v, ok := m[AttrEntity].(string); ok {
		attrs.Entity = v
	}

	if v, ok := m[AttrLastState].(string); ok {
		attrs.LastState = &v
	}

	if v, ok := m[AttrLocalFormat].(string); ok {
		attrs.LocalFormat = v
	}

	if v, ok := toInt(m[AttrExpirationTime]); ok {
		attrs.ExpirationTime = &v
	}

	if v, ok := m[AttrIsExpired].(bool); ok {
		attrs.IsExpired = v
	}

	return attrs
}

// toInt accepts the numeric shapes JSON and structpb decoding produce.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}

		return int(n), true
	default:
		return 0, false
	}
}
