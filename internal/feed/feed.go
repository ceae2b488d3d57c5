package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// EventTypeStateChanged is the only event type a feed delivers.
const EventTypeStateChanged = "state_changed"

// ErrMalformed is returned by Decode for payloads that are not state_changed events.
var ErrMalformed = errors.New("malformed state_changed event")

// Event is one state transition of a watched entity.
type Event struct {
	// EntityID is the entity that changed.
	EntityID string
	// OldState is the previous value, nil when the entity had none.
	OldState *string
	// NewState is the new value, nil when the entity was removed.
	NewState *string
	// FiredAt is when the source emitted the event.
	FiredAt time.Time
}

// Handler receives events for one subscribed entity, one at a time and in delivery order.
type Handler func(ctx context.Context, event Event)

// Subscription is an active subscription returned by Feed.Subscribe.
type Subscription interface {
	Unsubscribe() error
}

// Feed delivers state-change events for single entities.
type Feed interface {
	Subscribe(ctx context.Context, entityID string, handler Handler) (Subscription, error)
}

// envelope mirrors the Home Assistant event bus JSON shape written by Encode.
type envelope struct {
	EventType string        `json:"event_type"`
	TimeFired time.Time     `json:"time_fired"`
	Data      *envelopeData `json:"data"`
}

type envelopeData struct {
	EntityID string       `json:"entity_id"`
	OldState *entityState `json:"old_state"`
	NewState *entityState `json:"new_state"`
}

type entityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
}

// Decode parses a state_changed payload, either a bare event or one wrapped
// in a websocket message ({"type":"event","event":{...}}).
// An empty state string decodes to a nil value.
func Decode(payload []byte) (Event, error) {
	if !gjson.ValidBytes(payload) {
		return Event{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}

	root := gjson.ParseBytes(payload)
	if wrapped := root.Get("event"); wrapped.IsObject() {
		root = wrapped
	}

	if eventType := root.Get("event_type").String(); eventType != "" && eventType != EventTypeStateChanged {
		return Event{}, fmt.Errorf("%w: unexpected event type %q", ErrMalformed, eventType)
	}

	data := root.Get("data")

	entityID := data.Get("entity_id").String()
	if entityID == "" {
		return Event{}, fmt.Errorf("%w: missing entity_id", ErrMalformed)
	}

	var firedAt time.Time

	if fired := root.Get("time_fired"); fired.Exists() && fired.Type != gjson.Null {
		ts, err := time.Parse(time.RFC3339Nano, fired.String())
		if err != nil {
			return Event{}, fmt.Errorf("%w: time_fired: %w", ErrMalformed, err)
		}

		firedAt = ts
	}

	return Event{
		EntityID: entityID,
		OldState: stateValue(data.Get("old_state")),
		NewState: stateValue(data.Get("new_state")),
		FiredAt:  firedAt,
	}, nil
}

// stateValue extracts the state string of an entity state object.
func stateValue(state gjson.Result) *string {
	if !state.IsObject() {
		return nil
	}

	value := state.Get("state")
	if value.Type == gjson.Null || value.String() == "" {
		return nil
	}

	v := value.String()

	return &v
}

// Encode renders an event as a state_changed payload.
func Encode(event Event) ([]byte, error) {
	if event.EntityID == "" {
		return nil, fmt.Errorf("%w: missing entity_id", ErrMalformed)
	}

	env := envelope{
		EventType: EventTypeStateChanged,
		TimeFired: event.FiredAt,
		Data: &envelopeData{
			EntityID: event.EntityID,
			OldState: newEntityState(event.EntityID, event.OldState, event.FiredAt),
			NewState: newEntityState(event.EntityID, event.NewState, event.FiredAt),
		},
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	return data, nil
}

func newEntityState(entityID string, value *string, at time.Time) *entityState {
	if value == nil {
		return nil
	}

	return &entityState{
		EntityID:    entityID,
		State:       *value,
		LastChanged: at,
	}
}

