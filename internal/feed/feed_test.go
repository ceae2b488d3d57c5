package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// TestEncodeDecode verifies the wire shape survives a roundtrip and nil states stay nil.
func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	fired := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	event := Event{
		EntityID: "binary_sensor.door",
		OldState: nil,
		NewState: strPtr("on"),
		FiredAt:  fired,
	}

	payload, err := Encode(event)
	require.NoError(t, err)
	require.Contains(t, string(payload), `"event_type":"state_changed"`)

	got, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, event.EntityID, got.EntityID)
	require.Nil(t, got.OldState)
	require.Equal(t, "on", *got.NewState)
	require.True(t, fired.Equal(got.FiredAt))

	_, err = Encode(Event{})
	require.ErrorIs(t, err, ErrMalformed)
}

// TestDecode_Malformed covers payloads a feed must drop.
func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{
		`not json`,
		`{}`,
		`{"event_type":"call_service","data":{"entity_id":"light.a"}}`,
		`{"event_type":"state_changed","data":{"new_state":{"state":"on"}}}`,
		`{"event_type":"state_changed","time_fired":"yesterday","data":{"entity_id":"light.a"}}`,
	} {
		_, err := Decode([]byte(payload))
		require.ErrorIs(t, err, ErrMalformed, payload)
	}
}

// TestDecode_HomeAssistantPayload parses a payload shaped like the HA websocket API.
func TestDecode_HomeAssistantPayload(t *testing.T) {
	t.Parallel()

	payload := `{
	  "event_type": "state_changed",
	  "time_fired": "2023-12-27T15:28:26.287133+00:00",
	  "data": {
	    "entity_id": "switch.pump",
	    "old_state": {"entity_id": "switch.pump", "state": "off", "attributes": {"friendly_name": "Pump"}},
	    "new_state": {"entity_id": "switch.pump", "state": ""}
	  }
	}`

	ev, err := Decode([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, "off", *ev.OldState)
	require.Nil(t, ev.NewState)
	require.Equal(t, 2023, ev.FiredAt.Year())
}

// TestDecode_WebsocketMessage unwraps the websocket subscription message and null states.
func TestDecode_WebsocketMessage(t *testing.T) {
	t.Parallel()

	payload := `{
	  "id": 18,
	  "type": "event",
	  "event": {
	    "event_type": "state_changed",
	    "data": {
	      "entity_id": "light.porch",
	      "old_state": null,
	      "new_state": {"entity_id": "light.porch", "state": "on"}
	    }
	  }
	}`

	ev, err := Decode([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, "light.porch", ev.EntityID)
	require.Nil(t, ev.OldState)
	require.Equal(t, "on", *ev.NewState)
	require.True(t, ev.FiredAt.IsZero())
}

// TestBus_SubscribePublish ensures only subscribers of the entity receive events.
func TestBus_SubscribePublish(t *testing.T) {
	t.Parallel()

	bus := NewBus()

	var got []string

	sub, err := bus.Subscribe(context.Background(), "light.a", func(_ context.Context, ev Event) {
		got = append(got, *ev.NewState)
	})
	require.NoError(t, err)
	require.Equal(t, 1, bus.Subscribers("light.a"))

	bus.Publish(context.Background(), Event{EntityID: "light.a", NewState: strPtr("on")})
	bus.Publish(context.Background(), Event{EntityID: "light.b", NewState: strPtr("off")})

	require.Equal(t, []string{"on"}, got)

	require.NoError(t, sub.Unsubscribe())
	require.Zero(t, bus.Subscribers("light.a"))

	bus.Publish(context.Background(), Event{EntityID: "light.a", NewState: strPtr("off")})
	require.Equal(t, []string{"on"}, got)
}
