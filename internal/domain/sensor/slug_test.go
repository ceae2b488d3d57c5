package sensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSlugify checks lowercasing, accent stripping and underscore collapsing.
func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Front Door Last Changed": "front_door_last_changed",
		"  Crème brûlée!! ":       "creme_brulee",
		"binary_sensor.door":      "binary_sensor_door",
		"***":                     "unknown",
	}

	for in, want := range cases {
		require.Equal(t, want, Slugify(in), in)
	}

	require.Equal(t, "sensor.front_door", UniqueID("Front Door"))
}

// TestIsSupportedEntity accepts only known domains with a non-empty object id.
func TestIsSupportedEntity(t *testing.T) {
	t.Parallel()

	require.True(t, IsSupportedEntity("binary_sensor.door"))
	require.True(t, IsSupportedEntity("switch.pump"))
	require.False(t, IsSupportedEntity("automation.morning"))
	require.False(t, IsSupportedEntity("light."))
	require.False(t, IsSupportedEntity("light"))
	require.Equal(t, "light", Domain("light.kitchen"))
	require.Equal(t, "light.kitchen Last Changed", DefaultName("light.kitchen"))
}
