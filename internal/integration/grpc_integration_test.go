package integration

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/persistent-last-changed/internal/api/grpc/sensor"
	"github.com/oshokin/persistent-last-changed/internal/config"
	"github.com/oshokin/persistent-last-changed/internal/natstest"
	"github.com/oshokin/persistent-last-changed/internal/service/emit"
	"github.com/oshokin/persistent-last-changed/internal/service/server"
)

const doorSensorID = "sensor.front_door_last_changed"

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }

// freeAddress reserves a free local port for a test server.
func freeAddress(t *testing.T) string {
	t.Helper()

	l, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// startServer runs server.Run in the background and waits until the API answers.
// The returned stop function cancels it and waits for Run to return.
func startServer(t *testing.T, cfgPath string, client *api.Client) (stop func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- server.Run(ctx, &server.Options{ConfigPath: cfgPath, Watch: true})
	}()

	require.Eventually(t, func() bool {
		_, err := client.ListSensors(context.Background())

		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	return func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("server did not stop")
		}
	}
}

func field(s *structpb.Struct, name string) *structpb.Value {
	return s.GetFields()[name]
}

func lastState(s *structpb.Struct) string {
	return field(s, api.FieldAttributes).GetStructValue().GetFields()["last_state"].GetStringValue()
}

// TestSensor_RestartFidelity records a change over NATS, restarts the server
// and reads the same value back before any new event arrives.
func TestSensor_RestartFidelity(t *testing.T) {
	t.Parallel()

	ns, _ := natstest.Start(t)
	addr := freeAddress(t)
	cfgPath := filepath.Join(t.TempDir(), "last-changed.yaml")

	require.NoError(t, config.Save(cfgPath, &config.Config{
		ListenAddress: addr,
		TimeZone:      "UTC",
		NATS:          config.NATSConfig{URL: ns.ClientURL()},
		Storage:       config.StorageConfig{Driver: config.DriverNATSKV},
		Sensors: []config.SensorConfig{{
			Entity:         "binary_sensor.front_door",
			Name:           "Front Door Last Changed",
			ExpirationDays: intPtr(5),
		}},
	}))

	ctx := context.Background()

	client, err := api.Dial(ctx, addr, api.WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	stop := startServer(t, cfgPath, client)

	// Fresh sensor: no value yet, daily check armed.
	got, err := client.GetSensor(ctx, doorSensorID)
	require.NoError(t, err)
	require.Nil(t, field(got, api.FieldState).AsInterface())
	require.NotEmpty(t, field(got, api.FieldNextCheck).GetStringValue())

	require.Eventually(t, func() bool {
		err := emit.Run(ctx, &emit.Options{
			NATSURL:  ns.ClientURL(),
			EntityID: "binary_sensor.front_door",
			OldState: strPtr("off"),
			NewState: strPtr("on"),
		})
		if err != nil {
			return false
		}

		got, err = client.GetSensor(ctx, doorSensorID)

		return err == nil && lastState(got) == "on"
	}, 10*time.Second, 50*time.Millisecond)

	recorded := field(got, api.FieldState).GetStringValue()
	require.NotEmpty(t, recorded)

	stop()

	stop = startServer(t, cfgPath, client)
	defer stop()

	got, err = client.GetSensor(ctx, doorSensorID)
	require.NoError(t, err)
	require.Equal(t, recorded, field(got, api.FieldState).GetStringValue())
	require.Equal(t, "on", lastState(got))
}

// TestSensor_ConfigReload adds a sensor by rewriting the config of a running server.
func TestSensor_ConfigReload(t *testing.T) {
	t.Parallel()

	ns, _ := natstest.Start(t)
	addr := freeAddress(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "last-changed.yaml")

	cfg := &config.Config{
		ListenAddress: addr,
		NATS:          config.NATSConfig{URL: ns.ClientURL()},
		Storage:       config.StorageConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "state.db")},
		Sensors: []config.SensorConfig{{
			Entity: "binary_sensor.front_door",
			Name:   "Front Door Last Changed",
		}},
	}
	require.NoError(t, config.Save(cfgPath, cfg))

	ctx := context.Background()

	client, err := api.Dial(ctx, addr, api.WithCallTimeout(3*time.Second))
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	stop := startServer(t, cfgPath, client)
	defer stop()

	cfg.Sensors = append(cfg.Sensors, config.SensorConfig{Entity: "light.porch"})

	require.Eventually(t, func() bool {
		// Rewrite on every attempt in case the watcher was not registered yet.
		if err := config.Save(cfgPath, cfg); err != nil {
			return false
		}

		got, err := client.GetSensor(ctx, "sensor.light_porch_last_changed")

		return err == nil && field(got, api.FieldName).GetStringValue() == "light.porch Last Changed"
	}, 10*time.Second, 500*time.Millisecond)

	_, err = os.Stat(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
}
