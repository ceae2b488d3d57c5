package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func validConfig() *Config {
	return &Config{
		NATS: NATSConfig{URL: "nats://127.0.0.1:4222"},
		Sensors: []SensorConfig{
			{Entity: "binary_sensor.front_door", Name: "Front Door", ExpirationDays: intPtr(5)},
			{Entity: "light.kitchen"},
		},
	}
}

// TestValidate checks required fields, defaults and sensor validation.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing NATS URL.
	require.ErrorIs(t, Validate(new(Config)), errNATSURLRequired)
	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)

	// Defaults filled.
	cfg := validConfig()
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultSubjectPrefix, cfg.NATS.SubjectPrefix)
	require.Equal(t, DefaultTimeout, cfg.NATS.Timeout)
	require.Equal(t, DriverFile, cfg.Storage.Driver)
	require.Equal(t, DefaultStateFilename, cfg.Storage.Path)
	require.Equal(t, "light.kitchen Last Changed", cfg.Sensors[1].Name)
	require.Equal(t, "sensor.front_door", cfg.Sensors[0].UniqueID())

	// Unsupported domain.
	cfg = validConfig()
	cfg.Sensors[0].Entity = "automation.wake_up"
	require.ErrorIs(t, Validate(cfg), errUnsupportedEntity)

	// Out of range expiration.
	cfg = validConfig()
	cfg.Sensors[0].ExpirationDays = intPtr(101)
	require.ErrorIs(t, Validate(cfg), errExpirationRange)

	cfg.Sensors[0].ExpirationDays = intPtr(-1)
	require.ErrorIs(t, Validate(cfg), errExpirationRange)

	cfg.Sensors[0].ExpirationDays = intPtr(0)
	require.NoError(t, Validate(cfg))

	// Duplicate unique id.
	cfg = validConfig()
	cfg.Sensors[1].Name = "front door"
	require.ErrorIs(t, Validate(cfg), errDuplicateSensor)

	// Unknown driver and bad zone.
	cfg = validConfig()
	cfg.Storage.Driver = "redis"
	require.ErrorIs(t, Validate(cfg), errUnknownDriver)

	cfg = validConfig()
	cfg.TimeZone = "Mars/Olympus"
	require.Error(t, Validate(cfg))

	cfg = validConfig()
	cfg.ListenAddress = "no-port"
	require.Error(t, Validate(cfg))
}

// TestValidate_StorageDefaults checks driver specific defaults.
func TestValidate_StorageDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Storage.Driver = DriverNATSKV
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultBucket, cfg.Storage.Bucket)

	cfg = validConfig()
	cfg.Storage.Driver = DriverSQLite
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultDatabaseFilename, cfg.Storage.Path)

	// Home-relative paths are expanded.
	home, err := homedir.Dir()
	require.NoError(t, err)

	cfg = validConfig()
	cfg.Storage.Path = "~/last-changed/state.json"
	require.NoError(t, Validate(cfg))
	require.Equal(t, filepath.Join(home, "last-changed", "state.json"), cfg.Storage.Path)
}

// TestLocation resolves named zones and defaults to local time.
func TestLocation(t *testing.T) {
	t.Parallel()

	loc, err := (&Config{}).Location()
	require.NoError(t, err)
	require.Equal(t, time.Local, loc)

	loc, err = (&Config{TimeZone: "UTC"}).Location()
	require.NoError(t, err)
	require.Equal(t, "UTC", loc.String())
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := validConfig()
	settings.TimeZone = "UTC"

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.NATS.URL, loaded.NATS.URL)
	require.Equal(t, settings.Sensors, loaded.Sensors)
	require.Nil(t, loaded.Sensors[1].ExpirationDays)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.ErrorIs(t, Save(path, nil), errConfigIsNotSet)
}

// TestLoad_YAML parses a hand-written file.
func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "last-changed.yaml")
	contents := `
log_level: debug
time_zone: Europe/Berlin
nats:
  url: nats://localhost:4222
storage:
  driver: sqlite
  path: state.db
sensors:
  - entity: binary_sensor.mailbox
    name: Mailbox
    expiration_days: 2
`
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, DriverSQLite, cfg.Storage.Driver)
	require.Len(t, cfg.Sensors, 1)
	require.Equal(t, 2, *cfg.Sensors[0].ExpirationDays)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

// TestWatch_ReloadsOnChange verifies valid rewrites are delivered and invalid ones skipped.
func TestWatch_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "last-changed.yaml")
	require.NoError(t, Save(path, validConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { changes <- cfg })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("nats: ["), DefaultFilePermissions))
	time.Sleep(2 * reloadDebounce)

	updated := validConfig()
	updated.Sensors = updated.Sensors[:1]
	require.NoError(t, Save(path, updated))

	select {
	case cfg := <-changes:
		require.Len(t, cfg.Sensors, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration change not delivered")
	}

	cancel()
	require.NoError(t, <-done)
}

// TestWatch_ExpandsHome watches the directory under the home directory, not a literal ~.
func TestWatch_ExpandsHome(t *testing.T) {
	t.Parallel()

	home, err := homedir.Dir()
	require.NoError(t, err)

	missing := "last-changed-missing-" + filepath.Base(t.TempDir())

	err = Watch(context.Background(), "~/"+missing+"/last-changed.yaml", func(*Config) {})
	require.Error(t, err)
	require.Contains(t, err.Error(), filepath.Join(home, missing))
	require.NotContains(t, err.Error(), "~")
}

// TestLoad_EnvFile expands ${VAR} references from a .env file next to the settings.
// Not parallel: it changes the process environment.
func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("LAST_CHANGED_TEST_LOG_LEVEL", "debug")
	t.Cleanup(func() { _ = os.Unsetenv("LAST_CHANGED_TEST_NATS_URL") })

	env := "LAST_CHANGED_TEST_NATS_URL=nats://broker:4222\nLAST_CHANGED_TEST_LOG_LEVEL=error\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFilename), []byte(env), DefaultFilePermissions))

	settings := `
log_level: ${LAST_CHANGED_TEST_LOG_LEVEL}
nats:
  url: ${LAST_CHANGED_TEST_NATS_URL}
sensors:
  - entity: switch.pump
`
	path := filepath.Join(dir, "last-changed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(settings), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	// Variables already set are not overridden by the file.
	require.Equal(t, "debug", cfg.LogLevel)
}
