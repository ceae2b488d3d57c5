package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
)

// Config holds the process settings and the list of configured sensors.
type Config struct {
	// LogLevel is the minimum zap level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// LogFormat selects console or json log output.
	LogFormat string `yaml:"log_format"`
	// TimeZone is the IANA zone used for the daily noon check and local_format.
	TimeZone string `yaml:"time_zone"`
	// ListenAddress is the gRPC read API address; empty disables the API.
	ListenAddress string `yaml:"listen_addr"`
	// MetricsAddress is the Prometheus HTTP address; empty disables metrics serving.
	MetricsAddress string `yaml:"metrics_addr"`
	// NATS configures the state-change event feed.
	NATS NATSConfig `yaml:"nats"`
	// Storage configures the durable slot backend.
	Storage StorageConfig `yaml:"storage"`
	// Sensors lists the configured last-changed sensors.
	Sensors []SensorConfig `yaml:"sensors"`
}

// NATSConfig describes the connection to the state-change feed.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `yaml:"url"`
	// SubjectPrefix is prepended to the entity id to form the event subject.
	SubjectPrefix string `yaml:"subject_prefix"`
	// Timeout bounds connection and KV operations.
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects where sensor snapshots survive restarts.
type StorageConfig struct {
	// Driver is one of file, sqlite or nats-kv.
	Driver string `yaml:"driver"`
	// Path is the state file or sqlite database path.
	Path string `yaml:"path"`
	// Bucket is the JetStream key-value bucket for the nats-kv driver.
	Bucket string `yaml:"bucket"`
}

// SensorConfig is one configured sensor.
type SensorConfig struct {
	// Entity is the watched source entity id.
	Entity string `yaml:"entity"`
	// Name is the display name; it also determines the unique id.
	Name string `yaml:"name"`
	// ExpirationDays is optional; absent disables expiration.
	ExpirationDays *int `yaml:"expiration_days,omitempty"`
}

// UniqueID returns the sensor id derived from the display name.
func (s *SensorConfig) UniqueID() string {
	return domain.UniqueID(s.Name)
}

// Storage drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverNATSKV = "nats-kv"
)

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "last-changed.yaml"

	// EnvFilename is the optional environment file read next to the settings.
	EnvFilename = ".env"

	// DefaultStateFilename is the default filename for the file slot.
	DefaultStateFilename = "last-changed-state.json"

	// DefaultDatabaseFilename is the default database for the sqlite slot.
	DefaultDatabaseFilename = "last-changed.db"

	// DefaultBucket is the default JetStream KV bucket.
	DefaultBucket = "last_changed"

	// DefaultSubjectPrefix matches the subjects the emit command publishes to.
	DefaultSubjectPrefix = "homeassistant.state_changed"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// MaxExpirationDays is the largest accepted expiration threshold.
	MaxExpirationDays = 100
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNATSURLRequired is returned when no feed is configured.
	errNATSURLRequired = errors.New("nats url must be provided")
	// errUnknownDriver is returned for unsupported storage drivers.
	errUnknownDriver = errors.New("unknown storage driver")
	// errUnsupportedEntity is returned when a sensor watches an unsupported domain.
	errUnsupportedEntity = errors.New("entity is not of a supported domain")
	// errExpirationRange is returned for thresholds outside 0..MaxExpirationDays.
	errExpirationRange = errors.New("expiration_days out of range")
	// errDuplicateSensor is returned when two sensors share a unique id.
	errDuplicateSensor = errors.New("duplicate sensor")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	// A .env file next to the settings fills in the environment before
	// ${VAR} references are expanded; variables already set win.
	if err = loadEnvFile(filepath.Join(filepath.Dir(path), EnvFilename)); err != nil {
		return nil, err
	}

	contents = []byte(os.ExpandEnv(string(contents)))

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings, fills defaults and validates every sensor.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.NATS.URL == "" {
		return errNATSURLRequired
	}

	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = DefaultSubjectPrefix
	}

	// Set default timeout if not specified
	if cfg.NATS.Timeout <= 0 {
		cfg.NATS.Timeout = DefaultTimeout
	}

	if _, err := cfg.Location(); err != nil {
		return err
	}

	for _, addr := range []string{cfg.ListenAddress, cfg.MetricsAddress} {
		if addr == "" {
			continue
		}

		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
	}

	if err := validateStorage(&cfg.Storage); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(cfg.Sensors))

	for i := range cfg.Sensors {
		sensor := &cfg.Sensors[i]
		if err := ValidateSensor(sensor); err != nil {
			return fmt.Errorf("sensor #%d: %w", i+1, err)
		}

		id := sensor.UniqueID()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", errDuplicateSensor, id)
		}

		seen[id] = struct{}{}
	}

	return nil
}

// ValidateSensor checks one sensor entry and fills its default name.
func ValidateSensor(sensor *SensorConfig) error {
	if !domain.IsSupportedEntity(sensor.Entity) {
		return fmt.Errorf("%w: %q", errUnsupportedEntity, sensor.Entity)
	}

	if sensor.Name == "" {
		sensor.Name = domain.DefaultName(sensor.Entity)
	}

	if days := sensor.ExpirationDays; days != nil && (*days < 0 || *days > MaxExpirationDays) {
		return fmt.Errorf("%w: %d", errExpirationRange, *days)
	}

	return nil
}

// Location resolves TimeZone, defaulting to the process local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}

	return loc, nil
}

// resolvePath applies the default settings filename and expands a leading ~.
func resolvePath(path string) (string, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand settings path: %w", err)
	}

	return filepath.Clean(expanded), nil
}

// loadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}

func validateStorage(storage *StorageConfig) error {
	switch storage.Driver {
	case "", DriverFile:
		storage.Driver = DriverFile
		if storage.Path == "" {
			storage.Path = DefaultStateFilename
		}
	case DriverSQLite:
		if storage.Path == "" {
			storage.Path = DefaultDatabaseFilename
		}
	case DriverNATSKV:
		if storage.Bucket == "" {
			storage.Bucket = DefaultBucket
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownDriver, storage.Driver)
	}

	// Allow ~/ in state paths.
	path, err := homedir.Expand(storage.Path)
	if err != nil {
		return fmt.Errorf("expand storage path: %w", err)
	}

	storage.Path = path

	return nil
}
