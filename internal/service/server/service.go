package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	api "github.com/oshokin/persistent-last-changed/internal/api/grpc/sensor"
	"github.com/oshokin/persistent-last-changed/internal/config"
	"github.com/oshokin/persistent-last-changed/internal/feed"
	"github.com/oshokin/persistent-last-changed/internal/logger"
	"github.com/oshokin/persistent-last-changed/internal/metrics"
	"github.com/oshokin/persistent-last-changed/internal/repository/slot"
	"github.com/oshokin/persistent-last-changed/internal/service/tracker"
	"github.com/oshokin/persistent-last-changed/internal/timer"
)

// dependencies are the collaborators shared by every sensor of the process.
type dependencies struct {
	// feed delivers source state changes.
	feed feed.Feed
	// timer arms the daily expiration checks.
	timer timer.Timer
	// repo stores the sensor snapshots.
	repo slot.Repository
	// metrics is optional.
	metrics *metrics.Recorder
	// now overrides the sensor clock in tests.
	now func() time.Time
}

// service owns the running sensors and rebuilds them on configuration changes.
// It is unexported to keep the transport decoupled from the implementation.
type service struct {
	deps dependencies

	// mu protects sensors and order.
	mu sync.RWMutex
	// sensors maps unique ids to running sensors.
	sensors map[string]*tracker.Sensor
	// order keeps the configuration order for listing.
	order []string
}

var _ api.Service = (*service)(nil)

// newService creates an empty service. Nothing runs until apply.
func newService(deps dependencies) *service {
	return &service{
		deps:    deps,
		sensors: make(map[string]*tracker.Sensor),
	}
}

// apply stops every running sensor and starts the configured ones. A sensor
// that fails to start is skipped; the returned error joins every failure.
func (s *service) apply(ctx context.Context, cfg *config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.sensors
	s.stopLocked(ctx)

	s.sensors = make(map[string]*tracker.Sensor, len(cfg.Sensors))
	s.order = s.order[:0]

	var errs []error

	for i := range cfg.Sensors {
		sensorCfg := cfg.Sensors[i]
		id := sensorCfg.UniqueID()

		sensor, err := s.startSensor(ctx, &sensorCfg, id, loc)
		if err != nil {
			logger.ErrorKV(ctx, "Failed to start sensor", "sensor", id, "error", err)
			errs = append(errs, fmt.Errorf("sensor %s: %w", id, err))

			continue
		}

		s.sensors[id] = sensor
		s.order = append(s.order, id)
	}

	// Drop the series of sensors that are gone.
	for id := range previous {
		if _, ok := s.sensors[id]; !ok {
			s.deps.metrics.Forget(id)
		}
	}

	logger.InfoKV(ctx, "Sensors applied", "running", len(s.order), "failed", len(errs))

	return errors.Join(errs...)
}

func (s *service) startSensor(
	ctx context.Context,
	cfg *config.SensorConfig,
	id string,
	loc *time.Location,
) (*tracker.Sensor, error) {
	sensor, err := tracker.New(tracker.Options{
		UniqueID:       id,
		Name:           cfg.Name,
		Entity:         cfg.Entity,
		ExpirationDays: cfg.ExpirationDays,
		Location:       loc,
		Feed:           s.deps.feed,
		Timer:          s.deps.timer,
		Slot:           slot.New(s.deps.repo, id),
		Metrics:        s.deps.metrics,
		Now:            s.deps.now,
	})
	if err != nil {
		return nil, err
	}

	if err = sensor.Start(ctx); err != nil {
		return nil, err
	}

	return sensor, nil
}

// stop stops every running sensor.
func (s *service) stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked(ctx)
	s.sensors = make(map[string]*tracker.Sensor)
	s.order = nil
}

func (s *service) stopLocked(ctx context.Context) {
	for _, id := range s.order {
		if err := s.sensors[id].Stop(); err != nil {
			logger.ErrorKV(ctx, "Failed to stop sensor", "sensor", id, "error", err)
		}
	}
}

// Sensor returns the view of one running sensor.
func (s *service) Sensor(_ context.Context, id string) (*api.Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sensor, ok := s.sensors[id]
	if !ok {
		return nil, false
	}

	return toInfo(sensor), true
}

// Sensors returns every running sensor in configuration order.
func (s *service) Sensors(_ context.Context) []*api.Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*api.Info, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, toInfo(s.sensors[id]))
	}

	return result
}

func toInfo(sensor *tracker.Sensor) *api.Info {
	return &api.Info{
		ID:        sensor.ID(),
		Name:      sensor.Name(),
		Entity:    sensor.Entity(),
		Snapshot:  sensor.Snapshot(),
		NextCheck: sensor.NextCheck(),
	}
}
