package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
	"github.com/oshokin/persistent-last-changed/internal/feed"
	"github.com/oshokin/persistent-last-changed/internal/logger"
	"github.com/oshokin/persistent-last-changed/internal/metrics"
	"github.com/oshokin/persistent-last-changed/internal/timer"
)

// Slot is the durable slot a sensor restores from and publishes to.
type Slot interface {
	LoadPrior(ctx context.Context) (*domain.Snapshot, error)
	Publish(ctx context.Context, snapshot *domain.Snapshot) error
}

// Options configures a Sensor.
type Options struct {
	// UniqueID identifies the sensor; it keys the slot and labels logs and metrics.
	UniqueID string
	// Name is the display name.
	Name string
	// Entity is the watched source entity id.
	Entity string
	// ExpirationDays is the optional expiration threshold.
	ExpirationDays *int
	// Location is the zone of the daily noon check and of local_format.
	Location *time.Location
	// Feed delivers source state changes.
	Feed feed.Feed
	// Timer arms the daily check.
	Timer timer.Timer
	// Slot persists snapshots.
	Slot Slot
	// Metrics is optional.
	Metrics *metrics.Recorder
	// Now overrides the clock, defaults to time.Now.
	Now func() time.Time
}

var (
	// errMissingDependency is returned when a required collaborator is nil.
	errMissingDependency = errors.New("sensor dependency is not set")
	// errAlreadyStarted is returned when Start is called twice.
	errAlreadyStarted = errors.New("sensor already started")
)

// Sensor is one configured last-changed sensor. It owns the TrackedState,
// which only its feed and timer handlers mutate, one at a time under mu.
type Sensor struct {
	opts Options
	mu   sync.Mutex

	state      *domain.TrackedState
	tracker    *ChangeTracker
	expiration *ExpirationScheduler

	ctx     context.Context //nolint:containedctx // Logging context for callbacks.
	sub     feed.Subscription
	started bool
	stopped bool
}

// New creates a sensor with fresh state. Nothing happens until Start.
func New(opts Options) (*Sensor, error) {
	if opts.Feed == nil || opts.Timer == nil || opts.Slot == nil {
		return nil, errMissingDependency
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Location == nil {
		opts.Location = time.Local
	}

	state := domain.NewTrackedState(opts.Entity, opts.ExpirationDays)

	return &Sensor{
		opts:    opts,
		state:   state,
		tracker: NewChangeTracker(state),
	}, nil
}

// ID returns the sensor unique id.
func (s *Sensor) ID() string {
	return s.opts.UniqueID
}

// Name returns the display name.
func (s *Sensor) Name() string {
	return s.opts.Name
}

// Start rehydrates the state from the slot, subscribes to the source entity,
// arms the daily expiration check and publishes the current state.
func (s *Sensor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errAlreadyStarted
	}

	// Callbacks outlive the caller's context; keep its logger, drop its cancellation.
	ctx = logger.WithKV(context.WithoutCancel(ctx), "sensor", s.opts.UniqueID)
	s.ctx = ctx

	prior, err := s.opts.Slot.LoadPrior(ctx)
	if err != nil {
		return fmt.Errorf("load prior state: %w", err)
	}

	if err = s.state.Restore(prior); err != nil {
		return fmt.Errorf("restore prior state: %w", err)
	}

	if prior != nil {
		logger.InfoKV(ctx, "Restored prior state",
			"last_changed", prior.State,
			"last_state", s.state.LastValue,
			"is_expired", s.state.IsExpired)
	}

	s.opts.Metrics.ObserveRestored(s.opts.UniqueID, s.state.LastChangedAt, s.state.IsExpired)

	s.expiration = NewExpirationScheduler(ctx, &s.mu, s.state, s.opts.Timer, s.opts.Location, s.opts.UniqueID,
		func(expired bool) {
			s.opts.Metrics.SetExpired(s.opts.UniqueID, expired)
			s.publish()
		})
	s.expiration.OnCheck = func(expired bool) {
		s.opts.Metrics.ObserveCheck(s.opts.UniqueID, expired)
	}
	s.expiration.OnArmFailure = func(error) {
		s.opts.Metrics.IncArmFailure(s.opts.UniqueID)
	}

	sub, err := s.opts.Feed.Subscribe(ctx, s.opts.Entity, s.handleEvent)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.opts.Entity, err)
	}

	s.sub = sub

	if err = s.expiration.Start(s.opts.Now()); err != nil {
		_ = sub.Unsubscribe()

		return fmt.Errorf("arm expiration check: %w", err)
	}

	s.started = true

	s.publish()

	logger.InfoKV(ctx, "Sensor started",
		"entity", s.opts.Entity,
		"expiration_days", s.opts.ExpirationDays,
		"next_check", s.expiration.NextFire())

	return nil
}

// Stop unsubscribes from the feed and cancels the pending timer. It is idempotent.
func (s *Sensor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return nil
	}

	s.stopped = true

	s.expiration.Stop()

	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe from %s: %w", s.opts.Entity, err)
	}

	logger.InfoKV(s.ctx, "Sensor stopped")

	return nil
}

// Snapshot returns the current published representation of the sensor.
func (s *Sensor) Snapshot() *domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Snapshot(s.opts.Location)
}

// State returns a copy of the tracked state.
func (s *Sensor) State() *domain.TrackedState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Clone()
}

// ExpirationPhase reports whether the daily check is armed.
func (s *Sensor) ExpirationPhase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiration == nil {
		return Idle
	}

	return s.expiration.Phase()
}

// NextCheck returns the armed expiration check instant, zero when none is armed.
func (s *Sensor) NextCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiration == nil {
		return time.Time{}
	}

	return s.expiration.NextFire()
}

// Entity returns the watched source entity id.
func (s *Sensor) Entity() string {
	return s.opts.Entity
}

// handleEvent is the feed callback.
func (s *Sensor) handleEvent(_ context.Context, event feed.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	logger.DebugKV(s.ctx, "Source entity changed",
		"entity", event.EntityID,
		"old_state", event.OldState,
		"new_state", event.NewState)

	now := s.opts.Now()

	outcome := s.tracker.OnSourceEvent(event.OldState, event.NewState, now)
	switch outcome {
	case Recorded:
		s.opts.Metrics.ObserveChange(s.opts.UniqueID, *s.state.LastChangedAt)
		logger.DebugKV(s.ctx, "Sensor updated", "last_changed", *s.state.LastChangedAt, "last_state", *s.state.LastValue)
		s.publish()
	case Missing:
		s.opts.Metrics.IncFiltered(s.opts.UniqueID, metrics.ReasonMissing)
	case Sentinel:
		s.opts.Metrics.IncFiltered(s.opts.UniqueID, metrics.ReasonSentinel)
	case Duplicate:
		s.opts.Metrics.IncFiltered(s.opts.UniqueID, metrics.ReasonDuplicate)
	}

	s.rearmExpiration(now)
}

// rearmExpiration retries arming a daily check that failed to re-arm.
// Callers hold mu.
func (s *Sensor) rearmExpiration(now time.Time) {
	if !s.state.ExpirationEnabled() || s.expiration.Phase() == Armed {
		return
	}

	if err := s.expiration.Start(now); err != nil {
		s.opts.Metrics.IncArmFailure(s.opts.UniqueID)
		logger.ErrorKV(s.ctx, "Failed to re-arm expiration check", "error", err)

		return
	}

	logger.InfoKV(s.ctx, "Expiration check re-armed", "next_check", s.expiration.NextFire())
}

// publish writes the current snapshot to the slot. Failures are logged and
// counted; the in-memory state stays authoritative. Callers hold mu.
func (s *Sensor) publish() {
	snapshot := s.state.Snapshot(s.opts.Location)

	if err := s.opts.Slot.Publish(s.ctx, snapshot); err != nil {
		s.opts.Metrics.IncPublishFailure(s.opts.UniqueID)
		logger.ErrorKV(s.ctx, "Failed to publish sensor state", "error", err)
	}
}
