package tracker

import (
	"context"
	"sync"
	"time"

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
	"github.com/oshokin/persistent-last-changed/internal/logger"
	"github.com/oshokin/persistent-last-changed/internal/timer"
)

const (
	// checkHour is the local hour of the daily expiration check.
	checkHour = 12
	// minLeadTime is the shortest delay accepted for the next check.
	minLeadTime = time.Second
)

// Phase is the state of the ExpirationScheduler.
type Phase int

const (
	// Idle means no timer is armed.
	Idle Phase = iota
	// Armed means exactly one timer is pending.
	Armed
)

func (p Phase) String() string {
	if p == Armed {
		return "armed"
	}

	return "idle"
}

// ExpirationScheduler runs the once-daily expiration check of one sensor.
// Its methods must be called with the owning sensor's lock held; the timer
// callback acquires that lock itself.
type ExpirationScheduler struct {
	ctx      context.Context //nolint:containedctx // Logging context for timer callbacks.
	lock     sync.Locker
	state    *domain.TrackedState
	timer    timer.Timer
	loc      *time.Location
	name     string
	onChange func(expired bool)

	// OnCheck, when set, runs under lock after every check.
	OnCheck func(expired bool)
	// OnArmFailure, when set, runs under lock when a check cannot re-arm
	// the next one. The scheduler is left Idle.
	OnArmFailure func(err error)

	phase      Phase
	cancel     timer.CancelFunc
	generation uint64
	nextFire   time.Time
}

// NewExpirationScheduler creates an idle scheduler. onChange runs, under lock,
// whenever a check flips the expired flag.
func NewExpirationScheduler(
	ctx context.Context,
	lock sync.Locker,
	state *domain.TrackedState,
	t timer.Timer,
	loc *time.Location,
	name string,
	onChange func(expired bool),
) *ExpirationScheduler {
	if loc == nil {
		loc = time.Local
	}

	return &ExpirationScheduler{
		ctx:      ctx,
		lock:     lock,
		state:    state,
		timer:    t,
		loc:      loc,
		name:     name,
		onChange: onChange,
	}
}

// Phase reports whether a timer is armed.
func (s *ExpirationScheduler) Phase() Phase {
	return s.phase
}

// NextFire returns the armed fire instant, or the zero time when idle.
func (s *ExpirationScheduler) NextFire() time.Time {
	if s.phase != Armed {
		return time.Time{}
	}

	return s.nextFire
}

// Start cancels any armed timer and, when expiration is enabled, arms the next daily check.
func (s *ExpirationScheduler) Start(now time.Time) error {
	s.Stop()

	if !s.state.ExpirationEnabled() {
		return nil
	}

	at := NextFireTime(now, s.loc)

	s.generation++
	generation := s.generation

	cancel, err := s.timer.ScheduleAt(at, s.name+"-expiration", func(firedAt time.Time) {
		s.lock.Lock()
		defer s.lock.Unlock()

		// A callback that lost the race against Stop or a re-arm is stale.
		if s.phase != Armed || s.generation != generation {
			return
		}

		s.OnTimerFired(firedAt)
	})
	if err != nil {
		return err
	}

	s.cancel = cancel
	s.nextFire = at
	s.phase = Armed

	logger.DebugKV(s.ctx, "Expiration check armed", "at", at)

	return nil
}

// OnTimerFired recomputes the expired flag and re-arms the next check.
// It reports whether the flag changed.
func (s *ExpirationScheduler) OnTimerFired(now time.Time) bool {
	// The handle that just fired is spent.
	s.cancel = nil
	s.phase = Idle

	expired := IsExpired(s.state, now)
	changed := expired != s.state.IsExpired

	logger.DebugKV(s.ctx, "Expiration recalculated", "old", s.state.IsExpired, "new", expired)

	if s.OnCheck != nil {
		s.OnCheck(expired)
	}

	if changed {
		s.state.IsExpired = expired
		if s.onChange != nil {
			s.onChange(expired)
		}
	}

	if err := s.Start(now); err != nil {
		logger.ErrorKV(s.ctx, "Failed to re-arm expiration check", "error", err)

		if s.OnArmFailure != nil {
			s.OnArmFailure(err)
		}
	}

	return changed
}

// Stop cancels the pending timer. Calling it while idle is a no-op.
func (s *ExpirationScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.phase = Idle
	s.nextFire = time.Time{}
}

// NextFireTime returns the next local noon after now. An instant at most one
// second away is skipped in favor of the following day's noon.
func NextFireTime(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}

	local := now.In(loc)

	next := nextNoon(local)
	if next.Sub(local) <= minLeadTime {
		next = nextNoon(local.AddDate(0, 0, 1))
	}

	return next
}

// nextNoon returns the first noon at or after t, in t's location.
func nextNoon(t time.Time) time.Time {
	noon := time.Date(t.Year(), t.Month(), t.Day(), checkHour, 0, 0, 0, t.Location())
	if noon.Before(t) {
		noon = time.Date(t.Year(), t.Month(), t.Day()+1, checkHour, 0, 0, 0, t.Location())
	}

	return noon
}

// IsExpired reports whether ExpirationDays or more days elapsed since the
// last change. A sensor that never changed counts as changed right now.
func IsExpired(state *domain.TrackedState, now time.Time) bool {
	if !state.ExpirationEnabled() {
		return false
	}

	since := now
	if state.LastChangedAt != nil {
		since = *state.LastChangedAt
	}

	elapsedDays := now.Sub(since).Seconds() / domain.SecondsPerDay

	return elapsedDays >= float64(*state.ExpirationDays)
}
