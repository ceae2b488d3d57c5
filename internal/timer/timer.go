package timer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/oshokin/persistent-last-changed/internal/logger"
)

// CancelFunc cancels a pending callback. It is a no-op once the callback fired
// or was already cancelled, and it never waits for a callback in progress.
type CancelFunc func()

// Timer schedules a callback at a specific instant.
type Timer interface {
	ScheduleAt(at time.Time, name string, fn func(firedAt time.Time)) (CancelFunc, error)
}

// Scheduler implements Timer with gocron one-time jobs.
type Scheduler struct {
	ctx       context.Context //nolint:containedctx // Used for logging from job callbacks.
	scheduler gocron.Scheduler
	now       func() time.Time
}

var _ Timer = (*Scheduler)(nil)

// NewScheduler creates and starts a gocron scheduler running in loc.
func NewScheduler(ctx context.Context, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}

	s.Start()

	return &Scheduler{
		ctx:       ctx,
		scheduler: s,
		now:       time.Now,
	}, nil
}

// ScheduleAt runs fn once at the given instant.
func (s *Scheduler) ScheduleAt(at time.Time, name string, fn func(firedAt time.Time)) (CancelFunc, error) {
	// claimed is set by whichever of the job and the cancel func gets there
	// first. Neither side waits for the other.
	var claimed atomic.Bool

	fired := func() {
		if claimed.CompareAndSwap(false, true) {
			fn(s.now())
		}
	}

	job, err := s.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(fired),
		gocron.WithName(name),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule %s at %s: %w", name, at.Format(time.RFC3339), err)
	}

	id := job.ID()

	logger.DebugKV(s.ctx, "Timer armed", "name", name, "at", at, "job_id", id.String())

	return func() {
		// A job dispatched after this point becomes a no-op.
		claimed.Store(true)
		s.remove(id, name)
	}, nil
}

func (s *Scheduler) remove(id uuid.UUID, name string) {
	err := s.scheduler.RemoveJob(id)
	if err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		logger.WarnKV(s.ctx, "Failed to cancel timer", "name", name, "job_id", id.String(), "error", err)
	}
}

// Pending returns the number of jobs that have not fired yet.
func (s *Scheduler) Pending() int {
	return len(s.scheduler.Jobs())
}

// Shutdown stops the scheduler and drops pending jobs.
func (s *Scheduler) Shutdown() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown gocron scheduler: %w", err)
	}

	return nil
}
