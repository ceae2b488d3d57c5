package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/oshokin/persistent-last-changed/internal/domain/sensor"
	"github.com/oshokin/persistent-last-changed/internal/timer"
)

var (
	errTestLoad    = errors.New("test load error")
	errTestPublish = errors.New("test publish error")
)

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }

// scheduled is one callback registered with fakeTimer.
type scheduled struct {
	at        time.Time
	fn        func(time.Time)
	cancelled bool
}

// fakeTimer records scheduled callbacks; tests fire them explicitly.
type fakeTimer struct {
	mu      sync.Mutex
	entries []*scheduled
	err     error
}

func (f *fakeTimer) ScheduleAt(at time.Time, _ string, fn func(time.Time)) (timer.CancelFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	entry := &scheduled{at: at, fn: fn}
	f.entries = append(f.entries, entry)

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		entry.cancelled = true
	}, nil
}

// pending returns callbacks that were neither cancelled nor fired.
func (f *fakeTimer) pending() []*scheduled {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*scheduled

	for _, e := range f.entries {
		if !e.cancelled {
			out = append(out, e)
		}
	}

	return out
}

// fire runs the single pending callback as if the timer elapsed at now.
func (f *fakeTimer) fire(now time.Time) bool {
	p := f.pending()
	if len(p) != 1 {
		return false
	}

	f.mu.Lock()
	p[0].cancelled = true
	f.mu.Unlock()

	p[0].fn(now)

	return true
}

// memorySlot is an in-memory durable slot.
type memorySlot struct {
	mu         sync.Mutex
	prior      *domain.Snapshot
	loadErr    error
	publishErr error
	published  []*domain.Snapshot
}

func (m *memorySlot) LoadPrior(context.Context) (*domain.Snapshot, error) {
	return m.prior, m.loadErr
}

func (m *memorySlot) Publish(_ context.Context, s *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishErr != nil {
		return m.publishErr
	}

	m.published = append(m.published, s)

	return nil
}

func (m *memorySlot) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.published)
}

func (m *memorySlot) last() *domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.published) == 0 {
		return nil
	}

	return m.published[len(m.published)-1]
}
