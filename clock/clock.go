package clock

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Clock is the time source and timer used to pace retransmissions.
type Clock interface {
	Now() time.Time
	// After delivers the current time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// Sleep waits for d on clk or until ctx is done.
func Sleep(ctx context.Context, clk Clock, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(d):
		return nil
	}
}

// System is the wall clock.
//
// Waits shorter than SpinThreshold busy-spin on time.Now, yielding with
// runtime.Gosched, since runtime timers may fire up to a millisecond late.
// Each such wait occupies one core for at most SpinThreshold.
type System struct {
	SpinThreshold time.Duration
}

var _ Clock = System{}

func (c System) Now() time.Time {
	return time.Now()
}

func (c System) After(d time.Duration) <-chan time.Time {
	if d <= 0 {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	if d >= c.SpinThreshold {
		return time.After(d)
	}
	ch := make(chan time.Time, 1)
	go func() {
		deadline := time.Now().Add(d)
		for {
			now := time.Now()
			if !now.Before(deadline) {
				ch <- now
				return
			}
			runtime.Gosched()
		}
	}()
	return ch
}

// Manual is a deterministic clock: After advances Now by d and fires at once.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

var _ Clock = (*Manual)(nil)

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waits = append(m.waits, d)
	if d > 0 {
		m.now = m.now.Add(d)
	}
	ch := make(chan time.Time, 1)
	ch <- m.now
	return ch
}

// Advance moves Now forward without recording a wait.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Waits returns every duration passed to After so far.
func (m *Manual) Waits() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.waits...)
}
