package plexclock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/plexil-group/plexil-sub002/pkg/plexclock"
)

// countingStepper records every Step call, unblocking a channel after each
// one so tests can wait for a specific call count without a fixed sleep.
type countingStepper struct {
	mu    sync.Mutex
	calls int
	ch    chan struct{}
}

func newCountingStepper() *countingStepper {
	return &countingStepper{ch: make(chan struct{}, 64)}
}

func (s *countingStepper) Step() error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	s.ch <- struct{}{}
	return nil
}

func (s *countingStepper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingStepper) waitForCall(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.ch:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a Step call")
	}
}

func (s *countingStepper) expectNoCallWithin(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-s.ch:
		t.Fatal("unexpected Step call")
	case <-time.After(d):
	}
}

func TestScheduleWakeFiresOnceAtDeadline(t *testing.T) {
	clock := plexclock.New(zerolog.Nop())
	stepper := newCountingStepper()

	clock.ScheduleWake("wake1", time.Now().Add(50*time.Millisecond), stepper)
	stepper.waitForCall(t, 2*time.Second)

	// A one-shot wake removes itself after firing; give it a moment to
	// settle, then confirm no further calls arrive.
	stepper.expectNoCallWithin(t, 300*time.Millisecond)
	if stepper.count() != 1 {
		t.Fatalf("expected exactly one Step call, got %d", stepper.count())
	}
}

func TestScheduleWakeReplacesPriorEntryWithSameID(t *testing.T) {
	clock := plexclock.New(zerolog.Nop())
	stepper := newCountingStepper()

	clock.ScheduleWake("wake1", time.Now().Add(2*time.Second), stepper)
	// Replace it with a much sooner deadline before the first ever fires.
	clock.ScheduleWake("wake1", time.Now().Add(50*time.Millisecond), stepper)

	stepper.waitForCall(t, 2*time.Second)
	stepper.expectNoCallWithin(t, 2500*time.Millisecond)
	if stepper.count() != 1 {
		t.Fatalf("replacing a wake under the same id should fire exactly once total, got %d", stepper.count())
	}
}

func TestCancelWakePreventsFire(t *testing.T) {
	clock := plexclock.New(zerolog.Nop())
	stepper := newCountingStepper()

	clock.ScheduleWake("wake1", time.Now().Add(100*time.Millisecond), stepper)
	clock.CancelWake("wake1")

	stepper.expectNoCallWithin(t, 500*time.Millisecond)
	if stepper.count() != 0 {
		t.Fatalf("a cancelled wake must never fire, got %d calls", stepper.count())
	}
}

func TestStartRunsRecurringTick(t *testing.T) {
	clock := plexclock.New(zerolog.Nop())
	stepper := newCountingStepper()

	if err := clock.Start("@every 100ms", stepper); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer clock.Stop()

	stepper.waitForCall(t, 2*time.Second)
	stepper.waitForCall(t, 2*time.Second)

	if stepper.count() < 2 {
		t.Fatalf("expected at least two recurring ticks, got %d", stepper.count())
	}
}

func TestStopHaltsFurtherTicks(t *testing.T) {
	clock := plexclock.New(zerolog.Nop())
	stepper := newCountingStepper()

	if err := clock.Start("@every 100ms", stepper); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stepper.waitForCall(t, 2*time.Second)
	clock.Stop()

	// Drain any tick already in flight when Stop was called, then confirm
	// silence.
	select {
	case <-stepper.ch:
	case <-time.After(200 * time.Millisecond):
	}
	stepper.expectNoCallWithin(t, 500*time.Millisecond)
}
