// Package plexclock drives the executive's timer wake-up (spec §5: "the
// executive thread blocks on... a timer for the next scheduled time()
// wake"): a cron schedule ticks Step so that time()-based end/repeat
// conditions are re-evaluated without waiting for an unrelated external
// event, grounded on the teacher's
// internal/application/trigger/cron_scheduler.go.
package plexclock

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Stepper is the single method plexclock needs from an Executive, kept
// narrow to avoid an import cycle back into pkg/plexexec.
type Stepper interface {
	Step() error
}

// Clock owns one cron.Cron instance: a recurring tick that drives the
// executive's Step, plus optional one-shot wakes for a specific future
// time() deadline a condition is waiting on.
type Clock struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	tickID  cron.EntryID
	running bool
}

// New builds a Clock with second precision, UTC-anchored, matching the
// teacher's cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)).
func New(log zerolog.Logger) *Clock {
	return &Clock{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Start installs the recurring tick schedule (a cron expression, default
// "@every 1s" per plexconfig.ClockConfig) and starts the underlying cron
// in its own goroutine.
func (c *Clock) Start(schedule string, stepper Stepper) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.cron.AddFunc(schedule, c.runStep(stepper))
	if err != nil {
		return err
	}
	c.tickID = id
	c.cron.Start()
	c.running = true
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight tick to
// finish.
func (c *Clock) Stop() {
	c.mu.Lock()
	running := c.running
	c.running = false
	c.mu.Unlock()

	if !running {
		return
	}
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// ScheduleWake adds a one-shot wake at the given absolute time, used when
// a node's time()-based end/repeat condition is waiting on a deadline the
// regular tick cadence might miss or needlessly delay. The entry removes
// itself after firing once. A prior wake registered under the same id is
// replaced.
func (c *Clock) ScheduleWake(id string, at time.Time, stepper Stepper) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[id]; ok {
		c.cron.Remove(prev)
		delete(c.entries, id)
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	entryID := c.cron.Schedule(cron.ConstantDelaySchedule{Delay: delay}, cron.FuncJob(func() {
		c.runStep(stepper)()
		c.mu.Lock()
		if eid, ok := c.entries[id]; ok {
			c.cron.Remove(eid)
			delete(c.entries, id)
		}
		c.mu.Unlock()
	}))
	c.entries[id] = entryID
}

// CancelWake removes a pending one-shot wake, if any.
func (c *Clock) CancelWake(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if eid, ok := c.entries[id]; ok {
		c.cron.Remove(eid)
		delete(c.entries, id)
	}
}

func (c *Clock) runStep(stepper Stepper) func() {
	return func() {
		if err := stepper.Step(); err != nil {
			c.log.Error().Err(err).Msg("clock-driven step failed")
		}
	}
}
