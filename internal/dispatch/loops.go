package dispatch

import (
	"context"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/scheduler"
)

// PollIntervals selects the poll cadence by whether the stove is on.
type PollIntervals struct {
	On  time.Duration
	Off time.Duration
}

// DefaultPollIntervals polls every 6 s in both states.
func DefaultPollIntervals() PollIntervals {
	return PollIntervals{On: 6 * time.Second, Off: 6 * time.Second}
}

// PollLoop refreshes the controller until ctx is cancelled. Polling bypasses
// the queue: it only refreshes read-derived fields under the controller's
// own lock.
func PollLoop(ctx context.Context, c Controller, iv PollIntervals) {
	for {
		c.Poll()

		wait := iv.Off
		if c.IsOn() {
			wait = iv.On
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// ScheduleLoop samples the clock and evaluates the table once per new
// minute. Its trigger enqueues Start then SetPower instead of touching the
// controller.
type ScheduleLoop struct {
	d     *Dispatcher
	sched Scheduler
	ctrl  Controller
	clk   clock.Clock
	loc   *time.Location
	log   *logger.Logger
	hooks []func(targetPower uint8)

	lastMinute time.Time
}

func NewScheduleLoop(d *Dispatcher, sched Scheduler, ctrl Controller, clk clock.Clock, loc *time.Location, log *logger.Logger) *ScheduleLoop {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ScheduleLoop{d: d, sched: sched, ctrl: ctrl, clk: clk, loc: loc, log: log}
}

// OnFire registers fn to be told about every trigger. Call before Run.
func (l *ScheduleLoop) OnFire(fn func(targetPower uint8)) {
	l.hooks = append(l.hooks, fn)
}

// Run checks every tick until ctx is cancelled.
func (l *ScheduleLoop) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	l.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Check(ctx)
		}
	}
}

// Check evaluates the table if the wall-clock minute changed since the last
// call and returns the number of entries that fired.
func (l *ScheduleLoop) Check(ctx context.Context) int {
	now := l.clk.Now().In(l.loc)
	minute := now.Truncate(time.Minute)
	if minute.Equal(l.lastMinute) {
		return 0
	}
	l.lastMinute = minute

	return l.sched.Evaluate(scheduler.Weekday(now.Weekday()), now.Hour(), now.Minute(), l.ctrl.IsOn(),
		func(power uint8) {
			l.log.Infow("schedule_fired", "power", power)
			for _, fn := range l.hooks {
				fn(power)
			}
			if err := l.d.Submit(ctx, Start{}); err != nil {
				l.log.Warnw("schedule_enqueue_failed", "command", "start", "err", err)
				return
			}
			if err := l.d.Submit(ctx, SetPower{Level: int(power)}); err != nil {
				l.log.Warnw("schedule_enqueue_failed", "command", "set_power", "err", err)
			}
		})
}
