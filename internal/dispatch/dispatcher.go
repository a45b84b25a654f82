// Package dispatch serializes every stove mutation through one consumer and
// runs the periodic poll and schedule loops that feed it.
package dispatch

import (
	"context"
	"fmt"

	"pellet_stove/internal/logger"
)

// QueueCapacity bounds the command queue. Producers block when it is full.
const QueueCapacity = 16

// Controller is the part of the stove controller the dispatcher drives.
type Controller interface {
	StartStove()
	RequestShutdown() bool
	SetPowerLevel(level int)
	SetAutoShutdown(minutes int) int
	DisableAutoShutdown()
	IsOn() bool
	Poll()
}

// Scheduler is the part of the weekly table the dispatcher drives.
type Scheduler interface {
	UpdateEntry(index int, active bool, day, hour, minute, power int) bool
	SetGlobalEnabled(enabled bool)
	Evaluate(day, hour, minute int, stoveOn bool, trigger func(uint8)) int
}

// Observer is told about every dispatched command. ShutdownDenied lets the
// UI layer re-assert the on/off control's real state.
type Observer interface {
	Dispatched(cmd Command, ok bool)
	ShutdownDenied()
}

// Dispatcher owns the bounded command queue and its single consumer.
type Dispatcher struct {
	ctrl  Controller
	sched Scheduler
	log   *logger.Logger
	queue chan Command
	obs   []Observer
}

func New(ctrl Controller, sched Scheduler, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		ctrl:  ctrl,
		sched: sched,
		log:   log,
		queue: make(chan Command, QueueCapacity),
	}
}

// AddObserver registers o. Call before Run.
func (d *Dispatcher) AddObserver(o Observer) {
	d.obs = append(d.obs, o)
}

// Submit enqueues cmd, blocking while the queue is full. Only ctx can
// abandon the wait.
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("submit: nil command")
	}
	select {
	case d.queue <- cmd:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit %s: %w", cmd.Name(), ctx.Err())
	}
}

// Pending reports the number of queued commands.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Infow("dispatcher_started", "capacity", QueueCapacity)
	for {
		select {
		case <-ctx.Done():
			d.log.Infow("dispatcher_stopped")
			return
		case cmd := <-d.queue:
			d.dispatch(cmd)
		}
	}
}

func (d *Dispatcher) dispatch(cmd Command) bool {
	ok := true
	switch c := cmd.(type) {
	case Start:
		d.ctrl.StartStove()
	case Shutdown:
		ok = d.ctrl.RequestShutdown()
		if !ok {
			for _, o := range d.obs {
				o.ShutdownDenied()
			}
		}
	case SetPower:
		d.ctrl.SetPowerLevel(c.Level)
	case SetTimer:
		switch {
		case c.Minutes <= 0:
			d.ctrl.DisableAutoShutdown()
		case d.ctrl.IsOn():
			ok = d.ctrl.SetAutoShutdown(c.Minutes) > 0
		default:
			ok = false
		}
	case ApplySchedule:
		ok = d.sched.UpdateEntry(c.Index, c.Active, c.Day, c.Hour, c.Minute, c.Power)
	case SetSchedulerEnabled:
		d.sched.SetGlobalEnabled(c.Enabled)
	default:
		d.log.Errorw("dispatch_unknown_command", "command", fmt.Sprintf("%T", cmd))
		return false
	}

	d.log.Infow("command_dispatched", "command", Describe(cmd), "ok", ok)
	for _, o := range d.obs {
		o.Dispatched(cmd, ok)
	}
	return ok
}
