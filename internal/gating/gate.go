// Package gating keeps remote controls disabled between a user action and the
// stove confirming it, with per-control timeouts and a global failsafe.
package gating

import (
	"context"
	"sync"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/dispatch"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/models"
)

// Control identifies a user-facing control element.
type Control int

const (
	OnOff Control = iota
	Power
	Timer
	ScheduleApply

	controlCount
)

func (c Control) String() string {
	switch c {
	case OnOff:
		return "on_off"
	case Power:
		return "power"
	case Timer:
		return "timer"
	case ScheduleApply:
		return "schedule_apply"
	}
	return "unknown"
}

// Controls lists every control in display order.
func Controls() []Control {
	return []Control{OnOff, Power, Timer, ScheduleApply}
}

// Timeouts bound how long each control may stay locked.
type Timeouts struct {
	StartConfirm    time.Duration
	ShutdownConfirm time.Duration
	PowerAdjust     time.Duration
	TimerSettle     time.Duration
	ScheduleSettle  time.Duration
	Failsafe        time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		StartConfirm:    15 * time.Second,
		ShutdownConfirm: 20 * time.Second,
		PowerAdjust:     8 * time.Second,
		TimerSettle:     1500 * time.Millisecond,
		ScheduleSettle:  time.Second,
		Failsafe:        30 * time.Second,
	}
}

// Entry is the lock state of one control.
type Entry struct {
	Locked                  bool
	LockStart               time.Time
	PendingDisableRequested bool
	// WantOn is the on/off target of the pending action. Unused by other controls.
	WantOn bool
}

// View is the read-only controller state the reconciler needs.
type View interface {
	Snapshot() models.StatusSnapshot
	IsOn() bool
	IsPowerAdjustInProgress() bool
	PowerLevel() uint8
}

// Surface renders control state on a remote UI.
type Surface interface {
	DisableControl(c Control)
	EnableOnOff(on bool)
	EnablePower(level uint8)
	EnableTimer()
	EnableScheduleApply()
}

// Gate holds one Entry per Control.
type Gate struct {
	clk clock.Clock
	t   Timeouts
	log *logger.Logger

	mu       sync.Mutex
	entries  [controlCount]Entry
	released [controlCount]bool
	reassert bool
}

func NewGate(clk clock.Clock, t Timeouts, log *logger.Logger) *Gate {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{clk: clk, t: t, log: log}
}

// Lock marks c busy and asks the surface to disable it on the next tick.
func (g *Gate) Lock(c Control) {
	if c < 0 || c >= controlCount {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[c] = Entry{Locked: true, LockStart: g.clk.Now(), PendingDisableRequested: true}
}

// LockOnOff locks the on/off control until the stove reaches wantOn.
func (g *Gate) LockOnOff(wantOn bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[OnOff] = Entry{Locked: true, LockStart: g.clk.Now(), PendingDisableRequested: true, WantOn: wantOn}
}

// Reassert unlocks the on/off control and re-renders it with the stove's
// real state on the next tick. Used when a shutdown was refused.
func (g *Gate) Reassert() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[OnOff].Locked = false
	g.entries[OnOff].PendingDisableRequested = false
	g.reassert = true
}

// Release drops the lock on c without waiting for a confirmation and
// re-enables it on the next tick. Used when the command never reached the
// queue.
func (g *Gate) Release(c Control) {
	if c < 0 || c >= controlCount {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.entries[c].Locked {
		return
	}
	g.entries[c] = Entry{}
	g.released[c] = true
	g.log.Debugw("ui_control_released", "control", c.String())
}

func (g *Gate) Entry(c Control) Entry {
	if c < 0 || c >= controlCount {
		return Entry{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entries[c]
}

// Reconcile applies pending disables and unlocks every control whose
// confirmation arrived or whose timeout elapsed.
func (g *Gate) Reconcile(view View, s Surface) {
	snap := view.Snapshot()
	isOn := view.IsOn()
	adjusting := view.IsPowerAdjustInProgress()
	power := view.PowerLevel()

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clk.Now()

	if !g.entries[OnOff].Locked {
		s.EnableOnOff(isOn)
	}
	for c := Control(0); c < controlCount; c++ {
		if g.entries[c].PendingDisableRequested {
			s.DisableControl(c)
			g.entries[c].PendingDisableRequested = false
		}
		if g.released[c] {
			g.released[c] = false
			enable(c, s, isOn, power)
		}
	}

	if e := &g.entries[OnOff]; e.Locked {
		elapsed := now.Sub(e.LockStart)
		confirmed, limit := snap.State == models.StateOff, g.t.ShutdownConfirm
		if e.WantOn {
			confirmed, limit = isOn, g.t.StartConfirm
		}
		if confirmed || elapsed > limit || elapsed > g.t.Failsafe {
			g.unlock(OnOff, confirmed, elapsed)
			s.EnableOnOff(isOn)
		}
	}

	if e := &g.entries[Power]; e.Locked {
		elapsed := now.Sub(e.LockStart)
		if !adjusting || elapsed > g.t.PowerAdjust || elapsed > g.t.Failsafe {
			g.unlock(Power, !adjusting, elapsed)
			s.EnablePower(power)
		}
	}

	if e := &g.entries[Timer]; e.Locked {
		elapsed := now.Sub(e.LockStart)
		if elapsed > g.t.TimerSettle || elapsed > g.t.Failsafe {
			g.unlock(Timer, true, elapsed)
			s.EnableTimer()
		}
	}

	if e := &g.entries[ScheduleApply]; e.Locked {
		elapsed := now.Sub(e.LockStart)
		if elapsed > g.t.ScheduleSettle || elapsed > g.t.Failsafe {
			g.unlock(ScheduleApply, true, elapsed)
			s.EnableScheduleApply()
		}
	}

	if g.reassert {
		g.reassert = false
		s.EnableOnOff(isOn)
	}
}

func enable(c Control, s Surface, isOn bool, power uint8) {
	switch c {
	case OnOff:
		s.EnableOnOff(isOn)
	case Power:
		s.EnablePower(power)
	case Timer:
		s.EnableTimer()
	case ScheduleApply:
		s.EnableScheduleApply()
	}
}

// unlock clears c. Caller holds g.mu.
func (g *Gate) unlock(c Control, confirmed bool, elapsed time.Duration) {
	g.entries[c].Locked = false
	g.log.Debugw("ui_control_unlocked", "control", c.String(),
		"confirmed", confirmed, "elapsed_ms", elapsed.Milliseconds())
}

// Run reconciles every tick until ctx is cancelled.
func (g *Gate) Run(ctx context.Context, tick time.Duration, view View, s Surface) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Reconcile(view, s)
		}
	}
}

// Dispatched implements dispatch.Observer.
func (g *Gate) Dispatched(cmd dispatch.Command, ok bool) {}

// ShutdownDenied implements dispatch.Observer.
func (g *Gate) ShutdownDenied() {
	g.log.Infow("ui_on_off_reassert")
	g.Reassert()
}

var _ dispatch.Observer = (*Gate)(nil)
