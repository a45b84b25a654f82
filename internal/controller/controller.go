// Package controller owns the authoritative stove model: it polls the board,
// enforces the minimum on-time before any shutdown, ramps power one pulse at
// a time and runs the auto-shutdown countdown.
package controller

import (
	"time"

	"go.uber.org/atomic"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/device"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/micronova"
	"pellet_stove/internal/models"
	"pellet_stove/internal/syncx"
)

// Observer receives controller transitions. Calls happen on the goroutine
// that produced them and must not block.
type Observer interface {
	StateChanged(from, to models.RunState)
	AutoShutdownFired(accepted bool)
}

// Controller is safe for concurrent use. Reads and writes of the stove model
// go through a bounded-wait lock; a caller that cannot get it in time skips
// its work.
type Controller struct {
	dev device.Device
	clk clock.Clock
	cfg Config
	log *logger.Logger
	obs []Observer

	mu       *syncx.TimedMutex
	state    models.RunState
	rawState byte
	isOn     bool
	onSince  time.Time
	ambientC float64
	power    uint8

	auto models.AutoShutdownTimer

	shutdownInProgress    atomic.Bool
	powerAdjustInProgress atomic.Bool
}

// New returns a controller that believes the stove is Off at power 1 until
// the first successful poll.
func New(dev device.Device, clk clock.Clock, cfg Config, log *logger.Logger) *Controller {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		dev:   dev,
		clk:   clk,
		cfg:   cfg,
		log:   log,
		mu:    syncx.NewTimedMutex(cfg.LockWait),
		state: models.StateOff,
		power: models.MinPower,
	}
}

// AddObserver registers o. Call before any loop starts.
func (c *Controller) AddObserver(o Observer) {
	c.obs = append(c.obs, o)
}

// Poll refreshes state, power and ambient temperature from the board and
// evaluates the auto-shutdown deadline. It is a no-op while a pulse train is
// running so the train has the line to itself.
func (c *Controller) Poll() {
	if c.shutdownInProgress.Load() || c.powerAdjustInProgress.Load() {
		return
	}

	resp := c.dev.ReadRAM(c.cfg.Registers.State)
	if next, raw, ok := Decode(resp); ok {
		c.applyState(next, raw)
	} else {
		c.log.Debugw("stove_state_stale_read")
	}

	c.syncPhysicalPower()
	c.updateAmbient()
	c.evaluateAutoShutdown()
}

func (c *Controller) applyState(next models.RunState, raw byte) {
	if !c.mu.TryLock() {
		c.log.Warnw("stove_state_lock_timeout")
		return
	}
	prev := c.state
	c.rawState = raw
	changed := prev != next
	if changed {
		c.state = next
		if next == models.StateOff {
			c.isOn = false
			c.onSince = time.Time{}
			c.auto = models.AutoShutdownTimer{}
			c.shutdownInProgress.Store(false)
			c.powerAdjustInProgress.Store(false)
		} else if !c.isOn && next != models.StateUndefined {
			c.isOn = true
			c.onSince = c.clk.Now()
		}
	}
	c.mu.Unlock()

	if changed {
		c.log.Infow("stove_state_changed", "from", prev.String(), "to", next.String(), "raw", raw)
		for _, o := range c.obs {
			o.StateChanged(prev, next)
		}
	}
}

// StartStove writes the start value to the state register. The board
// ignores it unless it is Off.
func (c *Controller) StartStove() {
	c.log.Infow("stove_start_requested")
	c.dev.WriteRAM(c.cfg.Registers.State, micronova.StartValue)
}

// RequestShutdown sends the shutdown pulse train if the minimum on-time has
// elapsed and reports whether the request was accepted. A denied request
// arms the auto-shutdown at the earliest safe moment instead.
func (c *Controller) RequestShutdown() bool {
	snap := c.Snapshot()
	if !snap.CanShutdown {
		c.log.Warnw("stove_shutdown_denied",
			"state", snap.State.String(),
			"remaining_ms", snap.RemainingToAllowShutdown.Milliseconds())
		if snap.RemainingToAllowShutdown > 0 {
			c.scheduleEarliestSafeShutdown(snap.RemainingToAllowShutdown)
		}
		return false
	}

	if !c.shutdownInProgress.CompareAndSwap(false, true) {
		c.log.Infow("stove_shutdown_already_running")
		return true
	}
	defer c.shutdownInProgress.Store(false)

	c.log.Infow("stove_shutdown_started", "pulses", c.cfg.ShutdownRepeats)
	for i := 0; i < c.cfg.ShutdownRepeats; i++ {
		c.dev.WriteRAM(c.cfg.Registers.Command, micronova.CommandShutdownStep)
		c.clk.Sleep(c.cfg.ShutdownPulseDelay)
	}
	c.log.Infow("stove_shutdown_sent")
	return true
}

// scheduleEarliestSafeShutdown arms the countdown to fire after remaining.
// An already armed, earlier deadline is kept.
func (c *Controller) scheduleEarliestSafeShutdown(remaining time.Duration) bool {
	if !c.mu.TryLock() {
		return false
	}
	defer c.mu.Unlock()
	if !c.isOn {
		return false
	}
	deadline := c.clk.Now().Add(remaining)
	if c.auto.Enabled && !deadline.Before(c.auto.Deadline) {
		return true
	}
	c.auto = models.AutoShutdownTimer{Enabled: true, Deadline: deadline}
	c.log.Infow("stove_auto_shutdown_deferred", "remaining_ms", remaining.Milliseconds())
	return true
}

// SetPowerLevel clamps level to 1..5 and ramps the board to it. It blocks for
// the whole pulse train.
func (c *Controller) SetPowerLevel(level int) {
	c.applyTargetPower(models.ClampPower(level))
}

func (c *Controller) applyTargetPower(target uint8) {
	if c.shutdownInProgress.Load() {
		c.log.Infow("stove_power_skipped_shutdown_running", "target", target)
		return
	}
	if !c.powerAdjustInProgress.CompareAndSwap(false, true) {
		c.log.Infow("stove_power_skipped_adjust_running", "target", target)
		return
	}
	defer c.powerAdjustInProgress.Store(false)

	current, known := c.syncPhysicalPower()
	if !known {
		c.log.Warnw("stove_power_unknown", "target", target)
		return
	}
	if current == target {
		return
	}

	cmd := micronova.CommandPowerPlus
	diff := int(target) - int(current)
	if diff < 0 {
		cmd = micronova.CommandPowerMinus
		diff = -diff
	}
	pulses := diff + c.cfg.PowerExtraPulses
	c.log.Infow("stove_power_ramp", "from", current, "to", target, "pulses", pulses)
	for i := 0; i < pulses; i++ {
		c.dev.WriteRAM(c.cfg.Registers.Command, cmd)
		c.clk.Sleep(c.cfg.PowerPulseDelay)
	}
	c.clk.Sleep(c.cfg.PowerSettleDelay)

	if after, ok := c.syncPhysicalPower(); ok {
		c.log.Infow("stove_power_settled", "power", after)
	}
}

// syncPhysicalPower reads the power feedback register and stores the level.
// ok is false when the read failed; the stored level is then left as is.
func (c *Controller) syncPhysicalPower() (uint8, bool) {
	v, ok := micronova.Value(c.dev.ReadRAM(c.cfg.Registers.PowerFeedback))
	if !ok {
		return 0, false
	}
	level := models.ClampPower(int(v))
	if c.mu.TryLock() {
		c.power = level
		c.mu.Unlock()
	}
	return level, true
}

func (c *Controller) updateAmbient() {
	resp := c.dev.ReadRAM(c.cfg.Registers.AmbientTemp)
	if len(resp) == 0 {
		return
	}
	temp := float64(resp[len(resp)-1]) / 2.0
	if !c.mu.TryLock() {
		return
	}
	c.ambientC = temp
	c.mu.Unlock()
}

// Snapshot returns the current model. When the lock cannot be taken in time
// it returns a conservative view that denies shutdown.
func (c *Controller) Snapshot() models.StatusSnapshot {
	if !c.mu.TryLock() {
		return models.StatusSnapshot{State: models.StateUndefined, PowerLevel: models.MinPower}
	}
	s := models.StatusSnapshot{
		State:        c.state,
		RawStateByte: c.rawState,
		PowerLevel:   c.power,
		AmbientTempC: c.ambientC,
	}
	isOn, onSince := c.isOn, c.onSince
	c.mu.Unlock()

	if !isOn {
		return s
	}
	s.SinceOn = c.clk.Now().Sub(onSince)
	switch {
	case !c.cfg.EnforceMinOnTime, s.SinceOn >= c.cfg.SafetyMinOnTime:
		s.CanShutdown = true
	default:
		s.RemainingToAllowShutdown = c.cfg.SafetyMinOnTime - s.SinceOn
	}
	return s
}

func (c *Controller) IsOn() bool {
	if !c.mu.TryLock() {
		return false
	}
	defer c.mu.Unlock()
	return c.isOn
}

func (c *Controller) PowerLevel() uint8 {
	if !c.mu.TryLock() {
		return models.MinPower
	}
	defer c.mu.Unlock()
	return c.power
}

func (c *Controller) IsPowerAdjustInProgress() bool { return c.powerAdjustInProgress.Load() }

func (c *Controller) IsShutdownInProgress() bool { return c.shutdownInProgress.Load() }

// SetAutoShutdown arms the countdown and returns the effective minutes after
// clamping to the configured maximum and the safety window, rounded up. A
// request shorter than the rest of the window fires at the exact moment the
// window closes. It returns 0 and arms nothing when minutes <= 0 or the stove
// is off.
func (c *Controller) SetAutoShutdown(minutes int) int {
	if minutes <= 0 {
		return 0
	}
	if !c.mu.TryLock() {
		return 0
	}
	defer c.mu.Unlock()
	if !c.isOn {
		c.log.Infow("stove_auto_shutdown_ignored_off", "minutes", minutes)
		return 0
	}

	now := c.clk.Now()
	delay := time.Duration(minutes) * time.Minute
	if c.cfg.AutoShutdownMax > 0 && delay > c.cfg.AutoShutdownMax {
		delay = c.cfg.AutoShutdownMax
	}
	if c.cfg.EnforceMinOnTime {
		if remaining := c.cfg.SafetyMinOnTime - now.Sub(c.onSince); delay < remaining {
			delay = remaining
		}
	}

	c.auto = models.AutoShutdownTimer{Enabled: true, Deadline: now.Add(delay)}
	c.log.Infow("stove_auto_shutdown_armed", "delay_ms", delay.Milliseconds())
	return int((delay + time.Minute - 1) / time.Minute)
}

func (c *Controller) DisableAutoShutdown() {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()
	if c.auto.Enabled {
		c.log.Infow("stove_auto_shutdown_disabled")
	}
	c.auto = models.AutoShutdownTimer{}
}

func (c *Controller) IsAutoShutdownEnabled() bool {
	if !c.mu.TryLock() {
		return false
	}
	defer c.mu.Unlock()
	return c.auto.Enabled
}

// AutoShutdownRemaining is zero when the countdown is not armed or overdue.
func (c *Controller) AutoShutdownRemaining() time.Duration {
	if !c.mu.TryLock() {
		return 0
	}
	defer c.mu.Unlock()
	if !c.auto.Enabled {
		return 0
	}
	if d := c.auto.Deadline.Sub(c.clk.Now()); d > 0 {
		return d
	}
	return 0
}

// evaluateAutoShutdown fires an overdue countdown once and disarms it
// whatever the outcome.
func (c *Controller) evaluateAutoShutdown() {
	if !c.mu.TryLock() {
		return
	}
	due := c.auto.Enabled && !c.clk.Now().Before(c.auto.Deadline)
	c.mu.Unlock()
	if !due {
		return
	}

	c.log.Infow("stove_auto_shutdown_fired")
	accepted := c.RequestShutdown()

	if c.mu.TryLock() {
		c.auto = models.AutoShutdownTimer{}
		c.mu.Unlock()
	}
	for _, o := range c.obs {
		o.AutoShutdownFired(accepted)
	}
}
