package service

import (
	"context"
	"fmt"

	"pellet_stove/internal/dispatch"
	"pellet_stove/internal/gating"
	"pellet_stove/internal/logger"
)

type StoveService struct {
	commands CommandSink
	gate     ControlLocker
	log      *logger.Logger
}

func NewStoveService(commands CommandSink, gate ControlLocker, log *logger.Logger) *StoveService {
	if log == nil {
		log = logger.Nop()
	}
	return &StoveService{commands: commands, gate: gate, log: log}
}

// Start queues a start. The on/off control stays locked until the stove
// reports on or the start confirmation times out.
func (s *StoveService) Start(ctx context.Context) error {
	return lockAndSubmit(ctx, s.gate, gating.OnOff, func() { s.gate.LockOnOff(true) }, s.commands, dispatch.Start{})
}

// Shutdown queues a shutdown. A refusal by the safety window surfaces
// through the event log and the on/off control, not as an error here.
func (s *StoveService) Shutdown(ctx context.Context) error {
	return lockAndSubmit(ctx, s.gate, gating.OnOff, func() { s.gate.LockOnOff(false) }, s.commands, dispatch.Shutdown{})
}

// SetPower queues a ramp to level. Out-of-range levels are clamped by the
// controller.
func (s *StoveService) SetPower(ctx context.Context, level int) error {
	return s.lock(ctx, gating.Power, dispatch.SetPower{Level: level})
}

// SetTimer queues an auto-shutdown change; zero disables the countdown.
func (s *StoveService) SetTimer(ctx context.Context, minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: timer minutes must be >= 0, got %d", ErrInvalidInput, minutes)
	}
	return s.lock(ctx, gating.Timer, dispatch.SetTimer{Minutes: minutes})
}

func (s *StoveService) lock(ctx context.Context, c gating.Control, cmd dispatch.Command) error {
	return lockAndSubmit(ctx, s.gate, c, func() { s.gate.Lock(c) }, s.commands, cmd)
}
