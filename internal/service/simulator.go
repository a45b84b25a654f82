package service

import (
	"context"
	"fmt"

	"pellet_stove/internal/device"
)

// SimulatorService exposes the software board's fault-injection knobs.
type SimulatorService struct {
	sim *device.Simulator
}

// NewSimulatorService accepts a nil sim; every call then fails with
// ErrNotSimulating.
func NewSimulatorService(sim *device.Simulator) *SimulatorService {
	return &SimulatorService{sim: sim}
}

func (s *SimulatorService) ForceState(ctx context.Context, code int) error {
	if s.sim == nil {
		return ErrNotSimulating
	}
	if code < 0 || code > 255 {
		return fmt.Errorf("%w: state code %d not in 0..255", ErrInvalidInput, code)
	}
	s.sim.ForceState(uint8(code))
	return nil
}

func (s *SimulatorService) ForcePower(ctx context.Context, level int) error {
	if s.sim == nil {
		return ErrNotSimulating
	}
	s.sim.ForcePower(level)
	return nil
}

func (s *SimulatorService) ForceAmbient(ctx context.Context, celsius float64) error {
	if s.sim == nil {
		return ErrNotSimulating
	}
	if celsius < -20 || celsius > 60 {
		return fmt.Errorf("%w: ambient %.1f not in -20..60", ErrInvalidInput, celsius)
	}
	s.sim.ForceAmbient(celsius)
	return nil
}

func (s *SimulatorService) SetFailureMode(ctx context.Context, enabled bool) error {
	if s.sim == nil {
		return ErrNotSimulating
	}
	s.sim.SetFailureMode(enabled)
	return nil
}
