package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/device"
	"pellet_stove/internal/dispatch"
	"pellet_stove/internal/gating"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/micronova"
	"pellet_stove/internal/models"
	"pellet_stove/internal/repository"
	"pellet_stove/internal/scheduler"
)

var (
	// ErrQueueBusy means the command queue stayed full until the caller gave up.
	ErrQueueBusy = errors.New("command queue busy")
	// ErrNotSimulating is returned by simulator controls on real hardware.
	ErrNotSimulating = errors.New("simulator controls need device.mode=sim")
	// ErrInvalidInput wraps every validation failure.
	ErrInvalidInput = errors.New("invalid input")
)

// Authorization manages dashboard accounts and bearer tokens.
type Authorization interface {
	SignUp(ctx context.Context, username, password string) (models.User, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (models.Identity, error)
}

// Stove turns user intent into queued commands.
type Stove interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	SetPower(ctx context.Context, level int) error
	SetTimer(ctx context.Context, minutes int) error
}

// Monitoring exposes the read-only status view.
type Monitoring interface {
	Status(ctx context.Context) models.StoveStatus
}

// Schedule reads the weekly table and queues changes to it.
type Schedule interface {
	Entries(ctx context.Context) []models.ScheduleEntry
	Summary(ctx context.Context) string
	Apply(ctx context.Context, p ScheduleParams) error
	SetEnabled(ctx context.Context, enabled bool) error
	Restore(ctx context.Context) error
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.StoveEvent, error)
}

// Diagnostics reads raw board memory.
type Diagnostics interface {
	Probe(ctx context.Context, kind micronova.Kind, addr byte) (ProbeResult, error)
}

// Simulator drives the software board. Every method returns
// ErrNotSimulating on real hardware.
type Simulator interface {
	ForceState(ctx context.Context, code int) error
	ForcePower(ctx context.Context, level int) error
	ForceAmbient(ctx context.Context, celsius float64) error
	SetFailureMode(ctx context.Context, enabled bool) error
}

// StoveView is the read side of the controller.
type StoveView interface {
	Snapshot() models.StatusSnapshot
	IsOn() bool
	PowerLevel() uint8
	IsPowerAdjustInProgress() bool
	IsAutoShutdownEnabled() bool
	AutoShutdownRemaining() time.Duration
}

// CommandSink accepts commands for the single dispatch consumer.
type CommandSink interface {
	Submit(ctx context.Context, cmd dispatch.Command) error
}

// ControlLocker is the UI gate.
type ControlLocker interface {
	Lock(c gating.Control)
	LockOnOff(wantOn bool)
	Release(c gating.Control)
}

// ControlPanel reports how each remote control should be rendered.
type ControlPanel interface {
	State() map[string]models.ControlState
}

// Core bundles the running stove components the services sit on.
type Core struct {
	Controller StoveView
	Scheduler  *scheduler.Scheduler
	Commands   CommandSink
	Gate       ControlLocker
	Panel      ControlPanel
	Device     device.Device
	// Sim is nil unless the device is the simulator.
	Sim   *device.Simulator
	Clock clock.Clock
}

type Service struct {
	Stove
	Monitoring
	Schedule
	EventLog
	Diagnostics
	Simulator
	Authorization
}

func NewService(repos *repository.Repository, core Core, auth AuthOptions, log *logger.Logger) *Service {
	if core.Clock == nil {
		core.Clock = clock.Real()
	}
	return &Service{
		Stove:         NewStoveService(core.Commands, core.Gate, log),
		Monitoring:    NewMonitoringService(core.Controller, core.Scheduler, core.Panel, core.Clock),
		Schedule:      NewScheduleService(core.Scheduler, repos.ScheduleRepo, core.Commands, core.Gate, log),
		EventLog:      NewEventLogService(repos.EventRepo),
		Diagnostics:   NewDiagnosticsService(core.Device),
		Simulator:     NewSimulatorService(core.Sim),
		Authorization: NewAuthService(repos.Auth, auth),
	}
}

// submit maps context expiry on a full queue to ErrQueueBusy.
// lockAndSubmit locks c, queues cmd and releases c again when cmd never made
// it into the queue.
func lockAndSubmit(ctx context.Context, gate ControlLocker, c gating.Control, lock func(), sink CommandSink, cmd dispatch.Command) error {
	lock()
	if err := submit(ctx, sink, cmd); err != nil {
		gate.Release(c)
		return err
	}
	return nil
}

func submit(ctx context.Context, sink CommandSink, cmd dispatch.Command) error {
	if err := sink.Submit(ctx, cmd); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %v", ErrQueueBusy, err)
		}
		return err
	}
	return nil
}
