package dispatch

import "fmt"

// Command is the closed set of mutations accepted by the Dispatcher.
type Command interface {
	Name() string
	isCommand()
}

type Start struct{}

type Shutdown struct{}

// SetPower ramps to Level, clamped to 1..5 by the controller.
type SetPower struct {
	Level int
}

// SetTimer arms the auto-shutdown countdown; zero disables it.
type SetTimer struct {
	Minutes int
}

// ApplySchedule rewrites one slot of the weekly table. Day is 1=Monday .. 7=Sunday.
type ApplySchedule struct {
	Index  int
	Active bool
	Day    int
	Hour   int
	Minute int
	Power  int
}

type SetSchedulerEnabled struct {
	Enabled bool
}

func (Start) Name() string               { return "start" }
func (Shutdown) Name() string            { return "shutdown" }
func (SetPower) Name() string            { return "set_power" }
func (SetTimer) Name() string            { return "set_timer" }
func (ApplySchedule) Name() string       { return "apply_schedule" }
func (SetSchedulerEnabled) Name() string { return "set_scheduler_enabled" }

func (Start) isCommand()               {}
func (Shutdown) isCommand()            {}
func (SetPower) isCommand()            {}
func (SetTimer) isCommand()            {}
func (ApplySchedule) isCommand()       {}
func (SetSchedulerEnabled) isCommand() {}

// Describe renders a command with its payload for logs and the event journal.
func Describe(cmd Command) string {
	switch c := cmd.(type) {
	case SetPower:
		return fmt.Sprintf("set_power level=%d", c.Level)
	case SetTimer:
		return fmt.Sprintf("set_timer minutes=%d", c.Minutes)
	case ApplySchedule:
		return fmt.Sprintf("apply_schedule #%d act=%t day=%d %02d:%02d power=%d",
			c.Index, c.Active, c.Day, c.Hour, c.Minute, c.Power)
	case SetSchedulerEnabled:
		return fmt.Sprintf("set_scheduler_enabled enabled=%t", c.Enabled)
	}
	return cmd.Name()
}
