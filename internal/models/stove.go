package models

import (
	"encoding/json"
	"time"
)

// RunState is the stove's operating phase as decoded from the state register.
type RunState uint8

const (
	StateOff         RunState = 0
	StateStarting    RunState = 1
	StateLoadingFuel RunState = 2
	StateFirePresent RunState = 3
	StateWorking     RunState = 4
	StateFinalClean  RunState = 6
	StateUndefined   RunState = 255
)

func (s RunState) String() string {
	switch s {
	case StateOff:
		return "Off"
	case StateStarting:
		return "Starting"
	case StateLoadingFuel:
		return "Loading"
	case StateFirePresent:
		return "Fire"
	case StateWorking:
		return "Working"
	case StateFinalClean:
		return "Cleaning"
	default:
		return "Undefined"
	}
}

func (s RunState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Power limits accepted by the stove.
const (
	MinPower uint8 = 1
	MaxPower uint8 = 5
)

// ClampPower forces level into [MinPower, MaxPower].
func ClampPower(level int) uint8 {
	if level < int(MinPower) {
		return MinPower
	}
	if level > int(MaxPower) {
		return MaxPower
	}
	return uint8(level)
}

// StatusSnapshot is an immutable view of the controller, produced per query.
type StatusSnapshot struct {
	State                    RunState      `json:"state"`
	RawStateByte             uint8         `json:"raw_state_byte"`
	PowerLevel               uint8         `json:"power_level"`
	AmbientTempC             float64       `json:"ambient_temp_c"`
	SinceOn                  time.Duration `json:"-"`
	CanShutdown              bool          `json:"can_shutdown"`
	RemainingToAllowShutdown time.Duration `json:"-"`
}

func (s StatusSnapshot) MarshalJSON() ([]byte, error) {
	type alias StatusSnapshot
	return json.Marshal(struct {
		alias
		MsSinceOn                  int64 `json:"ms_since_on"`
		MsRemainingToAllowShutdown int64 `json:"ms_remaining_to_allow_shutdown"`
	}{
		alias:                      alias(s),
		MsSinceOn:                  s.SinceOn.Milliseconds(),
		MsRemainingToAllowShutdown: s.RemainingToAllowShutdown.Milliseconds(),
	})
}

// ScheduleEntry is one slot of the weekly trigger table.
// Day runs 1=Monday .. 7=Sunday.
type ScheduleEntry struct {
	Active      bool  `json:"active"`
	Day         uint8 `json:"day"`
	Hour        uint8 `json:"hour"`
	Minute      uint8 `json:"minute"`
	TargetPower uint8 `json:"target_power"`
}

// AutoShutdownTimer is the countdown armed while the stove is on.
type AutoShutdownTimer struct {
	Enabled  bool      `json:"enabled"`
	Deadline time.Time `json:"deadline,omitempty"`
}

// ControlState is how a remote control element should currently be rendered.
type ControlState struct {
	Enabled bool `json:"enabled"`
	Locked  bool `json:"locked"`
	Value   int  `json:"value,omitempty"`
}

// StoveStatus is the read-only view served to remote consumers.
type StoveStatus struct {
	Snapshot              StatusSnapshot          `json:"snapshot"`
	IsOn                  bool                    `json:"is_on"`
	AutoShutdownEnabled   bool                    `json:"auto_shutdown_enabled"`
	AutoShutdownRemaining int64                   `json:"auto_shutdown_remaining_ms"`
	PowerAdjustInProgress bool                    `json:"power_adjust_in_progress"`
	SchedulerEnabled      bool                    `json:"scheduler_enabled"`
	Controls              map[string]ControlState `json:"controls,omitempty"`
	UpdatedAt             time.Time               `json:"updated_at"`
}
