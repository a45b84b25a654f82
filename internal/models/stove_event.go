package models

import "time"

// Event types recorded in the stove audit log.
const (
	EventStart           = "START"
	EventShutdown        = "SHUTDOWN"
	EventShutdownDenied  = "SHUTDOWN_DENIED"
	EventPower           = "POWER"
	EventTimer           = "TIMER"
	EventScheduleApply   = "SCHEDULE_APPLY"
	EventScheduleEnabled = "SCHEDULE_ENABLED"
	EventScheduleFired   = "SCHEDULE_FIRED"
	EventStateChange     = "STATE_CHANGE"
	EventAutoShutdown    = "AUTO_SHUTDOWN"
)

var eventTypes = map[string]struct{}{
	EventStart: {}, EventShutdown: {}, EventShutdownDenied: {}, EventPower: {},
	EventTimer: {}, EventScheduleApply: {}, EventScheduleEnabled: {},
	EventScheduleFired: {}, EventStateChange: {}, EventAutoShutdown: {},
}

func IsEventType(s string) bool {
	_, ok := eventTypes[s]
	return ok
}

// StoveEvent is a single log entry.
type StoveEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // START | SHUTDOWN | POWER | STATE_CHANGE | ...
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
