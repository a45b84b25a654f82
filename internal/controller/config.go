package controller

import (
	"time"

	"pellet_stove/internal/micronova"
)

// Config holds the safety limits and the empirically tuned pulse timings.
type Config struct {
	Registers micronova.Registers

	// SafetyMinOnTime is the continuous on-time before a shutdown is honoured.
	SafetyMinOnTime  time.Duration
	EnforceMinOnTime bool
	AutoShutdownMax  time.Duration

	ShutdownRepeats    int
	ShutdownPulseDelay time.Duration

	PowerPulseDelay  time.Duration
	PowerSettleDelay time.Duration
	// PowerExtraPulses compensates edges the board misses during a ramp.
	PowerExtraPulses int

	LockWait time.Duration
}

// DefaultConfig returns the values tuned on the reference stove.
func DefaultConfig() Config {
	return Config{
		Registers:          micronova.DefaultRegisters(),
		SafetyMinOnTime:    10 * time.Minute,
		EnforceMinOnTime:   true,
		AutoShutdownMax:    480 * time.Minute,
		ShutdownRepeats:    22,
		ShutdownPulseDelay: 100 * time.Millisecond,
		PowerPulseDelay:    600 * time.Millisecond,
		PowerSettleDelay:   4 * time.Second,
		PowerExtraPulses:   1,
		LockWait:           200 * time.Millisecond,
	}
}
