package device

import (
	"math"
	"sync"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/micronova"
	"pellet_stove/internal/models"
)

// Phase durations of the simulated ignition and cleaning cycles.
const (
	SimStartingDuration = 10 * time.Second
	SimLoadingDuration  = 10 * time.Second
	SimFireDuration     = 15 * time.Second
	SimCleaningDuration = 10 * time.Second

	simAmbientBaseC = 20.0
)

// Simulator is a software Micronova board. Its state is a pure function of
// the injected clock and the writes it has received.
type Simulator struct {
	clk  clock.Clock
	regs micronova.Registers
	log  *logger.Logger

	mu          sync.Mutex
	state       models.RunState
	startedAt   time.Time
	changedAt   time.Time
	power       uint8
	ambientBase float64
	inShutdown  bool
	failure     bool
}

// NewSimulator returns a simulator in the Off state at power 1.
func NewSimulator(clk clock.Clock, regs micronova.Registers, log *logger.Logger) *Simulator {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}
	now := clk.Now()
	return &Simulator{
		clk:         clk,
		regs:        regs,
		log:         log,
		state:       models.StateOff,
		startedAt:   now,
		changedAt:   now,
		power:       models.MinPower,
		ambientBase: simAmbientBaseC,
	}
}

// advance moves the phase forward according to elapsed simulated time.
// Caller holds s.mu.
func (s *Simulator) advance(now time.Time) {
	if s.failure {
		return
	}
	switch s.state {
	case models.StateFinalClean:
		if now.Sub(s.changedAt) >= SimCleaningDuration {
			s.state = models.StateOff
			s.inShutdown = false
			s.changedAt = now
		}
		return
	case models.StateOff, models.StateUndefined:
		return
	}
	elapsed := now.Sub(s.startedAt)
	for {
		next := s.state
		switch {
		case s.state == models.StateStarting && elapsed >= SimStartingDuration:
			next = models.StateLoadingFuel
		case s.state == models.StateLoadingFuel && elapsed >= SimStartingDuration+SimLoadingDuration:
			next = models.StateFirePresent
		case s.state == models.StateFirePresent && elapsed >= SimStartingDuration+SimLoadingDuration+SimFireDuration:
			next = models.StateWorking
		}
		if next == s.state {
			return
		}
		s.state = next
		s.changedAt = now
	}
}

func (s *Simulator) ReadRAM(addr byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	s.advance(now)

	if s.failure {
		return []byte{0xFF, 0xFF}
	}
	switch addr {
	case s.regs.State:
		if s.state == models.StateOff {
			return []byte{micronova.StateOffByte}
		}
		return []byte{addr, byte(s.state)}
	case s.regs.AmbientTemp:
		raw := int(math.Round(s.ambientC(now) * 2))
		if raw < 0 {
			raw = 0
		}
		if raw > 255 {
			raw = 255
		}
		return []byte{addr, byte(raw)}
	case s.regs.PowerFeedback:
		return []byte{addr, s.power}
	}
	return []byte{0x11, 0x22}
}

func (s *Simulator) ReadEEPROM(addr byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure {
		return []byte{0xFF, 0xFF}
	}
	return []byte{addr, 0xEE}
}

func (s *Simulator) WriteRAM(addr, value byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	s.advance(now)
	if s.failure {
		return
	}

	switch {
	case addr == s.regs.State && value == micronova.StartValue:
		if s.state == models.StateOff {
			s.state = models.StateStarting
			s.startedAt = now
			s.changedAt = now
			s.log.Infow("sim_start_accepted")
		}
	case addr == s.regs.Command:
		switch value {
		case micronova.CommandPowerPlus:
			if s.power < models.MaxPower {
				s.power++
			}
		case micronova.CommandPowerMinus:
			if s.power > models.MinPower {
				s.power--
			}
		case micronova.CommandShutdownStep:
			if !s.inShutdown && s.state != models.StateOff {
				s.inShutdown = true
				s.state = models.StateFinalClean
				s.changedAt = now
				s.log.Infow("sim_shutdown_cleaning")
			}
		}
	}
}

// WriteEEPROM is accepted and ignored.
func (s *Simulator) WriteEEPROM(addr, value byte) {}

// IsReceiving is always true: the simulator has no line to turn around.
func (s *Simulator) IsReceiving() bool { return true }

// ForceState jumps to the phase with the given raw code; unknown codes
// select Undefined.
func (s *Simulator) ForceState(code uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	switch models.RunState(code) {
	case models.StateOff, models.StateLoadingFuel, models.StateFirePresent,
		models.StateWorking, models.StateFinalClean:
		s.state = models.RunState(code)
	case models.StateStarting:
		s.state = models.StateStarting
		s.startedAt = now
	default:
		s.state = models.StateUndefined
	}
	if s.state != models.StateFinalClean {
		s.inShutdown = false
	}
	s.changedAt = now
	s.log.Infow("sim_force_state", "state", s.state)
}

// ForcePower sets the power counter, clamped to 1..5.
func (s *Simulator) ForcePower(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = models.ClampPower(level)
	s.log.Infow("sim_force_power", "power", s.power)
}

// ForceAmbient sets the base ambient temperature.
func (s *Simulator) ForceAmbient(c float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ambientBase = c
	s.log.Infow("sim_force_ambient", "base_c", c)
}

// SetFailureMode makes every read return the undefined pattern and drops
// every write. Only for fault-tolerance testing.
func (s *Simulator) SetFailureMode(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = enabled
	s.log.Infow("sim_failure_mode", "enabled", enabled)
}

// State returns the simulated phase after advancing to now.
func (s *Simulator) State() models.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(s.clk.Now())
	return s.state
}

// Power returns the simulated power counter.
func (s *Simulator) Power() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

// ambientC oscillates up to 2 °C above the base over each minute.
func (s *Simulator) ambientC(now time.Time) float64 {
	phase := float64(now.UnixMilli()%60000) / 60000.0
	return s.ambientBase + math.Sin(phase*math.Pi)*2.0
}
