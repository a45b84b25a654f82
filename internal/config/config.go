// Package config loads the service configuration with viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"pellet_stove/internal/controller"
	"pellet_stove/internal/dispatch"
	"pellet_stove/internal/gating"
	"pellet_stove/internal/micronova"
)

// Device modes.
const (
	ModeSerial = "serial"
	ModeSim    = "sim"
)

const envPrefix = "STOVE"

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Device     DeviceConfig     `mapstructure:"device"`
	Serial     SerialConfig     `mapstructure:"serial"`
	Registers  RegisterConfig   `mapstructure:"registers"`
	Controller ControllerConfig `mapstructure:"controller"`
	Gating     GatingConfig     `mapstructure:"gating"`
	Loops      LoopConfig       `mapstructure:"loops"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	DB         DBConfig         `mapstructure:"db"`
	Auth       AuthConfig       `mapstructure:"auth"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is console or json.
	Format string `mapstructure:"format"`
}

type DeviceConfig struct {
	// Mode is "serial" for the RS485 board or "sim" for the simulator.
	Mode string `mapstructure:"mode"`
}

type SerialConfig struct {
	Port          string        `mapstructure:"port"`
	Baud          int           `mapstructure:"baud"`
	LockWait      time.Duration `mapstructure:"lock_wait"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	CollectWindow time.Duration `mapstructure:"collect_window"`
	BytePacing    time.Duration `mapstructure:"byte_pacing"`
}

type RegisterConfig struct {
	State         int `mapstructure:"state"`
	AmbientTemp   int `mapstructure:"ambient_temp"`
	PowerFeedback int `mapstructure:"power_feedback"`
	Command       int `mapstructure:"command"`
}

type ControllerConfig struct {
	SafetyMinOnTime    time.Duration `mapstructure:"safety_min_on_time"`
	EnforceMinOnTime   bool          `mapstructure:"enforce_min_on_time"`
	AutoShutdownMax    time.Duration `mapstructure:"auto_shutdown_max"`
	ShutdownRepeats    int           `mapstructure:"shutdown_repeats"`
	ShutdownPulseDelay time.Duration `mapstructure:"shutdown_pulse_delay"`
	PowerPulseDelay    time.Duration `mapstructure:"power_pulse_delay"`
	PowerSettleDelay   time.Duration `mapstructure:"power_settle_delay"`
	PowerExtraPulses   int           `mapstructure:"power_extra_pulses"`
	LockWait           time.Duration `mapstructure:"lock_wait"`
}

type GatingConfig struct {
	Tick            time.Duration `mapstructure:"tick"`
	StartConfirm    time.Duration `mapstructure:"start_confirm"`
	ShutdownConfirm time.Duration `mapstructure:"shutdown_confirm"`
	PowerAdjust     time.Duration `mapstructure:"power_adjust"`
	TimerSettle     time.Duration `mapstructure:"timer_settle"`
	ScheduleSettle  time.Duration `mapstructure:"schedule_settle"`
	Failsafe        time.Duration `mapstructure:"failsafe"`
}

type LoopConfig struct {
	PollOn        time.Duration `mapstructure:"poll_on"`
	PollOff       time.Duration `mapstructure:"poll_off"`
	ScheduleTick  time.Duration `mapstructure:"schedule_tick"`
	ScheduleLock  time.Duration `mapstructure:"schedule_lock_wait"`
	Timezone      string        `mapstructure:"timezone"`
	StatusPublish time.Duration `mapstructure:"status_publish"`
}

type HTTPConfig struct {
	Port              string        `mapstructure:"port"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
	// Retention bounds the audit log's age; 0 keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Prefix   string `mapstructure:"prefix"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// ConnectTimeout bounds the first broker connect; the service starts
	// either way and paho keeps retrying.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

func setDefaults(v *viper.Viper) {
	ctrl := controller.DefaultConfig()
	gt := gating.DefaultTimeouts()
	poll := dispatch.DefaultPollIntervals()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("device.mode", ModeSim)

	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baud", micronova.DefaultBaudRate)
	v.SetDefault("serial.lock_wait", micronova.DefaultLockWait)
	v.SetDefault("serial.settle_delay", micronova.DefaultSettleDelay)
	v.SetDefault("serial.collect_window", micronova.DefaultCollectWindow)
	v.SetDefault("serial.byte_pacing", micronova.DefaultBytePacing)

	v.SetDefault("registers.state", int(ctrl.Registers.State))
	v.SetDefault("registers.ambient_temp", int(ctrl.Registers.AmbientTemp))
	v.SetDefault("registers.power_feedback", int(ctrl.Registers.PowerFeedback))
	v.SetDefault("registers.command", int(ctrl.Registers.Command))

	v.SetDefault("controller.safety_min_on_time", ctrl.SafetyMinOnTime)
	v.SetDefault("controller.enforce_min_on_time", ctrl.EnforceMinOnTime)
	v.SetDefault("controller.auto_shutdown_max", ctrl.AutoShutdownMax)
	v.SetDefault("controller.shutdown_repeats", ctrl.ShutdownRepeats)
	v.SetDefault("controller.shutdown_pulse_delay", ctrl.ShutdownPulseDelay)
	v.SetDefault("controller.power_pulse_delay", ctrl.PowerPulseDelay)
	v.SetDefault("controller.power_settle_delay", ctrl.PowerSettleDelay)
	v.SetDefault("controller.power_extra_pulses", ctrl.PowerExtraPulses)
	v.SetDefault("controller.lock_wait", ctrl.LockWait)

	v.SetDefault("gating.tick", time.Second)
	v.SetDefault("gating.start_confirm", gt.StartConfirm)
	v.SetDefault("gating.shutdown_confirm", gt.ShutdownConfirm)
	v.SetDefault("gating.power_adjust", gt.PowerAdjust)
	v.SetDefault("gating.timer_settle", gt.TimerSettle)
	v.SetDefault("gating.schedule_settle", gt.ScheduleSettle)
	v.SetDefault("gating.failsafe", gt.Failsafe)

	v.SetDefault("loops.poll_on", poll.On)
	v.SetDefault("loops.poll_off", poll.Off)
	v.SetDefault("loops.schedule_tick", 2*time.Second)
	v.SetDefault("loops.schedule_lock_wait", 200*time.Millisecond)
	v.SetDefault("loops.timezone", "Local")
	v.SetDefault("loops.status_publish", 2*time.Second)

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("http.read_header_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("db.path", "stove.db")
	v.SetDefault("db.retention", 30*24*time.Hour)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "pellet-stove")
	v.SetDefault("mqtt.prefix", "stove")
	v.SetDefault("mqtt.connect_timeout", 5*time.Second)
}

// Load reads configs/config.yml (or the file at path when set) and applies
// STOVE_* environment overrides. A missing config file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would make the stove unsafe to drive.
func (c Config) Validate() error {
	switch c.Device.Mode {
	case ModeSerial, ModeSim:
	default:
		return fmt.Errorf("device.mode %q: want %q or %q", c.Device.Mode, ModeSerial, ModeSim)
	}
	if c.Controller.ShutdownRepeats <= 0 {
		return fmt.Errorf("controller.shutdown_repeats must be positive")
	}
	if c.Controller.SafetyMinOnTime < 0 || c.Controller.AutoShutdownMax <= 0 {
		return fmt.Errorf("controller safety window and auto_shutdown_max must be positive")
	}
	for name, r := range map[string]int{
		"state":          c.Registers.State,
		"ambient_temp":   c.Registers.AmbientTemp,
		"power_feedback": c.Registers.PowerFeedback,
		"command":        c.Registers.Command,
	} {
		if r < 0 || r > 0xFF {
			return fmt.Errorf("registers.%s 0x%X out of byte range", name, r)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves loops.timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Loops.Timezone == "" || c.Loops.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Loops.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loops.timezone: %w", err)
	}
	return loc, nil
}

// ControllerSettings converts to the controller's own settings.
func (c Config) ControllerSettings() controller.Config {
	return controller.Config{
		Registers:          c.RegisterMap(),
		SafetyMinOnTime:    c.Controller.SafetyMinOnTime,
		EnforceMinOnTime:   c.Controller.EnforceMinOnTime,
		AutoShutdownMax:    c.Controller.AutoShutdownMax,
		ShutdownRepeats:    c.Controller.ShutdownRepeats,
		ShutdownPulseDelay: c.Controller.ShutdownPulseDelay,
		PowerPulseDelay:    c.Controller.PowerPulseDelay,
		PowerSettleDelay:   c.Controller.PowerSettleDelay,
		PowerExtraPulses:   c.Controller.PowerExtraPulses,
		LockWait:           c.Controller.LockWait,
	}
}

func (c Config) RegisterMap() micronova.Registers {
	return micronova.Registers{
		State:         byte(c.Registers.State),
		AmbientTemp:   byte(c.Registers.AmbientTemp),
		PowerFeedback: byte(c.Registers.PowerFeedback),
		Command:       byte(c.Registers.Command),
	}
}

func (c Config) GatingTimeouts() gating.Timeouts {
	return gating.Timeouts{
		StartConfirm:    c.Gating.StartConfirm,
		ShutdownConfirm: c.Gating.ShutdownConfirm,
		PowerAdjust:     c.Gating.PowerAdjust,
		TimerSettle:     c.Gating.TimerSettle,
		ScheduleSettle:  c.Gating.ScheduleSettle,
		Failsafe:        c.Gating.Failsafe,
	}
}

func (c Config) PollIntervals() dispatch.PollIntervals {
	return dispatch.PollIntervals{On: c.Loops.PollOn, Off: c.Loops.PollOff}
}

func (c Config) TransportOptions() micronova.Options {
	return micronova.Options{
		LockWait:      c.Serial.LockWait,
		SettleDelay:   c.Serial.SettleDelay,
		CollectWindow: c.Serial.CollectWindow,
		BytePacing:    c.Serial.BytePacing,
	}
}
