// Package metrics exports the stove model and command activity to
// Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pellet_stove/internal/dispatch"
	"pellet_stove/internal/models"
)

// Source is what the collector samples at scrape time.
type Source interface {
	Snapshot() models.StatusSnapshot
	IsOn() bool
	IsAutoShutdownEnabled() bool
	AutoShutdownRemaining() time.Duration
}

// Queue reports the dispatcher backlog.
type Queue interface {
	Pending() int
}

// Collector samples gauges on scrape and counts dispatcher and controller
// events as they happen. It observes both.
type Collector struct {
	src   Source
	queue Queue

	state         *prometheus.GaugeVec
	power         prometheus.Gauge
	ambient       prometheus.Gauge
	on            prometheus.Gauge
	canShutdown   prometheus.Gauge
	autoRemaining prometheus.Gauge
	queuePending  prometheus.Gauge

	commands      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	denials       prometheus.Counter
	autoShutdowns *prometheus.CounterVec
}

const namespace = "pellet_stove"

func NewCollector(src Source, queue Queue) *Collector {
	return &Collector{
		src:   src,
		queue: queue,
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current run state (1 for the active state label)",
		}, []string{"state"}),
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_level",
			Help:      "Power level reported by the board (1-5)",
		}),
		ambient: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ambient_temperature_celsius",
			Help:      "Ambient temperature reported by the board (celsius)",
		}),
		on: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "on",
			Help:      "Whether the stove is considered on (1=on, 0=off)",
		}),
		canShutdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "can_shutdown",
			Help:      "Whether the minimum on-time has elapsed (1=yes)",
		}),
		autoRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "auto_shutdown_remaining_seconds",
			Help:      "Seconds until the auto-shutdown fires, 0 when disarmed",
		}),
		queuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "command_queue_pending",
			Help:      "Commands waiting for the dispatcher",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Dispatched commands by name and outcome.",
		}, []string{"command", "ok"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "state_transitions_total",
			Help:      "Observed run-state transitions.",
		}, []string{"from", "to"}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "shutdown_denied_total",
			Help:      "Shutdown requests refused inside the minimum on-time.",
		}),
		autoShutdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "auto_shutdown_fired_total",
			Help:      "Auto-shutdown expiries by whether the shutdown was accepted.",
		}, []string{"accepted"}),
	}
}

// Register adds the collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	return reg.Register(c)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.state.Describe(ch)
	c.power.Describe(ch)
	c.ambient.Describe(ch)
	c.on.Describe(ch)
	c.canShutdown.Describe(ch)
	c.autoRemaining.Describe(ch)
	c.queuePending.Describe(ch)
	c.commands.Describe(ch)
	c.transitions.Describe(ch)
	c.denials.Describe(ch)
	c.autoShutdowns.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.src != nil {
		snap := c.src.Snapshot()
		c.state.Reset()
		c.state.WithLabelValues(snap.State.String()).Set(1)
		c.power.Set(float64(snap.PowerLevel))
		c.ambient.Set(snap.AmbientTempC)
		c.on.Set(boolGauge(c.src.IsOn()))
		c.canShutdown.Set(boolGauge(snap.CanShutdown))
		if c.src.IsAutoShutdownEnabled() {
			c.autoRemaining.Set(c.src.AutoShutdownRemaining().Seconds())
		} else {
			c.autoRemaining.Set(0)
		}
	}
	if c.queue != nil {
		c.queuePending.Set(float64(c.queue.Pending()))
	}

	c.state.Collect(ch)
	c.power.Collect(ch)
	c.ambient.Collect(ch)
	c.on.Collect(ch)
	c.canShutdown.Collect(ch)
	c.autoRemaining.Collect(ch)
	c.queuePending.Collect(ch)
	c.commands.Collect(ch)
	c.transitions.Collect(ch)
	c.denials.Collect(ch)
	c.autoShutdowns.Collect(ch)
}

// Dispatched implements dispatch.Observer.
func (c *Collector) Dispatched(cmd dispatch.Command, ok bool) {
	c.commands.WithLabelValues(cmd.Name(), strconv.FormatBool(ok)).Inc()
}

// ShutdownDenied implements dispatch.Observer.
func (c *Collector) ShutdownDenied() {
	c.denials.Inc()
}

// StateChanged implements controller.Observer.
func (c *Collector) StateChanged(from, to models.RunState) {
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// AutoShutdownFired implements controller.Observer.
func (c *Collector) AutoShutdownFired(accepted bool) {
	c.autoShutdowns.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
