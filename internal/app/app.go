// Package app assembles the stove components from configuration and runs
// their background loops.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"pellet_stove/internal/bridge"
	"pellet_stove/internal/clock"
	"pellet_stove/internal/config"
	"pellet_stove/internal/controller"
	"pellet_stove/internal/device"
	"pellet_stove/internal/dispatch"
	"pellet_stove/internal/gating"
	"pellet_stove/internal/handlers"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/metrics"
	"pellet_stove/internal/micronova"
	"pellet_stove/internal/repository"
	"pellet_stove/internal/repository/db"
	"pellet_stove/internal/scheduler"
	"pellet_stove/internal/service"
)

const restoreTimeout = 5 * time.Second

// App owns every long-lived component.
type App struct {
	cfg config.Config
	log *logger.Logger
	clk clock.Clock

	db        *sql.DB
	transport *micronova.Transport

	Controller   *controller.Controller
	Scheduler    *scheduler.Scheduler
	Dispatcher   *dispatch.Dispatcher
	ScheduleLoop *dispatch.ScheduleLoop
	Gate         *gating.Gate
	Panel        *gating.Panel
	Journal      *service.Journal
	Metrics      *metrics.Collector
	Services     *service.Service
	Handler      *handlers.Handler
	Bridge       *bridge.Bridge

	group *errgroup.Group
}

// OpenDevice returns the serial transport or the simulator per device.mode.
// The transport is nil in simulator mode and the simulator nil otherwise.
func OpenDevice(cfg config.Config, clk clock.Clock, log *logger.Logger) (device.Device, *micronova.Transport, *device.Simulator, error) {
	if cfg.Device.Mode == config.ModeSim {
		sim := device.NewSimulator(clk, cfg.RegisterMap(), log.Named("sim"))
		return sim, nil, sim, nil
	}
	t, err := micronova.Open(cfg.Serial.Port, cfg.Serial.Baud, cfg.TransportOptions())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open serial %s: %w", cfg.Serial.Port, err)
	}
	return t, t, nil, nil
}

// New opens the database and the device and wires the components. Nothing
// runs until Start.
func New(cfg config.Config, log *logger.Logger) (*App, error) {
	clk := clock.Real()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("init sqlite: %w", err)
	}

	dev, transport, sim, err := OpenDevice(cfg, clk, log)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	a := &App{cfg: cfg, log: log, clk: clk, db: sqlDB, transport: transport}

	a.Controller = controller.New(dev, clk, cfg.ControllerSettings(), log.Named("controller"))
	a.Scheduler = scheduler.New(cfg.Loops.ScheduleLock, log.Named("scheduler"))
	a.Dispatcher = dispatch.New(a.Controller, a.Scheduler, log.Named("dispatch"))
	a.ScheduleLoop = dispatch.NewScheduleLoop(a.Dispatcher, a.Scheduler, a.Controller, clk, loc, log.Named("schedule"))
	a.Gate = gating.NewGate(clk, cfg.GatingTimeouts(), log.Named("gating"))
	a.Panel = gating.NewPanel()

	repos := repository.NewRepository(sqlDB)
	a.Journal = service.NewJournal(repos.EventRepo, repos.ScheduleRepo, a.Scheduler, clk, log.Named("journal"))
	a.Journal.SetRetention(cfg.DB.Retention)
	a.Metrics = metrics.NewCollector(a.Controller, a.Dispatcher)

	a.Controller.AddObserver(a.Journal)
	a.Controller.AddObserver(a.Metrics)
	a.Dispatcher.AddObserver(a.Gate)
	a.Dispatcher.AddObserver(a.Journal)
	a.Dispatcher.AddObserver(a.Metrics)
	a.ScheduleLoop.OnFire(a.Journal.ScheduleFired)

	a.Services = service.NewService(repos, service.Core{
		Controller: a.Controller,
		Scheduler:  a.Scheduler,
		Commands:   a.Dispatcher,
		Gate:       a.Gate,
		Panel:      a.Panel,
		Device:     dev,
		Sim:        sim,
		Clock:      clk,
	}, service.AuthOptions{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	}, log.Named("service"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := a.Metrics.Register(reg); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	a.Handler = handlers.NewHandler(a.Services, log.Named("http"), handlers.Options{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	if cfg.MQTT.Enabled {
		a.Bridge = bridge.New(bridge.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Prefix:   cfg.MQTT.Prefix,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,

			ConnectTimeout: cfg.MQTT.ConnectTimeout,
		}, a.Services, log.Named("mqtt"))
	}
	return a, nil
}

// Start restores the persisted schedule and launches the loops. They stop
// when ctx is cancelled; Wait blocks until they have.
func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, restoreTimeout)
	err := a.Services.Schedule.Restore(rctx)
	cancel()
	if err != nil {
		// The defaults are a safe table; keep running.
		a.log.Warnw("schedule_restore_failed", "err", err)
	}

	if a.Bridge != nil {
		if err := a.Bridge.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// MQTT is optional; paho keeps retrying while the stove runs.
			a.log.Warnw("mqtt_connect_deferred", "broker", a.cfg.MQTT.Broker, "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	a.group = g

	g.Go(func() error { a.Dispatcher.Run(gctx); return nil })
	g.Go(func() error { a.Journal.Run(gctx); return nil })
	g.Go(func() error { dispatch.PollLoop(gctx, a.Controller, a.cfg.PollIntervals()); return nil })
	g.Go(func() error { a.ScheduleLoop.Run(gctx, a.cfg.Loops.ScheduleTick); return nil })
	g.Go(func() error { a.Gate.Run(gctx, a.cfg.Gating.Tick, a.Controller, a.Panel); return nil })
	if a.Bridge != nil {
		g.Go(func() error {
			a.Bridge.Run(gctx, a.cfg.Loops.StatusPublish)
			a.Bridge.Disconnect()
			return nil
		})
	}

	a.log.Infow("stove_service_started",
		"device", a.cfg.Device.Mode, "mqtt", a.Bridge != nil, "db", a.cfg.DB.Path)
	return nil
}

// Wait blocks until every loop started by Start has returned.
func (a *App) Wait() error {
	if a.group == nil {
		return nil
	}
	return a.group.Wait()
}

// Close releases the device and the database.
func (a *App) Close() error {
	var firstErr error
	if a.transport != nil {
		if err := a.transport.Close(); err != nil {
			firstErr = fmt.Errorf("close serial: %w", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close sqlite: %w", err)
		}
	}
	return firstErr
}
