package service

import (
	"context"
	"fmt"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/dispatch"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/models"
	"pellet_stove/internal/repository"
)

const (
	journalBacklog      = 64
	journalWriteTimeout = 2 * time.Second
	pruneInterval       = time.Hour
)

// ScheduleReader is the read side of the weekly table.
type ScheduleReader interface {
	Entry(index int) models.ScheduleEntry
	GlobalEnabled() bool
}

// Journal records dispatched commands and controller transitions in the
// event log and persists schedule changes. It observes the dispatcher and
// the controller; writes happen on its own goroutine so observers never
// wait on the database.
type Journal struct {
	events    repository.EventRepo
	schedules repository.ScheduleRepo
	sched     ScheduleReader
	clk       clock.Clock
	log       *logger.Logger
	jobs      chan func(context.Context) error
	retention time.Duration
}

func NewJournal(events repository.EventRepo, schedules repository.ScheduleRepo, sched ScheduleReader, clk clock.Clock, log *logger.Logger) *Journal {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Journal{
		events:    events,
		schedules: schedules,
		sched:     sched,
		clk:       clk,
		log:       log,
		jobs:      make(chan func(context.Context) error, journalBacklog),
	}
}

// SetRetention makes Run delete events older than d once an hour. Zero keeps
// everything. Call before Run.
func (j *Journal) SetRetention(d time.Duration) {
	j.retention = d
}

// Run writes queued records until ctx is cancelled, then flushes what is
// left with a short deadline.
func (j *Journal) Run(ctx context.Context) {
	var prune <-chan time.Time
	if j.retention > 0 {
		t := time.NewTicker(pruneInterval)
		defer t.Stop()
		prune = t.C
		j.schedulePrune()
	}

	for {
		select {
		case <-prune:
			j.schedulePrune()
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
			j.flush(flushCtx)
			cancel()
			return
		case job := <-j.jobs:
			j.exec(ctx, job)
		}
	}
}

// flush runs every queued job without waiting for new ones.
func (j *Journal) flush(ctx context.Context) {
	for {
		select {
		case job := <-j.jobs:
			j.exec(ctx, job)
		default:
			return
		}
	}
}

func (j *Journal) exec(ctx context.Context, job func(context.Context) error) {
	wctx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
	defer cancel()
	if err := job(wctx); err != nil {
		j.log.Warnw("journal_write_failed", "err", err)
	}
}

func (j *Journal) enqueue(job func(context.Context) error) {
	select {
	case j.jobs <- job:
	default:
		j.log.Warnw("journal_backlog_full", "backlog", journalBacklog)
	}
}

func (j *Journal) record(typ, desc string, meta map[string]any) {
	e := models.StoveEvent{
		OccurredAt:  j.clk.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	}
	j.enqueue(func(ctx context.Context) error {
		return j.events.Append(ctx, e)
	})
}

// Dispatched implements dispatch.Observer.
func (j *Journal) Dispatched(cmd dispatch.Command, ok bool) {
	meta := map[string]any{"command": cmd.Name(), "ok": ok}
	desc := dispatch.Describe(cmd)
	if !ok {
		desc += " (rejected)"
	}

	switch c := cmd.(type) {
	case dispatch.Start:
		j.record(models.EventStart, desc, meta)
	case dispatch.Shutdown:
		if ok {
			j.record(models.EventShutdown, desc, meta)
		}
	case dispatch.SetPower:
		meta["level"] = c.Level
		j.record(models.EventPower, desc, meta)
	case dispatch.SetTimer:
		meta["minutes"] = c.Minutes
		j.record(models.EventTimer, desc, meta)
	case dispatch.ApplySchedule:
		meta["index"] = c.Index
		j.record(models.EventScheduleApply, desc, meta)
		if ok {
			j.persistEntry(c.Index)
		}
	case dispatch.SetSchedulerEnabled:
		meta["enabled"] = c.Enabled
		j.record(models.EventScheduleEnabled, desc, meta)
		j.persistEnabled(c.Enabled)
	}
}

// ShutdownDenied implements dispatch.Observer.
func (j *Journal) ShutdownDenied() {
	j.record(models.EventShutdownDenied, "shutdown refused inside the minimum on-time", nil)
}

// StateChanged implements controller.Observer.
func (j *Journal) StateChanged(from, to models.RunState) {
	j.record(models.EventStateChange,
		fmt.Sprintf("%s -> %s", from, to),
		map[string]any{"from": from.String(), "to": to.String()})
}

// AutoShutdownFired implements controller.Observer.
func (j *Journal) AutoShutdownFired(accepted bool) {
	desc := "auto-shutdown timer expired"
	if !accepted {
		desc += ", shutdown refused"
	}
	j.record(models.EventAutoShutdown, desc, map[string]any{"accepted": accepted})
}

// ScheduleFired records a weekly-table trigger.
func (j *Journal) ScheduleFired(targetPower uint8) {
	j.record(models.EventScheduleFired,
		fmt.Sprintf("schedule trigger power=%d", targetPower),
		map[string]any{"power": targetPower})
}

func (j *Journal) persistEntry(index int) {
	if j.schedules == nil || j.sched == nil {
		return
	}
	e := j.sched.Entry(index)
	j.enqueue(func(ctx context.Context) error {
		if err := j.schedules.SaveEntry(ctx, index, e); err != nil {
			return fmt.Errorf("persist schedule slot %d: %w", index, err)
		}
		return nil
	})
}

func (j *Journal) persistEnabled(enabled bool) {
	if j.schedules == nil {
		return
	}
	j.enqueue(func(ctx context.Context) error {
		if err := j.schedules.SaveEnabled(ctx, enabled); err != nil {
			return fmt.Errorf("persist scheduler enabled: %w", err)
		}
		return nil
	})
}

func (j *Journal) schedulePrune() {
	cutoff := j.clk.Now().Add(-j.retention)
	j.enqueue(func(ctx context.Context) error {
		n, err := j.events.Prune(ctx, cutoff)
		if err != nil {
			return err
		}
		if n > 0 {
			j.log.Infow("journal_pruned", "events", n, "before", cutoff.UTC())
		}
		return nil
	})
}
