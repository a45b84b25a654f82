package service

import (
	"context"
	"fmt"

	"pellet_stove/internal/dispatch"
	"pellet_stove/internal/gating"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/models"
	"pellet_stove/internal/repository"
	"pellet_stove/internal/scheduler"
)

type ScheduleService struct {
	sched    *scheduler.Scheduler
	repo     repository.ScheduleRepo
	commands CommandSink
	gate     ControlLocker
	log      *logger.Logger
}

func NewScheduleService(sched *scheduler.Scheduler, repo repository.ScheduleRepo, commands CommandSink, gate ControlLocker, log *logger.Logger) *ScheduleService {
	if log == nil {
		log = logger.Nop()
	}
	return &ScheduleService{sched: sched, repo: repo, commands: commands, gate: gate, log: log}
}

func (s *ScheduleService) Entries(ctx context.Context) []models.ScheduleEntry {
	return s.sched.Entries()
}

func (s *ScheduleService) Summary(ctx context.Context) string {
	return s.sched.BuildSummary()
}

// validateSchedule mirrors the table's own checks so clients get a 400
// instead of a silently rejected command.
func validateSchedule(p ScheduleParams) error {
	switch {
	case p.Index < 0 || p.Index >= scheduler.Slots:
		return fmt.Errorf("%w: index %d not in 0..%d", ErrInvalidInput, p.Index, scheduler.Slots-1)
	case p.Day < 1 || p.Day > 7:
		return fmt.Errorf("%w: day %d not in 0..7", ErrInvalidInput, p.Day)
	case p.Hour < 0 || p.Hour > 23:
		return fmt.Errorf("%w: hour %d not in 0..23", ErrInvalidInput, p.Hour)
	case p.Minute < 0 || p.Minute > 59:
		return fmt.Errorf("%w: minute %d not in 0..59", ErrInvalidInput, p.Minute)
	}
	return nil
}

// Apply queues a slot update. Day 0 is taken as Sunday; power is clamped
// by the table.
func (s *ScheduleService) Apply(ctx context.Context, p ScheduleParams) error {
	p.Day = scheduler.NormalizeDay(p.Day)
	if err := validateSchedule(p); err != nil {
		return err
	}
	lock := func() { s.gate.Lock(gating.ScheduleApply) }
	return lockAndSubmit(ctx, s.gate, gating.ScheduleApply, lock, s.commands, dispatch.ApplySchedule{
		Index:  p.Index,
		Active: p.Active,
		Day:    p.Day,
		Hour:   p.Hour,
		Minute: p.Minute,
		Power:  p.Power,
	})
}

func (s *ScheduleService) SetEnabled(ctx context.Context, enabled bool) error {
	return submit(ctx, s.commands, dispatch.SetSchedulerEnabled{Enabled: enabled})
}

// Restore loads the persisted table into the scheduler. Call once at boot,
// before the schedule loop starts.
func (s *ScheduleService) Restore(ctx context.Context) error {
	stored, err := s.repo.LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("restore schedule: %w", err)
	}
	enabled, _, err := s.repo.LoadEnabled(ctx)
	if err != nil {
		return fmt.Errorf("restore schedule: %w", err)
	}

	entries := s.sched.Entries()
	if entries == nil {
		return fmt.Errorf("restore schedule: scheduler lock timeout")
	}
	for slot, e := range stored {
		if slot >= 0 && slot < len(entries) {
			entries[slot] = e
		}
	}
	n := s.sched.Load(entries, enabled)
	s.log.Infow("schedule_restored", "stored", len(stored), "applied", n, "enabled", enabled)
	return nil
}
