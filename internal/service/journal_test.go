package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/dispatch"
	"pellet_stove/internal/models"
	"pellet_stove/internal/scheduler"
)

func newTestJournal() (*Journal, *fakeEventRepo, *fakeScheduleRepo, *scheduler.Scheduler) {
	events := &fakeEventRepo{}
	schedules := &fakeScheduleRepo{}
	sched := scheduler.New(50*time.Millisecond, nil)
	clk := clock.NewFake(time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC))
	return NewJournal(events, schedules, sched, clk, nil), events, schedules, sched
}

func TestJournal_RecordsCommandTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cmd      dispatch.Command
		ok       bool
		wantType string
		wantNone bool
	}{
		{"start", dispatch.Start{}, true, models.EventStart, false},
		{"shutdown accepted", dispatch.Shutdown{}, true, models.EventShutdown, false},
		{"shutdown denied is reported separately", dispatch.Shutdown{}, false, "", true},
		{"power", dispatch.SetPower{Level: 3}, true, models.EventPower, false},
		{"timer", dispatch.SetTimer{Minutes: 30}, false, models.EventTimer, false},
		{"schedule enabled", dispatch.SetSchedulerEnabled{Enabled: true}, true, models.EventScheduleEnabled, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			j, events, _, _ := newTestJournal()
			j.Dispatched(tt.cmd, tt.ok)
			j.flush(context.Background())

			if tt.wantNone {
				if len(events.appended) != 0 {
					t.Fatalf("appended %+v", events.appended)
				}
				return
			}
			if len(events.appended) != 1 {
				t.Fatalf("appended %d events", len(events.appended))
			}
			e := events.appended[0]
			if e.Type != tt.wantType {
				t.Fatalf("type = %s, want %s", e.Type, tt.wantType)
			}
			if e.OccurredAt.IsZero() || e.Description == "" {
				t.Fatalf("event = %+v", e)
			}
		})
	}
}

func TestJournal_PersistsAppliedScheduleSlot(t *testing.T) {
	t.Parallel()

	j, events, schedules, sched := newTestJournal()
	cmd := dispatch.ApplySchedule{Index: 4, Active: true, Day: 2, Hour: 6, Minute: 45, Power: 9}
	ok := sched.UpdateEntry(cmd.Index, cmd.Active, cmd.Day, cmd.Hour, cmd.Minute, cmd.Power)
	j.Dispatched(cmd, ok)
	j.flush(context.Background())

	if len(events.appended) != 1 || events.appended[0].Type != models.EventScheduleApply {
		t.Fatalf("events = %+v", events.appended)
	}
	got, found := schedules.entries[4]
	if !found {
		t.Fatal("slot 4 not persisted")
	}
	if got.TargetPower != models.MaxPower || got.Hour != 6 || got.Minute != 45 {
		t.Fatalf("persisted %+v, want the clamped table entry", got)
	}
}

func TestJournal_RejectedScheduleIsNotPersisted(t *testing.T) {
	t.Parallel()

	j, events, schedules, _ := newTestJournal()
	j.Dispatched(dispatch.ApplySchedule{Index: 1, Day: 0}, false)
	j.flush(context.Background())

	if len(schedules.savedSlots) != 0 {
		t.Fatalf("saved %v", schedules.savedSlots)
	}
	if len(events.appended) != 1 {
		t.Fatalf("rejection not journaled")
	}
}

func TestJournal_PersistsEnabledFlag(t *testing.T) {
	t.Parallel()

	j, _, schedules, _ := newTestJournal()
	j.Dispatched(dispatch.SetSchedulerEnabled{Enabled: false}, true)
	j.flush(context.Background())

	if len(schedules.savedFlags) != 1 || schedules.savedFlags[0] {
		t.Fatalf("saved flags = %v", schedules.savedFlags)
	}
}

func TestJournal_ControllerEvents(t *testing.T) {
	t.Parallel()

	j, events, _, _ := newTestJournal()
	j.StateChanged(models.StateOff, models.StateStarting)
	j.AutoShutdownFired(false)
	j.ShutdownDenied()
	j.ScheduleFired(3)
	j.flush(context.Background())

	want := []string{models.EventStateChange, models.EventAutoShutdown, models.EventShutdownDenied, models.EventScheduleFired}
	if len(events.appended) != len(want) {
		t.Fatalf("appended %d events, want %d", len(events.appended), len(want))
	}
	for i, typ := range want {
		if events.appended[i].Type != typ {
			t.Fatalf("event %d type = %s, want %s", i, events.appended[i].Type, typ)
		}
	}
	if events.appended[0].Description != "Off -> Starting" {
		t.Fatalf("description = %q", events.appended[0].Description)
	}
}

func TestJournal_WriteErrorDoesNotStopTheQueue(t *testing.T) {
	t.Parallel()

	j, events, _, _ := newTestJournal()
	events.appendErr = errors.New("disk full")
	j.Dispatched(dispatch.Start{}, true)
	j.Dispatched(dispatch.SetPower{Level: 2}, true)
	j.flush(context.Background())

	if len(events.appended) != 2 {
		t.Fatalf("attempted %d writes, want 2", len(events.appended))
	}
}

func TestJournal_RunFlushesOnCancel(t *testing.T) {
	t.Parallel()

	j, events, _, _ := newTestJournal()
	j.Dispatched(dispatch.Start{}, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	j.Run(ctx)

	if len(events.appended) != 1 {
		t.Fatalf("appended %d events after shutdown flush", len(events.appended))
	}
}

func TestJournal_BacklogFullDrops(t *testing.T) {
	t.Parallel()

	j, events, _, _ := newTestJournal()
	for i := 0; i < journalBacklog+5; i++ {
		j.ShutdownDenied()
	}
	j.flush(context.Background())

	if len(events.appended) != journalBacklog {
		t.Fatalf("appended %d, want %d", len(events.appended), journalBacklog)
	}
}

func TestJournal_PruneUsesRetentionCutoff(t *testing.T) {
	t.Parallel()

	j, events, _, _ := newTestJournal()
	j.SetRetention(48 * time.Hour)
	j.schedulePrune()
	j.flush(context.Background())

	want := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	if len(events.prunedBefore) != 1 || !events.prunedBefore[0].Equal(want) {
		t.Fatalf("pruned before %v, want [%v]", events.prunedBefore, want)
	}
}
