package scheduler

import (
	"strings"
	"testing"
	"time"

	"pellet_stove/internal/logger"
	"pellet_stove/internal/models"
)

func newTestScheduler() *Scheduler {
	return New(200*time.Millisecond, logger.Nop())
}

func TestUpdateEntry_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                     string
		index, day, hour, minute int
		ok                       bool
	}{
		{"day zero", 0, 0, 10, 0, false},
		{"day eight", 0, 8, 10, 0, false},
		{"hour 24", 0, 1, 24, 0, false},
		{"minute 60", 0, 1, 10, 60, false},
		{"negative index", -1, 1, 10, 0, false},
		{"index past end", Slots, 1, 10, 0, false},
		{"lower bounds", 0, 1, 0, 0, true},
		{"upper bounds", Slots - 1, 7, 23, 59, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestScheduler()
			before := s.Entries()

			got := s.UpdateEntry(tt.index, true, tt.day, tt.hour, tt.minute, 3)
			if got != tt.ok {
				t.Fatalf("UpdateEntry = %v, want %v", got, tt.ok)
			}
			if !tt.ok {
				after := s.Entries()
				for i := range before {
					if before[i] != after[i] {
						t.Fatalf("entry %d mutated on rejection", i)
					}
				}
			}
		})
	}
}

func TestUpdateEntry_ClampsPower(t *testing.T) {
	s := newTestScheduler()

	if !s.UpdateEntry(0, true, 1, 0, 0, 0) {
		t.Fatal("update rejected")
	}
	if p := s.Entry(0).TargetPower; p != 1 {
		t.Fatalf("power = %d, want 1", p)
	}

	s.UpdateEntry(1, true, 1, 0, 0, 9)
	if p := s.Entry(1).TargetPower; p != 5 {
		t.Fatalf("power = %d, want 5", p)
	}
}

func TestEntry_ClampsIndex(t *testing.T) {
	s := newTestScheduler()
	s.UpdateEntry(Slots-1, true, 3, 7, 30, 2)

	if e := s.Entry(100); e.Day != 3 || e.Hour != 7 {
		t.Fatalf("Entry(100) = %+v, want last slot", e)
	}
	if e := s.Entry(-4); e.Active {
		t.Fatalf("Entry(-4) = %+v, want first slot", e)
	}
}

func TestEvaluate(t *testing.T) {
	s := newTestScheduler()
	s.UpdateEntry(0, true, 2, 6, 30, 4)
	s.UpdateEntry(1, false, 2, 6, 30, 2)
	s.UpdateEntry(2, true, 3, 6, 30, 5)

	var fired []uint8
	trigger := func(p uint8) { fired = append(fired, p) }

	if n := s.Evaluate(2, 6, 30, false, trigger); n != 1 {
		t.Fatalf("fired %d entries, want 1", n)
	}
	// Same minute again: no de-duplication.
	s.Evaluate(2, 6, 30, false, trigger)
	if len(fired) != 2 || fired[0] != 4 || fired[1] != 4 {
		t.Fatalf("fired = %v, want [4 4]", fired)
	}

	if n := s.Evaluate(2, 6, 31, false, trigger); n != 0 {
		t.Fatalf("fired %d at non-matching minute", n)
	}
}

func TestEvaluate_GlobalDisabled(t *testing.T) {
	s := newTestScheduler()
	s.UpdateEntry(0, true, 1, 0, 0, 3)
	s.SetGlobalEnabled(false)

	called := false
	s.Evaluate(1, 0, 0, false, func(uint8) { called = true })
	if called {
		t.Fatal("trigger fired while globally disabled")
	}
	if s.GlobalEnabled() {
		t.Fatal("GlobalEnabled = true")
	}
}

func TestSummary_RoundTrip(t *testing.T) {
	s := newTestScheduler()
	s.UpdateEntry(0, true, 1, 5, 7, 2)
	s.UpdateEntry(3, false, 7, 23, 59, 5)
	s.UpdateEntry(7, true, 4, 12, 0, 3)
	s.SetGlobalEnabled(false)

	summary := s.BuildSummary()
	if !strings.HasPrefix(summary, "Global: DISABLED\n") {
		t.Fatalf("summary header: %q", summary)
	}
	if !strings.Contains(summary, "#0 act=1 day=1 05:07 power=2\n") {
		t.Fatalf("summary line 0 missing: %q", summary)
	}

	enabled, entries, err := ParseSummary(summary)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if enabled {
		t.Fatal("enabled = true")
	}
	want := s.Entries()
	if len(entries) != len(want) {
		t.Fatalf("parsed %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestParseSummary_Malformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"Global: MAYBE\n",
		"Global: ENABLED\n#0 act=1 day=1\n",
		"Global: ENABLED\n#1 act=1 day=1 00:00 power=1\n",
	} {
		if _, _, err := ParseSummary(in); err == nil {
			t.Fatalf("ParseSummary(%q) accepted", in)
		}
	}
}

func TestLoad_SkipsInvalid(t *testing.T) {
	s := newTestScheduler()
	n := s.Load([]models.ScheduleEntry{
		{Active: true, Day: 2, Hour: 8, Minute: 15, TargetPower: 9},
		{Active: true, Day: 0, Hour: 8, Minute: 15, TargetPower: 2},
	}, false)

	if n != 1 {
		t.Fatalf("loaded %d, want 1", n)
	}
	if e := s.Entry(0); e.Day != 2 || e.TargetPower != 5 {
		t.Fatalf("entry 0 = %+v", e)
	}
	if e := s.Entry(1); e.Active {
		t.Fatalf("invalid entry applied: %+v", e)
	}
	if s.GlobalEnabled() {
		t.Fatal("enabled flag not restored")
	}
}

func TestWeekday(t *testing.T) {
	t.Parallel()
	if Weekday(time.Sunday) != 7 || Weekday(time.Monday) != 1 || Weekday(time.Saturday) != 6 {
		t.Fatal("weekday mapping wrong")
	}
}
