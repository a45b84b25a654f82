// Package scheduler keeps the fixed weekly trigger table.
package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pellet_stove/internal/logger"
	"pellet_stove/internal/models"
	"pellet_stove/internal/syncx"
)

// Slots is the table capacity.
const Slots = 8

var errSummaryFormat = errors.New("malformed schedule summary")

// Scheduler is safe for concurrent use. Entries are guarded by a
// bounded-wait lock; operations that cannot take it in time do nothing.
type Scheduler struct {
	mu      *syncx.TimedMutex
	log     *logger.Logger
	entries [Slots]models.ScheduleEntry
	enabled bool
}

// New returns an enabled scheduler with every entry inactive on Monday 00:00
// at power 1.
func New(lockWait time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	s := &Scheduler{mu: syncx.NewTimedMutex(lockWait), log: log, enabled: true}
	for i := range s.entries {
		s.entries[i] = models.ScheduleEntry{Day: 1, TargetPower: models.MinPower}
	}
	return s
}

func validEntry(day, hour, minute int) bool {
	return day >= 1 && day <= 7 && hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

// UpdateEntry replaces slot index. Out-of-range index, day, hour or minute
// reject the update; power is clamped to 1..5.
func (s *Scheduler) UpdateEntry(index int, active bool, day, hour, minute, power int) bool {
	if index < 0 || index >= Slots || !validEntry(day, hour, minute) {
		s.log.Warnw("schedule_entry_rejected",
			"index", index, "day", day, "hour", hour, "minute", minute)
		return false
	}
	e := models.ScheduleEntry{
		Active:      active,
		Day:         uint8(day),
		Hour:        uint8(hour),
		Minute:      uint8(minute),
		TargetPower: models.ClampPower(power),
	}
	if !s.mu.TryLock() {
		s.log.Warnw("schedule_lock_timeout", "op", "update")
		return false
	}
	s.entries[index] = e
	s.mu.Unlock()

	s.log.Infow("schedule_entry_updated", "index", index, "active", active,
		"day", e.Day, "hour", e.Hour, "minute", e.Minute, "power", e.TargetPower)
	return true
}

// Entry returns a copy of slot index, clamping index into range. A lock
// timeout yields an inactive default entry.
func (s *Scheduler) Entry(index int) models.ScheduleEntry {
	if index < 0 {
		index = 0
	}
	if index >= Slots {
		index = Slots - 1
	}
	if !s.mu.TryLock() {
		return models.ScheduleEntry{Day: 1, TargetPower: models.MinPower}
	}
	defer s.mu.Unlock()
	return s.entries[index]
}

// Entries returns a copy of the whole table, or nil if the lock timed out.
func (s *Scheduler) Entries() []models.ScheduleEntry {
	if !s.mu.TryLock() {
		return nil
	}
	defer s.mu.Unlock()
	out := make([]models.ScheduleEntry, Slots)
	copy(out, s.entries[:])
	return out
}

// Load restores a persisted table. Invalid entries are skipped.
func (s *Scheduler) Load(entries []models.ScheduleEntry, enabled bool) int {
	if !s.mu.TryLock() {
		return 0
	}
	defer s.mu.Unlock()
	n := 0
	for i, e := range entries {
		if i >= Slots {
			break
		}
		if !validEntry(int(e.Day), int(e.Hour), int(e.Minute)) {
			continue
		}
		e.TargetPower = models.ClampPower(int(e.TargetPower))
		s.entries[i] = e
		n++
	}
	s.enabled = enabled
	return n
}

func (s *Scheduler) SetGlobalEnabled(enabled bool) {
	if !s.mu.TryLock() {
		s.log.Warnw("schedule_lock_timeout", "op", "set_enabled")
		return
	}
	s.enabled = enabled
	s.mu.Unlock()
	s.log.Infow("schedule_global_enabled", "enabled", enabled)
}

func (s *Scheduler) GlobalEnabled() bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	return s.enabled
}

// Evaluate calls trigger once for every active entry matching day, hour and
// minute exactly. It keeps no memory of earlier calls: the caller must
// invoke it at most once per minute or entries fire again.
func (s *Scheduler) Evaluate(day, hour, minute int, stoveOn bool, trigger func(targetPower uint8)) int {
	if !s.mu.TryLock() {
		return 0
	}
	if !s.enabled {
		s.mu.Unlock()
		return 0
	}
	var due []uint8
	for _, e := range s.entries {
		if e.Active && int(e.Day) == day && int(e.Hour) == hour && int(e.Minute) == minute {
			due = append(due, e.TargetPower)
		}
	}
	s.mu.Unlock()

	for _, p := range due {
		s.log.Infow("schedule_fired", "day", day, "hour", hour, "minute", minute,
			"power", p, "stove_on", stoveOn)
		trigger(p)
	}
	return len(due)
}

// BuildSummary dumps the global flag and every entry, one per line.
func (s *Scheduler) BuildSummary() string {
	if !s.mu.TryLock() {
		return ""
	}
	defer s.mu.Unlock()

	var b strings.Builder
	state := "DISABLED"
	if s.enabled {
		state = "ENABLED"
	}
	fmt.Fprintf(&b, "Global: %s\n", state)
	for i, e := range s.entries {
		act := 0
		if e.Active {
			act = 1
		}
		fmt.Fprintf(&b, "#%d act=%d day=%d %02d:%02d power=%d\n",
			i, act, e.Day, e.Hour, e.Minute, e.TargetPower)
	}
	return b.String()
}

// ParseSummary reads back the output of BuildSummary.
func ParseSummary(summary string) (enabled bool, entries []models.ScheduleEntry, err error) {
	lines := strings.Split(strings.TrimSpace(summary), "\n")
	if len(lines) == 0 {
		return false, nil, errSummaryFormat
	}
	switch strings.TrimSpace(lines[0]) {
	case "Global: ENABLED":
		enabled = true
	case "Global: DISABLED":
	default:
		return false, nil, fmt.Errorf("%w: header %q", errSummaryFormat, lines[0])
	}

	for _, line := range lines[1:] {
		var idx, act, day, hour, minute, power int
		n, scanErr := fmt.Sscanf(strings.TrimSpace(line), "#%d act=%d day=%d %d:%d power=%d",
			&idx, &act, &day, &hour, &minute, &power)
		if scanErr != nil || n != 6 {
			return false, nil, fmt.Errorf("%w: line %q", errSummaryFormat, line)
		}
		if idx != len(entries) {
			return false, nil, fmt.Errorf("%w: index %d out of order", errSummaryFormat, idx)
		}
		entries = append(entries, models.ScheduleEntry{
			Active:      act == 1,
			Day:         uint8(day),
			Hour:        uint8(hour),
			Minute:      uint8(minute),
			TargetPower: uint8(power),
		})
	}
	return enabled, entries, nil
}

// NormalizeDay maps the Sunday-as-zero convention of external producers to
// the 1..7 range used by the table.
func NormalizeDay(day int) int {
	if day == 0 {
		return 7
	}
	return day
}

// Weekday converts a time.Weekday to 1=Monday .. 7=Sunday.
func Weekday(d time.Weekday) int {
	return NormalizeDay(int(d))
}
