package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pellet_stove/internal/models"
)

// ScheduleSQLite persists the weekly table so it survives restarts.
type ScheduleSQLite struct {
	db *sql.DB
}

func NewScheduleSQLite(db *sql.DB) *ScheduleSQLite {
	return &ScheduleSQLite{db: db}
}

const (
	settingsRowID = 1

	upsertEntrySQL = `
		INSERT INTO schedule_entries (slot, active, day, hour, minute, power, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			active=excluded.active,
			day=excluded.day,
			hour=excluded.hour,
			minute=excluded.minute,
			power=excluded.power,
			updated_at=excluded.updated_at
	`

	selectEntriesSQL = `
		SELECT slot, active, day, hour, minute, power
		FROM schedule_entries ORDER BY slot ASC
	`

	upsertEnabledSQL = `
		INSERT INTO scheduler_settings (id, enabled, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled=excluded.enabled,
			updated_at=excluded.updated_at
	`

	selectEnabledSQL = `SELECT enabled FROM scheduler_settings WHERE id=?`
)

// SaveEntry upserts one slot.
func (r *ScheduleSQLite) SaveEntry(ctx context.Context, slot int, e models.ScheduleEntry) error {
	_, err := r.db.ExecContext(ctx, upsertEntrySQL,
		slot, e.Active, int(e.Day), int(e.Hour), int(e.Minute), int(e.TargetPower),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save schedule slot %d: %w", slot, err)
	}
	return nil
}

// LoadEntries returns the stored table indexed by slot. Slots never saved
// are absent from the map.
func (r *ScheduleSQLite) LoadEntries(ctx context.Context) (map[int]models.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntriesSQL)
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	defer rows.Close()

	out := make(map[int]models.ScheduleEntry)
	for rows.Next() {
		var slot, day, hour, minute, power int
		var e models.ScheduleEntry
		if err := rows.Scan(&slot, &e.Active, &day, &hour, &minute, &power); err != nil {
			return nil, fmt.Errorf("scan schedule slot: %w", err)
		}
		e.Day, e.Hour, e.Minute, e.TargetPower = uint8(day), uint8(hour), uint8(minute), uint8(power)
		out[slot] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ScheduleSQLite) SaveEnabled(ctx context.Context, enabled bool) error {
	if _, err := r.db.ExecContext(ctx, upsertEnabledSQL, settingsRowID, enabled, time.Now().UTC()); err != nil {
		return fmt.Errorf("save scheduler enabled: %w", err)
	}
	return nil
}

// LoadEnabled returns (true, false, nil) when the flag was never saved.
func (r *ScheduleSQLite) LoadEnabled(ctx context.Context) (enabled bool, found bool, err error) {
	err = r.db.QueryRowContext(ctx, selectEnabledSQL, settingsRowID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("load scheduler enabled: %w", err)
	}
	return enabled, true, nil
}
