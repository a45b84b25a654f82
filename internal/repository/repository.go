package repository

import (
	"context"
	"database/sql"
	"time"

	"pellet_stove/internal/models"
)

// Authorization stores dashboard accounts.
type Authorization interface {
	Create(ctx context.Context, u models.User) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	CountOperators(ctx context.Context) (int, error)
}

type ScheduleRepo interface {
	SaveEntry(ctx context.Context, slot int, e models.ScheduleEntry) error
	LoadEntries(ctx context.Context) (map[int]models.ScheduleEntry, error)
	SaveEnabled(ctx context.Context, enabled bool) error
	LoadEnabled(ctx context.Context) (enabled bool, found bool, err error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.StoveEvent) error
	List(ctx context.Context, from, to time.Time, typ string, limit int) ([]models.StoveEvent, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type Repository struct {
	ScheduleRepo ScheduleRepo
	EventRepo    EventRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		ScheduleRepo: NewScheduleSQLite(db),
		EventRepo:    NewEventSQLite(db),
		Auth:         NewUserSQLite(db),
	}
}
