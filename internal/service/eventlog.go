package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pellet_stove/internal/models"
	"pellet_stove/internal/repository"
)

// maxLogLimit caps a single page of the audit log.
const maxLogLimit = 1000

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalize validates f and returns it in the form the repository expects:
// UTC bounds, an upper-case known type and a limit no larger than maxLogLimit.
func (f LogFilter) normalize() (LogFilter, error) {
	out := LogFilter{
		From:  utcOrZero(f.From),
		To:    utcOrZero(f.To),
		Type:  strings.ToUpper(strings.TrimSpace(f.Type)),
		Limit: f.Limit,
	}
	if !out.From.IsZero() && !out.To.IsZero() && out.From.After(out.To) {
		return LogFilter{}, fmt.Errorf("%w: from must be <= to", ErrInvalidInput)
	}
	if out.Type != "" && !models.IsEventType(out.Type) {
		return LogFilter{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, out.Type)
	}
	if out.Limit > maxLogLimit {
		out.Limit = maxLogLimit
	}
	return out, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.StoveEvent, error) {
	f, err := f.normalize()
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, f.From, f.To, f.Type, f.Limit)
}
