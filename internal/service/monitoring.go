package service

import (
	"context"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/models"
	"pellet_stove/internal/scheduler"
)

type MonitoringService struct {
	ctrl  StoveView
	sched *scheduler.Scheduler
	panel ControlPanel
	clk   clock.Clock
}

func NewMonitoringService(ctrl StoveView, sched *scheduler.Scheduler, panel ControlPanel, clk clock.Clock) *MonitoringService {
	return &MonitoringService{ctrl: ctrl, sched: sched, panel: panel, clk: clk}
}

// Status assembles the current view. It never fails: a component whose
// lock timed out contributes its safe default.
func (s *MonitoringService) Status(ctx context.Context) models.StoveStatus {
	st := models.StoveStatus{
		Snapshot:              s.ctrl.Snapshot(),
		IsOn:                  s.ctrl.IsOn(),
		AutoShutdownEnabled:   s.ctrl.IsAutoShutdownEnabled(),
		AutoShutdownRemaining: s.ctrl.AutoShutdownRemaining().Milliseconds(),
		PowerAdjustInProgress: s.ctrl.IsPowerAdjustInProgress(),
		UpdatedAt:             s.clk.Now().UTC(),
	}
	if s.sched != nil {
		st.SchedulerEnabled = s.sched.GlobalEnabled()
	}
	if s.panel != nil {
		st.Controls = s.panel.State()
	}
	return st
}
