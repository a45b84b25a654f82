package gating

import (
	"testing"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/models"
)

type fakeView struct {
	state     models.RunState
	on        bool
	adjusting bool
	power     uint8
}

func (v *fakeView) Snapshot() models.StatusSnapshot {
	return models.StatusSnapshot{State: v.state, PowerLevel: v.power}
}
func (v *fakeView) IsOn() bool                    { return v.on }
func (v *fakeView) IsPowerAdjustInProgress() bool { return v.adjusting }
func (v *fakeView) PowerLevel() uint8             { return v.power }

func newTestGate() (*Gate, *clock.Fake, *Panel) {
	clk := clock.NewFake(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	return NewGate(clk, DefaultTimeouts(), logger.Nop()), clk, NewPanel()
}

func TestOnOff_StartConfirmed(t *testing.T) {
	g, clk, panel := newTestGate()
	view := &fakeView{state: models.StateOff, power: 1}

	g.LockOnOff(true)
	g.Reconcile(view, panel)
	if !g.Entry(OnOff).Locked {
		t.Fatal("unlocked before confirmation")
	}
	if cs := panel.State()["on_off"]; cs.Enabled {
		t.Fatal("control not disabled")
	}

	clk.Advance(3 * time.Second)
	view.state, view.on = models.StateStarting, true
	g.Reconcile(view, panel)
	if g.Entry(OnOff).Locked {
		t.Fatal("still locked after stove turned on")
	}
	if cs := panel.State()["on_off"]; !cs.Enabled || cs.Value != 1 {
		t.Fatalf("on_off = %+v", cs)
	}
}

func TestOnOff_Timeouts(t *testing.T) {
	tests := []struct {
		name    string
		wantOn  bool
		view    fakeView
		timeout time.Duration
	}{
		{"start never confirmed", true, fakeView{state: models.StateOff}, 15 * time.Second},
		{"shutdown never confirmed", false, fakeView{state: models.StateWorking, on: true}, 20 * time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g, clk, panel := newTestGate()
			view := tt.view

			g.LockOnOff(tt.wantOn)
			clk.Advance(tt.timeout)
			g.Reconcile(&view, panel)
			if !g.Entry(OnOff).Locked {
				t.Fatal("unlocked at exactly the timeout")
			}

			clk.Advance(time.Millisecond)
			g.Reconcile(&view, panel)
			if g.Entry(OnOff).Locked {
				t.Fatal("still locked past the timeout")
			}
		})
	}
}

func TestFailsafe_UnlocksStuckControls(t *testing.T) {
	g, clk, panel := newTestGate()
	g.t.StartConfirm = time.Hour
	g.t.PowerAdjust = time.Hour
	view := &fakeView{state: models.StateOff, adjusting: true, power: 2}

	g.LockOnOff(true)
	g.Lock(Power)
	clk.Advance(30 * time.Second)
	g.Reconcile(view, panel)
	if !g.Entry(OnOff).Locked || !g.Entry(Power).Locked {
		t.Fatal("failsafe fired early")
	}

	clk.Advance(time.Millisecond)
	g.Reconcile(view, panel)
	if g.Entry(OnOff).Locked || g.Entry(Power).Locked {
		t.Fatal("failsafe did not unlock")
	}
	if cs := panel.State()["power"]; !cs.Enabled || cs.Value != 2 {
		t.Fatalf("power = %+v", cs)
	}
}

func TestPower_UnlocksWhenAdjustDone(t *testing.T) {
	g, clk, panel := newTestGate()
	view := &fakeView{state: models.StateWorking, on: true, adjusting: true, power: 2}

	g.Lock(Power)
	clk.Advance(2 * time.Second)
	g.Reconcile(view, panel)
	if !g.Entry(Power).Locked {
		t.Fatal("unlocked during adjustment")
	}

	view.adjusting, view.power = false, 4
	g.Reconcile(view, panel)
	if g.Entry(Power).Locked {
		t.Fatal("still locked")
	}
	if cs := panel.State()["power"]; cs.Value != 4 {
		t.Fatalf("power = %+v", cs)
	}
}

func TestSettleControls(t *testing.T) {
	g, clk, panel := newTestGate()
	view := &fakeView{}

	g.Lock(Timer)
	g.Lock(ScheduleApply)
	clk.Advance(1100 * time.Millisecond)
	g.Reconcile(view, panel)
	if !g.Entry(Timer).Locked {
		t.Fatal("timer unlocked before 1.5s")
	}
	if g.Entry(ScheduleApply).Locked {
		t.Fatal("schedule apply still locked after 1s")
	}

	clk.Advance(500 * time.Millisecond)
	g.Reconcile(view, panel)
	if g.Entry(Timer).Locked {
		t.Fatal("timer still locked")
	}
}

func TestShutdownDenied_Reasserts(t *testing.T) {
	g, _, panel := newTestGate()
	view := &fakeView{state: models.StateWorking, on: true}

	g.LockOnOff(false)
	g.Reconcile(view, panel)
	g.ShutdownDenied()
	if g.Entry(OnOff).Locked {
		t.Fatal("on/off still locked after denial")
	}

	g.Reconcile(view, panel)
	if cs := panel.State()["on_off"]; !cs.Enabled || cs.Value != 1 {
		t.Fatalf("on_off = %+v, want enabled and on", cs)
	}
}

func TestPanel_Defaults(t *testing.T) {
	t.Parallel()
	state := NewPanel().State()
	if len(state) != 4 {
		t.Fatalf("controls = %v", state)
	}
	for name, cs := range state {
		if !cs.Enabled {
			t.Fatalf("%s disabled by default", name)
		}
	}
}

func TestRelease_ReenablesDisabledControl(t *testing.T) {
	g, _, panel := newTestGate()
	view := &fakeView{state: models.StateWorking, on: true, power: 3, adjusting: true}

	g.Lock(Power)
	g.Reconcile(view, panel)
	if cs := panel.State()["power"]; cs.Enabled {
		t.Fatal("power not disabled")
	}

	g.Release(Power)
	if g.Entry(Power).Locked {
		t.Fatal("still locked after release")
	}
	g.Reconcile(view, panel)
	if cs := panel.State()["power"]; !cs.Enabled || cs.Value != 3 {
		t.Fatalf("power = %+v, want enabled at 3", cs)
	}
}

func TestRelease_UnlockedControlIsNoop(t *testing.T) {
	g, _, panel := newTestGate()
	view := &fakeView{state: models.StateOff, power: 1}

	g.Release(Timer)
	g.Reconcile(view, panel)
	if g.Entry(Timer).Locked {
		t.Fatal("release locked the timer")
	}
}
