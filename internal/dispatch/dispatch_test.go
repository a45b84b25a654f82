package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pellet_stove/internal/clock"
	"pellet_stove/internal/logger"
	"pellet_stove/internal/scheduler"
)

type fakeController struct {
	mu            sync.Mutex
	on            bool
	allowShutdown bool
	calls         []string
	power         int
	timer         int
	polls         int
}

func (f *fakeController) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeController) StartStove() { f.record("start") }

func (f *fakeController) RequestShutdown() bool {
	f.record("shutdown")
	return f.allowShutdown
}

func (f *fakeController) SetPowerLevel(level int) {
	f.record("power")
	f.power = level
}

func (f *fakeController) SetAutoShutdown(minutes int) int {
	f.record("timer")
	f.timer = minutes
	return minutes
}

func (f *fakeController) DisableAutoShutdown() { f.record("timer_off") }

func (f *fakeController) IsOn() bool { return f.on }

func (f *fakeController) Poll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
}

func (f *fakeController) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingObserver struct {
	dispatched []string
	results    []bool
	denied     int
}

func (r *recordingObserver) Dispatched(cmd Command, ok bool) {
	r.dispatched = append(r.dispatched, cmd.Name())
	r.results = append(r.results, ok)
}

func (r *recordingObserver) ShutdownDenied() { r.denied++ }

func newTestDispatcher() (*Dispatcher, *fakeController, *scheduler.Scheduler, *recordingObserver) {
	ctrl := &fakeController{}
	sched := scheduler.New(200*time.Millisecond, logger.Nop())
	d := New(ctrl, sched, logger.Nop())
	obs := &recordingObserver{}
	d.AddObserver(obs)
	return d, ctrl, sched, obs
}

func TestDispatch_Table(t *testing.T) {
	d, ctrl, sched, obs := newTestDispatcher()

	d.dispatch(Start{})
	d.dispatch(SetPower{Level: 4})
	d.dispatch(Shutdown{})
	d.dispatch(SetTimer{Minutes: 0})
	d.dispatch(ApplySchedule{Index: 2, Active: true, Day: 5, Hour: 6, Minute: 45, Power: 3})
	d.dispatch(SetSchedulerEnabled{Enabled: false})

	want := []string{"start", "power", "shutdown", "timer_off"}
	got := ctrl.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
	if ctrl.power != 4 {
		t.Fatalf("power = %d", ctrl.power)
	}
	if e := sched.Entry(2); !e.Active || e.Day != 5 || e.Minute != 45 {
		t.Fatalf("entry = %+v", e)
	}
	if sched.GlobalEnabled() {
		t.Fatal("scheduler still enabled")
	}
	if obs.denied != 1 {
		t.Fatalf("denied = %d, want 1", obs.denied)
	}
	if len(obs.dispatched) != 6 || obs.results[2] {
		t.Fatalf("observer saw %v %v", obs.dispatched, obs.results)
	}
}

func TestDispatch_SetTimer(t *testing.T) {
	t.Run("off stove", func(t *testing.T) {
		d, ctrl, _, _ := newTestDispatcher()
		if d.dispatch(SetTimer{Minutes: 30}) {
			t.Fatal("timer accepted while off")
		}
		if len(ctrl.snapshot()) != 0 {
			t.Fatalf("calls = %v", ctrl.snapshot())
		}
	})

	t.Run("on stove", func(t *testing.T) {
		d, ctrl, _, _ := newTestDispatcher()
		ctrl.on = true
		if !d.dispatch(SetTimer{Minutes: 30}) {
			t.Fatal("timer rejected")
		}
		if ctrl.timer != 30 {
			t.Fatalf("timer = %d", ctrl.timer)
		}
	})
}

func TestDispatch_InvalidSchedule(t *testing.T) {
	d, _, _, obs := newTestDispatcher()
	if d.dispatch(ApplySchedule{Index: 0, Day: 0, Power: 2}) {
		t.Fatal("day 0 accepted")
	}
	if obs.results[0] {
		t.Fatal("observer saw success")
	}
}

func TestSubmit_BackPressure(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	ctx := context.Background()
	for i := 0; i < QueueCapacity; i++ {
		if err := d.Submit(ctx, Start{}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := d.Submit(tctx, Shutdown{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if d.Pending() != QueueCapacity {
		t.Fatalf("pending = %d", d.Pending())
	}
}

func TestRun_PreservesOrder(t *testing.T) {
	d, ctrl, _, _ := newTestDispatcher()
	ctrl.allowShutdown = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, c := range []Command{Start{}, SetPower{Level: 2}, Shutdown{}} {
		if err := d.Submit(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(ctrl.snapshot()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	got := ctrl.snapshot()
	if len(got) != 3 || got[0] != "start" || got[1] != "power" || got[2] != "shutdown" {
		t.Fatalf("calls = %v", got)
	}
}

func TestScheduleLoop_OncePerMinute(t *testing.T) {
	d, ctrl, sched, _ := newTestDispatcher()
	// 2026-01-04 is a Sunday.
	clk := clock.NewFake(time.Date(2026, 1, 4, 7, 30, 5, 0, time.UTC))
	sched.UpdateEntry(0, true, 7, 7, 30, 4)
	loop := NewScheduleLoop(d, sched, ctrl, clk, time.UTC, logger.Nop())
	var fired []uint8
	loop.OnFire(func(p uint8) { fired = append(fired, p) })
	ctx := context.Background()

	if n := loop.Check(ctx); n != 1 {
		t.Fatalf("fired %d, want 1", n)
	}
	if len(fired) != 1 || fired[0] != 4 {
		t.Fatalf("hook saw %v", fired)
	}
	clk.Advance(2 * time.Second)
	if n := loop.Check(ctx); n != 0 {
		t.Fatalf("fired again within the minute: %d", n)
	}
	if d.Pending() != 2 {
		t.Fatalf("pending = %d, want Start and SetPower", d.Pending())
	}
	first, second := <-d.queue, <-d.queue
	if _, ok := first.(Start); !ok {
		t.Fatalf("first = %T", first)
	}
	if p, ok := second.(SetPower); !ok || p.Level != 4 {
		t.Fatalf("second = %#v", second)
	}

	clk.Advance(time.Minute)
	if n := loop.Check(ctx); n != 0 {
		t.Fatalf("fired at 07:31: %d", n)
	}
}

func TestPollLoop_StopsOnCancel(t *testing.T) {
	ctrl := &fakeController{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		PollLoop(ctx, ctrl, PollIntervals{On: time.Millisecond, Off: time.Millisecond})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop")
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.polls < 2 {
		t.Fatalf("polls = %d", ctrl.polls)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()
	got := Describe(ApplySchedule{Index: 1, Active: true, Day: 3, Hour: 5, Minute: 7, Power: 2})
	if got != "apply_schedule #1 act=true day=3 05:07 power=2" {
		t.Fatalf("Describe = %q", got)
	}
}
