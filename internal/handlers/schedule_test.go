package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"pellet_stove/internal/models"
	"pellet_stove/internal/service"
)

func newScheduleRouter(sc *mockSchedule) http.Handler {
	return newTestRouter(&service.Service{
		Authorization: &mockAuth{parseID: 1},
		Schedule:      sc,
		Monitoring:    &mockMonitoring{status: models.StoveStatus{SchedulerEnabled: true}},
	})
}

func TestScheduleHandlers_Get(t *testing.T) {
	sc := &mockSchedule{
		entries: []models.ScheduleEntry{{Active: true, Day: 1, Hour: 6, Minute: 30, TargetPower: 3}},
		summary: "Global: ENABLED\n#0 act=1 day=1 06:30 power=3\n",
	}
	r := newScheduleRouter(sc)

	w := doJSON(t, r, http.MethodGet, "/api/v1/schedule", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Enabled bool                   `json:"enabled"`
		Entries []models.ScheduleEntry `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Enabled || len(out.Entries) != 1 || out.Entries[0].TargetPower != 3 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/schedule/summary", "")
	if w.Code != http.StatusOK || w.Body.String() != sc.summary {
		t.Fatalf("summary status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestScheduleHandlers_PutEntry(t *testing.T) {
	sc := &mockSchedule{}
	r := newScheduleRouter(sc)

	w := doJSON(t, r, http.MethodPut, "/api/v1/schedule/3",
		`{"active":true,"day":0,"hour":21,"minute":5,"power":2}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	want := service.ScheduleParams{Index: 3, Active: true, Day: 0, Hour: 21, Minute: 5, Power: 2}
	if sc.lastApply != want {
		t.Fatalf("applied %+v, want %+v", sc.lastApply, want)
	}

	w = doJSON(t, r, http.MethodPut, "/api/v1/schedule/x", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad index status=%d", w.Code)
	}

	sc.err = fmt.Errorf("%w: index 9 not in 0..7", service.ErrInvalidInput)
	w = doJSON(t, r, http.MethodPut, "/api/v1/schedule/9", `{"day":1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid slot status=%d", w.Code)
	}
}

func TestScheduleHandlers_SetEnabled(t *testing.T) {
	sc := &mockSchedule{}
	r := newScheduleRouter(sc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/schedule/enabled", `{"enabled":false}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d", w.Code)
	}
	if sc.enabledCalls != 1 || sc.lastEnabled {
		t.Fatalf("calls=%d enabled=%v", sc.enabledCalls, sc.lastEnabled)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/schedule/enabled", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing flag status=%d", w.Code)
	}
}
