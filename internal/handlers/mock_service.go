package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"pellet_stove/internal/micronova"
	"pellet_stove/internal/models"
	"pellet_stove/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpRole    string
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	// parseRole defaults to operator so command routes pass.
	parseRole string
	parseErr  error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(ctx context.Context, username, password string) (models.User, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	if m.signUpErr != nil {
		return models.User{}, m.signUpErr
	}
	return models.User{ID: m.signUpID, Username: username, Role: m.signUpRole}, nil
}
func (m *mockAuth) GenerateToken(ctx context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (models.Identity, error) {
	m.lastParseToken = token
	if m.parseErr != nil {
		return models.Identity{}, m.parseErr
	}
	role := m.parseRole
	if role == "" {
		role = models.RoleOperator
	}
	return models.Identity{UserID: m.parseID, Role: role}, nil
}

type mockStove struct {
	err error

	startCalled    int
	shutdownCalled int
	lastPower      int
	powerCalls     int
	lastTimer      int
	timerCalls     int
}

func (m *mockStove) Start(ctx context.Context) error {
	m.startCalled++
	return m.err
}
func (m *mockStove) Shutdown(ctx context.Context) error {
	m.shutdownCalled++
	return m.err
}
func (m *mockStove) SetPower(ctx context.Context, level int) error {
	m.powerCalls++
	m.lastPower = level
	return m.err
}
func (m *mockStove) SetTimer(ctx context.Context, minutes int) error {
	m.timerCalls++
	m.lastTimer = minutes
	return m.err
}

type mockMonitoring struct {
	mu     sync.Mutex
	status models.StoveStatus
}

func (m *mockMonitoring) Status(ctx context.Context) models.StoveStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockMonitoring) set(st models.StoveStatus) {
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
}

type mockSchedule struct {
	entries []models.ScheduleEntry
	summary string
	err     error

	lastApply    service.ScheduleParams
	applyCalls   int
	lastEnabled  bool
	enabledCalls int
}

func (m *mockSchedule) Entries(ctx context.Context) []models.ScheduleEntry { return m.entries }
func (m *mockSchedule) Summary(ctx context.Context) string                 { return m.summary }
func (m *mockSchedule) Restore(ctx context.Context) error                  { return nil }
func (m *mockSchedule) Apply(ctx context.Context, p service.ScheduleParams) error {
	m.applyCalls++
	m.lastApply = p
	return m.err
}
func (m *mockSchedule) SetEnabled(ctx context.Context, enabled bool) error {
	m.enabledCalls++
	m.lastEnabled = enabled
	return m.err
}

type mockEventLog struct {
	resp      []models.StoveEvent
	err       error
	lastFrom  time.Time
	lastTo    time.Time
	lastType  string
	lastLimit int
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.StoveEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	m.lastLimit = f.Limit
	return m.resp, m.err
}

type mockDiagnostics struct {
	res      service.ProbeResult
	err      error
	lastKind micronova.Kind
	lastAddr byte
}

func (m *mockDiagnostics) Probe(ctx context.Context, kind micronova.Kind, addr byte) (service.ProbeResult, error) {
	m.lastKind = kind
	m.lastAddr = addr
	return m.res, m.err
}

type mockSimulator struct {
	err     error
	calls   []string
	lastInt int
	lastF   float64
	lastB   bool
}

func (m *mockSimulator) ForceState(ctx context.Context, code int) error {
	m.calls = append(m.calls, "state")
	m.lastInt = code
	return m.err
}
func (m *mockSimulator) ForcePower(ctx context.Context, level int) error {
	m.calls = append(m.calls, "power")
	m.lastInt = level
	return m.err
}
func (m *mockSimulator) ForceAmbient(ctx context.Context, celsius float64) error {
	m.calls = append(m.calls, "ambient")
	m.lastF = celsius
	return m.err
}
func (m *mockSimulator) SetFailureMode(ctx context.Context, enabled bool) error {
	m.calls = append(m.calls, "failure")
	m.lastB = enabled
	return m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil, Options{})
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
