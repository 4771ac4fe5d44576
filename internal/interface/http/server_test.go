package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/wellness-hub/config"
	"github.com/alem-hub/wellness-hub/internal/application/command"
	"github.com/alem-hub/wellness-hub/internal/application/eventhandler"
	"github.com/alem-hub/wellness-hub/internal/application/query"
	"github.com/alem-hub/wellness-hub/internal/application/view"
	"github.com/alem-hub/wellness-hub/internal/domain/intervention"
	"github.com/alem-hub/wellness-hub/internal/domain/risk"
	"github.com/alem-hub/wellness-hub/internal/domain/shared"
	"github.com/alem-hub/wellness-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/wellness-hub/internal/interface/http/handlers"
	"github.com/alem-hub/wellness-hub/pkg/logger"
	"github.com/alem-hub/wellness-hub/pkg/retry"
)

var counselor = map[string]string{"name": "Dana Whitfield", "role": "counselor"}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

type testServer struct {
	srv      *Server
	store    *memory.Store
	features *config.FeatureFlags
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := memory.NewStore()
	require.NoError(t, store.UpsertStudents(ctx, []risk.Student{
		{ID: "s1", Name: "Alex Morgan", RiskScore: 82, Trend: risk.TrendUp, PredictedRisk: 88, Confidence: 80},
		{ID: "s2", Name: "Jamie Lee", RiskScore: 65, Trend: risk.TrendStable, PredictedRisk: 60, Confidence: 70},
		{ID: "s3", Name: "Sam Alvarez", RiskScore: 45, Trend: risk.TrendDown, PredictedRisk: 40, Confidence: 75},
	}))
	now := time.Now()
	require.NoError(t, store.Create(ctx, intervention.Intervention{
		ID: "iv-1", StudentID: "s2", Type: "Academic Support", DueDate: now.Add(7 * 24 * time.Hour),
		Status: intervention.StatusPending, CreatedAt: now, UpdatedAt: now,
	}))

	log := logger.Nop()
	features := config.LoadFeatureFlags()
	feed := eventhandler.NewOnInterventionChangedHandler(log, eventhandler.DefaultInterventionFeedConfig())
	monitor := eventhandler.NewOnSourceDegradedHandler(log, eventhandler.DefaultSourceMonitorConfig())

	transitions := command.NewTransitionInterventionHandler(store, nil, log)
	loader := view.NewLoader(store, store, nil, log).WithRetrier(retry.New(retry.Policy{MaxAttempts: 1}))
	sessions := view.NewSessions(view.DefaultSessionsConfig(), func(id string, actor intervention.Actor) *view.Controller {
		return view.NewController(view.Config{SessionID: id, Actor: actor}, loader, transitions, nil, log)
	}, log)
	t.Cleanup(sessions.CloseAll)

	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("source", handlers.NewSourceCheck(monitor))

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	srv := NewServer(cfg, Dependencies{
		ListStudentsHandler:           query.NewListStudentsHandler(store, log),
		GetStudentProfileHandler:      query.NewGetStudentProfileHandler(store, store, log),
		GetSummaryHandler:             query.NewGetSummaryHandler(store, store, log),
		ListIndicatorsHandler:         query.NewListIndicatorsHandler(store, log),
		GetAuditTrailHandler:          query.NewGetAuditTrailHandler(store),
		CreateInterventionHandler:     command.NewCreateInterventionHandler(store, store, nil, log),
		TransitionInterventionHandler: transitions,
		Sessions:                      sessions,
		Feed:                          feed,
		SourceMonitor:                 monitor,
		Features:                      features,
		HealthChecker:                 checker,
		Logger:                        log,
	})
	return &testServer{srv: srv, store: store, features: features}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// POPULATION
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_ListStudentsByBand(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/students?band=high", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	list := decode[query.StudentListDTO](t, env.Data)
	require.Len(t, list.Students, 1)
	assert.Equal(t, "s1", list.Students[0].ID)
	assert.Equal(t, risk.BandHigh, list.Students[0].Band)
	assert.Equal(t, 3, env.Meta.TotalCount)
}

func TestServer_ListStudentsRejectsUnknownBand(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/students?band=severe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_input", env.Error.Code)
}

func TestServer_SourceFailureIsServiceUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.store.FailReads(errors.New("connection reset"))

	rec, env := ts.do(t, http.MethodGet, "/api/v1/students", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "data_unavailable", env.Error.Code)
}

func TestServer_GetStudent(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/students/s2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[query.ProfileDTO](t, env.Data)
	assert.Equal(t, "Jamie Lee", profile.Student.Name)
	require.Len(t, profile.Interventions, 1)
	assert.Equal(t, 1, profile.OpenInterventions)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/students/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestServer_Summary(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[query.SummaryDTO](t, env.Data)
	assert.Equal(t, 3, summary.Population.Total)
	assert.Equal(t, 1, summary.Interventions[intervention.StatusPending])
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVENTIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_CreateAndTransitionIntervention(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/students/s1/interventions", map[string]any{
		"type":     "Counseling",
		"assignee": "Dr. Reyes",
		"due_date": time.Now().Add(48 * time.Hour),
		"actor":    counselor,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[query.InterventionDTO](t, env.Data)
	assert.Equal(t, intervention.StatusPending, created.Status)
	assert.Equal(t, "s1", created.StudentID)

	path := "/api/v1/interventions/" + created.ID + "/transitions"
	rec, env = ts.do(t, http.MethodPost, path, map[string]any{"action": "start", "actor": counselor})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	started := decode[transitionResponse](t, env.Data)
	assert.Equal(t, intervention.StatusInProgress, started.To)

	rec, _ = ts.do(t, http.MethodPost, path, map[string]any{"action": "complete", "actor": counselor})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = ts.do(t, http.MethodPost, path, map[string]any{"action": "start", "actor": counselor})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_transition", env.Error.Code)
	rejected := decode[transitionResponse](t, env.Data)
	assert.Equal(t, intervention.StatusCompleted, rejected.Intervention.Status)

	rec, env = ts.do(t, http.MethodGet, "/api/v1/interventions/"+created.ID+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trail := decode[query.AuditTrailDTO](t, env.Data)
	require.GreaterOrEqual(t, len(trail.Entries), 3)
	last := trail.Entries[len(trail.Entries)-1]
	assert.Equal(t, intervention.OutcomeFailure, last.Outcome)
	assert.Equal(t, "Dana Whitfield", last.Actor.Name)
}

func TestServer_CreateInterventionValidation(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/students/s1/interventions", map[string]any{
		"type":     "Counseling",
		"due_date": time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "name is required", env.Error.Message)

	rec, env = ts.do(t, http.MethodPost, "/api/v1/students/nobody/interventions", map[string]any{
		"type":     "Counseling",
		"due_date": time.Now().Add(time.Hour),
		"actor":    counselor,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestServer_TransitionActionRules(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/interventions/iv-1/transitions"

	rec, env := ts.do(t, http.MethodPost, path, map[string]any{"action": "mark-overdue", "actor": counselor})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", env.Error.Code)

	rec, _ = ts.do(t, http.MethodPost, path, map[string]any{"action": "teleport", "actor": counselor})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, ts.features.DisableFeature(config.FeatureReschedule))
	rec, env = ts.do(t, http.MethodPost, path, map[string]any{
		"action":   "reschedule",
		"due_date": time.Now().Add(24 * time.Hour),
		"actor":    counselor,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "feature_disabled", env.Error.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/interventions/missing/transitions", map[string]any{"action": "start", "actor": counselor})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_SessionFlow(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/sessions?settle=true", map[string]any{"actor": counselor})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decode[sessionResponse](t, env.Data)
	require.NotEmpty(t, opened.Session.ID)
	assert.Equal(t, view.ModeList, opened.State.Mode)
	assert.Equal(t, view.StatusReady, opened.State.List.Status)
	assert.Len(t, opened.State.List.Students, 3)

	base := "/api/v1/sessions/" + opened.Session.ID

	rec, env = ts.do(t, http.MethodPost, base+"/query?settle=true", map[string]any{"query": "morgan"})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[sessionResponse](t, env.Data).State
	assert.Equal(t, "morgan", st.Query)
	require.Len(t, st.List.Students, 1)
	assert.Equal(t, "s1", st.List.Students[0].ID)

	rec, env = ts.do(t, http.MethodPost, base+"/select?settle=true", map[string]any{"student_id": "s1"})
	require.Equal(t, http.StatusOK, rec.Code)
	st = decode[sessionResponse](t, env.Data).State
	assert.Equal(t, view.ModeDetail, st.Mode)
	require.NotNil(t, st.Profile)
	require.NotNil(t, st.Profile.Profile)
	assert.Equal(t, "s1", st.Profile.Profile.Student.ID)

	rec, env = ts.do(t, http.MethodPost, base+"/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, view.ModeList, decode[sessionResponse](t, env.Data).State.Mode)

	rec, env = ts.do(t, http.MethodPost, base+"/band", map[string]any{"band": "extreme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", env.Error.Code)

	rec, _ = ts.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SessionTransitionUsesSessionActor(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/sessions?settle=true", map[string]any{"actor": counselor})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[sessionResponse](t, env.Data).Session.ID

	rec, env = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/interventions/iv-1/transitions", map[string]any{"action": "start"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[sessionResponse](t, env.Data).State
	require.NotNil(t, st.Notice)
	assert.Equal(t, "success", st.Notice.Level)

	trail, err := ts.store.ListAudit(context.Background(), "iv-1")
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, "Dana Whitfield", trail[len(trail)-1].Actor.Name)
}

func TestServer_SessionsFeatureDisabled(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.features.DisableFeature(config.FeatureSessionAPI))

	rec, env := ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"actor": counselor})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "feature_disabled", env.Error.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_HealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[handlers.HealthStatus](t, env.Data)
	assert.True(t, status.Healthy)
	assert.Contains(t, status.Checks, "source")

	rec, _ = ts.do(t, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_UnhealthyCheckFailsReadiness(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.deps.HealthChecker.AddCheck("database", func(context.Context) error {
		return errors.New("connection refused")
	})

	rec, _ := ts.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RequestIDAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set(handlers.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(handlers.RequestIDHeader))

	rec = httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid transition", &intervention.TransitionError{Action: intervention.ActionStart, Current: intervention.StatusCompleted}, http.StatusConflict},
		{"not found", shared.NewDomainError("query", "Get", shared.ErrNotFound, "missing"), http.StatusNotFound},
		{"validation", shared.NewDomainError("query", "Get", shared.ErrInvalidInput, "bad"), http.StatusBadRequest},
		{"unavailable", shared.DataUnavailable("GetStudents", errors.New("timeout")), http.StatusServiceUnavailable},
		{"write failed", shared.WriteFailed("Create", errors.New("disk full")), http.StatusBadGateway},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := classifyError(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}
