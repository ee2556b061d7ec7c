package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/pkg/errors"
	"github.com/fbik/avito-monitor-app/pkg/health"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

type fakeMonitor struct {
	hint       string
	loginErr   error
	loginDelay time.Duration
	startErr error
	stopped  bool
	limit    int
	messages []models.Message
	removed  int
	status   models.Status
}

func (f *fakeMonitor) Login(ctx context.Context, hint string) (bool, error) {
	f.hint = hint
	if f.loginDelay > 0 {
		select {
		case <-time.After(f.loginDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return f.loginErr == nil, f.loginErr
}

func (f *fakeMonitor) Start() (bool, error) {
	return f.startErr == nil, f.startErr
}

func (f *fakeMonitor) Stop() { f.stopped = true }

func (f *fakeMonitor) Status() models.Status { return f.status }

func (f *fakeMonitor) ListMessages(limit int) []models.Message {
	f.limit = limit
	return f.messages
}

func (f *fakeMonitor) Clear() int { return f.removed }

func setupRouter(mon Monitor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(mon, time.Minute, logger.NopLogger()).RegisterRoutes(router)
	return router
}

func perform(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		loginErr   error
		wantStatus int
		wantCode   string
		wantHint   string
	}{
		{name: "no body", wantStatus: http.StatusOK},
		{name: "with hint", body: `{"phoneNumber":"+7900"}`, wantStatus: http.StatusOK, wantHint: "+7900"},
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "timeout", loginErr: errors.ErrAuthTimeout, wantStatus: http.StatusRequestTimeout, wantCode: "AUTH_TIMEOUT"},
		{name: "conflict", loginErr: errors.ErrConflict, wantStatus: http.StatusConflict, wantCode: "CONFLICT"},
		{name: "driver down", loginErr: errors.ErrInitialization, wantStatus: http.StatusServiceUnavailable, wantCode: "INITIALIZATION_FAILURE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := &fakeMonitor{loginErr: tt.loginErr}
			w := perform(setupRouter(mon), http.MethodPost, "/api/v1/messages/login", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			if tt.wantCode != "" {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, tt.wantCode, body["error_code"])
				return
			}
			assert.Equal(t, true, body["success"])
			assert.Equal(t, tt.wantHint, mon.hint)
		})
	}
}

func TestLogin_OutlivesServerTimeouts(t *testing.T) {
	mon := &fakeMonitor{loginDelay: 300 * time.Millisecond}
	srv := httptest.NewUnstartedServer(setupRouter(mon))
	srv.Config.ReadTimeout = 150 * time.Millisecond
	srv.Config.WriteTimeout = 150 * time.Millisecond
	srv.Start()
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/api/v1/messages/login", "application/json", strings.NewReader(`{"phoneNumber":"+7900"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "+7900", mon.hint)
}

func TestStart(t *testing.T) {
	w := perform(setupRouter(&fakeMonitor{}), http.MethodPost, "/api/v1/messages/start", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = perform(setupRouter(&fakeMonitor{startErr: errors.ErrNotAuthenticated}), http.MethodPost, "/api/v1/messages/start", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NOT_AUTHENTICATED", decode(t, w)["error_code"])
}

func TestStop(t *testing.T) {
	mon := &fakeMonitor{}
	w := perform(setupRouter(mon), http.MethodPost, "/api/v1/messages/stop", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Monitoring stopped", body["message"])
	assert.True(t, mon.stopped)
}

func TestStatus(t *testing.T) {
	checked := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mon := &fakeMonitor{status: models.Status{
		Auth: models.AuthState{Status: models.AuthAuthenticated, Username: "ops"},
		Monitoring: models.MonitoringState{
			Status:        models.MonitoringRunning,
			ChecksCount:   4,
			LastCheckedAt: &checked,
		},
		MessagesCount:    2,
		SubscribersCount: 1,
		Timestamp:        checked,
	}}

	w := perform(setupRouter(mon), http.MethodGet, "/api/v1/messages/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Auth.IsAuthenticated)
	assert.Equal(t, "ops", resp.Auth.Username)
	assert.True(t, resp.Monitoring.IsActive)
	assert.Equal(t, 4, resp.Monitoring.ChecksCount)
	require.NotNil(t, resp.Monitoring.LastCheck)
	assert.True(t, checked.Equal(*resp.Monitoring.LastCheck))
	assert.Equal(t, 2, resp.MessagesCount)
	assert.Equal(t, 1, resp.SubscribersCount)
}

func TestList(t *testing.T) {
	msgs := []models.Message{{ID: "2", Text: "msg2"}, {ID: "1", Text: "msg1"}}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{name: "no limit", wantStatus: http.StatusOK, wantLimit: 1000},
		{name: "explicit", query: "?limit=1", wantStatus: http.StatusOK, wantLimit: 1},
		{name: "clamped", query: "?limit=5000", wantStatus: http.StatusOK, wantLimit: 1000},
		{name: "negative", query: "?limit=-1", wantStatus: http.StatusBadRequest},
		{name: "garbage", query: "?limit=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := &fakeMonitor{messages: msgs}
			w := perform(setupRouter(mon), http.MethodGet, "/api/v1/messages/list"+tt.query, "")
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp ListResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantLimit, mon.limit)
			require.Len(t, resp.Messages, 2)
			assert.Equal(t, "msg2", resp.Messages[0].Text)
			assert.Equal(t, 2, resp.Count)
		})
	}
}

func TestList_EmptyIsArray(t *testing.T) {
	w := perform(setupRouter(&fakeMonitor{}), http.MethodGet, "/api/v1/messages/list", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"messages":[]`)
}

func TestClear(t *testing.T) {
	w := perform(setupRouter(&fakeMonitor{removed: 3}), http.MethodPost, "/api/v1/messages/clear", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(3), body["removed"])
	assert.NotEmpty(t, body["message"])
}

func TestOpsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	registry := health.NewCheckerRegistry()
	registry.Register(health.NewFuncChecker("browser", func(ctx context.Context) error { return nil }))
	RegisterOpsRoutes(router, registry)

	w := perform(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = perform(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpsRoutes_Unhealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	registry := health.NewCheckerRegistry()
	registry.Register(health.NewFuncChecker("browser", func(ctx context.Context) error { return errors.ErrServiceUnavailable }))
	RegisterOpsRoutes(router, registry)

	w := perform(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
