package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railtwin/traincontrol/internal/domain/feed"
	"github.com/railtwin/traincontrol/internal/engine"
	"github.com/railtwin/traincontrol/internal/events"
	"github.com/railtwin/traincontrol/internal/fixtures"
	"github.com/railtwin/traincontrol/internal/infra/storage"
	"github.com/railtwin/traincontrol/internal/platform/logger"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	network, err := fixtures.Default()
	require.NoError(t, err)
	el := events.NewEventLog(nil)
	log := logger.NewDiscardLogger()
	eng := engine.NewEngine(network, el, log, engine.Options{})
	return &Server{Twin: eng, EventLog: el, Logger: log}, eng
}

func do(t *testing.T, mux http.Handler, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, url, &buf))
	return rec
}

func TestLogin(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Routes()

	rec := do(t, mux, http.MethodPost, "/api/login", loginRequest{Username: "controller", Password: "password123"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, mux, http.MethodPost, "/api/login", loginRequest{Username: "controller", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid username or password."}`, rec.Body.String())

	rec = do(t, mux, http.MethodPost, "/api/login", loginRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	attempts := s.EventLog.GetByType(events.EventTypeLoginAttempt)
	require.Len(t, attempts, 3)
	assert.True(t, attempts[0].Payload.(events.LoginAttemptPayload).Success)
	assert.False(t, attempts[1].Payload.(events.LoginAttemptPayload).Success)

	rec = do(t, mux, http.MethodGet, "/api/login", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStateAndRegions(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Routes()

	rec := do(t, mux, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "Delhi Division", snap.ActiveRegion)
	assert.Len(t, snap.Trains, 4)
	assert.Len(t, snap.Blocks, 6)

	rec = do(t, mux, http.MethodGet, "/api/regions", nil)
	assert.JSONEq(t, `{"active":"Delhi Division","regions":["Delhi Division","Mumbai Division"]}`, rec.Body.String())
}

func TestSelectRegion(t *testing.T) {
	s, eng := newTestServer(t)
	mux := s.Routes()

	rec := do(t, mux, http.MethodPost, "/api/region", map[string]string{"region": "Atlantis"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":"Delhi Division","switched":false}`, rec.Body.String())

	rec = do(t, mux, http.MethodPost, "/api/region", map[string]string{"region": "Mumbai Division"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":"Mumbai Division","switched":true}`, rec.Body.String())
	assert.Equal(t, "Mumbai Division", eng.ActiveRegion())

	rec = do(t, mux, http.MethodGet, "/api/logs", nil)
	var logs []feed.LogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &logs))
	require.Len(t, logs, 3)
	assert.Equal(t, "Controller view switched to Mumbai Division.", logs[1].Message)

	rec = do(t, mux, http.MethodGet, "/api/alerts", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAlertsAfterHold(t *testing.T) {
	s, eng := newTestServer(t)
	start := time.Now()
	for i := 0; i < 300; i++ {
		eng.Tick(start.Add(time.Duration(i+1) * time.Second))
	}

	rec := do(t, s.Routes(), http.MethodGet, "/api/alerts", nil)
	var alerts []feed.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "AI Action: Hold MNT-007", alerts[0].Title)
	assert.NotEmpty(t, alerts[0].XAI)
}

func TestHistoryEndpointsWithoutDatabase(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Routes()

	assert.Equal(t, http.StatusServiceUnavailable, do(t, mux, http.MethodGet, "/api/kpis/history", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, mux, http.MethodGet, "/api/recap", nil).Code)
}

func TestHistoryEndpointsWithDatabase(t *testing.T) {
	db, err := storage.InitSQLite(filepath.Join(t.TempDir(), "twin.db"), storage.Pool{})
	require.NoError(t, err)
	defer db.Close()

	kpis := storage.NewSQLiteKPIRepository(db)
	require.NoError(t, kpis.Append(context.Background(), storage.KPISnapshot{
		SessionID: "run-1", Region: "Delhi Division", TakenAt: time.Now(), Punctuality: 75,
	}))

	s, _ := newTestServer(t)
	s.KPIs = kpis
	s.Recap = storage.NewReconstructor(storage.NewSQLiteEventRepository(db))
	s.SessionID = "run-1"
	mux := s.Routes()

	rec := do(t, mux, http.MethodGet, "/api/kpis/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Region    string                `json:"region"`
		Snapshots []storage.KPISnapshot `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Delhi Division", body.Region)
	require.Len(t, body.Snapshots, 1)
	assert.Equal(t, 75.0, body.Snapshots[0].Punctuality)

	assert.Equal(t, http.StatusBadRequest, do(t, mux, http.MethodGet, "/api/kpis/history?limit=-1", nil).Code)

	rec = do(t, mux, http.MethodGet, "/api/recap", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recap storage.SessionRecap
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recap))
	assert.Equal(t, "run-1", recap.SessionID)
}

func TestMetricsRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	mux := s.Routes()

	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodGet, "/metrics/prometheus", nil).Code)
	rec := do(t, mux, http.MethodGet, "/metrics/recommendations", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notes")
	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodGet, "/api/events?type=LOG_APPENDED", nil).Code)
}
