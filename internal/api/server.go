// Package api exposes the controller dashboard over HTTP: login, live state,
// region selection, the console feed, KPI history and the event replay.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/railtwin/traincontrol/internal/auth"
	"github.com/railtwin/traincontrol/internal/engine"
	"github.com/railtwin/traincontrol/internal/events"
	"github.com/railtwin/traincontrol/internal/infra/storage"
	"github.com/railtwin/traincontrol/internal/network"
	"github.com/railtwin/traincontrol/internal/platform/logger"
	"github.com/railtwin/traincontrol/internal/platform/metrics"
	"github.com/railtwin/traincontrol/internal/platform/optimization"
)

// Twin is the engine surface the API needs.
type Twin interface {
	Snapshot() engine.Snapshot
	SelectRegion(name string) bool
	ActiveRegion() string
	Regions() []string
}

// Server wires the HTTP handlers. KPIs and Recap are optional: without a
// database the history endpoints answer 503.
type Server struct {
	Twin      Twin
	EventLog  *events.EventLog
	Hub       *network.Hub
	KPIs      storage.KPIRepository
	Recap     *storage.Reconstructor
	SessionID string
	Logger    *logger.Logger
}

// Routes builds the request multiplexer.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/regions", s.handleRegions)
	mux.HandleFunc("/api/region", s.handleSelectRegion)
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/kpis/history", s.handleKPIHistory)
	mux.HandleFunc("/api/recap", s.handleRecap)

	network.NewReplayHandler(s.EventLog, s.Logger).RegisterRoutes(mux)

	mux.HandleFunc("/metrics", metrics.Handler())
	mux.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())
	mux.HandleFunc("/metrics/recommendations", s.handleRecommendations)

	if s.Hub != nil {
		mux.HandleFunc("/ws", s.Hub.ServeWs)
	}
	return mux
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	err := auth.Login(req.Username, req.Password)
	s.EventLog.Append(events.Event{
		Type:     events.EventTypeLoginAttempt,
		Region:   s.Twin.ActiveRegion(),
		ActorID:  events.ActorController,
		TargetID: req.Username,
		Payload:  events.LoginAttemptPayload{Username: req.Username, Success: err == nil},
	})
	if errors.Is(err, auth.ErrInvalidCredentials) {
		metrics.Get().RecordLoginFailure()
		s.Logger.Warn("Rejected login for user '" + req.Username + "'")
		jsonError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	s.Logger.Event("LOGIN", req.Username, "Controller logged in")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Twin.Snapshot())
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":  s.Twin.ActiveRegion(),
		"regions": s.Twin.Regions(),
	})
}

// handleSelectRegion answers 200 even for unknown regions, which are ignored.
func (s *Server) handleSelectRegion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Region string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	switched := s.Twin.SelectRegion(req.Region)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":   s.Twin.ActiveRegion(),
		"switched": switched,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Twin.Snapshot().Alerts)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Twin.Snapshot().Logs)
}

// GET /api/kpis/history?region=Delhi%20Division&limit=20
func (s *Server) handleKPIHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.KPIs == nil {
		jsonError(w, "KPI history unavailable without a database", http.StatusServiceUnavailable)
		return
	}

	region := r.URL.Query().Get("region")
	if region == "" {
		region = s.Twin.ActiveRegion()
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history, err := s.KPIs.History(r.Context(), region, limit)
	if err != nil {
		s.Logger.Error("Failed to read KPI history: " + err.Error())
		jsonError(w, "Failed to read KPI history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []storage.KPISnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"region":    region,
		"snapshots": history,
	})
}

// GET /api/recap?session=<id>, defaults to the current run.
func (s *Server) handleRecap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Recap == nil {
		jsonError(w, "Session recap unavailable without a database", http.StatusServiceUnavailable)
		return
	}
	session := r.URL.Query().Get("session")
	if session == "" {
		session = s.SessionID
	}

	recap, err := s.Recap.Recap(r.Context(), session)
	if err != nil {
		s.Logger.Error("Failed to build recap: " + err.Error())
		jsonError(w, "Failed to build recap", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recap)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, optimization.Analyze(metrics.Get().Snapshot()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
