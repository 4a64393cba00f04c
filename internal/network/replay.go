// Package network - replay.go
// Event replay endpoint: JSON export of the operations history so a
// controller can review what the twin did and why.
package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/railtwin/traincontrol/internal/events"
	"github.com/railtwin/traincontrol/internal/platform/logger"
)

// DefaultReplayLimit caps replay responses when no limit is given.
const DefaultReplayLimit = 200

// ReplayHandler provides the event replay API.
type ReplayHandler struct {
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewReplayHandler creates a new replay handler.
func NewReplayHandler(el *events.EventLog, log *logger.Logger) *ReplayHandler {
	return &ReplayHandler{
		eventLog: el,
		logger:   log,
	}
}

// ReplayEvent is an event annotated for display.
type ReplayEvent struct {
	ID        string      `json:"id"`
	Timestamp string      `json:"timestamp"`
	Tick      int64       `json:"tick"`
	Type      string      `json:"type"`
	Region    string      `json:"region"`
	Actor     string      `json:"actor"`
	Target    string      `json:"target,omitempty"`
	Summary   string      `json:"summary"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ReplayResponse is the API response for a replay request.
type ReplayResponse struct {
	TotalEvents int           `json:"total_events"`
	FilteredBy  string        `json:"filtered_by,omitempty"`
	GeneratedAt string        `json:"generated_at"`
	Events      []ReplayEvent `json:"events"`
}

// HandleReplay returns the most recent events, oldest first.
// GET /api/events?type=TRAIN_HALTED&target=MNT-007&limit=50
func (rh *ReplayHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	eventType := q.Get("type")
	target := q.Get("target")
	limit := DefaultReplayLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			rh.jsonError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	filterDesc := ""
	if eventType != "" {
		filterDesc = "type=" + eventType
	}
	if target != "" {
		if filterDesc != "" {
			filterDesc += " "
		}
		filterDesc += "target=" + target
	}

	var matched []events.Event
	for _, e := range rh.eventLog.Replay() {
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		if target != "" && e.TargetID != target {
			continue
		}
		matched = append(matched, e)
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	replayEvents := make([]ReplayEvent, 0, len(matched))
	for _, e := range matched {
		replayEvents = append(replayEvents, convertToReplayEvent(e))
	}

	rh.logger.Event("EVENT_REPLAY", events.ActorController, "Filter:"+filterDesc+" Events:"+strconv.Itoa(len(replayEvents)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ReplayResponse{
		TotalEvents: len(replayEvents),
		FilteredBy:  filterDesc,
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      replayEvents,
	})
}

// HandleStats returns counts per event type.
// GET /api/events/stats
func (rh *ReplayHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := rh.eventLog.Replay()
	byType := make(map[string]int)
	for _, e := range all {
		byType[string(e.Type)]++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"total_events": len(all),
		"by_type":      byType,
	})
}

// RegisterRoutes sets up the replay routes.
func (rh *ReplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/events", rh.HandleReplay)
	mux.HandleFunc("/api/events/stats", rh.HandleStats)
}

func convertToReplayEvent(e events.Event) ReplayEvent {
	return ReplayEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format("15:04:05"),
		Tick:      e.Tick,
		Type:      string(e.Type),
		Region:    e.Region,
		Actor:     e.ActorID,
		Target:    e.TargetID,
		Summary:   summarizeEvent(e),
		Payload:   e.Payload,
	}
}

// summarizeEvent creates a human-readable summary.
func summarizeEvent(e events.Event) string {
	switch e.Type {
	case events.EventTypeTrainTick:
		return "Simulation advanced one tick."
	case events.EventTypeTrainHalted:
		if p, ok := e.Payload.(events.TrainHaltedPayload); ok && p.SignalID != "" {
			return e.TargetID + " held at signal " + p.SignalID + "."
		}
		return e.TargetID + " held at a red signal."
	case events.EventTypeAlertRaised:
		return "Alert raised on the controller console."
	case events.EventTypeLogAppended:
		return "Operations log entry."
	case events.EventTypeRegionSwitched:
		return "Controller switched to " + e.Region + "."
	case events.EventTypeKPIUpdated:
		return "KPI panel refreshed."
	case events.EventTypeLoginAttempt:
		if p, ok := e.Payload.(events.LoginAttemptPayload); ok && p.Success {
			return "Controller logged in."
		}
		return "Rejected login attempt."
	default:
		return "Unclassified event."
	}
}

// jsonError sends an error response.
func (rh *ReplayHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
