// Package optimization provides the concurrency tuning presets of the server:
// websocket buffers, rate limits, the SQLite connection pool and the
// in-memory event history.
package optimization

import (
	"runtime"
	"strings"
)

// Tuning holds the tuned parameters for one deployment profile.
type Tuning struct {
	// Channel buffer sizes
	BroadcastChannelBuffer int `json:"broadcast_channel_buffer"`
	ClientSendBuffer       int `json:"client_send_buffer"`

	// Connection pool
	DBMaxOpenConns int `json:"db_max_open_conns"`
	DBMaxIdleConns int `json:"db_max_idle_conns"`

	// Rate limiting
	MaxMessagesPerSecond int `json:"max_messages_per_second"` // Per client, inbound
	MaxClients           int `json:"max_clients"`

	// In-memory event history; older events live only in SQLite
	EventLogCapacity int `json:"event_log_capacity"`
}

// Profile names accepted by ForProfile.
const (
	ProfileDefault     = "default"
	ProfileStress      = "stress"
	ProfileLowResource = "low"
)

// DefaultTuning returns sensible defaults for a control-room deployment.
func DefaultTuning() *Tuning {
	numCPU := runtime.NumCPU()

	return &Tuning{
		BroadcastChannelBuffer: 256, // Snapshots + events between ticks
		ClientSendBuffer:       64,  // Per websocket

		DBMaxOpenConns: numCPU * 2,
		DBMaxIdleConns: numCPU,

		MaxMessagesPerSecond: 20,
		MaxClients:           200,

		EventLogCapacity: 10000,
	}
}

// StressTuning returns aggressive settings for load tests with many dashboards.
func StressTuning() *Tuning {
	numCPU := runtime.NumCPU()

	return &Tuning{
		BroadcastChannelBuffer: 1024,
		ClientSendBuffer:       256,

		DBMaxOpenConns: numCPU * 4,
		DBMaxIdleConns: numCPU * 2,

		MaxMessagesPerSecond: 100,
		MaxClients:           1000,

		EventLogCapacity: 50000,
	}
}

// LowResourceTuning returns minimal settings for development.
func LowResourceTuning() *Tuning {
	return &Tuning{
		BroadcastChannelBuffer: 32,
		ClientSendBuffer:       16,

		DBMaxOpenConns: 2,
		DBMaxIdleConns: 1,

		MaxMessagesPerSecond: 5,
		MaxClients:           10,

		EventLogCapacity: 2000,
	}
}

// ForProfile returns the preset with the given name. Unknown names get the default.
func ForProfile(name string) *Tuning {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProfileStress:
		return StressTuning()
	case ProfileLowResource:
		return LowResourceTuning()
	default:
		return DefaultTuning()
	}
}

// KnownProfile reports whether name is a preset.
func KnownProfile(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileDefault, ProfileStress, ProfileLowResource:
		return true
	}
	return false
}

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	IncreaseBroadcastBuffer bool     `json:"increase_broadcast_buffer"`
	IncreaseDBConnections   bool     `json:"increase_db_connections"`
	SlowTick                bool     `json:"slow_tick"`
	Notes                   []string `json:"notes"`
}

// Analyze examines a metrics snapshot and returns tuning recommendations.
func Analyze(metrics map[string]interface{}) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	// Tick latency: the simulation must comfortably fit its 1s period
	if tick, ok := metrics["tick"].(map[string]interface{}); ok {
		if maxLat, ok := tick["max_latency_ms"].(float64); ok && maxLat > 100 {
			rec.SlowTick = true
			rec.Notes = append(rec.Notes, "Tick latency exceeds 100ms - reduce subscribers or snapshot size")
		}
	}

	// Event write latency
	if events, ok := metrics["events"].(map[string]interface{}); ok {
		if maxLat, ok := events["max_write_lat_ms"].(float64); ok && maxLat > 50 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Event write latency exceeds 50ms - increase DB connections")
		}
		if errors, ok := events["errors"].(int64); ok && errors > 0 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Event write errors detected - check the database file")
		}
	}

	// WebSocket backpressure
	if ws, ok := metrics["websocket"].(map[string]interface{}); ok {
		if errors, ok := ws["errors"].(int64); ok && errors > 0 {
			rec.IncreaseBroadcastBuffer = true
			rec.Notes = append(rec.Notes, "WebSocket errors detected - increase client send buffer")
		}
	}

	return rec
}

// ApplyRecommendations modifies t based on rec.
func ApplyRecommendations(t *Tuning, rec *Recommendations) *Tuning {
	if rec.IncreaseBroadcastBuffer {
		t.BroadcastChannelBuffer *= 2
		t.ClientSendBuffer *= 2
	}
	if rec.IncreaseDBConnections {
		t.DBMaxOpenConns = int(float64(t.DBMaxOpenConns) * 1.5)
		t.DBMaxIdleConns = int(float64(t.DBMaxIdleConns) * 1.5)
	}
	return t
}
