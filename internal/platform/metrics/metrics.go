// Package metrics provides observability for the traffic control server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Simulation outcomes
	TrainsHalted   int64
	AlertsRaised   int64
	RegionSwitches int64
	LoginFailures  int64

	// Event metrics
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = &Collector{
	StartTime: time.Now(),
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordHalt records a train being stopped at a red signal.
func (c *Collector) RecordHalt() {
	atomic.AddInt64(&c.TrainsHalted, 1)
}

// RecordAlert records an alert raised on the console.
func (c *Collector) RecordAlert() {
	atomic.AddInt64(&c.AlertsRaised, 1)
}

// RecordRegionSwitch records a controller region change.
func (c *Collector) RecordRegionSwitch() {
	atomic.AddInt64(&c.RegionSwitches, 1)
}

// RecordLoginFailure records a rejected login.
func (c *Collector) RecordLoginFailure() {
	atomic.AddInt64(&c.LoginFailures, 1)
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))
	storeMax(&c.EventWriteLatMax, int64(latency))

	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// storeMax raises *addr to v if v is larger.
func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	lastTick := c.LastTickTime
	c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	// Calculate averages
	var tickAvg, eventAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if eventsWritten > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.EventWriteLatSum)) / float64(eventsWritten) / 1e6
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      lastTick.Format(time.RFC3339),
		},

		"simulation": map[string]interface{}{
			"trains_halted":   atomic.LoadInt64(&c.TrainsHalted),
			"alerts_raised":   atomic.LoadInt64(&c.AlertsRaised),
			"region_switches": atomic.LoadInt64(&c.RegionSwitches),
			"login_failures":  atomic.LoadInt64(&c.LoginFailures),
		},

		"events": map[string]interface{}{
			"written":          eventsWritten,
			"avg_write_lat_ms": eventAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")

		snapshot := collector.Snapshot()
		json.NewEncoder(w).Encode(snapshot)
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		// Tick metrics
		fmt.Fprintf(w, "# HELP traincontrol_tick_count Total tick cycles\n")
		fmt.Fprintf(w, "# TYPE traincontrol_tick_count counter\n")
		fmt.Fprintf(w, "traincontrol_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP traincontrol_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE traincontrol_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "traincontrol_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		// Simulation outcomes
		fmt.Fprintf(w, "# HELP traincontrol_trains_halted_total Trains stopped at red signals\n")
		fmt.Fprintf(w, "# TYPE traincontrol_trains_halted_total counter\n")
		fmt.Fprintf(w, "traincontrol_trains_halted_total %d\n\n", atomic.LoadInt64(&c.TrainsHalted))

		fmt.Fprintf(w, "# HELP traincontrol_alerts_raised_total Alerts raised on the console\n")
		fmt.Fprintf(w, "# TYPE traincontrol_alerts_raised_total counter\n")
		fmt.Fprintf(w, "traincontrol_alerts_raised_total %d\n\n", atomic.LoadInt64(&c.AlertsRaised))

		fmt.Fprintf(w, "# HELP traincontrol_login_failures_total Rejected logins\n")
		fmt.Fprintf(w, "# TYPE traincontrol_login_failures_total counter\n")
		fmt.Fprintf(w, "traincontrol_login_failures_total %d\n\n", atomic.LoadInt64(&c.LoginFailures))

		// Event metrics
		fmt.Fprintf(w, "# HELP traincontrol_events_written Total events written\n")
		fmt.Fprintf(w, "# TYPE traincontrol_events_written counter\n")
		fmt.Fprintf(w, "traincontrol_events_written %d\n\n", atomic.LoadInt64(&c.EventsWritten))

		fmt.Fprintf(w, "# HELP traincontrol_event_write_errors Total event write errors\n")
		fmt.Fprintf(w, "# TYPE traincontrol_event_write_errors counter\n")
		fmt.Fprintf(w, "traincontrol_event_write_errors %d\n\n", atomic.LoadInt64(&c.EventWriteErrors))

		// WebSocket metrics
		fmt.Fprintf(w, "# HELP traincontrol_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE traincontrol_ws_connections gauge\n")
		fmt.Fprintf(w, "traincontrol_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP traincontrol_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE traincontrol_ws_messages_total counter\n")
		fmt.Fprintf(w, "traincontrol_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "traincontrol_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
