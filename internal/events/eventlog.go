// Package events provides the append-only operations log of the digital twin.
// Every tick, alert, console line and region switch is recorded here so that
// the websocket hub, the replay API and persistence all read the same history.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/railtwin/traincontrol/internal/platform/metrics"
)

// EventType defines the category of an event.
type EventType string

const (
	EventTypeTrainTick      EventType = "TRAIN_TICK"
	EventTypeTrainHalted    EventType = "TRAIN_HALTED"
	EventTypeAlertRaised    EventType = "ALERT_RAISED"
	EventTypeLogAppended    EventType = "LOG_APPENDED"
	EventTypeRegionSwitched EventType = "REGION_SWITCHED"
	EventTypeKPIUpdated     EventType = "KPI_UPDATED"
	EventTypeLoginAttempt   EventType = "LOGIN_ATTEMPT"
)

// Actors recorded on events.
const (
	ActorSimulation = "SYSTEM_SIMULATION"
	ActorController = "CONTROLLER"
)

// Event represents an immutable record of something that happened in the twin.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	Region    string      `json:"region"`
	ActorID   string      `json:"actor_id"`            // Who performed the action
	TargetID  string      `json:"target_id,omitempty"` // Train, signal or block affected (optional)
	Payload   interface{} `json:"payload"`
	Tick      int64       `json:"tick"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event Event) error
}

// DefaultCapacity is the number of events kept in memory when no capacity is given.
const DefaultCapacity = 10000

// EventLog is the in-memory append-only log of events. It keeps the most
// recent events in a ring; older ones survive only in the persister.
// Offsets handed out by Since are absolute and stay valid after eviction.
type EventLog struct {
	mu        sync.RWMutex
	ring      []Event
	start     int   // index of the oldest retained event in ring
	count     int   // retained events
	base      int   // absolute offset of the oldest retained event
	capacity  int
	persister EventPersister
	writes    sync.WaitGroup
	closed    bool
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return NewBoundedEventLog(persister, DefaultCapacity)
}

// NewBoundedEventLog creates an event log retaining at most capacity events.
// A non-positive capacity falls back to DefaultCapacity.
func NewBoundedEventLog(persister EventPersister, capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &EventLog{
		ring:      make([]Event, 0, min(capacity, 1024)),
		capacity:  capacity,
		persister: persister,
	}
}

// Append adds a new event to the log, filling in the id and timestamp when
// missing. Events are immutable once appended.
func (el *EventLog) Append(event Event) Event {
	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	el.mu.Lock()
	if el.count < el.capacity {
		el.ring = append(el.ring, event)
		el.count++
	} else {
		el.ring[el.start] = event
		el.start = (el.start + 1) % el.capacity
		el.base++
	}
	persist := el.persister != nil && !el.closed
	if persist {
		el.writes.Add(1)
	}
	el.mu.Unlock()

	if persist {
		// Write through to persistent storage
		go func(e Event) {
			defer el.writes.Done()
			start := time.Now()
			err := el.persister.Append(e)
			metrics.Get().RecordEventWrite(time.Since(start), err)
		}(event)
	}
	return event
}

// Close stops writing through to the persister and waits for pending
// writes. Events appended afterwards are kept in memory only. Call it before
// closing the persister's storage.
func (el *EventLog) Close() {
	el.mu.Lock()
	el.closed = true
	el.mu.Unlock()
	el.writes.Wait()
}

// Len returns the number of events currently retained in memory.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.count
}

// Capacity returns the maximum number of retained events.
func (el *EventLog) Capacity() int {
	return el.capacity
}

// at returns the i-th retained event, oldest first. Callers hold mu.
func (el *EventLog) at(i int) Event {
	return el.ring[(el.start+i)%len(el.ring)]
}

// Since returns the retained events at or after offset and the offset to
// resume from on the next call. Events evicted before they were read are
// skipped.
func (el *EventLog) Since(offset int) ([]Event, int) {
	el.mu.RLock()
	defer el.mu.RUnlock()

	end := el.base + el.count
	if offset < el.base {
		offset = el.base
	}
	if offset >= end {
		return nil, end
	}
	out := make([]Event, 0, end-offset)
	for i := offset - el.base; i < el.count; i++ {
		out = append(out, el.at(i))
	}
	return out, end
}

// GetByType returns the retained events of one type, oldest first.
func (el *EventLog) GetByType(eventType EventType) []Event {
	return el.filter(func(e Event) bool { return e.Type == eventType })
}

// GetByTarget returns the retained events affecting a train, signal or block.
func (el *EventLog) GetByTarget(targetID string) []Event {
	return el.filter(func(e Event) bool { return e.TargetID == targetID })
}

func (el *EventLog) filter(keep func(Event) bool) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []Event
	for i := 0; i < el.count; i++ {
		if e := el.at(i); keep(e) {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the retained history, oldest first.
func (el *EventLog) Replay() []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	out := make([]Event, el.count)
	for i := range out {
		out[i] = el.at(i)
	}
	return out
}

// NewEventID creates a unique event identifier.
func NewEventID() string {
	return uuid.NewString()
}
