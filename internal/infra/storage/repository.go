// Package storage provides the persistence layer of the traffic control server.
// This package implements the repository pattern to keep the domain pure.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// StoredEvent mirrors the domain event structure for persistence.
// The domain packages should NOT import this; use interfaces instead.
type StoredEvent struct {
	ID        string          `json:"id" db:"id"`
	SessionID string          `json:"session_id" db:"session_id"` // One per server run
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	EventType string          `json:"event_type" db:"event_type"`
	Region    string          `json:"region" db:"region"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	TargetID  string          `json:"target_id" db:"target_id"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	Tick      int64           `json:"tick" db:"tick"`
}

// EventRepository defines the interface for event persistence.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event StoredEvent) error

	// GetBySession retrieves all events of one server run, oldest first.
	GetBySession(ctx context.Context, sessionID string) ([]StoredEvent, error)

	// GetByType retrieves the latest events of one type across sessions,
	// newest first. A non-positive limit returns all of them.
	GetByType(ctx context.Context, eventType string, limit int) ([]StoredEvent, error)

	// MaxPayloadID returns the largest numeric payload "id" of an event type,
	// 0 when there is none. Used to continue console id counters.
	MaxPayloadID(ctx context.Context, eventType string) (int, error)
}

// KPISnapshot is one periodic sample of the KPI panel.
type KPISnapshot struct {
	ID                int64     `json:"id" db:"id"`
	SessionID         string    `json:"session_id" db:"session_id"`
	Region            string    `json:"region" db:"region"`
	TakenAt           time.Time `json:"taken_at" db:"taken_at"`
	Tick              int64     `json:"tick" db:"tick"`
	SectionThroughput float64   `json:"section_throughput" db:"section_throughput"`
	Punctuality       float64   `json:"punctuality" db:"punctuality"`
	AvgDelay          float64   `json:"avg_delay" db:"avg_delay"`
	TrackUtilization  float64   `json:"track_utilization" db:"track_utilization"`
}

// KPIRepository defines the interface for KPI history.
type KPIRepository interface {
	// Append stores a new sample.
	Append(ctx context.Context, snapshot KPISnapshot) error

	// LatestByRegion returns the most recent sample of a region, nil when none.
	LatestByRegion(ctx context.Context, region string) (*KPISnapshot, error)

	// History returns up to limit samples of a region, newest first.
	History(ctx context.Context, region string, limit int) ([]KPISnapshot, error)
}
