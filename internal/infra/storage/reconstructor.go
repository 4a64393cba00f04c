// Package storage - reconstructor.go
// Rebuilds console state from the event ledger: state = f(events).
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/railtwin/traincontrol/internal/domain/feed"
	"github.com/railtwin/traincontrol/internal/events"
)

// Reconstructor rebuilds state from the event ledger.
// This is used for:
// 1. Resuming the operations log after a restart
// 2. The per-session recap served to the dashboard
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new state reconstructor.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// RestoreFeed rebuilds the operations log of previous runs. Alerts are not
// restored, a restart behaves like a region switch; both id counters continue
// after the largest id ever stored.
func (r *Reconstructor) RestoreFeed(ctx context.Context) (feed.Feed, error) {
	f := feed.New()

	stored, err := r.eventRepo.GetByType(ctx, string(events.EventTypeLogAppended), feed.MaxLogs)
	if err != nil {
		return f, fmt.Errorf("failed to load log events: %w", err)
	}
	logs := make([]feed.LogEntry, 0, len(stored))
	for _, e := range stored {
		var entry feed.LogEntry
		if err := json.Unmarshal(e.Payload, &entry); err != nil || entry.ID == 0 {
			continue
		}
		logs = append(logs, entry)
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].ID > logs[j].ID })
	f.Logs = logs

	maxLog, err := r.eventRepo.MaxPayloadID(ctx, string(events.EventTypeLogAppended))
	if err != nil {
		return f, err
	}
	maxAlert, err := r.eventRepo.MaxPayloadID(ctx, string(events.EventTypeAlertRaised))
	if err != nil {
		return f, err
	}
	f.NextLogID = maxLog + 1
	f.NextAlertID = maxAlert + 1
	return f, nil
}

// SessionRecap summarizes one server run.
type SessionRecap struct {
	SessionID      string   `json:"session_id"`
	Ticks          int64    `json:"ticks"`
	Halts          int      `json:"halts"`
	Alerts         []string `json:"alerts"`
	RegionSwitches []string `json:"region_switches"`
	LoginFailures  int      `json:"login_failures"`
}

// Recap replays the events of one session into a summary.
func (r *Reconstructor) Recap(ctx context.Context, sessionID string) (*SessionRecap, error) {
	stored, err := r.eventRepo.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session events: %w", err)
	}

	recap := &SessionRecap{
		SessionID:      sessionID,
		Alerts:         make([]string, 0),
		RegionSwitches: make([]string, 0),
	}
	for _, e := range stored {
		switch events.EventType(e.EventType) {
		case events.EventTypeTrainTick:
			if e.Tick > recap.Ticks {
				recap.Ticks = e.Tick
			}
		case events.EventTypeTrainHalted:
			recap.Halts++
		case events.EventTypeAlertRaised:
			var a feed.Alert
			if json.Unmarshal(e.Payload, &a) == nil {
				recap.Alerts = append(recap.Alerts, a.Title)
			}
		case events.EventTypeRegionSwitched:
			var p events.RegionSwitchedPayload
			if json.Unmarshal(e.Payload, &p) == nil {
				recap.RegionSwitches = append(recap.RegionSwitches, p.To)
			}
		case events.EventTypeLoginAttempt:
			var p events.LoginAttemptPayload
			if json.Unmarshal(e.Payload, &p) == nil && !p.Success {
				recap.LoginFailures++
			}
		}
	}
	return recap, nil
}
