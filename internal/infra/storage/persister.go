package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/railtwin/traincontrol/internal/events"
)

// EventPersister translates domain events to stored events. It implements
// events.EventPersister.
type EventPersister struct {
	repo      EventRepository
	sessionID string
}

// NewEventPersister tags every stored event with sessionID.
func NewEventPersister(repo EventRepository, sessionID string) *EventPersister {
	return &EventPersister{repo: repo, sessionID: sessionID}
}

// SessionID returns the server run the persister writes for.
func (p *EventPersister) SessionID() string {
	return p.sessionID
}

func (p *EventPersister) Append(event events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	return p.repo.Append(context.Background(), StoredEvent{
		ID:        event.ID,
		SessionID: p.sessionID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		Region:    event.Region,
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Payload:   payload,
		Tick:      event.Tick,
	})
}
