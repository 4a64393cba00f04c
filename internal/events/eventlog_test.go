package events

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPersister) Append(event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	log := NewEventLog(nil)

	e := log.Append(Event{Type: EventTypeTrainTick, Region: "Delhi Division"})

	_, err := uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, 1, log.Len())
}

func TestAppendKeepsProvidedFields(t *testing.T) {
	log := NewEventLog(nil)
	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	e := log.Append(Event{ID: "fixed", Timestamp: ts, Type: EventTypeAlertRaised})

	assert.Equal(t, "fixed", e.ID)
	assert.Equal(t, ts, e.Timestamp)
}

func TestSinceResumesFromOffset(t *testing.T) {
	log := NewEventLog(nil)
	log.Append(Event{Type: EventTypeTrainTick})
	log.Append(Event{Type: EventTypeLogAppended})

	got, next := log.Since(0)
	require.Len(t, got, 2)
	assert.Equal(t, 2, next)

	got, next = log.Since(next)
	assert.Empty(t, got)
	assert.Equal(t, 2, next)

	log.Append(Event{Type: EventTypeAlertRaised})
	got, next = log.Since(next)
	require.Len(t, got, 1)
	assert.Equal(t, EventTypeAlertRaised, got[0].Type)
	assert.Equal(t, 3, next)

	got, _ = log.Since(-4)
	assert.Len(t, got, 3)
}

func TestFilters(t *testing.T) {
	log := NewEventLog(nil)
	log.Append(Event{Type: EventTypeTrainHalted, TargetID: "MNT-007"})
	log.Append(Event{Type: EventTypeTrainTick})
	log.Append(Event{Type: EventTypeTrainHalted, TargetID: "DE-ADI"})

	assert.Len(t, log.GetByType(EventTypeTrainHalted), 2)
	assert.Len(t, log.GetByType(EventTypeKPIUpdated), 0)

	byTarget := log.GetByTarget("MNT-007")
	require.Len(t, byTarget, 1)
	assert.Equal(t, EventTypeTrainHalted, byTarget[0].Type)
}

func TestReplayReturnsCopy(t *testing.T) {
	log := NewEventLog(nil)
	log.Append(Event{Type: EventTypeTrainTick})

	history := log.Replay()
	history[0].Type = EventTypeLoginAttempt

	assert.Equal(t, EventTypeTrainTick, log.Replay()[0].Type)
}

func TestAppendWritesThroughPersister(t *testing.T) {
	p := &recordingPersister{}
	log := NewEventLog(p)

	log.Append(Event{Type: EventTypeTrainTick})
	log.Append(Event{Type: EventTypeRegionSwitched})

	assert.Eventually(t, func() bool { return p.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestBoundedLogEvictsOldest(t *testing.T) {
	log := NewBoundedEventLog(nil, 3)
	for i := 0; i < 5; i++ {
		log.Append(Event{Type: EventTypeTrainTick, Tick: int64(i)})
	}

	assert.Equal(t, 3, log.Len())
	assert.Equal(t, 3, log.Capacity())
	history := log.Replay()
	require.Len(t, history, 3)
	assert.Equal(t, []int64{2, 3, 4}, []int64{history[0].Tick, history[1].Tick, history[2].Tick})
	assert.Len(t, log.GetByType(EventTypeTrainTick), 3)
}

func TestBoundedLogKeepsAbsoluteOffsets(t *testing.T) {
	log := NewBoundedEventLog(nil, 2)
	log.Append(Event{Tick: 0})
	_, offset := log.Since(0)
	assert.Equal(t, 1, offset)

	// Four more events: offset 1 has been evicted by the time it is read.
	for i := 1; i <= 4; i++ {
		log.Append(Event{Tick: int64(i)})
	}
	got, next := log.Since(offset)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Tick)
	assert.Equal(t, int64(4), got[1].Tick)
	assert.Equal(t, 5, next)

	log.Append(Event{Tick: 5})
	got, next = log.Since(next)
	require.Len(t, got, 1)
	assert.Equal(t, int64(5), got[0].Tick)
	assert.Equal(t, 6, next)
}

func TestNonPositiveCapacityUsesDefault(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewBoundedEventLog(nil, 0).Capacity())
	assert.Equal(t, DefaultCapacity, NewEventLog(nil).Capacity())
}

type slowPersister struct {
	recordingPersister
	delay time.Duration
}

func (p *slowPersister) Append(event Event) error {
	time.Sleep(p.delay)
	return p.recordingPersister.Append(event)
}

func TestCloseWaitsForPendingWrites(t *testing.T) {
	p := &slowPersister{delay: 20 * time.Millisecond}
	log := NewEventLog(p)
	for i := 0; i < 5; i++ {
		log.Append(Event{Type: EventTypeLogAppended})
	}

	log.Close()
	assert.Equal(t, 5, p.count())

	// After Close events stay in memory only.
	log.Append(Event{Type: EventTypeLogAppended})
	assert.Equal(t, 6, log.Len())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5, p.count())
}
