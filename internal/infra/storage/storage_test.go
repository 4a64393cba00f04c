package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railtwin/traincontrol/internal/domain/feed"
	"github.com/railtwin/traincontrol/internal/events"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitSQLite(filepath.Join(t.TempDir(), "data", "twin.db"), Pool{MaxOpenConns: 2, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func appendEvent(t *testing.T, p *EventPersister, typ events.EventType, tick int64, payload interface{}) {
	t.Helper()
	require.NoError(t, p.Append(events.Event{
		ID:        events.NewEventID(),
		Timestamp: base.Add(time.Duration(tick) * time.Second),
		Type:      typ,
		Region:    "Delhi Division",
		ActorID:   events.ActorSimulation,
		Payload:   payload,
		Tick:      tick,
	}))
}

func TestEventRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLiteEventRepository(db)
	p := NewEventPersister(repo, "run-1")
	assert.Equal(t, "run-1", p.SessionID())

	appendEvent(t, p, events.EventTypeTrainTick, 1, events.TickPayload{TickNumber: 1, Trains: 4})
	appendEvent(t, p, events.EventTypeTrainTick, 2, events.TickPayload{TickNumber: 2, Trains: 4})
	appendEvent(t, NewEventPersister(repo, "run-2"), events.EventTypeTrainTick, 3, nil)

	ctx := context.Background()
	got, err := repo.GetBySession(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Tick)
	assert.Equal(t, "Delhi Division", got[0].Region)
	assert.True(t, got[1].Timestamp.Equal(base.Add(2*time.Second)))

	var payload events.TickPayload
	require.NoError(t, json.Unmarshal(got[1].Payload, &payload))
	assert.Equal(t, int64(2), payload.TickNumber)

	latest, err := repo.GetByType(ctx, string(events.EventTypeTrainTick), 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(3), latest[0].Tick)
	assert.Equal(t, "null", string(latest[0].Payload))

	all, err := repo.GetByType(ctx, string(events.EventTypeTrainTick), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRestoreFeed(t *testing.T) {
	db := openTestDB(t)
	repo := NewSQLiteEventRepository(db)
	p := NewEventPersister(repo, "run-1")

	f := feed.New()
	f.AddLog(feed.LogSystem, "Digital Twin initialized for Delhi Division. Block system active.", base)
	f.AddAlert("AI Action: Hold MNT-007", "Holding", "why", base)
	for i := len(f.Logs) - 1; i >= 0; i-- {
		appendEvent(t, p, events.EventTypeLogAppended, int64(f.Logs[i].ID), f.Logs[i])
	}
	appendEvent(t, p, events.EventTypeAlertRaised, 2, f.Alerts[0])

	restored, err := NewReconstructor(repo).RestoreFeed(context.Background())
	require.NoError(t, err)

	assert.Empty(t, restored.Alerts)
	require.Len(t, restored.Logs, 2)
	assert.Equal(t, 2, restored.Logs[0].ID)
	assert.Equal(t, "AI Action: Hold MNT-007: Holding", restored.Logs[0].Message)
	assert.Equal(t, 3, restored.NextLogID)
	assert.Equal(t, 2, restored.NextAlertID)
}

func TestRestoreFeedEmptyLedger(t *testing.T) {
	restored, err := NewReconstructor(NewSQLiteEventRepository(openTestDB(t))).RestoreFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, feed.New(), restored)
}

func TestRecap(t *testing.T) {
	repo := NewSQLiteEventRepository(openTestDB(t))
	p := NewEventPersister(repo, "run-1")

	appendEvent(t, p, events.EventTypeTrainTick, 1, nil)
	appendEvent(t, p, events.EventTypeTrainHalted, 2, events.TrainHaltedPayload{TrainID: "MNT-007"})
	appendEvent(t, p, events.EventTypeAlertRaised, 2, feed.Alert{ID: 1, Title: "AI Action: Hold MNT-007"})
	appendEvent(t, p, events.EventTypeRegionSwitched, 3, events.RegionSwitchedPayload{From: "Delhi Division", To: "Mumbai Division"})
	appendEvent(t, p, events.EventTypeLoginAttempt, 3, events.LoginAttemptPayload{Username: "x", Success: false})
	appendEvent(t, p, events.EventTypeLoginAttempt, 3, events.LoginAttemptPayload{Username: "controller", Success: true})
	appendEvent(t, p, events.EventTypeTrainTick, 4, nil)

	recap, err := NewReconstructor(repo).Recap(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), recap.Ticks)
	assert.Equal(t, 1, recap.Halts)
	assert.Equal(t, []string{"AI Action: Hold MNT-007"}, recap.Alerts)
	assert.Equal(t, []string{"Mumbai Division"}, recap.RegionSwitches)
	assert.Equal(t, 1, recap.LoginFailures)
}

func TestKPIRepository(t *testing.T) {
	repo := NewSQLiteKPIRepository(openTestDB(t))
	ctx := context.Background()

	none, err := repo.LatestByRegion(ctx, "Delhi Division")
	require.NoError(t, err)
	assert.Nil(t, none)

	for i, p := range []float64{75, 50, 66.7} {
		require.NoError(t, repo.Append(ctx, KPISnapshot{
			SessionID:   "run-1",
			Region:      "Delhi Division",
			TakenAt:     base.Add(time.Duration(i) * 5 * time.Second),
			Tick:        int64(i * 5),
			Punctuality: p,
		}))
	}
	require.NoError(t, repo.Append(ctx, KPISnapshot{SessionID: "run-1", Region: "Mumbai Division", TakenAt: base, Punctuality: 89.5}))

	latest, err := repo.LatestByRegion(ctx, "Delhi Division")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 66.7, latest.Punctuality)
	assert.Equal(t, int64(10), latest.Tick)

	history, err := repo.History(ctx, "Delhi Division", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 66.7, history[0].Punctuality)
	assert.Equal(t, 50.0, history[1].Punctuality)
}
