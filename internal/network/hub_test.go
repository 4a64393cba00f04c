package network

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railtwin/traincontrol/internal/engine"
	"github.com/railtwin/traincontrol/internal/events"
	"github.com/railtwin/traincontrol/internal/platform/logger"
	"github.com/railtwin/traincontrol/internal/platform/metrics"
	"github.com/railtwin/traincontrol/internal/platform/optimization"
)

type fakeController struct {
	mu       sync.Mutex
	region   string
	selected []string
}

func (f *fakeController) Snapshot() engine.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Snapshot{ActiveRegion: f.region}
}

func (f *fakeController) SelectRegion(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, name)
	if name != "Delhi Division" && name != "Mumbai Division" {
		return false
	}
	f.region = name
	return true
}

func (f *fakeController) selections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.selected...)
}

type rawEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T, tuning *optimization.Tuning) (*Hub, *fakeController, *httptest.Server) {
	t.Helper()
	ctrl := &fakeController{region: "Delhi Division"}
	hub := NewHub(ctrl, tuning, logger.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, ctrl, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) rawEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env rawEnvelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestClientReceivesInitialSnapshotAndBroadcasts(t *testing.T) {
	hub, _, srv := startHub(t, nil)
	conn := dial(t, srv)

	env := readEnvelope(t, conn)
	assert.Equal(t, MessageSnapshot, env.Type)
	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, "Delhi Division", snap.ActiveRegion)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastSnapshot(engine.Snapshot{ActiveRegion: "Mumbai Division", Tick: 7})
	env = readEnvelope(t, conn)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, int64(7), snap.Tick)

	hub.BroadcastEvent(events.Event{ID: "e1", Type: events.EventTypeRegionSwitched})
	env = readEnvelope(t, conn)
	assert.Equal(t, MessageEvent, env.Type)
	var ev events.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, events.EventTypeRegionSwitched, ev.Type)
}

func TestSelectRegionCommand(t *testing.T) {
	_, ctrl, srv := startHub(t, nil)
	conn := dial(t, srv)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(Command{Type: CommandSelectRegion, Region: "Mumbai Division"}))
	require.NoError(t, conn.WriteJSON(Command{Type: CommandSelectRegion, Region: "Atlantis"}))
	require.NoError(t, conn.WriteJSON(Command{Type: "DISPATCH_TRAIN"}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	require.Eventually(t, func() bool { return len(ctrl.selections()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Mumbai Division", "Atlantis"}, ctrl.selections())
	assert.Equal(t, "Mumbai Division", ctrl.Snapshot().ActiveRegion)
}

func TestCommandRateLimit(t *testing.T) {
	tuning := optimization.LowResourceTuning()
	hub := NewHub(&fakeController{}, tuning, logger.NewDiscardLogger())
	c := &Client{hub: hub}

	now := time.Unix(1000, 0)
	for i := 0; i < tuning.MaxMessagesPerSecond; i++ {
		assert.True(t, c.allow(now))
	}
	assert.False(t, c.allow(now.Add(500*time.Millisecond)))
	assert.True(t, c.allow(now.Add(time.Second)))
}

func TestServeWsRejectsBeyondMaxClients(t *testing.T) {
	tuning := optimization.LowResourceTuning()
	tuning.MaxClients = 1
	hub, _, srv := startHub(t, tuning)

	dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEventPollerSkipsTicks(t *testing.T) {
	hub, _, srv := startHub(t, nil)
	conn := dial(t, srv)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	el := events.NewEventLog(nil)
	el.Append(events.Event{Type: events.EventTypeLogAppended, TargetID: "before-start"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.StartEventPoller(ctx, el, 10*time.Millisecond)

	el.Append(events.Event{Type: events.EventTypeTrainTick})
	el.Append(events.Event{Type: events.EventTypeTrainHalted, TargetID: "MNT-007"})

	env := readEnvelope(t, conn)
	assert.Equal(t, MessageEvent, env.Type)
	var ev events.Event
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, events.EventTypeTrainHalted, ev.Type)
	assert.Equal(t, "MNT-007", ev.TargetID)
}

func TestSlowClientMissesFramesButStaysConnected(t *testing.T) {
	tuning := optimization.LowResourceTuning()
	tuning.ClientSendBuffer = 1
	hub, _, _ := startHub(t, tuning)

	c := NewClient(hub, nil)
	c.Register() // the initial snapshot fills the buffer
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	errorsBefore := atomic.LoadInt64(&metrics.Get().WSErrors)
	for i := 0; i < 3; i++ {
		hub.BroadcastSnapshot(engine.Snapshot{Tick: int64(i + 1)})
	}
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&metrics.Get().WSErrors) >= errorsBefore+3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	initial, ok := <-c.send
	require.True(t, ok)
	var env rawEnvelope
	require.NoError(t, json.Unmarshal(initial, &env))
	assert.Equal(t, MessageSnapshot, env.Type)

	hub.BroadcastSnapshot(engine.Snapshot{Tick: 9})
	select {
	case msg, ok := <-c.send:
		require.True(t, ok)
		var snap struct {
			Data engine.Snapshot `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &snap))
		assert.Equal(t, int64(9), snap.Data.Tick)
	case <-time.After(time.Second):
		t.Fatal("client stopped receiving after its buffer overflowed")
	}
}
