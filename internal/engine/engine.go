package engine

import (
	"context"
	"sync"
	"time"

	"github.com/railtwin/traincontrol/internal/domain/feed"
	"github.com/railtwin/traincontrol/internal/domain/kpi"
	"github.com/railtwin/traincontrol/internal/domain/rules"
	"github.com/railtwin/traincontrol/internal/domain/track"
	"github.com/railtwin/traincontrol/internal/domain/train"
	"github.com/railtwin/traincontrol/internal/events"
	"github.com/railtwin/traincontrol/internal/fixtures"
	"github.com/railtwin/traincontrol/internal/platform/logger"
	"github.com/railtwin/traincontrol/internal/platform/metrics"
)

// Options tune the engine.
type Options struct {
	TickRate      time.Duration
	KPIInterval   time.Duration
	DefaultRegion string // First fixture region when empty or unknown
	// InitialFeed resumes the console history of a previous run.
	InitialFeed *feed.Feed
	Clock       func() time.Time
}

// Snapshot is a read-only copy of the live state, shaped for the dashboard.
type Snapshot struct {
	ActiveRegion     string          `json:"activeRegion"`
	AvailableRegions []string        `json:"availableRegions"`
	Tick             int64           `json:"tick"`
	Trains           []train.Train   `json:"trains"`
	Signals          []track.Signal  `json:"signals"`
	Blocks           []track.Block   `json:"blocks"`
	Stations         []track.Station `json:"stations"`
	Alerts           []feed.Alert    `json:"alerts"`
	Logs             []feed.LogEntry `json:"logs"`
	KPIs             kpi.Set         `json:"kpis"`
}

// Engine is the central orchestrator: it owns the live State, runs Step on
// every tick and mirrors state changes into the EventLog.
type Engine struct {
	network  *fixtures.Network
	eventLog *events.EventLog
	logger   *logger.Logger
	ticker   *Ticker
	opts     Options

	mu        sync.RWMutex
	state     State
	listeners []func(Snapshot)
}

// NewEngine initializes the engine on the default region.
func NewEngine(network *fixtures.Network, eventLog *events.EventLog, log *logger.Logger, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.KPIInterval <= 0 {
		opts.KPIInterval = DefaultKPIInterval
	}
	e := &Engine{
		network:  network,
		eventLog: eventLog,
		logger:   log,
		opts:     opts,
	}
	e.ticker = NewTicker(e, opts.TickRate, log)

	region, ok := network.Region(opts.DefaultRegion)
	if !ok {
		region, _ = network.Region(network.RegionNames()[0])
	}
	start := feed.New()
	if opts.InitialFeed != nil {
		start = opts.InitialFeed.Clone()
	}

	now := opts.Clock()
	e.state = Initialize(region, network.Layout, start, now, opts.KPIInterval)
	e.emitFeed(start, e.state.Feed, e.state, now)
	return e
}

// Start spawns the ticker.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("Starting simulation engine for " + e.ActiveRegion() + "...")
	go e.ticker.Start(ctx)
}

// Stop halts the ticker.
func (e *Engine) Stop() {
	e.ticker.Stop()
}

// Subscribe registers fn to receive a snapshot after every state change.
// Listeners run on the mutating goroutine and must not block.
func (e *Engine) Subscribe(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Tick advances the simulation by one step. Implements Stepper.
func (e *Engine) Tick(now time.Time) {
	start := time.Now()

	e.mu.Lock()
	prev := e.state
	next := Step(prev, now)
	e.state = next
	e.mu.Unlock()

	metrics.Get().RecordTick(time.Since(start))
	e.emitTick(prev, next, now)
	e.emitFeed(prev.Feed, next.Feed, next, now)
	e.notify(next)
}

// SelectRegion switches the controlled region. Unknown regions are silently
// ignored and false is returned.
func (e *Engine) SelectRegion(name string) bool {
	region, ok := e.network.Region(name)
	if !ok {
		return false
	}
	now := e.opts.Clock()

	e.mu.Lock()
	prev := e.state
	f := prev.Feed.Clone()
	f.AddLog(feed.LogSystem, "Controller view switched to "+name+".", now)
	f.ClearAlerts()
	next := Initialize(region, e.network.Layout, f, now, e.opts.KPIInterval)
	next.TickNumber = prev.TickNumber
	e.state = next
	e.mu.Unlock()

	metrics.Get().RecordRegionSwitch()
	e.eventLog.Append(events.Event{
		Timestamp: now,
		Type:      events.EventTypeRegionSwitched,
		Region:    name,
		ActorID:   events.ActorController,
		Payload:   events.RegionSwitchedPayload{From: prev.Region, To: name},
		Tick:      next.TickNumber,
	})
	e.emitFeed(prev.Feed, next.Feed, next, now)
	e.notify(next)
	return true
}

// ActiveRegion returns the name of the controlled region.
func (e *Engine) ActiveRegion() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Region
}

// Regions lists the selectable regions.
func (e *Engine) Regions() []string {
	return e.network.RegionNames()
}

// State returns a deep copy of the live state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// Snapshot returns the dashboard view of the live state.
func (e *Engine) Snapshot() Snapshot {
	return e.snapshotOf(e.State())
}

func (e *Engine) snapshotOf(s State) Snapshot {
	return Snapshot{
		ActiveRegion:     s.Region,
		AvailableRegions: e.network.RegionNames(),
		Tick:             s.TickNumber,
		Trains:           s.Trains,
		Signals:          s.Signals,
		Blocks:           s.Blocks,
		Stations:         append([]track.Station(nil), e.network.Stations...),
		Alerts:           s.Feed.Alerts,
		Logs:             s.Feed.Logs,
		KPIs:             s.KPIs,
	}
}

func (e *Engine) notify(s State) {
	e.mu.RLock()
	listeners := make([]func(Snapshot), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	snap := e.snapshotOf(s.Clone())
	for _, fn := range listeners {
		fn(snap)
	}
}

// emitTick records the tick itself plus every train that became halted.
func (e *Engine) emitTick(prev, next State, now time.Time) {
	halted, occupied := 0, 0
	for _, b := range next.Blocks {
		if b.IsOccupied() {
			occupied++
		}
	}
	for _, t := range next.Trains {
		if t.Status != train.StatusHalted {
			continue
		}
		halted++
		if before := prev.FindTrain(t.ID); before != nil && before.Status == train.StatusHalted {
			continue
		}
		metrics.Get().RecordHalt()
		e.logger.Event("TRAIN_HALTED", t.ID, "Held at red signal")
		e.eventLog.Append(events.Event{
			Timestamp: now,
			Type:      events.EventTypeTrainHalted,
			Region:    next.Region,
			ActorID:   events.ActorSimulation,
			TargetID:  t.ID,
			Payload:   events.TrainHaltedPayload{TrainID: t.ID, SignalID: holdingSignal(t, next.Signals), X: t.Position.X, Y: t.Position.Y},
			Tick:      next.TickNumber,
		})
	}

	e.eventLog.Append(events.Event{
		Timestamp: now,
		Type:      events.EventTypeTrainTick,
		Region:    next.Region,
		ActorID:   events.ActorSimulation,
		Payload: events.TickPayload{
			TickNumber:    next.TickNumber,
			Trains:        len(next.Trains),
			Halted:        halted,
			OccupiedBlock: occupied,
		},
		Tick: next.TickNumber,
	})

	if next.LastKPIUpdate != prev.LastKPIUpdate {
		e.eventLog.Append(events.Event{
			Timestamp: now,
			Type:      events.EventTypeKPIUpdated,
			Region:    next.Region,
			ActorID:   events.ActorSimulation,
			Payload:   next.KPIs,
			Tick:      next.TickNumber,
		})
	}
}

// emitFeed appends one event per alert and log entry that next has and prev lacks.
func (e *Engine) emitFeed(prev, next feed.Feed, s State, now time.Time) {
	for i := len(next.Alerts) - 1; i >= 0; i-- {
		a := next.Alerts[i]
		if a.ID < prev.NextAlertID {
			continue
		}
		metrics.Get().RecordAlert()
		e.logger.Event("ALERT", events.ActorSimulation, a.Title)
		e.eventLog.Append(events.Event{
			Timestamp: now,
			Type:      events.EventTypeAlertRaised,
			Region:    s.Region,
			ActorID:   events.ActorSimulation,
			Payload:   a,
			Tick:      s.TickNumber,
		})
	}
	for i := len(next.Logs) - 1; i >= 0; i-- {
		l := next.Logs[i]
		if l.ID < prev.NextLogID {
			continue
		}
		e.eventLog.Append(events.Event{
			Timestamp: now,
			Type:      events.EventTypeLogAppended,
			Region:    s.Region,
			ActorID:   events.ActorSimulation,
			Payload:   l,
			Tick:      s.TickNumber,
		})
	}
}

func holdingSignal(t train.Train, signals []track.Signal) string {
	target, ok := t.NextWaypoint()
	if !ok {
		return ""
	}
	if sig, _ := rules.SignalAhead(signals, t.Position, target); sig != nil {
		return sig.ID
	}
	return ""
}
