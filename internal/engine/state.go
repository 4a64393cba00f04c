package engine

import (
	"time"

	"github.com/railtwin/traincontrol/internal/domain/feed"
	"github.com/railtwin/traincontrol/internal/domain/kpi"
	"github.com/railtwin/traincontrol/internal/domain/track"
	"github.com/railtwin/traincontrol/internal/domain/train"
	"github.com/railtwin/traincontrol/internal/fixtures"
)

// DefaultKPIInterval is the wall-clock period between KPI refreshes.
const DefaultKPIInterval = 5 * time.Second

// State is everything the tick reads and writes. Layout and Advisories are
// static for a region and shared between states; everything else is owned.
type State struct {
	Region     string
	Layout     track.Layout
	Advisories []fixtures.HoldAdvisory

	Trains  []train.Train
	Signals []track.Signal
	Blocks  []track.Block
	KPIs    kpi.Set
	Feed    feed.Feed

	// Raised holds the train ids whose hold advisory already fired this session.
	Raised map[string]bool

	KPIInterval   time.Duration
	LastKPIUpdate time.Time
	TickNumber    int64
}

// Initialize builds the starting state of a region: block occupancy is
// computed from the fixture positions and the initialization is logged.
func Initialize(region fixtures.Region, layout track.Layout, f feed.Feed, now time.Time, kpiInterval time.Duration) State {
	if kpiInterval <= 0 {
		kpiInterval = DefaultKPIInterval
	}
	s := State{
		Region:        region.Name,
		Layout:        layout,
		Advisories:    region.Advisories,
		Trains:        region.Trains,
		Signals:       region.Signals,
		KPIs:          region.KPIs,
		Feed:          f,
		Raised:        make(map[string]bool),
		KPIInterval:   kpiInterval,
		LastKPIUpdate: now,
	}
	s.Blocks = RecomputeOccupancy(s.Layout, s.Trains)
	s.Feed.AddLog(feed.LogSystem, "Digital Twin initialized for "+region.Name+". Block system active.", now)
	return s
}

// Clone returns a deep copy of the mutable parts of s.
func (s State) Clone() State {
	c := s
	c.Trains = make([]train.Train, len(s.Trains))
	for i, t := range s.Trains {
		c.Trains[i] = t.Clone()
	}
	c.Signals = append([]track.Signal(nil), s.Signals...)
	c.Blocks = make([]track.Block, len(s.Blocks))
	for i, b := range s.Blocks {
		c.Blocks[i] = track.Block{ID: b.ID}
		if b.OccupiedBy != nil {
			id := *b.OccupiedBy
			c.Blocks[i].OccupiedBy = &id
		}
	}
	c.Feed = s.Feed.Clone()
	c.Raised = make(map[string]bool, len(s.Raised))
	for k, v := range s.Raised {
		c.Raised[k] = v
	}
	return c
}

// FindTrain returns the train with the given id, or nil.
func (s *State) FindTrain(id string) *train.Train {
	for i := range s.Trains {
		if s.Trains[i].ID == id {
			return &s.Trains[i]
		}
	}
	return nil
}
