// Package train defines the rolling-stock entities moved by the simulation.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package train

import "github.com/railtwin/traincontrol/internal/domain/track"

// Type is the service class of a train.
type Type string

const (
	TypeExpress     Type = "Express"
	TypeFreight     Type = "Freight"
	TypeLocal       Type = "Local"
	TypeMaintenance Type = "Maintenance"
)

// Status is the operating status shown on the dashboard.
type Status string

const (
	StatusOnTime      Status = "On Time"
	StatusDelayed     Status = "Delayed"
	StatusHalted      Status = "Halted"
	StatusApproaching Status = "Approaching"
)

// PassengerImpact summarizes who is affected when the train runs late.
type PassengerImpact struct {
	Count             int `json:"count" yaml:"count"`
	MissedConnections int `json:"missedConnections" yaml:"missedConnections"`
}

// Train is a single service moving along a fixed path of waypoints.
type Train struct {
	ID          string  `json:"id" yaml:"id"`
	Type        Type    `json:"type" yaml:"type"`
	Priority    int     `json:"priority" yaml:"priority"` // 1 = highest
	Speed       float64 `json:"speed" yaml:"-"`           // Current speed, 0 when held
	CruiseSpeed float64 `json:"cruiseSpeed" yaml:"speed"` // Line speed restored once a hold clears

	Position         track.Point   `json:"position" yaml:"position"`
	Path             []track.Point `json:"path" yaml:"path"`
	CurrentPathIndex int           `json:"currentPathIndex" yaml:"-"`

	Status       Status          `json:"status" yaml:"status"`
	Delay        int             `json:"delay" yaml:"delay"` // minutes
	NextStation  string          `json:"nextStation" yaml:"nextStation"`
	ETA          string          `json:"eta" yaml:"eta"`
	Impact       PassengerImpact `json:"passengerImpact" yaml:"passengerImpact"`
	CurrentBlock *string         `json:"currentBlock" yaml:"-"`
}

// NextWaypoint returns the waypoint the train is heading to.
// ok is false once the train has reached the end of its path.
func (t *Train) NextWaypoint() (track.Point, bool) {
	next := t.CurrentPathIndex + 1
	if next < 0 || next >= len(t.Path) {
		return track.Point{}, false
	}
	return t.Path[next], true
}

// BaselineStatus is the status a moving train reports: delayed if it carries any delay.
func (t *Train) BaselineStatus() Status {
	if t.Delay > 0 {
		return StatusDelayed
	}
	return StatusOnTime
}

// IsOnTime reports whether the train has no accumulated delay.
func (t *Train) IsOnTime() bool {
	return t.Delay == 0
}

// Clone returns a deep copy so the tick can build the next state without aliasing.
func (t Train) Clone() Train {
	c := t
	if t.Path != nil {
		c.Path = make([]track.Point, len(t.Path))
		copy(c.Path, t.Path)
	}
	if t.CurrentBlock != nil {
		id := *t.CurrentBlock
		c.CurrentBlock = &id
	}
	return c
}
