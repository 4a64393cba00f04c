// Package rules contains the pure calculation logic for train movement.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"math"

	"github.com/railtwin/traincontrol/internal/domain/track"
)

const (
	// WaypointTolerance is the distance under which a waypoint counts as reached.
	WaypointTolerance = 5.0
	// SignalLookahead is how far ahead a train watches for signals.
	SignalLookahead = 50.0
	// HoldDistance is how close to a red signal a train stops.
	HoldDistance = 20.0
	// SpeedDivisor converts km/h into canvas units per tick.
	SpeedDivisor = 20.0
	// lineTolerance is the lateral slack for "the signal is on my line".
	lineTolerance = 0.5
)

// Distance is the euclidean distance between two points.
func Distance(a, b track.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Direction returns the unit vector from a towards b. Zero when a == b.
func Direction(a, b track.Point) (dx, dy float64) {
	d := Distance(a, b)
	if d == 0 {
		return 0, 0
	}
	return (b.X - a.X) / d, (b.Y - a.Y) / d
}

// StepDistance is the distance covered in one tick at the given speed.
func StepDistance(speed float64) float64 {
	if speed <= 0 {
		return 0
	}
	return speed / SpeedDivisor
}

// Advance moves pos towards target by at most step, never past the target.
func Advance(pos, target track.Point, step float64) track.Point {
	d := Distance(pos, target)
	if d <= step {
		return target
	}
	dx, dy := Direction(pos, target)
	return track.Point{X: pos.X + dx*step, Y: pos.Y + dy*step}
}

// SignalAhead returns the first signal lying on the line of travel from pos
// towards target within SignalLookahead, with its distance along the line.
func SignalAhead(signals []track.Signal, pos, target track.Point) (*track.Signal, float64) {
	dx, dy := Direction(pos, target)
	if dx == 0 && dy == 0 {
		return nil, 0
	}
	for i := range signals {
		s := &signals[i]
		ox, oy := s.Position.X-pos.X, s.Position.Y-pos.Y
		along := ox*dx + oy*dy
		lateral := math.Abs(ox*dy - oy*dx)
		if lateral > lineTolerance {
			continue
		}
		if along > 0 && along < SignalLookahead {
			return s, along
		}
	}
	return nil, 0
}

// MustHold reports whether a train must stop for the signal at the given distance.
func MustHold(s *track.Signal, distance float64) bool {
	return s != nil && s.State == track.SignalRed && distance < HoldDistance
}
