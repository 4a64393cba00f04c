package engine

import "time"

// Step runs one simulation tick and returns the next state. s is not modified.
//
//  1. Signal refresh from the current block occupancy.
//  2. Train advance, holding trains at red signals.
//  3. Block occupancy recomputed from the new positions.
//  4. Hold advisories raised for newly halted trains.
//  5. KPIs refreshed once per KPI interval.
func Step(s State, now time.Time) State {
	next := s.Clone()
	next.TickNumber++

	next.Signals = RefreshSignals(next.Signals, next.Blocks)
	next.Trains = AdvanceTrains(next.Trains, next.Signals)
	next.Blocks = RecomputeOccupancy(next.Layout, next.Trains)
	RaiseHoldAdvisories(&next, now)
	RefreshKPIs(&next, now)

	return next
}
