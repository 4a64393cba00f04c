package engine

import (
	"github.com/railtwin/traincontrol/internal/domain/rules"
	"github.com/railtwin/traincontrol/internal/domain/track"
	"github.com/railtwin/traincontrol/internal/domain/train"
)

// AdvanceTrains moves every train one tick along its path.
func AdvanceTrains(trains []train.Train, signals []track.Signal) []train.Train {
	out := make([]train.Train, len(trains))
	for i, t := range trains {
		out[i] = advanceTrain(t, signals)
	}
	return out
}

func advanceTrain(t train.Train, signals []track.Signal) train.Train {
	target, ok := t.NextWaypoint()
	if !ok {
		// End of path: the train stands.
		t.Speed = 0
		return t
	}

	speed := t.CruiseSpeed
	status := t.BaselineStatus()
	if signal, dist := rules.SignalAhead(signals, t.Position, target); rules.MustHold(signal, dist) {
		speed = 0
		status = train.StatusHalted
	}

	if rules.Distance(t.Position, target) < rules.WaypointTolerance {
		t.CurrentPathIndex++
		return t
	}

	t.Speed = speed
	t.Status = status
	t.Position = rules.Advance(t.Position, target, rules.StepDistance(speed))
	return t
}
