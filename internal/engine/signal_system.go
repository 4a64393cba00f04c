package engine

import "github.com/railtwin/traincontrol/internal/domain/track"

// RefreshSignals derives every signal aspect from its protected block:
// red when occupied, green otherwise.
func RefreshSignals(signals []track.Signal, blocks []track.Block) []track.Signal {
	out := make([]track.Signal, len(signals))
	for i, s := range signals {
		s.State = track.SignalGreen
		if b := track.FindBlock(blocks, s.ProtectsBlock); b != nil && b.IsOccupied() {
			s.State = track.SignalRed
		}
		out[i] = s
	}
	return out
}
