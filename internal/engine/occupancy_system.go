package engine

import (
	"github.com/railtwin/traincontrol/internal/domain/track"
	"github.com/railtwin/traincontrol/internal/domain/train"
)

// RecomputeOccupancy rebuilds block occupancy from scratch. Trains are scanned
// in roster order and the first train found on a block claims it; a train on
// an already claimed block still records that block as its current block.
// Sets CurrentBlock on every train in place.
func RecomputeOccupancy(layout track.Layout, trains []train.Train) []track.Block {
	blocks := layout.ClearBlocks()
	for i := range trains {
		t := &trains[i]
		id, ok := layout.Locate(t.Position)
		if !ok {
			t.CurrentBlock = nil
			continue
		}
		blockID := id
		t.CurrentBlock = &blockID
		if b := track.FindBlock(blocks, id); b != nil {
			b.Claim(t.ID)
		}
	}
	return blocks
}
