// Package track defines the fixed infrastructure of a section: stations,
// block geometry, block occupancy and the signals protecting blocks.
// This package is PURE and must NOT import any infrastructure packages.
package track

// Point is a position on the planar network canvas.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Station is a named stop drawn on the network map.
type Station struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Position Point  `json:"position" yaml:"position"`
}

// BlockGeometry is the static extent of a block: a horizontal line and an
// x range [Start, End).
type BlockGeometry struct {
	ID    string  `json:"id" yaml:"id"`
	Line  float64 `json:"line" yaml:"line"`
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Contains reports whether p lies on this block.
func (g BlockGeometry) Contains(p Point) bool {
	return p.Y == g.Line && p.X >= g.Start && p.X < g.End
}

// Block is the occupancy record of one block. OccupiedBy is nil when clear.
type Block struct {
	ID         string  `json:"id"`
	OccupiedBy *string `json:"occupiedBy"`
}

// IsOccupied reports whether a train holds the block.
func (b Block) IsOccupied() bool {
	return b.OccupiedBy != nil
}

// Claim sets the occupant if the block is clear. Returns false when already held.
func (b *Block) Claim(trainID string) bool {
	if b.OccupiedBy != nil {
		return false
	}
	id := trainID
	b.OccupiedBy = &id
	return true
}

// SignalState is the aspect shown by a signal.
type SignalState string

const (
	SignalGreen  SignalState = "Green"
	SignalRed    SignalState = "Red"
	SignalYellow SignalState = "Yellow"
)

// Signal guards the entry to a single block.
type Signal struct {
	ID            string      `json:"id" yaml:"id"`
	State         SignalState `json:"state" yaml:"-"`
	Position      Point       `json:"position" yaml:"position"`
	ProtectsBlock string      `json:"protectsBlock" yaml:"protectsBlock"`
}

// Layout is the ordered block geometry of a section.
type Layout []BlockGeometry

// Locate returns the id of the first block containing p.
func (l Layout) Locate(p Point) (string, bool) {
	for _, g := range l {
		if g.Contains(p) {
			return g.ID, true
		}
	}
	return "", false
}

// ClearBlocks returns one unoccupied Block per geometry, in layout order.
func (l Layout) ClearBlocks() []Block {
	blocks := make([]Block, 0, len(l))
	for _, g := range l {
		blocks = append(blocks, Block{ID: g.ID})
	}
	return blocks
}

// FindBlock returns a pointer to the block with the given id, or nil.
func FindBlock(blocks []Block, id string) *Block {
	for i := range blocks {
		if blocks[i].ID == id {
			return &blocks[i]
		}
	}
	return nil
}
