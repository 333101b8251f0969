// Package spatial provides broad-phase spatial indexes: AgentIndex, which
// the engine uses to find which agents might overlap a blast before
// paying for the precise silhouette check, and BlastOverlap, which the
// Bomb Analyzer (spec.md C5) uses to find candidate bomb pairs.
//
// Both structures are generalizations of the teacher's pixel-space
// SpatialGrid/SweepAndPrune: the same bucket-and-narrow-phase shape, moved
// from float64 world coordinates to the integer tile coordinates a
// Bomberman board actually uses.
package spatial

import "bomberkernel/internal/worldmodel"

// AgentIndex buckets agent positions into cellSize×cellSize tile blocks
// so a blast's bounding box only has to scan the blocks it overlaps
// instead of every agent on the board. cellSize is normally the
// configured maximum blast radius, since that is the largest bounding box
// a query ever needs.
type AgentIndex struct {
	gridN       int
	cellSize    int
	cols, rows  int
	cells       [][]uint32 // cells[row*cols+col] = agent ids present
	scratch     []uint32
}

// NewAgentIndex builds an index over a gridN×gridN board with the given
// cell size (in tiles, minimum 1).
func NewAgentIndex(gridN, cellSize int) *AgentIndex {
	if cellSize < 1 {
		cellSize = 1
	}
	cols := (gridN + cellSize - 1) / cellSize
	rows := cols
	cells := make([][]uint32, cols*rows)
	return &AgentIndex{
		gridN:    gridN,
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		cells:    cells,
		scratch:  make([]uint32, 0, 16),
	}
}

// Clear empties every bucket, keeping allocated capacity.
func (idx *AgentIndex) Clear() {
	for i := range idx.cells {
		idx.cells[i] = idx.cells[i][:0]
	}
}

func (idx *AgentIndex) cellOf(p worldmodel.Position) (col, row int) {
	col = p.X / idx.cellSize
	row = p.Y / idx.cellSize
	if col < 0 {
		col = 0
	}
	if col >= idx.cols {
		col = idx.cols - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= idx.rows {
		row = idx.rows - 1
	}
	return col, row
}

// Insert registers an agent (identified by a caller-chosen numeric id;
// the engine uses the agent's index in its own per-query slice) at p.
func (idx *AgentIndex) Insert(agentID uint32, p worldmodel.Position) {
	col, row := idx.cellOf(p)
	cell := row*idx.cols + col
	idx.cells[cell] = append(idx.cells[cell], agentID)
}

// QueryBox returns the agent ids whose cell overlaps the tile bounding
// box [minX,maxX]×[minY,maxY]. Results are candidates only — the caller
// still must check each against the precise blast silhouette.
func (idx *AgentIndex) QueryBox(minX, minY, maxX, maxY int) []uint32 {
	idx.scratch = idx.scratch[:0]
	minCol, minRow := idx.cellOf(worldmodel.Position{X: minX, Y: minY})
	maxCol, maxRow := idx.cellOf(worldmodel.Position{X: maxX, Y: maxY})

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			idx.scratch = append(idx.scratch, idx.cells[row*idx.cols+col]...)
		}
	}
	return idx.scratch
}
