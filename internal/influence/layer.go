// Package influence computes the Danger and Opportunity grids (spec.md
// C3) that the Planner and Pathfinder consult instead of re-deriving
// threat and reward from raw GameState on every query.
//
// The dirty-rectangle tracking and decayed BFS propagation below are
// adapted from the teacher's FlowFieldManager (flood-fill over a grid
// with incremental rebuilds), generalized from a single target-seeking
// field to additive danger/opportunity accumulation.
package influence

import "bomberkernel/internal/worldmodel"

// Layer is one dense N×N float32 field plus the smallest rectangle
// touched since the last Clear, so a consumer that only cares about
// "what changed this tick" never has to diff the whole board.
type Layer struct {
	N      int
	values []float32

	dirty    bool
	minX, minY, maxX, maxY int
}

// NewLayer allocates a zeroed n×n layer.
func NewLayer(n int) *Layer {
	return &Layer{N: n, values: make([]float32, n*n)}
}

func (l *Layer) idx(p worldmodel.Position) int { return p.Y*l.N + p.X }

// At returns the value at p, or 0 for an out-of-bounds position.
func (l *Layer) At(p worldmodel.Position) float32 {
	if !p.InBounds(l.N) {
		return 0
	}
	return l.values[l.idx(p)]
}

// Add accumulates delta into the value at p and extends the dirty
// rectangle to cover p.
func (l *Layer) Add(p worldmodel.Position, delta float32) {
	if !p.InBounds(l.N) {
		return
	}
	l.values[l.idx(p)] += delta
	l.markDirty(p)
}

// Set overwrites the value at p and extends the dirty rectangle.
func (l *Layer) Set(p worldmodel.Position, v float32) {
	if !p.InBounds(l.N) {
		return
	}
	l.values[l.idx(p)] = v
	l.markDirty(p)
}

func (l *Layer) markDirty(p worldmodel.Position) {
	if !l.dirty {
		l.minX, l.maxX, l.minY, l.maxY = p.X, p.X, p.Y, p.Y
		l.dirty = true
		return
	}
	if p.X < l.minX {
		l.minX = p.X
	}
	if p.X > l.maxX {
		l.maxX = p.X
	}
	if p.Y < l.minY {
		l.minY = p.Y
	}
	if p.Y > l.maxY {
		l.maxY = p.Y
	}
}

// DirtyRect returns the smallest rectangle covering every cell touched
// since the last Clear, and whether anything was touched at all.
func (l *Layer) DirtyRect() (minX, minY, maxX, maxY int, ok bool) {
	return l.minX, l.minY, l.maxX, l.maxY, l.dirty
}

// Clear zeroes the dirty rectangle's cells (not the whole board — callers
// doing a full rebuild call ClearAll) and resets dirty tracking.
func (l *Layer) Clear() {
	if l.dirty {
		for y := l.minY; y <= l.maxY; y++ {
			for x := l.minX; x <= l.maxX; x++ {
				l.values[y*l.N+x] = 0
			}
		}
	}
	l.dirty = false
}

// ClearAll zeroes every cell; RebuildFull calls it before recomputing.
func (l *Layer) ClearAll() {
	for i := range l.values {
		l.values[i] = 0
	}
	l.dirty = false
}
