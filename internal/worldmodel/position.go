package worldmodel

// Position is an integer grid coordinate. Gameplay rules never consult
// subpixel coordinates; those exist only for client-side interpolation
// and are intentionally absent from this type (see spec.md §3).
type Position struct {
	X, Y int
}

// Dir is one of the four cardinal movement directions.
type Dir uint8

const (
	DirNorth Dir = iota
	DirSouth
	DirEast
	DirWest
)

var dirDeltas = map[Dir]Position{
	DirNorth: {X: 0, Y: -1},
	DirSouth: {X: 0, Y: 1},
	DirEast:  {X: 1, Y: 0},
	DirWest:  {X: -1, Y: 0},
}

// Step returns the position one tile over in the given direction.
func (p Position) Step(d Dir) Position {
	delta := dirDeltas[d]
	return Position{X: p.X + delta.X, Y: p.Y + delta.Y}
}

// Manhattan returns the L1 distance between two positions.
func (p Position) Manhattan(o Position) int {
	dx := p.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dy := p.Y - o.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Neighbors4 returns the four cardinally-adjacent positions in a fixed,
// deterministic order (N, S, E, W) so callers that iterate them produce
// reproducible results across runs.
func (p Position) Neighbors4() [4]Position {
	return [4]Position{
		p.Step(DirNorth),
		p.Step(DirSouth),
		p.Step(DirEast),
		p.Step(DirWest),
	}
}

// InBounds reports whether the position lies within an N×N grid.
func (p Position) InBounds(n int) bool {
	return p.X >= 0 && p.X < n && p.Y >= 0 && p.Y < n
}
