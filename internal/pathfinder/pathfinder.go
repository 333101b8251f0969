// Package pathfinder implements the A* search (spec.md C4) bots use to
// reach a goal tile while weighing the Danger influence layer into move
// cost. The heap/generation-based open set and BFS groundwork is
// generalized from the teacher's FlowFieldManager (internal/game/spatial/
// flowfield.go), which floods a grid from a single target using the same
// 4-neighbor stepping and incremental-rebuild mindset, adapted here from
// an all-destinations flood to a single-goal weighted search.
package pathfinder

import (
	"container/heap"
	"errors"
	"math"

	"bomberkernel/internal/worldmodel"
)

// Errors returned by Find.
var (
	ErrNoPath      = errors.New("pathfinder: no path exists")
	ErrInvalidGoal = errors.New("pathfinder: goal is off-grid or an indestructible wall")
)

// DangerSource supplies a per-tile danger sample; internal/influence.Layer
// satisfies this, and tests can stub it with a plain map-backed function.
type DangerSource interface {
	At(p worldmodel.Position) float32
}

// Config parameterizes the search. Alpha ≥ 0 scales danger into move
// cost; Manhattan distance remains the heuristic regardless of Alpha,
// which keeps the heuristic admissible for the unit-cost component but no
// longer tight once Alpha > 0 penalizes some moves above 1: A* still
// returns a minimum-cost path, but expands more nodes than a tight
// heuristic would.
type Config struct {
	Alpha         float64
	MaxExpansions int
}

// DefaultConfig returns reasonable bounds for a 256×256 board.
func DefaultConfig() Config {
	return Config{Alpha: 1.0, MaxExpansions: 4096}
}

// Result is what Find returns on success or best-effort exhaustion.
type Result struct {
	Path []worldmodel.Position
	Cost float64
	// BestEffort is true when the search stopped without reaching Goal:
	// either it exceeded MaxExpansions (Find's error is nil) or the open
	// set emptied (Find's error is ErrNoPath). Path is then the path to
	// the last expanded node rather than to Goal itself.
	BestEffort bool
}

type openEntry struct {
	pos        worldmodel.Position
	g, f       float64
	generation int
	index      int
}

type openHeap []*openEntry

func (h openHeap) Len() int { return len(h) }
func (h openHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	// Tie-break: lower h (= f-g, a whole Manhattan distance, so rounding
	// removes float noise) first, then lower x+y, matching spec.md §4.4's
	// documented deterministic order.
	if hi, hj := math.Round(h[i].f-h[i].g), math.Round(h[j].f-h[j].g); hi != hj {
		return hi < hj
	}
	si, sj := h[i].pos.X+h[i].pos.Y, h[j].pos.X+h[j].pos.Y
	return si < sj
}
func (h openHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *openHeap) Push(x any) {
	e := x.(*openEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *openHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func heuristic(a, b worldmodel.Position) float64 { return float64(a.Manhattan(b)) }

func moveCost(alpha float64, danger float32) float64 {
	return 1.0 + alpha*float64(danger)
}

// Find runs A* from start to goal on grid, penalizing each step into a
// tile by alpha*danger(tile). Returns ErrInvalidGoal if goal is off-grid
// or an indestructible wall, ErrNoPath if the open set empties without
// reaching goal. If the search exceeds cfg.MaxExpansions, it returns the
// best-effort partial path to the last node expanded alongside a nil
// error; when the open set empties, the same kind of best-effort path
// comes back alongside ErrNoPath (callers check Result.BestEffort).
func Find(grid *worldmodel.Grid, danger DangerSource, start, goal worldmodel.Position, cfg Config) (Result, error) {
	if !goal.InBounds(grid.N) || grid.Tile(goal).Kind == worldmodel.TileIndestructible {
		return Result{}, ErrInvalidGoal
	}
	if start == goal {
		return Result{Path: []worldmodel.Position{start}}, nil
	}

	gScore := map[worldmodel.Position]float64{start: 0}
	cameFrom := map[worldmodel.Position]worldmodel.Position{}
	generation := map[worldmodel.Position]int{}
	closed := map[worldmodel.Position]bool{}

	oh := &openHeap{}
	heap.Init(oh)
	heap.Push(oh, &openEntry{pos: start, g: 0, f: heuristic(start, goal), generation: 0})

	var bestEffort *openEntry
	expansions := 0

	for oh.Len() > 0 {
		cur := heap.Pop(oh).(*openEntry)
		if gen, ok := generation[cur.pos]; ok && gen > cur.generation {
			continue // stale entry from a since-improved decrease-key
		}
		if closed[cur.pos] {
			continue
		}
		closed[cur.pos] = true

		bestEffort = cur

		if cur.pos == goal {
			return Result{Path: reconstruct(cameFrom, start, goal), Cost: cur.g}, nil
		}

		expansions++
		if expansions > cfg.MaxExpansions {
			return Result{Path: reconstruct(cameFrom, start, bestEffort.pos), Cost: bestEffort.g, BestEffort: true}, nil
		}

		for _, n := range cur.pos.Neighbors4() {
			if !n.InBounds(grid.N) || closed[n] {
				continue
			}
			tile := grid.Tile(n)
			if !tile.Passable() {
				continue
			}
			tentativeG := cur.g + moveCost(cfg.Alpha, sampleDanger(danger, n))
			if existing, ok := gScore[n]; ok && tentativeG >= existing {
				continue
			}
			gScore[n] = tentativeG
			cameFrom[n] = cur.pos
			generation[n] = generation[n] + 1
			heap.Push(oh, &openEntry{pos: n, g: tentativeG, f: tentativeG + heuristic(n, goal), generation: generation[n]})
		}
	}

	if bestEffort != nil {
		return Result{Path: reconstruct(cameFrom, start, bestEffort.pos), Cost: bestEffort.g, BestEffort: true}, ErrNoPath
	}
	return Result{}, ErrNoPath
}

func sampleDanger(d DangerSource, p worldmodel.Position) float32 {
	if d == nil {
		return 0
	}
	return d.At(p)
}

func reconstruct(cameFrom map[worldmodel.Position]worldmodel.Position, start, end worldmodel.Position) []worldmodel.Position {
	path := []worldmodel.Position{end}
	cur := end
	for cur != start {
		prev, ok := cameFrom[cur]
		if !ok {
			break
		}
		path = append(path, prev)
		cur = prev
	}
	// reverse in place
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
