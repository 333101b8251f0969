// Package bombs implements the Bomb Analyzer (spec.md C5): the live
// chain-reaction graph over bombs on the board, blast silhouette
// computation, and BFS-based safe-tile queries the Pathfinder and Goal
// Planner consult.
//
// Silhouette geometry is grounded on the teacher's hitbox arm-tracing
// shape (internal/game/hitbox.go — a directional reach that halts on the
// first blocking obstacle), generalized from continuous angle/range
// checks to grid Manhattan arms via worldmodel.ComputeBlastTiles. The
// broad-phase pruning before the narrow (exact silhouette) chain check
// reuses internal/spatial's sweep-and-prune, itself adapted from the
// teacher's SweepAndPrune collision broad phase.
package bombs

import (
	"fmt"
	"sort"

	"bomberkernel/internal/spatial"
	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

// Silhouette returns the set of cells a bomb's blast affects on the
// current grid, per worldmodel.ComputeBlastTiles's halting rules.
func Silhouette(grid *worldmodel.Grid, b state.BombView) []worldmodel.Position {
	return worldmodel.ComputeBlastTiles(grid, b.Pos, b.Power, b.Flags.Piercing)
}

// Edge is a directed chain-reaction link: detonating From's blast reaches
// To's tile, so To detonates in the same tick.
type Edge struct {
	From, To uint32
}

// Graph is the chain-reaction graph over the bombs live in one tick, plus
// each bomb's precomputed silhouette (computing it once here saves the
// engine from recomputing it again when it applies BombExploded deltas).
type Graph struct {
	Silhouettes map[uint32][]worldmodel.Position
	Edges       []Edge
}

// BuildGraph computes every bomb's silhouette and the directed edges
// between bombs whose silhouettes overlap the other's position. Broad
// phase (sweep-and-prune over X-axis silhouette bounding boxes) prunes
// the candidate pairs before the narrow phase pays for an exact
// point-in-silhouette check in both directions.
func BuildGraph(grid *worldmodel.Grid, bombs []state.BombView) Graph {
	g := Graph{Silhouettes: make(map[uint32][]worldmodel.Position, len(bombs))}
	if len(bombs) == 0 {
		return g
	}

	byID := make(map[uint32]state.BombView, len(bombs))
	ranges := make([]spatial.BlastRange, 0, len(bombs))
	for _, b := range bombs {
		sil := Silhouette(grid, b)
		g.Silhouettes[b.ID] = sil
		byID[b.ID] = b

		minX, maxX := b.Pos.X, b.Pos.X
		for _, p := range sil {
			if p.X < minX {
				minX = p.X
			}
			if p.X > maxX {
				maxX = p.X
			}
		}
		ranges = append(ranges, spatial.BlastRange{BombID: b.ID, MinX: minX, MaxX: maxX})
	}

	overlap := spatial.NewBlastOverlap(len(bombs))
	pairs := overlap.Update(ranges)

	for _, pair := range pairs {
		a, b := byID[pair.A], byID[pair.B]
		if containsPos(g.Silhouettes[a.ID], b.Pos) {
			g.Edges = append(g.Edges, Edge{From: a.ID, To: b.ID})
		}
		if containsPos(g.Silhouettes[b.ID], a.Pos) {
			g.Edges = append(g.Edges, Edge{From: b.ID, To: a.ID})
		}
	}

	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	return g
}

func containsPos(cells []worldmodel.Position, p worldmodel.Position) bool {
	for _, c := range cells {
		if c == p {
			return true
		}
	}
	return false
}

// Resolve takes the bombs whose fuse reached zero this tick (or were
// remote-detonated) and returns the full, deterministically ordered set
// of bomb ids that detonate as a result — the roots plus everything
// chain-reachable from them through Graph.Edges. Order is
// (fuse_remaining ascending, bomb_id ascending) per spec.md §4.5, so
// replaying the same roots against the same graph always yields the same
// detonation sequence regardless of map iteration order.
func Resolve(g Graph, bombs []state.BombView, roots []uint32) []uint32 {
	byID := make(map[uint32]state.BombView, len(bombs))
	for _, b := range bombs {
		byID[b.ID] = b
	}

	adj := make(map[uint32][]uint32, len(g.Edges))
	for _, e := range g.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	visited := make(map[uint32]bool, len(bombs))
	var order []uint32
	queue := append([]uint32(nil), roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		if _, ok := byID[id]; !ok {
			continue
		}
		visited[id] = true
		order = append(order, id)
		queue = append(queue, adj[id]...)
	}

	// Detonation order is ranked rather than sorted directly: the same
	// RankedSet shape the leaderboard uses for score-descending rank
	// queries serves fuse-ascending here by negating the score, with the
	// zero-padded bomb id as the ascending tie-break key.
	ranked := spatial.NewRankedSet(0)
	for _, id := range order {
		ranked.Insert(fmt.Sprintf("%010d", id), -float64(byID[id].FuseTicks))
	}
	ordered := ranked.Range(1, ranked.Len())
	out := make([]uint32, len(ordered))
	for i, e := range ordered {
		var id uint32
		fmt.Sscanf(e.Key, "%d", &id)
		out[i] = id
	}
	return out
}

// UnionSilhouette merges the silhouettes of the given detonating bomb ids
// into one deduplicated, position-sorted cell set — the cells the engine
// must apply damage/crate-destruction to this tick, accumulated before
// any single bomb's effect is applied so that chain order never changes
// the outcome.
func UnionSilhouette(g Graph, detonating []uint32) []worldmodel.Position {
	seen := make(map[worldmodel.Position]bool)
	var out []worldmodel.Position
	for _, id := range detonating {
		for _, p := range g.Silhouettes[id] {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// ScheduledBlast is a blast the engine already knows will happen at a
// future tick (a live bomb's projected silhouette), used by SafeTiles to
// avoid routing an agent into a cell that is safe right now but will not
// be by the time the agent could reach it.
type ScheduledBlast struct {
	Tick  uint64
	Cells []worldmodel.Position
}

// SafeTiles performs a BFS out to withinTicks 4-neighbor steps from
// start, returning every reachable, currently-passable tile that is not
// covered by any ScheduledBlast due to detonate at or before the tick the
// agent would arrive there.
func SafeTiles(grid *worldmodel.Grid, start worldmodel.Position, currentTick uint64, withinTicks int, scheduled []ScheduledBlast) []worldmodel.Position {
	type node struct {
		pos   worldmodel.Position
		depth int
	}

	visited := map[worldmodel.Position]bool{start: true}
	var safe []worldmodel.Position
	queue := []node{{pos: start, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth > 0 && !blastCoversAt(scheduled, cur.pos, currentTick+uint64(cur.depth)) {
			safe = append(safe, cur.pos)
		}
		if cur.depth >= withinTicks {
			continue
		}
		for _, n := range cur.pos.Neighbors4() {
			if visited[n] || !n.InBounds(grid.N) || !grid.Tile(n).Passable() {
				continue
			}
			arriveTick := currentTick + uint64(cur.depth+1)
			if blastCoversAt(scheduled, n, arriveTick) {
				continue
			}
			visited[n] = true
			queue = append(queue, node{pos: n, depth: cur.depth + 1})
		}
	}

	sort.Slice(safe, func(i, j int) bool {
		if safe[i].Y != safe[j].Y {
			return safe[i].Y < safe[j].Y
		}
		return safe[i].X < safe[j].X
	})
	return safe
}

func blastCoversAt(scheduled []ScheduledBlast, p worldmodel.Position, atTick uint64) bool {
	for _, s := range scheduled {
		if s.Tick > atTick {
			continue
		}
		if containsPos(s.Cells, p) {
			return true
		}
	}
	return false
}
