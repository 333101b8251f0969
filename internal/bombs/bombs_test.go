package bombs

import (
	"testing"

	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

func TestSilhouetteStopsAtIndestructibleWall(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	grid.SetTile(worldmodel.Position{X: 2, Y: 1}, worldmodel.IndestructibleWall)

	b := state.BombView{ID: 1, Pos: worldmodel.Position{X: 1, Y: 1}, Power: 3}
	sil := Silhouette(grid, b)

	for _, p := range sil {
		if p == (worldmodel.Position{X: 2, Y: 1}) || p == (worldmodel.Position{X: 3, Y: 1}) {
			t.Fatalf("blast should not pass an indestructible wall, got %v in %v", p, sil)
		}
	}
}

func TestSilhouetteIncludesAndStopsAtSoftCrate(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	grid.SetTile(worldmodel.Position{X: 2, Y: 2}, worldmodel.SoftCrate)

	b := state.BombView{ID: 1, Pos: worldmodel.Position{X: 2, Y: 1}, Power: 3}
	sil := Silhouette(grid, b)

	foundCrate, foundBeyond := false, false
	for _, p := range sil {
		if p == (worldmodel.Position{X: 2, Y: 2}) {
			foundCrate = true
		}
		if p == (worldmodel.Position{X: 2, Y: 3}) {
			foundBeyond = true
		}
	}
	if !foundCrate {
		t.Fatalf("expected crate cell included in silhouette: %v", sil)
	}
	if foundBeyond {
		t.Fatalf("expected blast to stop at crate, got cell beyond it: %v", sil)
	}
}

func TestPiercingPassesThroughCrate(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	grid.SetTile(worldmodel.Position{X: 2, Y: 2}, worldmodel.SoftCrate)

	b := state.BombView{ID: 1, Pos: worldmodel.Position{X: 2, Y: 1}, Power: 3, Flags: state.BombFlags{Piercing: true}}
	sil := Silhouette(grid, b)

	found := false
	for _, p := range sil {
		if p == (worldmodel.Position{X: 2, Y: 3}) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected piercing blast to reach beyond the crate: %v", sil)
	}
}

func TestBuildGraphChainsOverlappingBombs(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	bombs := []state.BombView{
		{ID: 1, Pos: worldmodel.Position{X: 1, Y: 1}, Power: 3, FuseTicks: 2},
		{ID: 2, Pos: worldmodel.Position{X: 1, Y: 3}, Power: 3, FuseTicks: 5},
	}
	g := BuildGraph(grid, bombs)

	foundEdge := false
	for _, e := range g.Edges {
		if e.From == 1 && e.To == 2 {
			foundEdge = true
		}
	}
	if !foundEdge {
		t.Fatalf("expected bomb 1's blast to reach bomb 2, edges: %v", g.Edges)
	}
}

func TestResolveOrdersByFuseThenID(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	bombs := []state.BombView{
		{ID: 2, Pos: worldmodel.Position{X: 1, Y: 3}, Power: 3, FuseTicks: 5},
		{ID: 1, Pos: worldmodel.Position{X: 1, Y: 1}, Power: 3, FuseTicks: 2},
	}
	g := BuildGraph(grid, bombs)

	order := Resolve(g, bombs, []uint32{1})
	if len(order) != 2 {
		t.Fatalf("expected chain to include both bombs, got %v", order)
	}
	if order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected order [1,2] (fuse asc, id asc), got %v", order)
	}
}

func TestSafeTilesExcludesScheduledBlast(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	start := worldmodel.Position{X: 0, Y: 0}
	scheduled := []ScheduledBlast{
		{Tick: 1, Cells: []worldmodel.Position{{X: 1, Y: 0}}},
	}

	safe := SafeTiles(grid, start, 0, 2, scheduled)
	for _, p := range safe {
		if p == (worldmodel.Position{X: 1, Y: 0}) {
			t.Fatalf("expected (1,0) excluded as scheduled-unsafe, got %v", safe)
		}
	}

	foundAlt := false
	for _, p := range safe {
		if p == (worldmodel.Position{X: 0, Y: 1}) {
			foundAlt = true
		}
	}
	if !foundAlt {
		t.Fatalf("expected an alternate safe tile reachable, got %v", safe)
	}
}

func TestSafeTilesRespectsWalls(t *testing.T) {
	grid := worldmodel.NewGrid(3)
	grid.SetTile(worldmodel.Position{X: 1, Y: 0}, worldmodel.IndestructibleWall)
	grid.SetTile(worldmodel.Position{X: 0, Y: 1}, worldmodel.IndestructibleWall)

	safe := SafeTiles(grid, worldmodel.Position{X: 0, Y: 0}, 0, 3, nil)
	for _, p := range safe {
		if p == (worldmodel.Position{X: 1, Y: 0}) || p == (worldmodel.Position{X: 0, Y: 1}) {
			t.Fatalf("wall tile should never be reported safe/reachable: %v in %v", p, safe)
		}
	}
}
