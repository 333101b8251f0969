package influence

import (
	"math"
	"testing"

	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

func TestRebuildFullDangerWithinManhattanRadius(t *testing.T) {
	grid := worldmodel.NewGrid(11)
	center := worldmodel.Position{X: 5, Y: 5}
	bombs := []state.BombView{{ID: 1, Pos: center, Power: 3, FuseTicks: 0}}

	m := NewMaps(11, DefaultConfig())
	m.RebuildFull(grid, bombs, 0, 1)

	for y := 0; y < 11; y++ {
		for x := 0; x < 11; x++ {
			p := worldmodel.Position{X: x, Y: y}
			d := center.Manhattan(p)
			v := m.Danger.At(p)
			if d <= 3 && v <= 0 {
				t.Fatalf("expected danger > 0 at %v (distance %d), got %f", p, d, v)
			}
			if d > 3 && v != 0 {
				t.Fatalf("expected danger == 0 at %v (distance %d), got %f", p, d, v)
			}
		}
	}
}

func TestIncrementalAndFullRebuildAgree(t *testing.T) {
	grid := worldmodel.NewGrid(9)
	bombs := []state.BombView{{ID: 1, Pos: worldmodel.Position{X: 4, Y: 4}, Power: 2, FuseTicks: 1}}

	full := NewMaps(9, DefaultConfig())
	full.RebuildFull(grid, bombs, 0, 1)

	incremental := NewMaps(9, DefaultConfig())
	incremental.ApplySync(grid, bombs, nil, nil, 0, 1)

	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			p := worldmodel.Position{X: x, Y: y}
			if math.Abs(float64(full.Danger.At(p)-incremental.Danger.At(p))) > 1e-4 {
				t.Fatalf("incremental/full disagree at %v: full=%f incremental=%f", p, full.Danger.At(p), incremental.Danger.At(p))
			}
		}
	}
}

func TestWallBlocksDangerPropagation(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	grid.SetTile(worldmodel.Position{X: 2, Y: 1}, worldmodel.IndestructibleWall)
	bombs := []state.BombView{{ID: 1, Pos: worldmodel.Position{X: 2, Y: 0}, Power: 3}}

	m := NewMaps(5, DefaultConfig())
	m.RebuildFull(grid, bombs, 0, 1)

	if v := m.Danger.At(worldmodel.Position{X: 2, Y: 2}); v != 0 {
		t.Fatalf("expected wall to block propagation, got danger %f beyond it", v)
	}
}

func TestProjectDangerUsesFuseWindow(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	bombs := []state.BombView{{ID: 1, Pos: worldmodel.Position{X: 2, Y: 2}, Power: 2, FuseTicks: 3}}

	m := NewMaps(5, DefaultConfig())
	m.RebuildFull(grid, bombs, 10, 1)

	if m.ProjectDanger(worldmodel.Position{X: 2, Y: 2}, 10) {
		t.Fatalf("expected no danger yet at current tick (fuse still counting down)")
	}
	if !m.ProjectDanger(worldmodel.Position{X: 2, Y: 2}, 13) {
		t.Fatalf("expected danger projected at detonation tick (10+fuse=13)")
	}
}
