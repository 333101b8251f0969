package pathfinder

import (
	"testing"

	"bomberkernel/internal/worldmodel"
)

type zeroDanger struct{}

func (zeroDanger) At(worldmodel.Position) float32 { return 0 }

func TestFindShortestPathOnEmptyGrid(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	res, err := Find(grid, zeroDanger{}, worldmodel.Position{X: 0, Y: 0}, worldmodel.Position{X: 4, Y: 4}, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Path) != 9 { // Manhattan distance 8 + start
		t.Fatalf("expected path length 9, got %d: %v", len(res.Path), res.Path)
	}
	if res.Path[0] != (worldmodel.Position{X: 0, Y: 0}) || res.Path[len(res.Path)-1] != (worldmodel.Position{X: 4, Y: 4}) {
		t.Fatalf("path endpoints wrong: %v", res.Path)
	}
	for i := 1; i < len(res.Path); i++ {
		if res.Path[i].Manhattan(res.Path[i-1]) != 1 {
			t.Fatalf("path not contiguous 4-neighbor steps at %d: %v", i, res.Path)
		}
	}
}

func TestFindReturnsErrInvalidGoalOffGrid(t *testing.T) {
	grid := worldmodel.NewGrid(5)
	_, err := Find(grid, zeroDanger{}, worldmodel.Position{X: 0, Y: 0}, worldmodel.Position{X: 10, Y: 10}, DefaultConfig())
	if err != ErrInvalidGoal {
		t.Fatalf("expected ErrInvalidGoal, got %v", err)
	}
}

func TestFindReturnsErrNoPathWhenWalledOff(t *testing.T) {
	grid := worldmodel.NewGrid(3)
	grid.SetTile(worldmodel.Position{X: 1, Y: 0}, worldmodel.IndestructibleWall)
	grid.SetTile(worldmodel.Position{X: 0, Y: 1}, worldmodel.IndestructibleWall)
	grid.SetTile(worldmodel.Position{X: 1, Y: 1}, worldmodel.IndestructibleWall)
	grid.SetTile(worldmodel.Position{X: 2, Y: 1}, worldmodel.IndestructibleWall)
	grid.SetTile(worldmodel.Position{X: 1, Y: 2}, worldmodel.IndestructibleWall)

	_, err := Find(grid, zeroDanger{}, worldmodel.Position{X: 0, Y: 0}, worldmodel.Position{X: 2, Y: 2}, DefaultConfig())
	if err != ErrNoPath {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
}

type stubDanger map[worldmodel.Position]float32

func (s stubDanger) At(p worldmodel.Position) float32 { return s[p] }

func TestFindRoutesAroundDanger(t *testing.T) {
	grid := worldmodel.NewGrid(3)
	danger := stubDanger{{X: 1, Y: 0}: 100}

	cfg := DefaultConfig()
	cfg.Alpha = 1.0
	res, err := Find(grid, danger, worldmodel.Position{X: 0, Y: 0}, worldmodel.Position{X: 2, Y: 0}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range res.Path {
		if p == (worldmodel.Position{X: 1, Y: 0}) {
			t.Fatalf("expected path to avoid high-danger tile, got %v", res.Path)
		}
	}
}

func TestCacheInvalidatesOnBlockedTile(t *testing.T) {
	grid := worldmodel.NewGrid(3)
	c := NewCache(4, 10)
	key := CacheKey{Start: worldmodel.Position{X: 0, Y: 0}, Goal: worldmodel.Position{X: 2, Y: 0}}
	path := []worldmodel.Position{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}
	c.Put(key, path, 0)

	if _, ok := c.Get(key, 1, grid); !ok {
		t.Fatalf("expected cache hit before any tile changes")
	}

	grid.SetTile(worldmodel.Position{X: 1, Y: 0}, worldmodel.IndestructibleWall)
	if _, ok := c.Get(key, 1, grid); ok {
		t.Fatalf("expected cache miss after a path tile became blocked")
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	grid := worldmodel.NewGrid(3)
	c := NewCache(4, 5)
	key := CacheKey{Start: worldmodel.Position{X: 0, Y: 0}, Goal: worldmodel.Position{X: 2, Y: 0}}
	c.Put(key, []worldmodel.Position{{X: 0, Y: 0}}, 0)

	if _, ok := c.Get(key, 3, grid); !ok {
		t.Fatalf("expected cache hit within TTL")
	}
	if _, ok := c.Get(key, 10, grid); ok {
		t.Fatalf("expected cache miss after TTL elapsed")
	}
}
