package engine

import (
	"testing"

	"bomberkernel/internal/bus"
	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

func newTestEngine(n int) (*Engine, *state.GameState, *state.Store) {
	st := state.New(n, 42)
	store := state.NewStore()
	b := bus.New(bus.DefaultConfig())
	e := New(st, store, b, DefaultConfig())
	store.Publish(st.Snapshot())
	return e, st, store
}

func TestTickAppliesValidMove(t *testing.T) {
	e, st, store := newTestEngine(5)
	st.AddAgent(&state.AgentState{ID: "a1", Pos: worldmodel.Position{X: 2, Y: 2}, MaxBombs: 1, BlastPower: 1, Alive: true})

	e.Submit(Command{AgentID: "a1", Kind: CmdMove, Dir: worldmodel.DirNorth})
	e.Tick()

	if got := st.Agents["a1"].Pos; got != (worldmodel.Position{X: 2, Y: 1}) {
		t.Fatalf("expected agent to move north, got %v", got)
	}
	if st.Tick != 1 {
		t.Fatalf("expected tick counter to advance to 1, got %d", st.Tick)
	}
	if handle, ok := store.AcquireLatest(); !ok || handle.Snapshot().Tick != 1 {
		t.Fatalf("expected a published snapshot at tick 1")
	}
}

func TestTickRejectsMoveIntoWall(t *testing.T) {
	e, st, _ := newTestEngine(5)
	st.AddAgent(&state.AgentState{ID: "a1", Pos: worldmodel.Position{X: 2, Y: 2}, MaxBombs: 1, Alive: true})
	st.Grid.SetTile(worldmodel.Position{X: 2, Y: 1}, worldmodel.IndestructibleWall)

	e.Submit(Command{AgentID: "a1", Kind: CmdMove, Dir: worldmodel.DirNorth})
	e.Tick()

	if got := st.Agents["a1"].Pos; got != (worldmodel.Position{X: 2, Y: 2}) {
		t.Fatalf("expected move into wall to be dropped, agent at %v", got)
	}
}

func TestTickPlacesBombAndDecrementsCount(t *testing.T) {
	e, st, _ := newTestEngine(5)
	st.AddAgent(&state.AgentState{ID: "a1", Pos: worldmodel.Position{X: 2, Y: 2}, MaxBombs: 1, BombsRemaining: 1, BlastPower: 2, Alive: true})

	e.Submit(Command{AgentID: "a1", Kind: CmdPlaceBomb})
	e.Tick()

	if len(st.Bombs) != 1 {
		t.Fatalf("expected exactly one bomb placed, got %d", len(st.Bombs))
	}
	if st.Agents["a1"].BombsRemaining != 0 {
		t.Fatalf("expected bombs remaining to drop to 0, got %d", st.Agents["a1"].BombsRemaining)
	}

	e.Submit(Command{AgentID: "a1", Kind: CmdPlaceBomb})
	e.Tick()
	if len(st.Bombs) != 1 {
		t.Fatalf("expected second place command to be rejected while no bombs remain, got %d bombs", len(st.Bombs))
	}
}

func TestBombDetonatesAfterFuseAndReturnsCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BombDefaultFuse = 1
	st := state.New(5, 7)
	store := state.NewStore()
	b := bus.New(bus.DefaultConfig())
	e := New(st, store, b, cfg)

	st.AddAgent(&state.AgentState{ID: "a1", Pos: worldmodel.Position{X: 2, Y: 2}, MaxBombs: 1, BombsRemaining: 1, BlastPower: 2, Alive: true})

	e.Submit(Command{AgentID: "a1", Kind: CmdPlaceBomb})
	e.Tick() // places the bomb, fuse starts at 1

	if len(st.Bombs) != 1 {
		t.Fatalf("expected bomb placed before fuse countdown, got %d bombs", len(st.Bombs))
	}

	e.Tick() // fuse decrements to 0 and detonates

	if len(st.Bombs) != 0 {
		t.Fatalf("expected bomb to detonate and be removed, got %d bombs remaining", len(st.Bombs))
	}
	if st.Agents["a1"].BombsRemaining != 1 {
		t.Fatalf("expected bomb count returned to owner after detonation, got %d", st.Agents["a1"].BombsRemaining)
	}
}

func TestBombBlastKillsAgentWithinRadius(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BombDefaultFuse = 0
	st := state.New(7, 3)
	store := state.NewStore()
	b := bus.New(bus.DefaultConfig())
	e := New(st, store, b, cfg)

	st.AddAgent(&state.AgentState{ID: "bomber", Pos: worldmodel.Position{X: 1, Y: 1}, MaxBombs: 2, BombsRemaining: 2, BlastPower: 3, Alive: true})
	st.AddAgent(&state.AgentState{ID: "victim", Pos: worldmodel.Position{X: 4, Y: 1}, MaxBombs: 1, BombsRemaining: 1, BlastPower: 1, Alive: true})

	e.Submit(Command{AgentID: "bomber", Kind: CmdPlaceBomb})
	e.Tick() // bomb placed with fuse 0

	e.Tick() // fuse advances to <=0 next tick, detonates, reaches victim at distance 3

	if st.Agents["victim"].Alive {
		t.Fatalf("expected victim within blast radius to die")
	}
}

func TestSlowTickWatchdogDoesNotAbortTick(t *testing.T) {
	e, st, _ := newTestEngine(5)
	e.cfg.WatchdogMultiplier = 1
	e.cfg.TickDuration = 0

	st.AddAgent(&state.AgentState{ID: "a1", Pos: worldmodel.Position{X: 0, Y: 0}, MaxBombs: 1, Alive: true})
	e.Tick()

	if st.Tick != 1 {
		t.Fatalf("expected tick to still complete despite exceeding its budget, got tick=%d", st.Tick)
	}
}
