package planner

import (
	"testing"

	"bomberkernel/internal/influence"
	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

func newSnapshot(n int, selfPos worldmodel.Position, setup func(*worldmodel.Grid)) *state.Snapshot {
	grid := worldmodel.NewGrid(n)
	if setup != nil {
		setup(grid)
	}
	return &state.Snapshot{
		Grid:   grid,
		Agents: []state.AgentView{{ID: "self", Pos: selfPos, Alive: true, MaxBombs: 1, BlastPower: 1}},
	}
}

func TestSelectPicksDestroyCrateWhenOnlyCandidateAvailable(t *testing.T) {
	snap := newSnapshot(7, worldmodel.Position{X: 0, Y: 0}, func(g *worldmodel.Grid) {
		g.SetTile(worldmodel.Position{X: 3, Y: 0}, worldmodel.SoftCrate)
	})
	maps := influence.NewMaps(7, influence.DefaultConfig())
	maps.RebuildFull(snap.Grid, nil, 0, 1)

	p := New(DefaultConfig())
	p.Select(snap.Grid, maps, snap, "self", nil, 0)

	active := p.Active()
	if active == nil {
		t.Fatalf("expected an active goal to be selected")
	}
	if active.Goal.Kind != GoalDestroyCrate {
		t.Fatalf("expected GoalDestroyCrate, got %v", active.Goal.Kind)
	}
	if len(active.Plan) == 0 {
		t.Fatalf("expected a non-empty plan")
	}
	last := active.Plan[len(active.Plan)-1]
	if last.Kind != ActionPlaceBomb {
		t.Fatalf("expected plan to end with PlaceBomb, got %v", last)
	}
}

func TestSelectFallsBackToIdleOnEmptyBoardWithNoEnemies(t *testing.T) {
	snap := newSnapshot(5, worldmodel.Position{X: 2, Y: 2}, nil)
	maps := influence.NewMaps(5, influence.DefaultConfig())
	maps.RebuildFull(snap.Grid, nil, 0, 1)

	p := New(DefaultConfig())
	p.Select(snap.Grid, maps, snap, "self", nil, 0)

	active := p.Active()
	if active == nil || active.Goal.Kind != GoalIdle {
		t.Fatalf("expected GoalIdle fallback, got %+v", active)
	}
}

func TestAdvanceProgressesThroughPlanToCompleted(t *testing.T) {
	p := New(DefaultConfig())
	p.active = &ActiveGoal{
		Goal:  Goal{Kind: GoalIdle},
		Plan:  []Action{{Kind: ActionMove, Dir: worldmodel.DirNorth}, {Kind: ActionWait}},
		State: Planned,
	}

	a1, ok := p.Advance()
	if !ok || a1.Kind != ActionMove {
		t.Fatalf("expected first action to be Move, got %+v ok=%v", a1, ok)
	}
	if p.Active().State != Executing {
		t.Fatalf("expected state Executing after partial advance, got %v", p.Active().State)
	}

	a2, ok := p.Advance()
	if !ok || a2.Kind != ActionWait {
		t.Fatalf("expected second action to be Wait, got %+v", a2)
	}
	if p.Active().State != Completed {
		t.Fatalf("expected state Completed after consuming the whole plan, got %v", p.Active().State)
	}
}

func TestAbortTriggersImmediateReselection(t *testing.T) {
	p := New(DefaultConfig())
	p.active = &ActiveGoal{Goal: Goal{Kind: GoalIdle}, Plan: []Action{{Kind: ActionWait}}, State: Executing}
	p.Abort()

	if p.Active().State != Aborted {
		t.Fatalf("expected Aborted state, got %v", p.Active().State)
	}
	if !p.ShouldReplan(worldmodel.NewGrid(5), influence.NewMaps(5, influence.DefaultConfig()), worldmodel.Position{}) {
		t.Fatalf("expected ShouldReplan true for an Aborted goal")
	}
}
