// Package planner implements the Goal Planner (spec.md C6): candidate
// goal generation, scoring, plan construction via the Pathfinder, and the
// replan state machine each bot kernel drives once per decision cycle.
//
// The tick-counted state machine (Selected→Planned→Executing→{Completed|
// Aborted}) is grounded on the teacher's CombatState timer bookkeeping
// (internal/game/combat.go — ComboCount/ComboWindow/LastAttackTick, all
// tick-based rather than wall-clock for deterministic replay), adapted
// from a combo-chain timer to a goal-lifecycle state.
package planner

import (
	"bomberkernel/internal/bombs"
	"bomberkernel/internal/influence"
	"bomberkernel/internal/pathfinder"
	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

// Kind tags the variant a Goal carries.
type Kind uint8

const (
	GoalDestroyCrate Kind = iota
	GoalCollectPowerUp
	GoalAttackAgent
	GoalFleeToSafe
	GoalIdle
)

// Goal is one candidate objective scored against the current snapshot.
type Goal struct {
	Kind     Kind
	Target   worldmodel.Position
	AgentID  string // populated for GoalAttackAgent
	Score    float64
}

// ActionKind tags a Plan step's variant.
type ActionKind uint8

const (
	ActionMove ActionKind = iota
	ActionPlaceBomb
	ActionWait
	ActionDetonateRemote
)

// Action is one atomic plan step.
type Action struct {
	Kind ActionKind
	Dir  worldmodel.Dir
}

// MaxPlanLength bounds a Plan's step count (spec.md §3: L_max, e.g. 32).
const MaxPlanLength = 32

// LifecycleState is where an ActiveGoal sits in its state machine.
type LifecycleState uint8

const (
	Selected LifecycleState = iota
	Planned
	Executing
	Completed
	Aborted
)

// ActiveGoal is the planner's single in-flight goal plus its plan and
// execution cursor.
type ActiveGoal struct {
	Goal  Goal
	Plan  []Action
	Step  int
	State LifecycleState
}

// Weights scales each scoring term; see Config.
type Weights struct {
	Reward, Distance, Danger, Progress float64
}

// DefaultWeights matches spec.md's named terms with a mild distance/danger
// preference over raw reward-chasing.
func DefaultWeights() Weights {
	return Weights{Reward: 1.0, Distance: 0.4, Danger: 0.8, Progress: 0.2}
}

// Config parameterizes scoring, replanning and the pathfinder/danger
// queries the planner issues.
type Config struct {
	Weights         Weights
	Hysteresis      float64 // ∈ [0,1]
	DangerThreshold float64
	Pathfinder      pathfinder.Config
	SafeHorizon     int // ticks, for FleeToSafe's safe_tiles query

	// CacheCapacity/CacheTTLTicks size the per-bot LRU path cache
	// (spec.md §4.4: "a bounded LRU path cache keyed by (start, goal,
	// hash of danger bucket) caches paths with a TTL in ticks").
	CacheCapacity   int
	CacheTTLTicks   uint64
	DangerBucketing int // number of buckets DangerBucket quantizes into
}

// DefaultConfig returns reasonable values for a standard board.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		Hysteresis:      0.15,
		DangerThreshold: 5.0,
		Pathfinder:      pathfinder.DefaultConfig(),
		SafeHorizon:     6,
		CacheCapacity:   64,
		CacheTTLTicks:   30,
		DangerBucketing: 8,
	}
}

// Planner holds one bot's active goal across decision cycles. It is not
// safe for concurrent use — each bot kernel owns exactly one.
type Planner struct {
	cfg    Config
	active *ActiveGoal
	cache  *pathfinder.Cache
}

// New returns a Planner with no active goal, backed by its own per-bot
// path cache (spec.md §5: "the path cache is per-bot").
func New(cfg Config) *Planner {
	return &Planner{cfg: cfg, cache: pathfinder.NewCache(cfg.CacheCapacity, cfg.CacheTTLTicks)}
}

// Active returns the current ActiveGoal, or nil if none is selected yet.
func (p *Planner) Active() *ActiveGoal { return p.active }

const rewardCrate = 5.0
const rewardPowerUp = 10.0
const rewardAttack = 8.0

// generateCandidates builds every candidate goal the generators below
// propose. A candidate with no reachable target is simply omitted — the
// caller never sees an unreachable goal win the score comparison.
func generateCandidates(snap *state.Snapshot, selfID string) []Goal {
	self, ok := snap.AgentByID(selfID)
	if !ok {
		return nil
	}

	var goals []Goal
	if p, ok := nearestTile(snap.Grid, self.Pos, worldmodel.TileSoftCrate); ok {
		goals = append(goals, Goal{Kind: GoalDestroyCrate, Target: p})
	}
	if p, ok := nearestTile(snap.Grid, self.Pos, worldmodel.TilePowerUp); ok {
		goals = append(goals, Goal{Kind: GoalCollectPowerUp, Target: p})
	}
	if target, ok := weakestEnemy(snap, selfID); ok {
		goals = append(goals, Goal{Kind: GoalAttackAgent, Target: target.Pos, AgentID: target.ID})
	}
	goals = append(goals, Goal{Kind: GoalIdle, Target: self.Pos})
	return goals
}

func nearestTile(grid *worldmodel.Grid, from worldmodel.Position, kind worldmodel.TileKind) (worldmodel.Position, bool) {
	best := worldmodel.Position{}
	bestDist := -1
	for y := 0; y < grid.N; y++ {
		for x := 0; x < grid.N; x++ {
			p := worldmodel.Position{X: x, Y: y}
			if grid.Tile(p).Kind != kind {
				continue
			}
			d := from.Manhattan(p)
			if bestDist == -1 || d < bestDist || (d == bestDist && (p.Y < best.Y || (p.Y == best.Y && p.X < best.X))) {
				bestDist = d
				best = p
			}
		}
	}
	return best, bestDist != -1
}

func weakestEnemy(snap *state.Snapshot, selfID string) (state.AgentView, bool) {
	var best state.AgentView
	found := false
	for _, a := range snap.Agents {
		if a.ID == selfID || !a.Alive {
			continue
		}
		if !found || a.BlastPower < best.BlastPower || (a.BlastPower == best.BlastPower && a.ID < best.ID) {
			best = a
			found = true
		}
	}
	return best, found
}

// score applies spec.md §4.6's formula: reward weighted up, path cost and
// path danger weighted down, progress (fraction of an already-executing
// plan completed) weighted up. Select scores every candidate with
// progress 0, so that term does not affect which goal it picks.
func score(cfg Config, kind Kind, pathCost float64, pathDanger float64, progress float64) float64 {
	var reward float64
	switch kind {
	case GoalDestroyCrate:
		reward = rewardCrate
	case GoalCollectPowerUp:
		reward = rewardPowerUp
	case GoalAttackAgent:
		reward = rewardAttack
	}
	return cfg.Weights.Reward*reward - cfg.Weights.Distance*pathCost - cfg.Weights.Danger*pathDanger + cfg.Weights.Progress*progress
}

// pathDanger averages the danger layer's value over a path's tiles.
func pathDanger(maps *influence.Maps, path []worldmodel.Position) float64 {
	if len(path) == 0 {
		return 0
	}
	var sum float64
	for _, p := range path {
		sum += float64(maps.Danger.At(p))
	}
	return sum / float64(len(path))
}

// buildPlan runs the pathfinder toward goal.Target and appends the
// goal-kind-specific terminal action (PlaceBomb for crate/attack goals
// once adjacent or on target; nothing extra for flee/idle). A crate tile
// is impassable, so a crate goal routes to the crate's passable neighbor
// nearest to self (by Manhattan distance) instead.
func buildPlan(grid *worldmodel.Grid, maps *influence.Maps, cache *pathfinder.Cache, self worldmodel.Position, goal Goal, currentTick uint64, cfg Config) ([]Action, float64, bool) {
	if goal.Kind == GoalIdle {
		return []Action{{Kind: ActionWait}}, 0, true
	}

	target := goal.Target
	if goal.Kind == GoalDestroyCrate {
		best := -1
		for _, n := range goal.Target.Neighbors4() {
			if !grid.Tile(n).Passable() {
				continue
			}
			if d := self.Manhattan(n); best == -1 || d < best {
				best, target = d, n
			}
		}
		if best == -1 {
			return nil, 0, false
		}
	}

	path, cost, ok := findPath(grid, maps.Danger, cache, self, target, currentTick, cfg)
	if !ok {
		return nil, 0, false
	}

	actions := make([]Action, 0, len(path))
	for i := 1; i < len(path) && len(actions) < MaxPlanLength-1; i++ {
		actions = append(actions, Action{Kind: ActionMove, Dir: dirBetween(path[i-1], path[i])})
	}
	switch goal.Kind {
	case GoalDestroyCrate, GoalAttackAgent:
		actions = append(actions, Action{Kind: ActionPlaceBomb})
	}
	return actions, cost, true
}

// findPath consults the per-bot path cache before paying for a fresh A*
// search, keyed by (start, goal, coarse danger bucket at start) per
// spec.md §4.4. A cache hit's cost is approximated from path length
// (the cache does not retain the exact A* cost) — acceptable since cost
// only feeds the planner's soft distance-scoring term, never state
// hashing or replay determinism.
func findPath(grid *worldmodel.Grid, danger pathfinder.DangerSource, cache *pathfinder.Cache, start, goal worldmodel.Position, currentTick uint64, cfg Config) ([]worldmodel.Position, float64, bool) {
	key := pathfinder.CacheKey{
		Start:        start,
		Goal:         goal,
		DangerBucket: pathfinder.DangerBucket(danger.At(start), cfg.DangerBucketing),
	}
	if path, ok := cache.Get(key, currentTick, grid); ok {
		return path, float64(len(path) - 1), true
	}

	res, err := pathfinder.Find(grid, danger, start, goal, cfg.Pathfinder)
	if err != nil && !res.BestEffort {
		return nil, 0, false
	}
	cache.Put(key, res.Path, currentTick)
	return res.Path, res.Cost, true
}

func dirBetween(a, b worldmodel.Position) worldmodel.Dir {
	switch {
	case b.Y < a.Y:
		return worldmodel.DirNorth
	case b.Y > a.Y:
		return worldmodel.DirSouth
	case b.X > a.X:
		return worldmodel.DirEast
	default:
		return worldmodel.DirWest
	}
}

// Select runs goal generation + scoring, builds a plan for the winner,
// and installs it as the active goal in state Planned. Candidates whose
// plan cannot be built are skipped. The Idle candidate always yields a
// plan, so when nothing else scores higher Idle wins; the FleeToSafe
// fallback in fleeOrIdle runs only when no candidate yields a plan at
// all, which the Idle candidate rules out.
func (p *Planner) Select(grid *worldmodel.Grid, maps *influence.Maps, snap *state.Snapshot, selfID string, scheduled []bombs.ScheduledBlast, currentTick uint64) {
	self, ok := snap.AgentByID(selfID)
	if !ok {
		return
	}

	var best *Goal
	var bestPlan []Action
	var bestScore float64

	for _, cand := range generateCandidates(snap, selfID) {
		actions, cost, ok := buildPlan(grid, maps, p.cache, self.Pos, cand, currentTick, p.cfg)
		if !ok {
			continue
		}
		s := score(p.cfg, cand.Kind, cost, pathDanger(maps, pathPositions(grid, self.Pos, actions)), 0)
		cand.Score = s
		if best == nil || s > bestScore {
			c := cand
			best = &c
			bestPlan = actions
			bestScore = s
		}
	}

	if best == nil {
		best, bestPlan = p.fleeOrIdle(grid, self.Pos, scheduled, currentTick)
	}

	p.active = &ActiveGoal{Goal: *best, Plan: bestPlan, State: Planned}
}

func (p *Planner) fleeOrIdle(grid *worldmodel.Grid, self worldmodel.Position, scheduled []bombs.ScheduledBlast, currentTick uint64) (*Goal, []Action) {
	safe := bombs.SafeTiles(grid, self, currentTick, p.cfg.SafeHorizon, scheduled)
	if len(safe) > 0 {
		target := safe[0]
		g := Goal{Kind: GoalFleeToSafe, Target: target}
		path, _, ok := findPath(grid, noDanger{}, p.cache, self, target, currentTick, p.cfg)
		if ok {
			actions := make([]Action, 0, len(path))
			for i := 1; i < len(path); i++ {
				actions = append(actions, Action{Kind: ActionMove, Dir: dirBetween(path[i-1], path[i])})
			}
			return &g, actions
		}
	}
	g := Goal{Kind: GoalIdle, Target: self}
	return &g, []Action{{Kind: ActionWait}}
}

type noDanger struct{}

func (noDanger) At(worldmodel.Position) float32 { return 0 }

// pathPositions reconstructs the tile sequence a plan's Move actions
// traverse, starting at self — used only to feed pathDanger a concrete
// tile list without threading the pathfinder.Result through scoring.
func pathPositions(grid *worldmodel.Grid, self worldmodel.Position, actions []Action) []worldmodel.Position {
	out := []worldmodel.Position{self}
	cur := self
	for _, a := range actions {
		if a.Kind != ActionMove {
			continue
		}
		cur = cur.Step(a.Dir)
		out = append(out, cur)
	}
	return out
}

// ShouldReplan reports whether the active goal needs re-selection: there
// is none, it is Completed or Aborted, its plan is exhausted, a remaining
// Move step walks into a blocked tile, or the danger at the goal's target
// tile has reached DangerThreshold. self is the agent's current position,
// the starting point for replaying the plan's remaining Move steps. It
// does not compare the active goal with other candidates (Hysteresis is
// not read here), and it samples danger only at the target tile, not
// along the remaining path.
func (p *Planner) ShouldReplan(grid *worldmodel.Grid, maps *influence.Maps, self worldmodel.Position) bool {
	a := p.active
	if a == nil {
		return true
	}
	if a.State == Completed || a.State == Aborted {
		return true
	}
	if a.Step >= len(a.Plan) {
		return true // plan exhausted
	}
	if planBlocked(grid, self, a.Goal, a.Plan[a.Step:]) {
		return true // a delta invalidated a tile the remaining plan depends on
	}
	if float64(maps.Danger.At(a.Goal.Target)) >= p.cfg.DangerThreshold {
		return true
	}
	return false
}

// planBlocked replays the remaining Move steps of a plan, starting at
// self, against the current grid and reports whether any step would walk
// into a now impassable tile. A GoalDestroyCrate's own target tile is
// exempt from the final check: a soft crate is intentionally impassable,
// so the last step toward it (PlaceBomb, never a Move onto the crate
// itself) must not be flagged as blocked.
func planBlocked(grid *worldmodel.Grid, self worldmodel.Position, goal Goal, remaining []Action) bool {
	cur := self
	for _, act := range remaining {
		if act.Kind != ActionMove {
			continue
		}
		cur = cur.Step(act.Dir)
		if !cur.InBounds(grid.N) || !grid.Tile(cur).Passable() {
			return true
		}
	}
	if goal.Kind == GoalDestroyCrate {
		return false
	}
	return !grid.Tile(goal.Target).Passable()
}

// Advance returns the next action in the active plan and advances the
// cursor, transitioning Planned→Executing→Completed as the plan is
// consumed. Returns (Action{}, false) if there is no active plan.
func (p *Planner) Advance() (Action, bool) {
	a := p.active
	if a == nil || a.Step >= len(a.Plan) {
		if a != nil {
			a.State = Completed
		}
		return Action{}, false
	}
	act := a.Plan[a.Step]
	a.Step++
	a.State = Executing
	if a.Step >= len(a.Plan) {
		a.State = Completed
	}
	return act, true
}

// Abort marks the active goal Aborted, forcing immediate re-selection on
// the next decision cycle (spec.md §4.6: "Aborted triggers immediate
// re-selection in the same decision cycle").
func (p *Planner) Abort() {
	if p.active != nil {
		p.active.State = Aborted
	}
}
