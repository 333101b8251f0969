// Package engine implements the Engine Tick Loop (spec.md C7): the fixed-
// step authority that drains bot commands, advances bomb fuses, resolves
// chain-reaction explosions, applies movement, and publishes a new
// Snapshot and Delta every tick.
//
// The ticker-driven goroutine loop, tick counter, and per-tick RNG
// advance are grounded on the teacher's Engine.Start/tick
// (internal/game/engine.go): a time.Ticker firing into a single
// goroutine that runs Tick. The engine's mutex guards only the pending
// command queue and the running flag; Tick holds it just long enough to
// take the queued commands.
package engine

import (
	"log"
	"sort"
	"sync"
	"time"

	"bomberkernel/internal/bombs"
	"bomberkernel/internal/bus"
	"bomberkernel/internal/metrics"
	"bomberkernel/internal/spatial"
	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

// CommandKind tags a Command's action variant (spec.md §6).
type CommandKind uint8

const (
	CmdMove CommandKind = iota
	CmdPlaceBomb
	CmdDetonateRemote
	CmdWait
)

// Command is one bot's intended action for the tick it arrives in.
type Command struct {
	AgentID string
	Kind    CommandKind
	Dir     worldmodel.Dir
	arrival uint64
}

// Config bounds the engine's timing and default bomb parameters (spec.md
// §6 Configuration).
type Config struct {
	TickDuration        time.Duration
	WatchdogMultiplier  int // a tick exceeding TickDuration*this logs a slow-tick event
	BombDefaultPower    int
	BombDefaultFuse     int
	PowerUpSpawnPercent int // chance (0-100) a destroyed crate drops a power-up
}

// DefaultConfig returns the spec's named defaults: 16ms/60Hz tick, power 2,
// fuse 60 ticks (~1s).
func DefaultConfig() Config {
	return Config{TickDuration: 16 * time.Millisecond, WatchdogMultiplier: 2, BombDefaultPower: 2, BombDefaultFuse: 60, PowerUpSpawnPercent: 25}
}

// TickObserver is notified once a tick's Delta and hash are finalized —
// the hook the replay writer and metrics subscribe through. rngSeed is
// the value GameState.AdvanceRNGSeed drew at the start of the tick
// (spec.md §6's rng_hash): recording it alongside stateHash lets replay
// verification localize an RNG-stream divergence without needing the
// full state hash.
type TickObserver func(tick uint64, rngSeed uint64, stateHash uint64, cmds []Command, delta state.Delta)

// Engine owns the live GameState exclusively and is the sole writer to
// its Store of published Snapshots.
type Engine struct {
	cfg   Config
	st    *state.GameState
	store *state.Store
	bus   *bus.Bus

	mu      sync.Mutex
	pending []Command
	arrival uint64
	nextBombID uint32

	ticker  *time.Ticker
	stopCh  chan struct{}
	running bool

	observer TickObserver
}

// New constructs an Engine around an already-initialized GameState. The
// caller publishes the very first snapshot itself (New does not tick).
func New(st *state.GameState, store *state.Store, b *bus.Bus, cfg Config) *Engine {
	return &Engine{cfg: cfg, st: st, store: store, bus: b, stopCh: make(chan struct{})}
}

// SetObserver installs (or clears, with nil) the tick observer.
func (e *Engine) SetObserver(obs TickObserver) { e.observer = obs }

// Submit enqueues a bot's command for application at the start of the
// next tick. Safe for concurrent use by many bot tasks (spec.md C9); the
// engine is the single consumer, draining and clearing pending at the
// top of each Tick.
func (e *Engine) Submit(cmd Command) {
	e.mu.Lock()
	cmd.arrival = e.arrival
	e.arrival++
	e.pending = append(e.pending, cmd)
	e.mu.Unlock()
}

// Run starts the fixed-step goroutine loop; it returns immediately and
// stops when ctx-equivalent Stop is called.
func (e *Engine) Run() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ticker = time.NewTicker(e.cfg.TickDuration)
	e.mu.Unlock()

	go func() {
		for {
			select {
			case <-e.ticker.C:
				e.Tick()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop halts the tick loop. Safe to call once; a second call is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	e.ticker.Stop()
	close(e.stopCh)
}

// Tick executes exactly one fixed step: drain+validate commands, advance
// fuses, resolve chain explosions, apply movement/pickups, emit the
// Delta/events, publish the next Snapshot. Exported so tests and replay
// verification can step the engine without the wall-clock ticker.
func (e *Engine) Tick() {
	start := time.Now()
	e.mu.Lock()
	cmds := e.pending
	e.pending = nil
	e.mu.Unlock()

	sortCommands(cmds)

	// Advance the RNG once per tick, before any gameplay code draws from
	// it, so every random decision this tick (power-up rolls, tie-break
	// shuffles) is reproducible from the single seed recorded below —
	// the teacher's same rngSeed = rng.Int63(); rng.Seed(rngSeed) rotation.
	rngSeed := e.st.AdvanceRNGSeed()

	var changes []state.Change

	changes = append(changes, e.applyCommands(cmds)...)

	fused := e.advanceFuses()
	roots := e.detonationRoots(cmds, fused)
	changes = append(changes, e.resolveExplosions(roots)...)

	moves := e.applyMovement(cmds)
	changes = append(changes, moves...)
	changes = append(changes, e.applyPickups(moves)...)

	tick := e.st.Tick + 1
	changes = append(changes, state.TickCompleted{Tick: tick})
	delta := state.Delta{Changes: changes}

	if err := e.st.ApplyDeltaBatch(delta); err != nil {
		log.Printf("engine: fatal error applying tick %d: %v", tick, err)
		return
	}

	hash := e.st.HashState()
	e.publish(delta)

	if e.observer != nil {
		e.observer(tick, uint64(rngSeed), hash, cmds, delta)
	}

	elapsed := time.Since(start)
	metrics.TickDuration.Observe(elapsed.Seconds())
	if e.cfg.WatchdogMultiplier > 0 && elapsed > e.cfg.TickDuration*time.Duration(e.cfg.WatchdogMultiplier) {
		log.Printf("engine: slow tick %d took %s (budget %s)", tick, elapsed, e.cfg.TickDuration)
	}
}

func sortCommands(cmds []Command) {
	sort.SliceStable(cmds, func(i, j int) bool {
		if cmds[i].AgentID != cmds[j].AgentID {
			return cmds[i].AgentID < cmds[j].AgentID
		}
		return cmds[i].arrival < cmds[j].arrival
	})
}

// applyCommands validates each command against the live state and
// returns the changes a PlaceBomb produces immediately (BombPlaced).
// Move is resolved later in applyMovement (after explosions, per
// spec.md §5's "bomb detonations are resolved before movement"); an
// invalid command (off-grid target, no bombs remaining, tile already
// occupied by a bomb) is simply dropped, never aborting the tick.
func (e *Engine) applyCommands(cmds []Command) []state.Change {
	var changes []state.Change
	for _, cmd := range cmds {
		if cmd.Kind != CmdPlaceBomb {
			continue
		}
		a, ok := e.st.Agents[cmd.AgentID]
		if !ok || !a.Alive {
			continue
		}
		if a.BombsRemaining <= 0 || e.st.Grid.HasBomb(a.Pos) {
			continue
		}
		id := e.nextBombID
		e.nextBombID++
		power := a.BlastPower
		if power == 0 {
			power = e.cfg.BombDefaultPower
		}
		changes = append(changes, state.BombPlaced{
			ID: id, Owner: a.ID, Pos: a.Pos,
			Power: power, FuseTicks: e.cfg.BombDefaultFuse,
			Flags: state.BombFlags{RemoteDetonable: a.Has(state.AbilityRemote)},
		})
	}
	return changes
}

// advanceFuses decrements every live bomb's fuse by one tick (applied
// directly to the in-memory Bomb rather than through a Change — fuse
// countdown is not part of the Delta vocabulary spec.md §3 defines,
// since it happens to every bomb every tick and would dominate the
// stream) and returns the ids that reached zero this tick.
func (e *Engine) advanceFuses() []uint32 {
	var zero []uint32
	for _, id := range e.st.SortedBombIDs() {
		b := e.st.Bombs[id]
		if b.FuseTicks > 0 {
			b.FuseTicks--
		}
		if b.FuseTicks <= 0 {
			zero = append(zero, id)
		}
	}
	return zero
}

// detonationRoots combines bombs whose fuse reached zero with any
// DetonateRemote commands targeting the sender's own remote-capable
// bombs.
func (e *Engine) detonationRoots(cmds []Command, fused []uint32) []uint32 {
	roots := append([]uint32(nil), fused...)
	for _, cmd := range cmds {
		if cmd.Kind != CmdDetonateRemote {
			continue
		}
		for _, id := range e.st.SortedBombIDs() {
			b := e.st.Bombs[id]
			if b.Owner == cmd.AgentID && b.Flags.RemoteDetonable {
				roots = append(roots, id)
			}
		}
	}
	return dedupeU32(roots)
}

func dedupeU32(ids []uint32) []uint32 {
	seen := make(map[uint32]bool, len(ids))
	var out []uint32
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// resolveExplosions runs the Bomb Analyzer over the live bomb set,
// resolves the chain closure from roots, and converts the result into
// Changes: BombExploded per detonating bomb, TileChanged for each
// destroyed crate (with a chance of a power-up spawn), AgentDamaged/
// AgentDied for every agent caught in the accumulated silhouette.
// Accumulating all silhouettes before applying any damage is what makes
// detonation order within the tick not affect the outcome (spec.md
// §4.5).
func (e *Engine) resolveExplosions(roots []uint32) []state.Change {
	if len(roots) == 0 {
		return nil
	}

	bombViews := make([]state.BombView, 0, len(e.st.Bombs))
	for _, id := range e.st.SortedBombIDs() {
		b := e.st.Bombs[id]
		bombViews = append(bombViews, state.BombView{
			ID: b.ID, Owner: b.Owner, Pos: b.Pos, FuseTicks: b.FuseTicks, Power: b.Power, Flags: b.Flags,
		})
	}

	graph := bombs.BuildGraph(e.st.Grid, bombViews)
	detonating := bombs.Resolve(graph, bombViews, roots)
	if len(detonating) == 0 {
		return nil
	}
	metrics.BombChainLength.Observe(float64(len(detonating)))

	union := bombs.UnionSilhouette(graph, detonating)

	var changes []state.Change
	for _, id := range detonating {
		changes = append(changes, state.BombExploded{ID: id, Silhouette: graph.Silhouettes[id]})
	}

	for _, p := range union {
		tile := e.st.Grid.Tile(p)
		if tile.Kind == worldmodel.TileSoftCrate {
			next := worldmodel.EmptyTile
			if int(e.st.RNG().Int31n(100)) < e.cfg.PowerUpSpawnPercent {
				next = worldmodel.PowerUpTile(randomPowerUp(e.st.RNG()))
			}
			changes = append(changes, state.TileChanged{Pos: p, Tile: next})
		}
	}

	hit := agentsHitByBlast(e.st.Grid.N, e.st.Agents, graph, detonating)
	for _, id := range e.st.SortedAgentIDs() {
		a := e.st.Agents[id]
		if !a.Alive || !hit[a.ID] {
			continue
		}
		killer, bombID := attributeKill(graph, bombViews, detonating, a.Pos)
		if killer == a.ID {
			killer = "" // a self-elimination credits no killer
		}
		changes = append(changes, state.AgentDamaged{AgentID: a.ID, Amount: 1, BombID: bombID})
		changes = append(changes, state.AgentDied{AgentID: a.ID, KillerID: killer})
	}

	return changes
}

// agentsHitByBlast finds which alive agents sit inside any detonating
// bomb's silhouette, broad-phased through a spatial.AgentIndex bucket
// query before the precise per-cell containsPos check — the same
// broad-then-narrow shape bombs.BuildGraph uses for bomb-to-bomb
// overlap, applied here to bomb-to-agent overlap.
func agentsHitByBlast(gridN int, agents map[string]*state.AgentState, graph bombs.Graph, detonating []uint32) map[string]bool {
	idx := spatial.NewAgentIndex(gridN, 4)
	seq := make([]string, 0, len(agents))
	for id, a := range agents {
		if !a.Alive {
			continue
		}
		seq = append(seq, id)
		idx.Insert(uint32(len(seq)-1), a.Pos)
	}

	hit := make(map[string]bool)
	for _, bombID := range detonating {
		cells := graph.Silhouettes[bombID]
		if len(cells) == 0 {
			continue
		}
		minX, maxX, minY, maxY := cells[0].X, cells[0].X, cells[0].Y, cells[0].Y
		for _, c := range cells[1:] {
			if c.X < minX {
				minX = c.X
			}
			if c.X > maxX {
				maxX = c.X
			}
			if c.Y < minY {
				minY = c.Y
			}
			if c.Y > maxY {
				maxY = c.Y
			}
		}
		for _, candidate := range idx.QueryBox(minX, minY, maxX, maxY) {
			id := seq[candidate]
			if hit[id] {
				continue
			}
			if containsPos(cells, agents[id].Pos) {
				hit[id] = true
			}
		}
	}
	return hit
}

func containsPos(cells []worldmodel.Position, p worldmodel.Position) bool {
	for _, c := range cells {
		if c == p {
			return true
		}
	}
	return false
}

// attributeKill finds which detonating bomb caused a death at p: the first
// bomb in detonation order (detonating is already sorted by fuse_remaining
// asc, bomb_id asc per bombs.Resolve) whose silhouette actually covers p. Returns a zero id and empty owner if none do (shouldn't happen
// for a position drawn from the union silhouette, but guards against a
// caller passing an unrelated position).
func attributeKill(graph bombs.Graph, bombViews []state.BombView, detonating []uint32, p worldmodel.Position) (killerID string, bombID uint32) {
	byID := make(map[uint32]state.BombView, len(bombViews))
	for _, b := range bombViews {
		byID[b.ID] = b
	}
	for _, id := range detonating {
		if containsPos(graph.Silhouettes[id], p) {
			return byID[id].Owner, id
		}
	}
	return "", 0
}

func randomPowerUp(rng interface{ Int31n(int32) int32 }) worldmodel.PowerUpKind {
	kinds := []worldmodel.PowerUpKind{
		worldmodel.PowerUpBombUp, worldmodel.PowerUpRangeUp, worldmodel.PowerUpSpeedUp,
		worldmodel.PowerUpKick, worldmodel.PowerUpRemote,
	}
	return kinds[rng.Int31n(int32(len(kinds)))]
}

// applyMovement resolves each agent's Move command against the
// post-explosion grid: a move is valid if the destination is in bounds,
// passable, and not already occupied by a live bomb.
func (e *Engine) applyMovement(cmds []Command) []state.Change {
	var changes []state.Change
	for _, cmd := range cmds {
		if cmd.Kind != CmdMove {
			continue
		}
		a, ok := e.st.Agents[cmd.AgentID]
		if !ok || !a.Alive {
			continue
		}
		to := a.Pos.Step(cmd.Dir)
		if !to.InBounds(e.st.Grid.N) || !e.st.Grid.Tile(to).Passable() || e.st.Grid.HasBomb(to) {
			continue
		}
		changes = append(changes, state.AgentMoved{AgentID: a.ID, From: a.Pos, To: to})
	}
	return changes
}

// applyPickups checks every living agent's effective position — its
// move destination this tick if one was accepted, else its current
// position — for a power-up tile. The live state hasn't moved yet at
// Change-build time (ApplyDeltaBatch applies the whole batch after Tick
// finishes building it), so an agent stepping onto a power-up this tick
// would otherwise be checked at its stale pre-move position and never
// get credited; moves supplies the resolved destinations to check
// instead.
func (e *Engine) applyPickups(moves []state.Change) []state.Change {
	dest := make(map[string]worldmodel.Position, len(moves))
	for _, c := range moves {
		if m, ok := c.(state.AgentMoved); ok {
			dest[m.AgentID] = m.To
		}
	}

	var changes []state.Change
	for _, id := range e.st.SortedAgentIDs() {
		a := e.st.Agents[id]
		if !a.Alive {
			continue
		}
		pos := a.Pos
		if to, moved := dest[id]; moved {
			pos = to
		}
		tile := e.st.Grid.Tile(pos)
		if tile.Kind == worldmodel.TilePowerUp {
			changes = append(changes, state.PowerUpCollected{AgentID: a.ID, Pos: pos, Kind_: tile.PowerUp})
		}
	}
	return changes
}

// publish emits bus events for the tick's notable changes and publishes
// the refreshed Snapshot.
func (e *Engine) publish(delta state.Delta) {
	for _, c := range delta.Changes {
		switch v := c.(type) {
		case state.BombPlaced:
			e.bus.Publish(bus.Event{Kind: bus.KindBombPlaced, Priority: bus.PriorityNormal, Payload: v})
		case state.BombExploded:
			e.bus.Publish(bus.Event{Kind: bus.KindBombExploded, Priority: bus.PriorityHigh, Payload: v})
		case state.AgentDied:
			e.bus.Publish(bus.Event{Kind: bus.KindAgentDied, Priority: bus.PriorityHigh, Payload: v})
		case state.PowerUpCollected:
			e.bus.Publish(bus.Event{Kind: bus.KindPowerUpCollected, Priority: bus.PriorityNormal, Payload: v})
		case state.TickCompleted:
			e.bus.Publish(bus.Event{Kind: bus.KindTickCompleted, Priority: bus.PriorityLow, Payload: v})
		}
	}
	e.bus.ProcessPending(256)
	e.store.Publish(e.st.Snapshot())
}
