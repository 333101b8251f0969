package state

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"bomberkernel/internal/worldmodel"
)

// Fatal application errors. The engine treats any of these as a bug in the
// upstream producer of the Delta (Bomb Analyzer, Planner, command
// validation) rather than a recoverable condition — ApplyDeltaBatch stops
// at the first one and leaves GameState unmodified for the remaining
// changes in the batch.
var (
	ErrInvalidPosition  = errors.New("state: position out of bounds")
	ErrDuplicateEntity  = errors.New("state: entity already exists")
	ErrReferentMissing  = errors.New("state: referenced entity does not exist")
)

// GameState is the single authoritative copy of the simulated world. It is
// owned exclusively by the engine tick loop (C7) acting through the state
// store (C1); every other component reads it only via an immutable
// Snapshot (see snapshot.go).
type GameState struct {
	Tick    uint64
	Version uint64
	Grid    *worldmodel.Grid
	Agents  map[string]*AgentState
	Bombs   map[uint32]*Bomb
	rng     *rand.Rand
	rngSeed int64
}

// New builds an empty GameState over an n×n grid, seeded for deterministic
// replay.
func New(n int, seed int64) *GameState {
	return &GameState{
		Grid:    worldmodel.NewGrid(n),
		Agents:  make(map[string]*AgentState),
		Bombs:   make(map[uint32]*Bomb),
		rng:     rand.New(rand.NewSource(seed)),
		rngSeed: seed,
	}
}

// RNG returns the state store's owned random source. Callers that need
// randomness (power-up placement, tie-break shuffles) must draw from this
// generator — never from a fresh, unseeded source — to keep replays
// bit-exact.
func (s *GameState) RNG() *rand.Rand { return s.rng }

// Seed returns the RNG's current seed value (the last one drawn by
// AdvanceRNGSeed, or the construction seed before the first tick).
func (s *GameState) Seed() int64 { return s.rngSeed }

// AdvanceRNGSeed draws the next deterministic seed from the owned RNG and
// reseeds it with that value, mirroring the teacher's per-tick RNG
// rotation (internal/game/engine.go's tick(): e.rngSeed = e.rng.Int63();
// e.rng.Seed(e.rngSeed)). It first reseeds from the previous seed, so the
// seed chain depends only on the construction seed and the number of
// ticks, not on how many values earlier ticks drew. The engine calls
// this once at the start of every tick, before any gameplay code draws
// randomness, so the returned seed alone determines everything the tick
// consumes from the generator — a replay record can hash just this value
// into rng_hash and catch RNG-stream divergence without needing the full
// state hash.
func (s *GameState) AdvanceRNGSeed() int64 {
	s.rng.Seed(s.rngSeed)
	s.rngSeed = s.rng.Int63()
	s.rng.Seed(s.rngSeed)
	return s.rngSeed
}

// ApplyDeltaBatch applies one tick's worth of changes, grouped by kind so
// that application order never depends on producer order:
//
//  1. TileChanged        — terrain first, so later lookups see it
//  2. BombPlaced/BombExploded/PowerUpCollected — entity lifecycle
//  3. AgentMoved         — movement
//  4. AgentDamaged/AgentDied — damage and death resolve last
//
// TickCompleted is not a mutation; it only advances s.Tick.
//
// On the first error, ApplyDeltaBatch stops and returns it; the caller
// (engine) treats this as fatal for the tick. Version is bumped only after
// every change in the batch applies cleanly.
func (s *GameState) ApplyDeltaBatch(d Delta) error {
	buckets := map[ChangeKind][]Change{}
	for _, c := range d.Changes {
		buckets[c.Kind()] = append(buckets[c.Kind()], c)
	}

	order := []ChangeKind{
		KindTileChanged,
		KindBombPlaced,
		KindBombExploded,
		KindPowerUpCollected,
		KindAgentMoved,
		KindAgentDamaged,
		KindAgentDied,
		KindTickCompleted,
	}

	for _, kind := range order {
		for _, c := range buckets[kind] {
			if err := s.apply(c); err != nil {
				return err
			}
		}
	}
	if len(d.Changes) > 0 {
		s.Version++
	}
	return nil
}

func (s *GameState) apply(c Change) error {
	switch v := c.(type) {
	case TileChanged:
		if !v.Pos.InBounds(s.Grid.N) {
			return fmt.Errorf("%w: tile %v", ErrInvalidPosition, v.Pos)
		}
		s.Grid.SetTile(v.Pos, v.Tile)

	case BombPlaced:
		if !v.Pos.InBounds(s.Grid.N) {
			return fmt.Errorf("%w: bomb %d at %v", ErrInvalidPosition, v.ID, v.Pos)
		}
		if _, exists := s.Bombs[v.ID]; exists {
			return fmt.Errorf("%w: bomb %d", ErrDuplicateEntity, v.ID)
		}
		owner, ownerExists := s.Agents[v.Owner]
		if !ownerExists {
			return fmt.Errorf("%w: bomb %d owner %s", ErrReferentMissing, v.ID, v.Owner)
		}
		s.Bombs[v.ID] = &Bomb{
			ID: v.ID, Owner: v.Owner, Pos: v.Pos,
			FuseTicks: v.FuseTicks, Power: v.Power, Flags: v.Flags,
		}
		s.Grid.AddOccupant(v.Pos, worldmodel.Occupant{Kind: worldmodel.OccupantBomb, ID: v.ID})
		owner.BombsRemaining--

	case BombExploded:
		b, ok := s.Bombs[v.ID]
		if !ok {
			return fmt.Errorf("%w: bomb %d", ErrReferentMissing, v.ID)
		}
		s.Grid.RemoveOccupant(b.Pos, worldmodel.Occupant{Kind: worldmodel.OccupantBomb, ID: v.ID})
		if owner, ok := s.Agents[b.Owner]; ok {
			owner.BombsRemaining++
		}
		delete(s.Bombs, v.ID)

	case PowerUpCollected:
		a, ok := s.Agents[v.AgentID]
		if !ok {
			return fmt.Errorf("%w: agent %s", ErrReferentMissing, v.AgentID)
		}
		applyPowerUp(a, v.Kind_)
		s.Grid.SetTile(v.Pos, worldmodel.EmptyTile)

	case AgentMoved:
		a, ok := s.Agents[v.AgentID]
		if !ok {
			return fmt.Errorf("%w: agent %s", ErrReferentMissing, v.AgentID)
		}
		if !v.To.InBounds(s.Grid.N) {
			return fmt.Errorf("%w: agent %s to %v", ErrInvalidPosition, v.AgentID, v.To)
		}
		s.Grid.RemoveOccupant(v.From, worldmodel.Occupant{Kind: worldmodel.OccupantAgent, ID: agentSeq(v.AgentID)})
		s.Grid.AddOccupant(v.To, worldmodel.Occupant{Kind: worldmodel.OccupantAgent, ID: agentSeq(v.AgentID)})
		a.Pos = v.To

	case AgentDamaged:
		a, ok := s.Agents[v.AgentID]
		if !ok {
			return fmt.Errorf("%w: agent %s", ErrReferentMissing, v.AgentID)
		}
		_ = a // damage is HP-less in this model: a hit is lethal (see AgentDied); Amount is kept for future HP models and metrics.

	case AgentDied:
		a, ok := s.Agents[v.AgentID]
		if !ok {
			return fmt.Errorf("%w: agent %s", ErrReferentMissing, v.AgentID)
		}
		a.Alive = false
		s.Grid.RemoveOccupant(a.Pos, worldmodel.Occupant{Kind: worldmodel.OccupantAgent, ID: agentSeq(v.AgentID)})

	case TickCompleted:
		s.Tick = v.Tick

	default:
		return fmt.Errorf("state: unknown change type %T", c)
	}
	return nil
}

func applyPowerUp(a *AgentState, kind worldmodel.PowerUpKind) {
	switch kind {
	case worldmodel.PowerUpBombUp:
		a.MaxBombs++
	case worldmodel.PowerUpRangeUp:
		a.BlastPower++
	case worldmodel.PowerUpSpeedUp:
		a.Speed++
	case worldmodel.PowerUpKick:
		a.Abilities |= AbilityKick
	case worldmodel.PowerUpRemote:
		a.Abilities |= AbilityRemote
	}
}

// agentSeq derives a stable uint32 occupant id from an agent's string id,
// so the grid's occupant index (keyed on the numeric Occupant type shared
// with bombs) can track agents without widening Occupant to hold strings.
// Collisions are acceptable for the index's purpose (fast "is this tile
// occupied" checks) because exact identity is always re-resolved through
// GameState.Agents, never through the index alone.
func agentSeq(id string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return h
}

// AddAgent registers a new agent at the given spawn position. It is a
// setup-time operation (not part of the Delta vocabulary) used when
// building the initial GameState before the first tick.
func (s *GameState) AddAgent(a *AgentState) {
	s.Agents[a.ID] = a
	s.Grid.AddOccupant(a.Pos, worldmodel.Occupant{Kind: worldmodel.OccupantAgent, ID: agentSeq(a.ID)})
}

// SortedAgentIDs returns agent ids in deterministic (lexical) order, used
// anywhere iteration order would otherwise depend on Go's randomized map
// order (hashing, observation building, snapshotting).
func (s *GameState) SortedAgentIDs() []string {
	ids := make([]string, 0, len(s.Agents))
	for id := range s.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedBombIDs returns bomb ids in ascending order for the same reason.
func (s *GameState) SortedBombIDs() []uint32 {
	ids := make([]uint32, 0, len(s.Bombs))
	for id := range s.Bombs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
