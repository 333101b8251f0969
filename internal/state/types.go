package state

import "bomberkernel/internal/worldmodel"

// Ability is a single bit in an AgentState's ability bitset.
type Ability uint8

const (
	AbilityBombUp Ability = 1 << iota
	AbilityRangeUp
	AbilitySpeedUp
	AbilityKick
	AbilityRemote
)

// AgentState is one bot's identity, position, and combat loadout.
type AgentState struct {
	ID             string
	Pos            worldmodel.Position
	BombsRemaining int
	MaxBombs       int
	BlastPower     int
	Speed          int
	Alive          bool
	Abilities      Ability
}

// Has reports whether the agent carries the given ability.
func (a *AgentState) Has(ab Ability) bool { return a.Abilities&ab != 0 }

// BombFlags packs the non-timer, non-position bomb attributes.
type BombFlags struct {
	Piercing        bool
	RemoteDetonable bool
	Kicked          bool
	KickDir         worldmodel.Dir
}

// Bomb is a live, ticking bomb on the grid.
//
// Invariant: at most one bomb occupies a given tile (enforced by the
// grid's secondary index — see worldmodel.Grid.HasBomb).
type Bomb struct {
	ID        uint32
	Owner     string
	Pos       worldmodel.Position
	FuseTicks int // monotonically decreasing
	Power     int
	Flags     BombFlags
}

// Clone returns a value copy (Bomb contains no reference fields requiring
// deep copy).
func (b Bomb) Clone() Bomb { return b }
