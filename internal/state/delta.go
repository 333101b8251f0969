package state

import "bomberkernel/internal/worldmodel"

// ChangeKind tags the variant a Change carries.
type ChangeKind uint8

const (
	KindTileChanged ChangeKind = iota
	KindBombPlaced
	KindBombExploded
	KindAgentMoved
	KindAgentDamaged
	KindAgentDied
	KindPowerUpCollected
	KindTickCompleted
)

// Change is one atomic mutation to GameState. Concrete payload types below
// implement it; ApplyDeltaBatch dispatches on Kind() rather than a type
// switch on every site that needs to know what changed (event consumers in
// internal/bus do the type switch once).
type Change interface {
	Kind() ChangeKind
}

// TileChanged records a terrain change (crate destroyed, power-up spawned
// or collected and the tile reverting to empty).
type TileChanged struct {
	Pos  worldmodel.Position
	Tile worldmodel.Tile
}

func (TileChanged) Kind() ChangeKind { return KindTileChanged }

// BombPlaced records a new bomb entering play.
type BombPlaced struct {
	ID        uint32
	Owner     string
	Pos       worldmodel.Position
	Power     int
	FuseTicks int
	Flags     BombFlags
}

func (BombPlaced) Kind() ChangeKind { return KindBombPlaced }

// BombExploded records a bomb's detonation and the tiles its blast covers.
// Silhouette is produced by the Bomb Analyzer (C5), not by the state store;
// the state store only applies it.
type BombExploded struct {
	ID         uint32
	Silhouette []worldmodel.Position
}

func (BombExploded) Kind() ChangeKind { return KindBombExploded }

// AgentMoved records a successful single-tile move.
type AgentMoved struct {
	AgentID string
	From    worldmodel.Position
	To      worldmodel.Position
}

func (AgentMoved) Kind() ChangeKind { return KindAgentMoved }

// AgentDamaged records blast damage taken by an agent, tracing back to the
// bomb responsible (for kill attribution).
type AgentDamaged struct {
	AgentID string
	Amount  int
	BombID  uint32
}

func (AgentDamaged) Kind() ChangeKind { return KindAgentDamaged }

// AgentDied records an agent's death and, when attributable, its killer.
// KillerID is empty for self-elimination (own bomb) or simultaneous kills
// the analyzer chooses not to attribute.
type AgentDied struct {
	AgentID  string
	KillerID string
}

func (AgentDied) Kind() ChangeKind { return KindAgentDied }

// PowerUpCollected records an agent picking up a power-up tile.
type PowerUpCollected struct {
	AgentID string
	Pos     worldmodel.Position
	Kind_   worldmodel.PowerUpKind
}

func (PowerUpCollected) Kind() ChangeKind { return KindPowerUpCollected }

// TickCompleted closes out a tick. It carries no mutation of its own; it
// exists so consumers of the change stream (replay writer, event bus) have
// an explicit boundary marker instead of inferring tick edges from a
// monotonic counter no one ever hands them directly.
type TickCompleted struct {
	Tick uint64
}

func (TickCompleted) Kind() ChangeKind { return KindTickCompleted }

// Delta is the ordered batch of changes produced by one tick of
// simulation. Order within a batch does not need to match application
// order — ApplyDeltaBatch groups by kind before applying.
type Delta struct {
	Changes []Change
}
