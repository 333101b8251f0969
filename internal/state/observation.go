package state

import "bomberkernel/internal/worldmodel"

// ObservationWindowRadius bounds the square window of tiles centered on an
// agent that to_observation encodes. A bot only ever sees its local
// neighborhood, never the full board, matching spec.md's requirement that
// bot decisions are local-information-bounded.
const ObservationWindowRadius = 4

const observationWindowSize = 2*ObservationWindowRadius + 1 // 9
const tilesInWindow = observationWindowSize * observationWindowSize

// Feature layout (all float32, fixed length, schema versioned so a policy
// trained against one layout fails loudly against another):
//
//	[0 .. 4*tilesInWindow)           tile kind one-hot (Empty/Wall/Crate/PowerUp)
//	[4*tilesInWindow .. 5*tw)        bomb fuse, normalized to [0,1] (0 = no bomb)
//	[5*tw .. 6*tw)                   self present at tile (0/1)
//	[6*tw .. 7*tw)                   enemy present at tile (0/1)
//	[7*tw .. 7*tw+10)                self stats: bombs_remaining, max_bombs,
//	                                 blast_power, speed (each /10, clamped),
//	                                 alive, then 5 ability bits
const (
	ObservationSchemaVersion = 1
	ObservationSize          = 7*tilesInWindow + 10
)

// ToObservation flattens the local neighborhood of agentID into a fixed-
// length feature vector for an external policy. It returns (nil, false) if
// agentID is unknown to the snapshot.
func (snap *Snapshot) ToObservation(agentID string) ([]float32, bool) {
	self, ok := snap.AgentByID(agentID)
	if !ok {
		return nil, false
	}

	out := make([]float32, ObservationSize)
	maxFuse := float32(1)
	for _, b := range snap.Bombs {
		if float32(b.FuseTicks) > maxFuse {
			maxFuse = float32(b.FuseTicks)
		}
	}

	i := 0
	for dy := -ObservationWindowRadius; dy <= ObservationWindowRadius; dy++ {
		for dx := -ObservationWindowRadius; dx <= ObservationWindowRadius; dx++ {
			p := worldmodel.Position{X: self.Pos.X + dx, Y: self.Pos.Y + dy}
			tile := snap.Grid.Tile(p)
			out[0*tilesInWindow+i] = oneHotKind(tile.Kind, worldmodel.TileEmpty)
			out[1*tilesInWindow+i] = oneHotKind(tile.Kind, worldmodel.TileIndestructible)
			out[2*tilesInWindow+i] = oneHotKind(tile.Kind, worldmodel.TileSoftCrate)
			out[3*tilesInWindow+i] = oneHotKind(tile.Kind, worldmodel.TilePowerUp)

			if fuse, hasBomb := bombFuseAt(snap, p); hasBomb {
				out[4*tilesInWindow+i] = fuse / maxFuse
			}
			if p == self.Pos {
				out[5*tilesInWindow+i] = 1
			}
			for _, a := range snap.Agents {
				if a.ID != agentID && a.Alive && a.Pos == p {
					out[6*tilesInWindow+i] = 1
				}
			}
			i++
		}
	}

	base := 7 * tilesInWindow
	out[base+0] = clampedRatio(self.BombsRemaining, 10)
	out[base+1] = clampedRatio(self.MaxBombs, 10)
	out[base+2] = clampedRatio(self.BlastPower, 10)
	out[base+3] = clampedRatio(self.Speed, 10)
	if self.Alive {
		out[base+4] = 1
	}
	out[base+5] = abilityBit(self.Abilities, AbilityBombUp)
	out[base+6] = abilityBit(self.Abilities, AbilityRangeUp)
	out[base+7] = abilityBit(self.Abilities, AbilitySpeedUp)
	out[base+8] = abilityBit(self.Abilities, AbilityKick)
	out[base+9] = abilityBit(self.Abilities, AbilityRemote)

	return out, true
}

func oneHotKind(kind, want worldmodel.TileKind) float32 {
	if kind == want {
		return 1
	}
	return 0
}

func bombFuseAt(snap *Snapshot, p worldmodel.Position) (float32, bool) {
	for _, b := range snap.Bombs {
		if b.Pos == p {
			return float32(b.FuseTicks), true
		}
	}
	return 0, false
}

func clampedRatio(v, max int) float32 {
	r := float32(v) / float32(max)
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}

func abilityBit(abilities Ability, bit Ability) float32 {
	if abilities&bit != 0 {
		return 1
	}
	return 0
}
