package state

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashState returns a deterministic digest over every semantic field of
// GameState: tick, RNG seed, grid tiles, and agents/bombs in sorted order.
// Caches — anything derivable rather than authoritative — must never be
// folded in here: two states differing only in a cache must hash
// identically, or replay verification would false-positive on divergence.
//
// The RNG's remaining stream is not sampled (that would mutate it); only
// the seed is hashed. Two states reached via the same seed and the same
// sequence of RNG-consuming operations always hash equal, which is the
// property replay verification needs.
func (s *GameState) HashState() uint64 {
	var buf bytes.Buffer
	buf.Grow(64 + len(s.Grid.TilesRaw())*2 + len(s.Agents)*48 + len(s.Bombs)*32)

	writeU64(&buf, s.Tick)
	writeI64(&buf, s.rngSeed)

	buf.WriteByte(byte(s.Grid.N))
	buf.WriteByte(byte(s.Grid.N >> 8))
	for _, t := range s.Grid.TilesRaw() {
		buf.WriteByte(byte(t.Kind))
		buf.WriteByte(byte(t.PowerUp))
	}

	for _, id := range s.SortedAgentIDs() {
		a := s.Agents[id]
		buf.WriteString(id)
		writeI64(&buf, int64(a.Pos.X))
		writeI64(&buf, int64(a.Pos.Y))
		writeI64(&buf, int64(a.BombsRemaining))
		writeI64(&buf, int64(a.MaxBombs))
		writeI64(&buf, int64(a.BlastPower))
		writeI64(&buf, int64(a.Speed))
		buf.WriteByte(boolByte(a.Alive))
		buf.WriteByte(byte(a.Abilities))
	}

	for _, id := range s.SortedBombIDs() {
		b := s.Bombs[id]
		writeU64(&buf, uint64(b.ID))
		buf.WriteString(b.Owner)
		writeI64(&buf, int64(b.Pos.X))
		writeI64(&buf, int64(b.Pos.Y))
		writeI64(&buf, int64(b.FuseTicks))
		writeI64(&buf, int64(b.Power))
		buf.WriteByte(boolByte(b.Flags.Piercing))
		buf.WriteByte(boolByte(b.Flags.RemoteDetonable))
		buf.WriteByte(boolByte(b.Flags.Kicked))
		buf.WriteByte(byte(b.Flags.KickDir))
	}

	return xxhash.Sum64(buf.Bytes())
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeI64(buf *bytes.Buffer, v int64) {
	writeU64(buf, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
