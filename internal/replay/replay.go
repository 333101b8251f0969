// Package replay implements the recorded-game file format spec.md §6
// defines: a framed stream of per-tick records a tournament run can
// write as it plays and a later run can play back to verify bit-exact
// determinism (spec.md §4.7, testable property 4 and scenario S4).
//
// The explicit little-endian, length-prefixed framing below follows the
// same hand-rolled encoding/binary discipline as internal/state/hash.go
// (tick/seed/grid/agents/bombs serialized field-by-field into a
// bytes.Buffer) rather than reaching for gob or protobuf — the teacher's
// own IPC protocol (internal/ipc/protocol.go) frames a header with
// binary.LittleEndian and only hands the payload itself to gob, but a
// replay file's payload is exactly the same Delta/Change vocabulary the
// state store already knows how to serialize by hand, so there is
// nothing generic encoding would buy here.
package replay

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"bomberkernel/internal/engine"
	"bomberkernel/internal/metrics"
	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

// Magic identifies a replay file; SchemaVersion changes whenever the
// framing below changes shape (spec.md §6's observation_schema_version
// sibling for the replay format).
const (
	Magic         uint32 = 0x424D424B // "BMBK"
	SchemaVersion uint32 = 1
)

// ErrBadMagic is returned by NewReader when the stream doesn't start
// with Magic — the file is not a replay this package can read.
var ErrBadMagic = fmt.Errorf("replay: bad magic")

// ErrSchemaMismatch is returned by NewReader when the stream's
// schema_version doesn't match SchemaVersion.
var ErrSchemaMismatch = fmt.Errorf("replay: schema version mismatch")

// ErrHashMismatch is returned by Verify when a tick's recorded state_hash
// disagrees with the hash produced by replaying its delta — a
// determinism error per spec.md §7, fatal to the verifying run.
type ErrHashMismatch struct {
	Tick       uint64
	Want, Got  uint64
}

func (e *ErrHashMismatch) Error() string {
	return fmt.Sprintf("replay: state hash mismatch at tick %d: recorded %x, replayed %x", e.Tick, e.Want, e.Got)
}

// TickRecord is one tick's worth of recorded data: the commands the
// engine applied (in the engine's application order: agent id, then
// arrival) and the Delta it produced,
// alongside the hashes that let a verifier confirm it replayed bit-exact.
type TickRecord struct {
	Tick      uint64
	RNGHash   uint64
	StateHash uint64
	Commands  []engine.Command
	Delta     state.Delta
}

// Writer appends tick records to an underlying stream, framed per
// spec.md §6's replay file format. Writer does not buffer across ticks;
// each WriteTick call flushes its record immediately so a crash mid-run
// loses at most the in-flight tick.
type Writer struct {
	w io.Writer
}

// NewWriter writes the file header (Magic, SchemaVersion, a serialized
// snapshot of the initial state) and returns a Writer ready for
// WriteTick calls.
func NewWriter(w io.Writer, initial *state.GameState) (*Writer, error) {
	var hdr bytes.Buffer
	putU32(&hdr, Magic)
	putU32(&hdr, SchemaVersion)

	blob := encodeState(initial)
	putU32(&hdr, uint32(len(blob)))
	hdr.Write(blob)

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return nil, fmt.Errorf("replay: writing header: %w", err)
	}
	return &Writer{w: w}, nil
}

// WriteTick appends one framed tick_record: tick, rng_hash, state_hash,
// the commands applied (length-prefixed), and the delta (length-prefixed).
func (wr *Writer) WriteTick(rec TickRecord) error {
	var buf bytes.Buffer
	putU64(&buf, rec.Tick)
	putU64(&buf, rec.RNGHash)
	putU64(&buf, rec.StateHash)

	cmdBytes := encodeCommands(rec.Commands)
	putU32(&buf, uint32(len(cmdBytes)))
	buf.Write(cmdBytes)

	deltaBytes := encodeDelta(rec.Delta)
	putU32(&buf, uint32(len(deltaBytes)))
	buf.Write(deltaBytes)

	_, err := wr.w.Write(buf.Bytes())
	return err
}

// Reader reads a replay file written by Writer, frame by frame.
type Reader struct {
	r       io.Reader
	Initial *state.GameState
}

// NewReader validates the header and reconstructs the initial GameState,
// returning a Reader positioned at the first tick_record.
func NewReader(r io.Reader) (*Reader, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("replay: reading header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	if magic != Magic {
		return nil, ErrBadMagic
	}
	schema := binary.LittleEndian.Uint32(hdr[4:8])
	if schema != SchemaVersion {
		return nil, ErrSchemaMismatch
	}

	blobLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("replay: reading initial state length: %w", err)
	}
	blob := make([]byte, blobLen)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, fmt.Errorf("replay: reading initial state: %w", err)
	}
	initial, err := decodeState(blob)
	if err != nil {
		return nil, fmt.Errorf("replay: decoding initial state: %w", err)
	}

	return &Reader{r: r, Initial: initial}, nil
}

// ReadTick reads the next tick_record, returning io.EOF once the stream
// is exhausted cleanly (no partial record).
func (rd *Reader) ReadTick() (TickRecord, error) {
	var rec TickRecord

	tick, err := readU64(rd.r)
	if err != nil {
		return rec, err // io.EOF propagates as-is: clean end of stream
	}
	rngHash, err := readU64(rd.r)
	if err != nil {
		return rec, fmt.Errorf("replay: truncated record at tick %d: %w", tick, err)
	}
	stateHash, err := readU64(rd.r)
	if err != nil {
		return rec, fmt.Errorf("replay: truncated record at tick %d: %w", tick, err)
	}

	cmdLen, err := readU32(rd.r)
	if err != nil {
		return rec, fmt.Errorf("replay: reading commands length at tick %d: %w", tick, err)
	}
	cmdBytes := make([]byte, cmdLen)
	if _, err := io.ReadFull(rd.r, cmdBytes); err != nil {
		return rec, fmt.Errorf("replay: reading commands at tick %d: %w", tick, err)
	}
	cmds, err := decodeCommands(cmdBytes)
	if err != nil {
		return rec, fmt.Errorf("replay: decoding commands at tick %d: %w", tick, err)
	}

	deltaLen, err := readU32(rd.r)
	if err != nil {
		return rec, fmt.Errorf("replay: reading delta length at tick %d: %w", tick, err)
	}
	deltaBytes := make([]byte, deltaLen)
	if _, err := io.ReadFull(rd.r, deltaBytes); err != nil {
		return rec, fmt.Errorf("replay: reading delta at tick %d: %w", tick, err)
	}
	delta, err := decodeDelta(deltaBytes)
	if err != nil {
		return rec, fmt.Errorf("replay: decoding delta at tick %d: %w", tick, err)
	}

	rec.Tick, rec.RNGHash, rec.StateHash, rec.Commands, rec.Delta = tick, rngHash, stateHash, cmds, delta
	return rec, nil
}

// Verify replays every tick_record in r onto a fresh copy of the
// recorded initial state, applying each record's delta and comparing the
// resulting HashState against the record's recorded StateHash. It
// returns the first *ErrHashMismatch encountered, or nil if every tick
// reproduced bit-exact. Per spec.md §7 a hash mismatch is a hard
// determinism failure, not a recoverable one — callers (the CLI, exit
// code 4) should treat any non-nil error as fatal.
//
// Before applying a tick's delta, Verify advances the replayed state's
// RNG exactly once — mirroring Engine.Tick's AdvanceRNGSeed call at the
// top of the real tick — since HashState folds the RNG seed into the
// digest (spec.md §3's "hash(GameState) is a deterministic function of
// all semantic fields, RNG state included"); skipping this step would
// desync the replayed seed from the recorded one even though every
// gameplay-visible field still matched.
func Verify(r io.Reader) error {
	rd, err := NewReader(r)
	if err != nil {
		return err
	}
	st := rd.Initial

	for {
		rec, err := rd.ReadTick()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		seed := uint64(st.AdvanceRNGSeed())
		if seed != rec.RNGHash {
			return fmt.Errorf("replay: rng seed mismatch at tick %d: recorded %x, replayed %x", rec.Tick, rec.RNGHash, seed)
		}
		if err := st.ApplyDeltaBatch(rec.Delta); err != nil {
			return fmt.Errorf("replay: applying delta at tick %d: %w", rec.Tick, err)
		}
		if got := st.HashState(); got != rec.StateHash {
			metrics.ReplayHashMismatches.Inc()
			return &ErrHashMismatch{Tick: rec.Tick, Want: rec.StateHash, Got: got}
		}
	}
}

// --- low-level framing helpers -------------------------------------------------

func putU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func putU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func putI64(buf *bytes.Buffer, v int64) { putU64(buf, uint64(v)) }

func putString(buf *bytes.Buffer, s string) {
	putU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readU32(r io.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func readI64(r io.Reader) (int64, error) {
	v, err := readU64(r)
	return int64(v), err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// --- GameState blob -------------------------------------------------------

func encodeState(st *state.GameState) []byte {
	var buf bytes.Buffer
	putU64(&buf, st.Tick)
	putI64(&buf, st.Seed())

	n := st.Grid.N
	putU32(&buf, uint32(n))
	for _, t := range st.Grid.TilesRaw() {
		buf.WriteByte(byte(t.Kind))
		buf.WriteByte(byte(t.PowerUp))
	}

	ids := st.SortedAgentIDs()
	putU32(&buf, uint32(len(ids)))
	for _, id := range ids {
		a := st.Agents[id]
		putString(&buf, a.ID)
		putI64(&buf, int64(a.Pos.X))
		putI64(&buf, int64(a.Pos.Y))
		putI64(&buf, int64(a.BombsRemaining))
		putI64(&buf, int64(a.MaxBombs))
		putI64(&buf, int64(a.BlastPower))
		putI64(&buf, int64(a.Speed))
		buf.WriteByte(boolByte(a.Alive))
		buf.WriteByte(byte(a.Abilities))
	}

	bombIDs := st.SortedBombIDs()
	putU32(&buf, uint32(len(bombIDs)))
	for _, id := range bombIDs {
		b := st.Bombs[id]
		putU32(&buf, b.ID)
		putString(&buf, b.Owner)
		putI64(&buf, int64(b.Pos.X))
		putI64(&buf, int64(b.Pos.Y))
		putI64(&buf, int64(b.FuseTicks))
		putI64(&buf, int64(b.Power))
		buf.WriteByte(boolByte(b.Flags.Piercing))
		buf.WriteByte(boolByte(b.Flags.RemoteDetonable))
		buf.WriteByte(boolByte(b.Flags.Kicked))
		buf.WriteByte(byte(b.Flags.KickDir))
	}

	return buf.Bytes()
}

func decodeState(data []byte) (*state.GameState, error) {
	r := bytes.NewReader(data)

	tick, err := readU64(r)
	if err != nil {
		return nil, err
	}
	seed, err := readI64(r)
	if err != nil {
		return nil, err
	}
	n32, err := readU32(r)
	if err != nil {
		return nil, err
	}
	n := int(n32)

	st := state.New(n, seed)
	st.Tick = tick

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			var kb [2]byte
			if _, err := io.ReadFull(r, kb[:]); err != nil {
				return nil, err
			}
			st.Grid.SetTile(worldmodel.Position{X: x, Y: y}, worldmodel.Tile{
				Kind: worldmodel.TileKind(kb[0]), PowerUp: worldmodel.PowerUpKind(kb[1]),
			})
		}
	}

	numAgents, err := readU32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numAgents; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		x, err := readI64(r)
		if err != nil {
			return nil, err
		}
		y, err := readI64(r)
		if err != nil {
			return nil, err
		}
		bombsRemaining, err := readI64(r)
		if err != nil {
			return nil, err
		}
		maxBombs, err := readI64(r)
		if err != nil {
			return nil, err
		}
		blastPower, err := readI64(r)
		if err != nil {
			return nil, err
		}
		speed, err := readI64(r)
		if err != nil {
			return nil, err
		}
		var aliveByte, abilities [1]byte
		if _, err := io.ReadFull(r, aliveByte[:]); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, abilities[:]); err != nil {
			return nil, err
		}
		st.AddAgent(&state.AgentState{
			ID:             id,
			Pos:            worldmodel.Position{X: int(x), Y: int(y)},
			BombsRemaining: int(bombsRemaining),
			MaxBombs:       int(maxBombs),
			BlastPower:     int(blastPower),
			Speed:          int(speed),
			Alive:          aliveByte[0] != 0,
			Abilities:      state.Ability(abilities[0]),
		})
	}

	numBombs, err := readU32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < numBombs; i++ {
		id, err := readU32(r)
		if err != nil {
			return nil, err
		}
		owner, err := readString(r)
		if err != nil {
			return nil, err
		}
		x, err := readI64(r)
		if err != nil {
			return nil, err
		}
		y, err := readI64(r)
		if err != nil {
			return nil, err
		}
		fuseTicks, err := readI64(r)
		if err != nil {
			return nil, err
		}
		power, err := readI64(r)
		if err != nil {
			return nil, err
		}
		var piercing, remote, kicked, kickDir [1]byte
		for _, f := range []*[1]byte{&piercing, &remote, &kicked, &kickDir} {
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return nil, err
			}
		}
		pos := worldmodel.Position{X: int(x), Y: int(y)}
		st.Bombs[id] = &state.Bomb{
			ID: id, Owner: owner, Pos: pos, FuseTicks: int(fuseTicks), Power: int(power),
			Flags: state.BombFlags{
				Piercing:        piercing[0] != 0,
				RemoteDetonable: remote[0] != 0,
				Kicked:          kicked[0] != 0,
				KickDir:         worldmodel.Dir(kickDir[0]),
			},
		}
		st.Grid.AddOccupant(pos, worldmodel.Occupant{Kind: worldmodel.OccupantBomb, ID: id})
	}

	return st, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// --- Commands ---------------------------------------------------------------

func encodeCommands(cmds []engine.Command) []byte {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(cmds)))
	for _, c := range cmds {
		putString(&buf, c.AgentID)
		buf.WriteByte(byte(c.Kind))
		buf.WriteByte(byte(c.Dir))
	}
	return buf.Bytes()
}

func decodeCommands(data []byte) ([]engine.Command, error) {
	r := bytes.NewReader(data)
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	cmds := make([]engine.Command, 0, n)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		var kindByte, dirByte [1]byte
		if _, err := io.ReadFull(r, kindByte[:]); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, dirByte[:]); err != nil {
			return nil, err
		}
		cmds = append(cmds, engine.Command{
			AgentID: id,
			Kind:    engine.CommandKind(kindByte[0]),
			Dir:     worldmodel.Dir(dirByte[0]),
		})
	}
	return cmds, nil
}

// --- Delta / Change -----------------------------------------------------------

func encodeDelta(d state.Delta) []byte {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(d.Changes)))
	for _, c := range d.Changes {
		buf.WriteByte(byte(c.Kind()))
		switch v := c.(type) {
		case state.TileChanged:
			putI64(&buf, int64(v.Pos.X))
			putI64(&buf, int64(v.Pos.Y))
			buf.WriteByte(byte(v.Tile.Kind))
			buf.WriteByte(byte(v.Tile.PowerUp))

		case state.BombPlaced:
			putU32(&buf, v.ID)
			putString(&buf, v.Owner)
			putI64(&buf, int64(v.Pos.X))
			putI64(&buf, int64(v.Pos.Y))
			putI64(&buf, int64(v.Power))
			putI64(&buf, int64(v.FuseTicks))
			buf.WriteByte(boolByte(v.Flags.Piercing))
			buf.WriteByte(boolByte(v.Flags.RemoteDetonable))
			buf.WriteByte(boolByte(v.Flags.Kicked))
			buf.WriteByte(byte(v.Flags.KickDir))

		case state.BombExploded:
			putU32(&buf, v.ID)
			putU32(&buf, uint32(len(v.Silhouette)))
			for _, p := range v.Silhouette {
				putI64(&buf, int64(p.X))
				putI64(&buf, int64(p.Y))
			}

		case state.AgentMoved:
			putString(&buf, v.AgentID)
			putI64(&buf, int64(v.From.X))
			putI64(&buf, int64(v.From.Y))
			putI64(&buf, int64(v.To.X))
			putI64(&buf, int64(v.To.Y))

		case state.AgentDamaged:
			putString(&buf, v.AgentID)
			putI64(&buf, int64(v.Amount))
			putU32(&buf, v.BombID)

		case state.AgentDied:
			putString(&buf, v.AgentID)
			putString(&buf, v.KillerID)

		case state.PowerUpCollected:
			putString(&buf, v.AgentID)
			putI64(&buf, int64(v.Pos.X))
			putI64(&buf, int64(v.Pos.Y))
			buf.WriteByte(byte(v.Kind_))

		case state.TickCompleted:
			putU64(&buf, v.Tick)
		}
	}
	return buf.Bytes()
}

func decodeDelta(data []byte) (state.Delta, error) {
	r := bytes.NewReader(data)
	n, err := readU32(r)
	if err != nil {
		return state.Delta{}, err
	}

	changes := make([]state.Change, 0, n)
	for i := uint32(0); i < n; i++ {
		var kindByte [1]byte
		if _, err := io.ReadFull(r, kindByte[:]); err != nil {
			return state.Delta{}, err
		}

		c, err := decodeChange(r, state.ChangeKind(kindByte[0]))
		if err != nil {
			return state.Delta{}, err
		}
		changes = append(changes, c)
	}
	return state.Delta{Changes: changes}, nil
}

func decodeChange(r io.Reader, kind state.ChangeKind) (state.Change, error) {
	switch kind {
	case state.KindTileChanged:
		x, err := readI64(r)
		if err != nil {
			return nil, err
		}
		y, err := readI64(r)
		if err != nil {
			return nil, err
		}
		var tb [2]byte
		if _, err := io.ReadFull(r, tb[:]); err != nil {
			return nil, err
		}
		return state.TileChanged{
			Pos:  worldmodel.Position{X: int(x), Y: int(y)},
			Tile: worldmodel.Tile{Kind: worldmodel.TileKind(tb[0]), PowerUp: worldmodel.PowerUpKind(tb[1])},
		}, nil

	case state.KindBombPlaced:
		id, err := readU32(r)
		if err != nil {
			return nil, err
		}
		owner, err := readString(r)
		if err != nil {
			return nil, err
		}
		x, err := readI64(r)
		if err != nil {
			return nil, err
		}
		y, err := readI64(r)
		if err != nil {
			return nil, err
		}
		power, err := readI64(r)
		if err != nil {
			return nil, err
		}
		fuse, err := readI64(r)
		if err != nil {
			return nil, err
		}
		var piercing, remote, kicked, kickDir [1]byte
		for _, f := range []*[1]byte{&piercing, &remote, &kicked, &kickDir} {
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return nil, err
			}
		}
		return state.BombPlaced{
			ID: id, Owner: owner, Pos: worldmodel.Position{X: int(x), Y: int(y)},
			Power: int(power), FuseTicks: int(fuse),
			Flags: state.BombFlags{
				Piercing: piercing[0] != 0, RemoteDetonable: remote[0] != 0,
				Kicked: kicked[0] != 0, KickDir: worldmodel.Dir(kickDir[0]),
			},
		}, nil

	case state.KindBombExploded:
		id, err := readU32(r)
		if err != nil {
			return nil, err
		}
		count, err := readU32(r)
		if err != nil {
			return nil, err
		}
		sil := make([]worldmodel.Position, 0, count)
		for i := uint32(0); i < count; i++ {
			x, err := readI64(r)
			if err != nil {
				return nil, err
			}
			y, err := readI64(r)
			if err != nil {
				return nil, err
			}
			sil = append(sil, worldmodel.Position{X: int(x), Y: int(y)})
		}
		return state.BombExploded{ID: id, Silhouette: sil}, nil

	case state.KindAgentMoved:
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		fx, err := readI64(r)
		if err != nil {
			return nil, err
		}
		fy, err := readI64(r)
		if err != nil {
			return nil, err
		}
		tx, err := readI64(r)
		if err != nil {
			return nil, err
		}
		ty, err := readI64(r)
		if err != nil {
			return nil, err
		}
		return state.AgentMoved{
			AgentID: id,
			From:    worldmodel.Position{X: int(fx), Y: int(fy)},
			To:      worldmodel.Position{X: int(tx), Y: int(ty)},
		}, nil

	case state.KindAgentDamaged:
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		amount, err := readI64(r)
		if err != nil {
			return nil, err
		}
		bombID, err := readU32(r)
		if err != nil {
			return nil, err
		}
		return state.AgentDamaged{AgentID: id, Amount: int(amount), BombID: bombID}, nil

	case state.KindAgentDied:
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		killer, err := readString(r)
		if err != nil {
			return nil, err
		}
		return state.AgentDied{AgentID: id, KillerID: killer}, nil

	case state.KindPowerUpCollected:
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		x, err := readI64(r)
		if err != nil {
			return nil, err
		}
		y, err := readI64(r)
		if err != nil {
			return nil, err
		}
		var kb [1]byte
		if _, err := io.ReadFull(r, kb[:]); err != nil {
			return nil, err
		}
		return state.PowerUpCollected{AgentID: id, Pos: worldmodel.Position{X: int(x), Y: int(y)}, Kind_: worldmodel.PowerUpKind(kb[0])}, nil

	case state.KindTickCompleted:
		tick, err := readU64(r)
		if err != nil {
			return nil, err
		}
		return state.TickCompleted{Tick: tick}, nil

	default:
		return nil, fmt.Errorf("replay: unknown change kind %d", kind)
	}
}
