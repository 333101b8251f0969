package replay

import (
	"bytes"
	"io"
	"testing"

	"bomberkernel/internal/bus"
	"bomberkernel/internal/engine"
	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

func newRecordingEngine(n int, seed int64) (*engine.Engine, *state.GameState, *state.Store) {
	st := state.New(n, seed)
	store := state.NewStore()
	b := bus.New(bus.DefaultConfig())
	e := engine.New(st, store, b, engine.DefaultConfig())
	store.Publish(st.Snapshot())
	return e, st, store
}

// TestRecordAndVerifyRoundTrip mirrors scenario S4: record a short game,
// then verify every recorded state_hash replays bit-exact from the
// initial state and delta stream alone.
func TestRecordAndVerifyRoundTrip(t *testing.T) {
	e, st, _ := newRecordingEngine(7, 99)
	st.AddAgent(&state.AgentState{ID: "a1", Pos: worldmodel.Position{X: 1, Y: 1}, MaxBombs: 1, BombsRemaining: 1, BlastPower: 2, Speed: 1, Alive: true})
	st.AddAgent(&state.AgentState{ID: "a2", Pos: worldmodel.Position{X: 5, Y: 5}, MaxBombs: 1, BombsRemaining: 1, BlastPower: 2, Speed: 1, Alive: true})

	var out bytes.Buffer
	w, err := NewWriter(&out, st)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	e.SetObserver(func(tick uint64, rngSeed uint64, stateHash uint64, cmds []engine.Command, delta state.Delta) {
		if err := w.WriteTick(TickRecord{Tick: tick, RNGHash: rngSeed, StateHash: stateHash, Commands: cmds, Delta: delta}); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	})

	e.Submit(engine.Command{AgentID: "a1", Kind: engine.CmdPlaceBomb})
	e.Tick()
	e.Submit(engine.Command{AgentID: "a1", Kind: engine.CmdMove, Dir: worldmodel.DirEast})
	e.Tick()
	e.Submit(engine.Command{AgentID: "a2", Kind: engine.CmdMove, Dir: worldmodel.DirWest})
	e.Tick()

	if err := Verify(bytes.NewReader(out.Bytes())); err != nil {
		t.Fatalf("Verify failed on a faithful recording: %v", err)
	}
}

func TestVerifyRejectsMagicMismatch(t *testing.T) {
	var out bytes.Buffer
	out.Write([]byte{0, 0, 0, 0})
	if err := Verify(&out); err == nil {
		t.Fatalf("expected an error for a stream missing a valid header")
	}
}

func TestVerifyDetectsHashTampering(t *testing.T) {
	st := state.New(5, 1)
	st.AddAgent(&state.AgentState{ID: "a1", Pos: worldmodel.Position{X: 0, Y: 0}, MaxBombs: 1, BombsRemaining: 1, Alive: true})

	var out bytes.Buffer
	w, err := NewWriter(&out, st)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	// Advance a throwaway copy's RNG the same way the real engine would
	// at the top of tick 1, so the recorded RNGHash matches what Verify
	// independently reproduces from its own decoded copy — only
	// StateHash is deliberately wrong here.
	seed := uint64(state.New(5, 1).AdvanceRNGSeed())

	delta := state.Delta{Changes: []state.Change{
		state.AgentMoved{AgentID: "a1", From: worldmodel.Position{X: 0, Y: 0}, To: worldmodel.Position{X: 1, Y: 0}},
		state.TickCompleted{Tick: 1},
	}}
	if err := w.WriteTick(TickRecord{Tick: 1, RNGHash: seed, StateHash: 0xDEADBEEF, Commands: nil, Delta: delta}); err != nil {
		t.Fatalf("WriteTick: %v", err)
	}

	err = Verify(bytes.NewReader(out.Bytes()))
	var mismatch *ErrHashMismatch
	if err == nil {
		t.Fatalf("expected a hash mismatch error")
	}
	if !isHashMismatch(err, &mismatch) {
		t.Fatalf("expected *ErrHashMismatch, got %T: %v", err, err)
	}
	if mismatch.Want != 0xDEADBEEF {
		t.Fatalf("unexpected recorded hash in error: %x", mismatch.Want)
	}
}

func isHashMismatch(err error, out **ErrHashMismatch) bool {
	m, ok := err.(*ErrHashMismatch)
	if ok {
		*out = m
	}
	return ok
}

func TestEncodeDecodeCommandsRoundTrip(t *testing.T) {
	cmds := []engine.Command{
		{AgentID: "a1", Kind: engine.CmdMove, Dir: worldmodel.DirNorth},
		{AgentID: "a2", Kind: engine.CmdPlaceBomb},
		{AgentID: "a3", Kind: engine.CmdDetonateRemote},
		{AgentID: "a4", Kind: engine.CmdWait},
	}
	got, err := decodeCommands(encodeCommands(cmds))
	if err != nil {
		t.Fatalf("decodeCommands: %v", err)
	}
	if len(got) != len(cmds) {
		t.Fatalf("expected %d commands, got %d", len(cmds), len(got))
	}
	for i := range cmds {
		if got[i] != cmds[i] {
			t.Fatalf("command %d mismatch: want %+v got %+v", i, cmds[i], got[i])
		}
	}
}

func TestReaderReturnsEOFCleanlyAtEndOfStream(t *testing.T) {
	st := state.New(3, 0)
	var out bytes.Buffer
	if _, err := NewWriter(&out, st); err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	rd, err := NewReader(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := rd.ReadTick(); err != io.EOF {
		t.Fatalf("expected io.EOF on an empty tick stream, got %v", err)
	}
}
