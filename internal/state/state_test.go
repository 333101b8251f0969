package state

import (
	"errors"
	"testing"

	"bomberkernel/internal/worldmodel"
)

func newTestState() *GameState {
	s := New(5, 42)
	s.AddAgent(&AgentState{ID: "a1", Pos: worldmodel.Position{X: 0, Y: 0}, MaxBombs: 1, BlastPower: 1, Speed: 1, Alive: true})
	s.AddAgent(&AgentState{ID: "a2", Pos: worldmodel.Position{X: 4, Y: 4}, MaxBombs: 1, BlastPower: 1, Speed: 1, Alive: true})
	return s
}

func TestApplyDeltaBatch_VersionMonotonic(t *testing.T) {
	s := newTestState()
	before := s.Version

	err := s.ApplyDeltaBatch(Delta{Changes: []Change{
		AgentMoved{AgentID: "a1", From: worldmodel.Position{X: 0, Y: 0}, To: worldmodel.Position{X: 1, Y: 0}},
		TickCompleted{Tick: 1},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Version <= before {
		t.Fatalf("version did not advance: before=%d after=%d", before, s.Version)
	}
	if s.Agents["a1"].Pos != (worldmodel.Position{X: 1, Y: 0}) {
		t.Fatalf("agent did not move: %+v", s.Agents["a1"].Pos)
	}
	if s.Tick != 1 {
		t.Fatalf("tick not advanced: %d", s.Tick)
	}
}

func TestApplyDeltaBatch_GroupingOrder(t *testing.T) {
	// A batch that places a bomb AND explodes it in the same tick must
	// apply placement before explosion regardless of slice order.
	s := newTestState()
	err := s.ApplyDeltaBatch(Delta{Changes: []Change{
		BombExploded{ID: 7},
		BombPlaced{ID: 7, Owner: "a1", Pos: worldmodel.Position{X: 0, Y: 0}, Power: 1, FuseTicks: 3},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, stillLive := s.Bombs[7]; stillLive {
		t.Fatalf("bomb 7 should have been removed by the explosion in the same batch")
	}
}

func TestApplyDeltaBatch_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		changes []Change
		wantErr error
	}{
		{
			name:    "bomb placed out of bounds",
			changes: []Change{BombPlaced{ID: 1, Owner: "a1", Pos: worldmodel.Position{X: 99, Y: 99}, Power: 1, FuseTicks: 3}},
			wantErr: ErrInvalidPosition,
		},
		{
			name:    "bomb owner missing",
			changes: []Change{BombPlaced{ID: 1, Owner: "ghost", Pos: worldmodel.Position{X: 1, Y: 1}, Power: 1, FuseTicks: 3}},
			wantErr: ErrReferentMissing,
		},
		{
			name: "duplicate bomb id",
			changes: []Change{
				BombPlaced{ID: 1, Owner: "a1", Pos: worldmodel.Position{X: 1, Y: 1}, Power: 1, FuseTicks: 3},
			},
			wantErr: ErrDuplicateEntity,
		},
		{
			name:    "move unknown agent",
			changes: []Change{AgentMoved{AgentID: "ghost", From: worldmodel.Position{X: 0, Y: 0}, To: worldmodel.Position{X: 1, Y: 0}}},
			wantErr: ErrReferentMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestState()
			if tt.name == "duplicate bomb id" {
				if err := s.ApplyDeltaBatch(Delta{Changes: []Change{BombPlaced{ID: 1, Owner: "a1", Pos: worldmodel.Position{X: 1, Y: 1}, Power: 1, FuseTicks: 3}}}); err != nil {
					t.Fatalf("setup failed: %v", err)
				}
			}
			err := s.ApplyDeltaBatch(Delta{Changes: tt.changes})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got err %v, want wrapping %v", err, tt.wantErr)
			}
		})
	}
}

func TestHashState_DeterministicAndSensitive(t *testing.T) {
	s1 := newTestState()
	s2 := newTestState()
	if s1.HashState() != s2.HashState() {
		t.Fatalf("identical states hashed differently")
	}

	if err := s1.ApplyDeltaBatch(Delta{Changes: []Change{
		AgentMoved{AgentID: "a1", From: worldmodel.Position{X: 0, Y: 0}, To: worldmodel.Position{X: 1, Y: 0}},
	}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s1.HashState() == s2.HashState() {
		t.Fatalf("divergent states hashed the same")
	}
}

func TestHashState_DoesNotConsumeRNG(t *testing.T) {
	s := newTestState()
	draw1 := s.RNG().Int63()
	s.HashState()
	draw2 := s.RNG().Int63()
	// Two consecutive draws from the same *rand.Rand should never be
	// equal for a sane generator seeded once; this mainly guards against
	// HashState silently consuming a draw between them.
	if draw1 == draw2 {
		t.Fatalf("suspiciously repeated RNG draw — HashState may have perturbed the stream")
	}
	// A twin state that never hashes must yield the same second draw; a
	// draw consumed by HashState would shift s's stream by one.
	twin := newTestState()
	twin.RNG().Int63()
	if twinDraw2 := twin.RNG().Int63(); twinDraw2 != draw2 {
		t.Fatalf("HashState consumed an RNG draw: got %d, want %d", draw2, twinDraw2)
	}
}

func TestSnapshot_ImmutableUnderLiveMutation(t *testing.T) {
	s := newTestState()
	snap := s.Snapshot()

	if err := s.ApplyDeltaBatch(Delta{Changes: []Change{
		AgentMoved{AgentID: "a1", From: worldmodel.Position{X: 0, Y: 0}, To: worldmodel.Position{X: 1, Y: 0}},
	}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	view, ok := snap.AgentByID("a1")
	if !ok {
		t.Fatalf("agent missing from snapshot")
	}
	if view.Pos != (worldmodel.Position{X: 0, Y: 0}) {
		t.Fatalf("snapshot mutated by later live state change: %+v", view.Pos)
	}
}

func TestStore_PublishAndReclaim(t *testing.T) {
	st := NewStore()
	s := newTestState()

	st.Publish(s.Snapshot())
	h1, ok := st.AcquireLatest()
	if !ok {
		t.Fatalf("expected a snapshot to be available")
	}

	if err := s.ApplyDeltaBatch(Delta{Changes: []Change{TickCompleted{Tick: 1}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st.Publish(s.Snapshot())

	if st.CurrentVersion() != s.Version {
		t.Fatalf("store version %d does not match state version %d", st.CurrentVersion(), s.Version)
	}

	// The reader still holding h1 must keep seeing the old tick even
	// though a newer snapshot has since been published.
	if h1.Snapshot().Tick != 0 {
		t.Fatalf("held snapshot changed after a newer publish: tick=%d", h1.Snapshot().Tick)
	}
	h1.Release()
}

func TestToObservation_FixedSizeAndUnknownAgent(t *testing.T) {
	s := newTestState()
	snap := s.Snapshot()

	obs, ok := snap.ToObservation("a1")
	if !ok {
		t.Fatalf("expected known agent to produce an observation")
	}
	if len(obs) != ObservationSize {
		t.Fatalf("observation length = %d, want %d", len(obs), ObservationSize)
	}

	if _, ok := snap.ToObservation("ghost"); ok {
		t.Fatalf("expected unknown agent to fail")
	}
}
