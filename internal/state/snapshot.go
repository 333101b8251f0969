package state

import (
	"sync"
	"sync/atomic"

	"bomberkernel/internal/worldmodel"
)

// AgentView and BombView are read-only, already-sorted projections of
// AgentState/Bomb baked into a Snapshot so readers never need to touch a
// map (and never see Go's randomized map iteration order).
type AgentView struct {
	ID             string
	Pos            worldmodel.Position
	BombsRemaining int
	MaxBombs       int
	BlastPower     int
	Speed          int
	Alive          bool
	Abilities      Ability
}

type BombView struct {
	ID        uint32
	Owner     string
	Pos       worldmodel.Position
	FuseTicks int
	Power     int
	Flags     BombFlags
}

// Snapshot is an immutable, point-in-time view of GameState. Once
// published it is never mutated; concurrent readers (the N bot kernels)
// share it freely without locking.
type Snapshot struct {
	Version uint64
	Tick    uint64
	Grid    *worldmodel.Grid // copy-on-write: never mutated after publish
	Agents  []AgentView
	Bombs   []BombView
}

// AgentByID does a linear scan (agent counts are small — tens, not
// thousands) rather than building a map the snapshot would have to
// allocate on every publish.
func (snap *Snapshot) AgentByID(id string) (AgentView, bool) {
	for _, a := range snap.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentView{}, false
}

// Snapshot builds an immutable Snapshot of the current GameState. The grid
// is deep-copied (copy-on-write) so later mutation of the live GameState's
// grid never reaches a published Snapshot; agents/bombs are sorted by id
// for deterministic iteration.
func (s *GameState) Snapshot() *Snapshot {
	agentIDs := s.SortedAgentIDs()
	agents := make([]AgentView, 0, len(agentIDs))
	for _, id := range agentIDs {
		a := s.Agents[id]
		agents = append(agents, AgentView{
			ID: a.ID, Pos: a.Pos, BombsRemaining: a.BombsRemaining,
			MaxBombs: a.MaxBombs, BlastPower: a.BlastPower, Speed: a.Speed,
			Alive: a.Alive, Abilities: a.Abilities,
		})
	}

	bombIDs := s.SortedBombIDs()
	bombs := make([]BombView, 0, len(bombIDs))
	for _, id := range bombIDs {
		b := s.Bombs[id]
		bombs = append(bombs, BombView{
			ID: b.ID, Owner: b.Owner, Pos: b.Pos,
			FuseTicks: b.FuseTicks, Power: b.Power, Flags: b.Flags,
		})
	}

	return &Snapshot{
		Version: s.Version,
		Tick:    s.Tick,
		Grid:    s.Grid.Clone(),
		Agents:  agents,
		Bombs:   bombs,
	}
}

// entry pairs a published Snapshot with a reader refcount. A Snapshot is
// reclaimed (dropped from the store's retained set, left for the garbage
// collector) once its refcount falls to zero and it is no longer the
// latest published version — the same epoch-style bookkeeping the
// teacher's triple-buffered SnapshotPool does with a fixed ring, made
// general enough for an arbitrary number of slow readers to coexist.
type entry struct {
	snap *Snapshot
	refs atomic.Int32
}

// Store publishes Snapshots and hands out refcounted Handles. The writer
// (engine tick loop) never blocks on readers: Publish always succeeds
// immediately, and old entries are reclaimed lazily as their readers
// release them.
type Store struct {
	latest atomic.Pointer[entry]

	mu       sync.Mutex
	retained map[uint64]*entry // version -> entry, for anything still referenced
}

// NewStore returns an empty Store with no published snapshot.
func NewStore() *Store {
	return &Store{retained: make(map[uint64]*entry)}
}

// Publish installs snap as the latest snapshot. The previous latest, if no
// longer held by any reader, is reclaimed immediately; if readers still
// hold it, it stays in the retained set until they release it.
func (st *Store) Publish(snap *Snapshot) {
	e := &entry{snap: snap}

	st.mu.Lock()
	st.retained[snap.Version] = e
	st.mu.Unlock()

	st.latest.Store(e)
	st.reclaimUnreferenced()
}

// reclaimUnreferenced drops retained entries that are no longer the latest
// and have zero outstanding readers. Called opportunistically from
// Publish; never required for correctness (Go's GC will
// eventually collect anything dropped from retained), only for bounding
// the store's own bookkeeping map.
func (st *Store) reclaimUnreferenced() {
	latest := st.latest.Load()
	st.mu.Lock()
	defer st.mu.Unlock()
	for version, e := range st.retained {
		if e == latest {
			continue
		}
		if e.refs.Load() == 0 {
			delete(st.retained, version)
		}
	}
}

// Handle is a reader's hold on a Snapshot. Readers must call Release when
// done; forgetting to do so leaks the entry from the store's bookkeeping
// (not the snapshot's memory, which Go's GC reclaims regardless) until the
// process exits.
type Handle struct {
	e *entry
}

// Snapshot returns the held Snapshot.
func (h Handle) Snapshot() *Snapshot { return h.e.snap }

// Release drops this reader's hold. Once a non-latest entry has no
// holders left, the next Publish drops it from the store's bookkeeping
// map.
func (h Handle) Release() {
	h.e.refs.Add(-1)
}

// AcquireLatest returns a Handle on the most recently published Snapshot.
// Returns false if nothing has been published yet.
func (st *Store) AcquireLatest() (Handle, bool) {
	e := st.latest.Load()
	if e == nil {
		return Handle{}, false
	}
	e.refs.Add(1)
	return Handle{e: e}, true
}

// CurrentVersion returns the version of the most recently published
// Snapshot, or 0 if none has been published.
func (st *Store) CurrentVersion() uint64 {
	e := st.latest.Load()
	if e == nil {
		return 0
	}
	return e.snap.Version
}
