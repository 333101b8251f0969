// Package botkernel implements the Bot Kernel (spec.md C8): the
// per-agent decision pipeline that turns a published Snapshot into one
// Command per tick, binding the Influence Maps (C3) and Goal Planner
// (C6), enforcing a decision-time budget, and isolating a misbehaving
// bot from the rest of the tournament.
//
// The budget watchdog is grounded on the teacher's per-player rate
// limiter (internal/game/event_log.go's playerLimiters sync.Map of
// golang.org/x/time/rate.Limiter) — here there is exactly one bot per
// Kernel, so a single limiter suffices; the fault-window/disqualify
// state machine generalizes the same file's dropped/total event
// counters into an explicit Active/Degraded/Disqualified lifecycle.
package botkernel

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"bomberkernel/internal/bombs"
	"bomberkernel/internal/engine"
	"bomberkernel/internal/influence"
	"bomberkernel/internal/metrics"
	"bomberkernel/internal/planner"
	"bomberkernel/internal/state"
	"bomberkernel/internal/worldmodel"
)

// Action is a policy's decision, independent of the wire-level
// engine.Command so an external Policy never needs to import engine's
// command-arrival bookkeeping.
type Action struct {
	Kind planner.ActionKind
	Dir  worldmodel.Dir
}

// Policy is an optional external decision hook. When set, a Kernel
// defers to it instead of the built-in Goal Planner — e.g. a trained
// policy wired in by the tournament harness. Decide must return within
// the Kernel's configured decision timeout; the Kernel does not trust
// it to self-enforce that.
type Policy interface {
	Decide(ctx context.Context, observation []float32) (Action, error)
}

// FaultState is a Kernel's health in the disqualification state machine.
type FaultState uint8

const (
	StateActive FaultState = iota
	StateDegraded
	StateDisqualified
)

func (s FaultState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateDisqualified:
		return "disqualified"
	default:
		return "unknown"
	}
}

// Config bounds one Kernel's timing and fault tolerance.
type Config struct {
	AgentID string

	DecisionRate    float64 // decisions/sec the rate limiter allows (spec.md's decision budget)
	DecisionBurst   int
	DecisionTimeout time.Duration

	MaxFaultsInWindow int
	FaultWindowTicks  uint64

	Influence influence.Config
	Planner   planner.Config
}

// DefaultConfig returns one decision per tick at 60Hz with headroom for
// a handful of bursts, a 4ms decision budget, and disqualification after
// 5 faults within 300 ticks (5 seconds at 60Hz).
func DefaultConfig(agentID string) Config {
	return Config{
		AgentID:           agentID,
		DecisionRate:      60,
		DecisionBurst:     4,
		DecisionTimeout:   4 * time.Millisecond,
		MaxFaultsInWindow: 5,
		FaultWindowTicks:  300,
		Influence:         influence.DefaultConfig(),
		Planner:           planner.DefaultConfig(),
	}
}

// Kernel drives one agent's decisions. It is not safe for concurrent use
// by more than one goroutine calling Step — the scheduler (C9) runs
// exactly one goroutine per Kernel.
type Kernel struct {
	cfg     Config
	store   *state.Store
	maps    *influence.Maps
	planner *planner.Planner
	policy  Policy
	limiter *rate.Limiter

	prevSnap *state.Snapshot

	mu         sync.Mutex
	fstate     FaultState
	faultTicks []uint64
}

// New constructs a Kernel reading Snapshots from store. gridN must match
// the board the simulation runs on, so the first sync knows to do a full
// rebuild rather than an incremental one.
func New(cfg Config, store *state.Store, gridN int) *Kernel {
	return &Kernel{
		cfg:     cfg,
		store:   store,
		maps:    influence.NewMaps(gridN, cfg.Influence),
		planner: planner.New(cfg.Planner),
		limiter: rate.NewLimiter(rate.Limit(cfg.DecisionRate), cfg.DecisionBurst),
	}
}

// SetPolicy installs (or clears, with nil) an external decision hook.
func (k *Kernel) SetPolicy(p Policy) { k.policy = p }

// State returns the Kernel's current health.
func (k *Kernel) State() FaultState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.fstate
}

// Step runs one decision cycle against the latest published Snapshot and
// returns the Command to submit, or ok=false if there is nothing new to
// act on (no snapshot yet, or this agent is already disqualified).
// Step never panics: a decision that panics, times out, or returns an
// error is converted into degraded-mode Wait and recorded as a fault.
func (k *Kernel) Step(ctx context.Context) (engine.Command, bool) {
	if k.State() == StateDisqualified {
		return engine.Command{}, false
	}

	handle, ok := k.store.AcquireLatest()
	if !ok {
		return engine.Command{}, false
	}
	defer handle.Release()
	snap := handle.Snapshot()

	start := time.Now()

	if !k.limiter.Allow() {
		k.recordFault(snap.Tick, "decision_rate_exceeded")
		metrics.BotDecisionDuration.WithLabelValues("rate_limited").Observe(time.Since(start).Seconds())
		return k.waitCommand(), true
	}

	type result struct {
		cmd engine.Command
		err error
	}
	done := make(chan result, 1)
	go func() {
		cmd, err := k.decide(ctx, snap)
		done <- result{cmd, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			k.recordFault(snap.Tick, r.err.Error())
			metrics.BotDecisionDuration.WithLabelValues("fault").Observe(time.Since(start).Seconds())
			return k.waitCommand(), true
		}
		k.recordSuccess()
		metrics.BotDecisionDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
		return r.cmd, true
	case <-time.After(k.cfg.DecisionTimeout):
		k.recordFault(snap.Tick, "decision_timeout")
		metrics.BotDecisionDuration.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
		return k.waitCommand(), true
	}
}

func (k *Kernel) waitCommand() engine.Command {
	return engine.Command{AgentID: k.cfg.AgentID, Kind: engine.CmdWait}
}

// decide runs the actual policy: external Policy if one is installed,
// otherwise the built-in Influence Maps + Goal Planner pipeline. Panics
// from either path are converted into an error so Step's caller always
// gets a clean result.
func (k *Kernel) decide(ctx context.Context, snap *state.Snapshot) (cmd engine.Command, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("botkernel: decision panicked: %v", r)
		}
	}()

	self, ok := snap.AgentByID(k.cfg.AgentID)
	if !ok || !self.Alive {
		return k.waitCommand(), nil
	}

	k.syncMaps(snap)
	scheduled := k.scheduledBlasts(snap)

	if k.policy != nil {
		obs, ok := snap.ToObservation(k.cfg.AgentID)
		if !ok {
			return k.waitCommand(), nil
		}
		obs = k.mergeInfluence(obs, self.Pos)
		act, perr := k.policy.Decide(ctx, obs)
		if perr != nil {
			return engine.Command{}, perr
		}
		return engine.Command{AgentID: k.cfg.AgentID, Kind: toEngineKind(act.Kind), Dir: act.Dir}, nil
	}

	if k.planner.Active() == nil || k.planner.ShouldReplan(snap.Grid, k.maps, self.Pos) {
		k.planner.Select(snap.Grid, k.maps, snap, k.cfg.AgentID, scheduled, snap.Tick)
	}
	action, ok := k.planner.Advance()
	if !ok {
		return k.waitCommand(), nil
	}
	return engine.Command{AgentID: k.cfg.AgentID, Kind: toEngineKind(action.Kind), Dir: action.Dir}, nil
}

func toEngineKind(k planner.ActionKind) engine.CommandKind {
	switch k {
	case planner.ActionMove:
		return engine.CmdMove
	case planner.ActionPlaceBomb:
		return engine.CmdPlaceBomb
	case planner.ActionDetonateRemote:
		return engine.CmdDetonateRemote
	default:
		return engine.CmdWait
	}
}

// syncMaps advances the Kernel's local Influence Maps to snap, choosing
// a full rebuild only on the very first sync and an incremental
// ApplySync (diffing bombs and tiles against the previous Snapshot)
// every tick after, exercising both paths spec.md's testable property 8
// requires to agree.
func (k *Kernel) syncMaps(snap *state.Snapshot) {
	if k.prevSnap == nil || k.prevSnap.Grid.N != snap.Grid.N {
		k.maps.RebuildFull(snap.Grid, snap.Bombs, snap.Tick, snap.Version)
		k.prevSnap = snap
		return
	}

	prevBombs := make(map[uint32]bool, len(k.prevSnap.Bombs))
	for _, b := range k.prevSnap.Bombs {
		prevBombs[b.ID] = true
	}
	curBombs := make(map[uint32]bool, len(snap.Bombs))
	var newBombs []state.BombView
	for _, b := range snap.Bombs {
		curBombs[b.ID] = true
		if !prevBombs[b.ID] {
			newBombs = append(newBombs, b)
		}
	}
	var removed []uint32
	for id := range prevBombs {
		if !curBombs[id] {
			removed = append(removed, id)
		}
	}

	var changedTiles []worldmodel.Position
	prevTiles := k.prevSnap.Grid.TilesRaw()
	curTiles := snap.Grid.TilesRaw()
	n := snap.Grid.N
	for i := range curTiles {
		if curTiles[i] != prevTiles[i] {
			changedTiles = append(changedTiles, worldmodel.Position{X: i % n, Y: i / n})
		}
	}

	k.maps.ApplySync(snap.Grid, newBombs, removed, changedTiles, snap.Tick, snap.Version)
	k.prevSnap = snap
}

func (k *Kernel) scheduledBlasts(snap *state.Snapshot) []bombs.ScheduledBlast {
	out := make([]bombs.ScheduledBlast, 0, len(snap.Bombs))
	for _, b := range snap.Bombs {
		out = append(out, bombs.ScheduledBlast{Tick: snap.Tick + uint64(b.FuseTicks), Cells: bombs.Silhouette(snap.Grid, b)})
	}
	return out
}

// mergeInfluence appends the Danger/Opportunity layer samples over the
// same local window state.ToObservation encodes, giving an external
// policy the influence-layer context spec.md's observation contract
// calls for without internal/state importing internal/influence (which
// would cycle back through internal/state's own BombView dependency).
func (k *Kernel) mergeInfluence(base []float32, self worldmodel.Position) []float32 {
	r := state.ObservationWindowRadius
	out := append([]float32(nil), base...)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			p := worldmodel.Position{X: self.X + dx, Y: self.Y + dy}
			out = append(out, k.maps.Danger.At(p), k.maps.Opportunity.At(p))
		}
	}
	return out
}

func (k *Kernel) recordFault(tick uint64, reason string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.faultTicks = append(k.faultTicks, tick)
	cutoff := int64(tick) - int64(k.cfg.FaultWindowTicks)
	kept := k.faultTicks[:0]
	for _, t := range k.faultTicks {
		if int64(t) >= cutoff {
			kept = append(kept, t)
		}
	}
	k.faultTicks = kept

	if len(k.faultTicks) >= k.cfg.MaxFaultsInWindow {
		if k.fstate != StateDisqualified {
			log.Printf("botkernel[%s]: disqualified after %d faults within %d ticks (last: %s)",
				k.cfg.AgentID, len(k.faultTicks), k.cfg.FaultWindowTicks, reason)
		}
		k.fstate = StateDisqualified
		return
	}
	k.fstate = StateDegraded
	log.Printf("botkernel[%s]: fault at tick %d (%s), %d/%d in window",
		k.cfg.AgentID, tick, reason, len(k.faultTicks), k.cfg.MaxFaultsInWindow)
}

func (k *Kernel) recordSuccess() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.fstate == StateDegraded {
		k.fstate = StateActive
	}
}
