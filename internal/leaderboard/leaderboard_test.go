package leaderboard

import (
	"testing"

	"bomberkernel/internal/bus"
	"bomberkernel/internal/state"
)

func TestRecordKillUpdatesRankOrder(t *testing.T) {
	b := New(1)
	b.RegisterAgent("a1")
	b.RegisterAgent("a2")

	b.RecordKill("a1", "a2")
	b.RecordKill("a1", "a2")

	standings := b.Standings()
	if len(standings) != 2 {
		t.Fatalf("expected 2 standings, got %d", len(standings))
	}
	if standings[0].AgentID != "a1" {
		t.Fatalf("expected a1 to lead after two kills, got %s", standings[0].AgentID)
	}
	if standings[0].Kills != 2 {
		t.Fatalf("expected a1 to have 2 kills, got %d", standings[0].Kills)
	}
	if standings[1].Deaths != 2 {
		t.Fatalf("expected a2 to have 2 deaths, got %d", standings[1].Deaths)
	}
}

func TestRecordKillWithEmptyKillerOnlyCountsDeath(t *testing.T) {
	b := New(1)
	b.RecordKill("", "a1") // self-elimination: own bomb, no attributed killer

	e := b.Standings()
	if len(e) != 1 {
		t.Fatalf("expected exactly one ranked agent, got %d", len(e))
	}
	if e[0].Deaths != 1 || e[0].Kills != 0 {
		t.Fatalf("expected a1 to have 1 death and 0 kills, got %+v", e[0])
	}
}

func TestSubscribeDrainsAgentDiedEventsFromBus(t *testing.T) {
	bu := bus.New(bus.DefaultConfig())
	board := New(1)
	board.RegisterAgent("bomber")
	board.RegisterAgent("victim")

	sub := board.Subscribe(bu, "leaderboard")

	bu.Publish(bus.Event{Kind: bus.KindAgentDied, Priority: bus.PriorityHigh, Payload: state.AgentDied{AgentID: "victim", KillerID: "bomber"}})
	// An event of a kind the Board doesn't care about must not disturb it.
	bu.Publish(bus.Event{Kind: bus.KindBombPlaced, Priority: bus.PriorityNormal, Payload: state.BombPlaced{ID: 1, Owner: "bomber"}})
	bu.ProcessPending(64)

	board.Drain(sub, 64)

	rank := board.Rank("bomber")
	if rank != 1 {
		t.Fatalf("expected bomber to rank 1st after crediting the kill, got %d", rank)
	}
	standings := board.Standings()
	var victim Entry
	for _, e := range standings {
		if e.AgentID == "victim" {
			victim = e
		}
	}
	if victim.Deaths != 1 {
		t.Fatalf("expected victim to have 1 death, got %+v", victim)
	}
}
