package scheduler

import (
	"testing"

	"bomberkernel/internal/engine"
)

func TestCommandQueueDropNewestKeepsOldest(t *testing.T) {
	q := NewCommandQueue(1, DropNewest)
	q.Push(engine.Command{AgentID: "first"})
	q.Push(engine.Command{AgentID: "second"})

	got := q.Drain(4)
	if len(got) != 1 || got[0].AgentID != "first" {
		t.Fatalf("expected DropNewest to keep the first command, got %+v", got)
	}
}

func TestCommandQueueDropOldestKeepsNewest(t *testing.T) {
	q := NewCommandQueue(1, DropOldest)
	q.Push(engine.Command{AgentID: "first"})
	q.Push(engine.Command{AgentID: "second"})

	got := q.Drain(4)
	if len(got) != 1 || got[0].AgentID != "second" {
		t.Fatalf("expected DropOldest to keep the second command, got %+v", got)
	}
}

func TestCommandQueueDrainRespectsMaxItems(t *testing.T) {
	q := NewCommandQueue(4, DropNewest)
	q.Push(engine.Command{AgentID: "a"})
	q.Push(engine.Command{AgentID: "b"})
	q.Push(engine.Command{AgentID: "c"})

	got := q.Drain(2)
	if len(got) != 2 {
		t.Fatalf("expected Drain(2) to return exactly 2 items, got %d", len(got))
	}
	rest := q.Drain(4)
	if len(rest) != 1 || rest[0].AgentID != "c" {
		t.Fatalf("expected one remaining item 'c', got %+v", rest)
	}
}

func TestCommandQueueCapacityClampedToFour(t *testing.T) {
	q := NewCommandQueue(100, DropNewest)
	if cap(q.ch) != 4 {
		t.Fatalf("expected capacity clamped to 4, got %d", cap(q.ch))
	}
}
