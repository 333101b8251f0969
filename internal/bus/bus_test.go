package bus

import "testing"

func TestPublishAndDeliverRespectsPriorityOrder(t *testing.T) {
	b := New(DefaultConfig())
	sub := b.Subscribe("observer", AllFilter)

	b.Publish(Event{Kind: KindTickCompleted, Priority: PriorityLow})
	b.Publish(Event{Kind: KindAgentDied, Priority: PriorityHigh})
	b.Publish(Event{Kind: KindBombPlaced, Priority: PriorityNormal})

	b.ProcessPending(100)

	got := sub.Drain(10)
	if len(got) != 3 {
		t.Fatalf("expected 3 delivered events, got %d", len(got))
	}
	if got[0].Kind != KindAgentDied || got[1].Kind != KindBombPlaced || got[2].Kind != KindTickCompleted {
		t.Fatalf("priority order wrong: %+v", got)
	}
}

func TestFilterExcludesNonMatchingKinds(t *testing.T) {
	b := New(DefaultConfig())
	sub := b.Subscribe("bombs-only", KindFilter(KindBombPlaced, KindBombExploded))

	b.Publish(Event{Kind: KindAgentDied, Priority: PriorityHigh})
	b.Publish(Event{Kind: KindBombPlaced, Priority: PriorityNormal})
	b.ProcessPending(100)

	got := sub.Drain(10)
	if len(got) != 1 || got[0].Kind != KindBombPlaced {
		t.Fatalf("expected only KindBombPlaced delivered, got %+v", got)
	}
}

func TestSubscriberDisconnectsAfterSustainedDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SubscriberQueueCapacity = 1
	cfg.SubscriberRatePerSec = 0 // never allow a send
	cfg.SubscriberBurst = 0
	b := New(cfg)
	sub := b.Subscribe("slow", AllFilter)

	for i := 0; i < defaultMaxConsecutiveDrops+5; i++ {
		b.Publish(Event{Kind: KindTickCompleted, Priority: PriorityNormal})
		b.ProcessPending(100)
	}

	if sub.State() != SubscriberDisconnected {
		t.Fatalf("expected subscriber to be disconnected after sustained drops, got state %v", sub.State())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(DefaultConfig())
	sub := b.Subscribe("temp", AllFilter)
	b.Unsubscribe("temp")

	b.Publish(Event{Kind: KindTickCompleted, Priority: PriorityNormal})
	b.ProcessPending(100)

	if got := sub.Drain(10); len(got) != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %+v", got)
	}
}
