package bus

// Priority orders draining within ProcessPending: all High events for a
// tick drain before any Normal, all Normal before any Low. Within a
// priority, events keep FIFO (publish) order.
type Priority uint8

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow

	priorityCount = int(PriorityLow) + 1
)

// Kind distinguishes event payloads for subscriber filters. It is
// intentionally coarser than state.ChangeKind: the bus exists to notify
// observers and bots of things worth reacting to, not to replay exact
// state mutations (that's the Delta/replay log's job).
type Kind uint8

const (
	KindBombPlaced Kind = iota
	KindBombExploded
	KindAgentDied
	KindPowerUpCollected
	KindTickCompleted
)

// Event is one bus message. Payload carries the kind-specific data
// (typically one of the state package's Change payload structs); Seq is
// assigned by the bus at publish time and is strictly increasing, giving
// subscribers a total order even across priorities.
type Event struct {
	Kind     Kind
	Priority Priority
	Seq      uint64
	Payload  any
}

// Filter decides whether a subscriber wants a given event. Filters are
// pure predicates: the bus never calls one more than once per event per
// subscriber, and a filter must not block or mutate bus state.
type Filter func(Event) bool

// KindFilter returns a Filter matching any of the given kinds.
func KindFilter(kinds ...Kind) Filter {
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(e Event) bool { return set[e.Kind] }
}

// AllFilter matches every event; useful for a debug/observer subscriber.
func AllFilter(Event) bool { return true }
