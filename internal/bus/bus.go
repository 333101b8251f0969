package bus

import (
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"bomberkernel/internal/metrics"
)

// SubscriberState tracks a subscriber's health. A subscriber starts
// Active, moves to TimedOut after its rate limiter or delivery queue
// rejects a delivery, and moves to Disconnected — permanently, until
// re-subscribed — after too many consecutive rejections. This mirrors the
// teacher's EventLog per-player limiter, which throttles first and only
// gives up on a chronically slow consumer.
type SubscriberState uint8

const (
	SubscriberActive SubscriberState = iota
	SubscriberTimedOut
	SubscriberDisconnected
)

const defaultMaxConsecutiveDrops = 32

// Subscriber is a registered consumer of bus events.
type Subscriber struct {
	id     string
	filter Filter
	queue  *SPSCQueue[Event]

	limiter *rate.Limiter

	mu               sync.Mutex
	state            SubscriberState
	consecutiveDrops int
}

// ID returns the subscriber's registration id.
func (s *Subscriber) ID() string { return s.id }

// State returns the subscriber's current health.
func (s *Subscriber) State() SubscriberState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Drain pops up to maxItems delivered events in FIFO order.
func (s *Subscriber) Drain(maxItems int) []Event {
	result := make([]Event, 0, maxItems)
	for len(result) < maxItems {
		e, ok := s.queue.TryPop()
		if !ok {
			break
		}
		result = append(result, e)
	}
	return result
}

func (s *Subscriber) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveDrops = 0
	s.state = SubscriberActive
}

func (s *Subscriber) recordDrop(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveDrops++
	s.state = SubscriberTimedOut
	disconnected := s.consecutiveDrops >= defaultMaxConsecutiveDrops
	if disconnected {
		s.state = SubscriberDisconnected
	}
	metrics.BusEventsDropped.WithLabelValues(reason).Inc()
	return disconnected
}

// Bus is the priority event bus (spec.md C2). One Bus instance serves one
// simulation; the engine tick loop is its sole producer.
type Bus struct {
	queues [priorityCount]*LockFreeQueue[Event]
	seq    atomic.Uint64
	cfg    Config

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// Config bounds the bus's queue capacities and per-subscriber behavior.
type Config struct {
	QueueCapacity          int // per priority, rounded up to a power of 2
	SubscriberQueueCapacity int
	SubscriberRatePerSec   float64 // sustained delivery rate per subscriber
	SubscriberBurst        int
}

// DefaultConfig returns reasonable bounds for a single-process simulation
// with a handful of bot subscribers.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:           1024,
		SubscriberQueueCapacity: 256,
		SubscriberRatePerSec:    500,
		SubscriberBurst:         64,
	}
}

// New returns an empty Bus.
func New(cfg Config) *Bus {
	b := &Bus{subscribers: make(map[string]*Subscriber)}
	for p := 0; p < priorityCount; p++ {
		b.queues[p] = NewLockFreeQueue[Event](cfg.QueueCapacity)
	}
	b.cfg = cfg
	return b
}

// Publish assigns the event a sequence number and enqueues it on its
// priority's queue. Returns false if that queue is full — the event is
// dropped and counted, never blocking the caller.
func (b *Bus) Publish(e Event) bool {
	e.Seq = b.seq.Add(1)
	if int(e.Priority) >= priorityCount {
		e.Priority = PriorityNormal
	}
	ok := b.queues[e.Priority].TryPush(e)
	if !ok {
		metrics.BusEventsDropped.WithLabelValues("queue_full").Inc()
	}
	metrics.BusQueueDepth.WithLabelValues(priorityLabel(e.Priority)).Set(float64(b.queues[e.Priority].Len()))
	return ok
}

// Subscribe registers a new subscriber with the given filter. id must be
// unique; re-subscribing under an existing id replaces the prior
// registration (its queued-but-undelivered events are dropped).
func (b *Bus) Subscribe(id string, filter Filter) *Subscriber {
	sub := &Subscriber{
		id:      id,
		filter:  filter,
		queue:   NewSPSCQueue[Event](b.cfg.SubscriberQueueCapacity),
		limiter: rate.NewLimiter(rate.Limit(b.cfg.SubscriberRatePerSec), b.cfg.SubscriberBurst),
	}
	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber; it receives no further events.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subscribers, id)
	b.mu.Unlock()
}

// ProcessPending drains every priority queue, highest first, and fans
// each event out to matching active subscribers. It never blocks: a
// subscriber whose rate limiter or queue rejects delivery is recorded as
// a drop and, if it persists, disconnected. maxPerPriority bounds how
// many events are drained from a single priority in one call, so one
// tick's processing time stays bounded even under a publish storm.
func (b *Bus) ProcessPending(maxPerPriority int) {
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for p := 0; p < priorityCount; p++ {
		events := b.queues[p].Drain(maxPerPriority)
		metrics.BusQueueDepth.WithLabelValues(priorityLabel(Priority(p))).Set(float64(b.queues[p].Len()))
		for _, e := range events {
			b.deliver(e, subs)
		}
	}
}

func (b *Bus) deliver(e Event, subs []*Subscriber) {
	for _, s := range subs {
		if s.State() == SubscriberDisconnected {
			continue
		}
		if !s.filter(e) {
			continue
		}
		if !s.limiter.Allow() {
			s.recordDrop("subscriber_timeout")
			continue
		}
		if !s.queue.TryPush(e) {
			s.recordDrop("queue_full")
			continue
		}
		s.recordSuccess()
	}
}

func priorityLabel(p Priority) string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return strconv.Itoa(int(p))
	}
}
