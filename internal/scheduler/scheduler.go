// Package scheduler implements Scheduler & Channels (spec.md C9): one
// task driving the Engine's tick loop, one task per bot running its
// decision cycle, and a forwarder that drains each bot's bounded
// command queue into the engine's intake every tick.
//
// The task/stopChan shape for the engine side is the teacher's
// Start/Stop (internal/game/engine.go); per-bot tasks add
// context.Context cancellation on top since, unlike the teacher's
// single ticker goroutine, an arbitrary number of bot goroutines need a
// single signal to unwind together — the same role a stopChan serves
// for one goroutine, generalized via context for many.
package scheduler

import (
	"context"
	"sync"
	"time"

	"bomberkernel/internal/botkernel"
	"bomberkernel/internal/engine"
)

// DropPolicy selects what a CommandQueue does when asked to push onto a
// full queue.
type DropPolicy uint8

const (
	// DropNewest discards the incoming command, keeping whatever is
	// already queued (the default: an older command is closer to being
	// consumed, so preserving it loses less).
	DropNewest DropPolicy = iota
	// DropOldest evicts the head of the queue to make room for the
	// incoming command (useful when only the freshest decision matters).
	DropOldest
)

// CommandQueue is a bounded, single-producer/single-consumer mailbox
// between one bot task and the forwarder, capacity 1-4 per spec.md §6.
type CommandQueue struct {
	ch     chan engine.Command
	policy DropPolicy
}

// NewCommandQueue allocates a queue of the given capacity and drop
// policy.
func NewCommandQueue(capacity int, policy DropPolicy) *CommandQueue {
	if capacity < 1 {
		capacity = 1
	}
	if capacity > 4 {
		capacity = 4
	}
	return &CommandQueue{ch: make(chan engine.Command, capacity), policy: policy}
}

// Push enqueues cmd, applying the configured drop policy if the queue is
// full. Never blocks.
func (q *CommandQueue) Push(cmd engine.Command) {
	select {
	case q.ch <- cmd:
		return
	default:
	}

	if q.policy == DropNewest {
		return
	}

	select {
	case <-q.ch:
	default:
	}
	select {
	case q.ch <- cmd:
	default:
	}
}

// Drain pops up to maxItems queued commands in FIFO order without
// blocking.
func (q *CommandQueue) Drain(maxItems int) []engine.Command {
	out := make([]engine.Command, 0, maxItems)
	for len(out) < maxItems {
		select {
		case cmd := <-q.ch:
			out = append(out, cmd)
		default:
			return out
		}
	}
	return out
}

// botTask pairs a bot's decision Kernel with its intake queue.
type botTask struct {
	id    string
	kern  *botkernel.Kernel
	queue *CommandQueue
}

// Config bounds the scheduler's task cadence and per-bot queue shape.
type Config struct {
	DecisionInterval  time.Duration // how often each bot task calls Step
	ForwardInterval   time.Duration // how often the forwarder drains queues into the engine
	QueueCapacity     int
	DropPolicy        DropPolicy
}

// DefaultConfig ties bot decisions and forwarding to a 60Hz cadence with
// a 2-deep drop-newest queue per bot.
func DefaultConfig() Config {
	return Config{
		DecisionInterval: 16 * time.Millisecond,
		ForwardInterval:  16 * time.Millisecond,
		QueueCapacity:    2,
		DropPolicy:       DropNewest,
	}
}

// Scheduler owns the engine task and every bot task, and cooperatively
// shuts all of them down together.
type Scheduler struct {
	eng  *engine.Engine
	cfg  Config
	bots []*botTask

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler around an already-built Engine. The caller
// still owns Engine's GameState/Store/Bus setup; Scheduler only drives
// the tick loop and bot tasks.
func New(eng *engine.Engine, cfg Config) *Scheduler {
	return &Scheduler{eng: eng, cfg: cfg}
}

// AddBot registers a bot's decision Kernel under agentID, with its own
// bounded command queue.
func (s *Scheduler) AddBot(agentID string, kern *botkernel.Kernel) {
	s.bots = append(s.bots, &botTask{
		id:    agentID,
		kern:  kern,
		queue: NewCommandQueue(s.cfg.QueueCapacity, s.cfg.DropPolicy),
	})
}

// Run starts the engine's tick loop and one goroutine per bot task plus
// the forwarder, all cancellable via ctx. Run
// returns immediately; call Stop to unwind everything.
func (s *Scheduler) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.eng.Run()

	for _, bt := range s.bots {
		s.wg.Add(1)
		go s.runBotTask(runCtx, bt)
	}

	s.wg.Add(1)
	go s.runForwarder(runCtx)
}

// Stop halts the engine and every bot/forwarder task, blocking until all
// goroutines have returned.
func (s *Scheduler) Stop() {
	s.eng.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runBotTask(ctx context.Context, bt *botTask) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.DecisionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cmd, ok := bt.kern.Step(ctx)
			if !ok {
				continue
			}
			cmd.AgentID = bt.id
			bt.queue.Push(cmd)
		}
	}
}

func (s *Scheduler) runForwarder(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ForwardInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, bt := range s.bots {
				for _, cmd := range bt.queue.Drain(s.cfg.QueueCapacity) {
					s.eng.Submit(cmd)
				}
			}
		}
	}
}
