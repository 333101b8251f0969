// Skip list ranked set shared by two consumers that both need O(log n)
// insert/rank queries over a small, frequently-updated key set: the
// leaderboard (internal/leaderboard, ranked by score descending) and the
// Bomb Analyzer's chain detonation order (internal/bombs, ranked by
// fuse_remaining ascending, bomb id ascending on ties — callers encode
// that ordering by negating the sort key before Insert).
//
// Origin: Pugh (1990), "Skip Lists: A Probabilistic Alternative to
// Balanced Trees" — Redis ZSET uses the same augmented-span shape for
// O(log n) rank queries.
package spatial

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

const (
	rankedSetMaxLevel  = 32
	rankedSetLevelProb = 0.25
)

// RankedEntry is one scored member of a RankedSet.
type RankedEntry struct {
	Key   string
	Score float64
}

type rankedNode struct {
	entry RankedEntry
	next  []*rankedNode
	span  []int
}

// RankedSet orders members by descending score, breaking ties by
// ascending key, and supports O(log n) rank-range lookups (Range).
type RankedSet struct {
	head   *rankedNode
	level  int32
	length int32
	mu     sync.RWMutex
	rng    *rand.Rand
}

// NewRankedSet returns an empty set. seed fixes the level-assignment RNG
// so that, given the same sequence of Insert calls, the resulting
// skip-list shape — and therefore which ties land adjacent in memory — is
// reproducible; rank order itself never depends on the RNG.
func NewRankedSet(seed int64) *RankedSet {
	head := &rankedNode{
		next: make([]*rankedNode, rankedSetMaxLevel),
		span: make([]int, rankedSetMaxLevel),
	}
	return &RankedSet{head: head, level: 1, rng: rand.New(rand.NewSource(seed))}
}

func (rs *RankedSet) randomLevel() int {
	level := 1
	for level < rankedSetMaxLevel && rs.rng.Float64() < rankedSetLevelProb {
		level++
	}
	return level
}

// Insert adds or repositions key at score. O(log n) average.
func (rs *RankedSet) Insert(key string, score float64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.insertLocked(key, score)
}

func (rs *RankedSet) insertLocked(key string, score float64) {
	update := make([]*rankedNode, rankedSetMaxLevel)
	rank := make([]int, rankedSetMaxLevel)

	x := rs.head
	for i := int(rs.level) - 1; i >= 0; i-- {
		if i == int(rs.level)-1 {
			rank[i] = 0
		} else {
			rank[i] = rank[i+1]
		}
		for x.next[i] != nil && (x.next[i].entry.Score > score ||
			(x.next[i].entry.Score == score && x.next[i].entry.Key < key)) {
			rank[i] += x.span[i]
			x = x.next[i]
		}
		update[i] = x
	}

	if x.next[0] != nil && x.next[0].entry.Key == key {
		rs.removeNodeLocked(x.next[0], update)
		rs.insertLocked(key, score)
		return
	}

	newLevel := rs.randomLevel()
	currentLevel := int(rs.level)
	if newLevel > currentLevel {
		for i := currentLevel; i < newLevel; i++ {
			rank[i] = 0
			update[i] = rs.head
			update[i].span[i] = int(rs.length)
		}
		atomic.StoreInt32(&rs.level, int32(newLevel))
	}

	node := &rankedNode{
		entry: RankedEntry{Key: key, Score: score},
		next:  make([]*rankedNode, newLevel),
		span:  make([]int, newLevel),
	}
	for i := 0; i < newLevel; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
		node.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = (rank[0] - rank[i]) + 1
	}
	for i := newLevel; i < int(rs.level); i++ {
		update[i].span[i]++
	}
	atomic.AddInt32(&rs.length, 1)
}

// Remove deletes key, reporting whether it was present.
func (rs *RankedSet) Remove(key string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	update := make([]*rankedNode, rankedSetMaxLevel)
	x := rs.head
	for i := int(rs.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && x.next[i].entry.Key < key {
			x = x.next[i]
		}
		update[i] = x
	}
	x = x.next[0]
	if x == nil || x.entry.Key != key {
		return false
	}
	rs.removeNodeLocked(x, update)
	return true
}

func (rs *RankedSet) removeNodeLocked(node *rankedNode, update []*rankedNode) {
	for i := 0; i < int(rs.level); i++ {
		if update[i].next[i] == node {
			update[i].span[i] += node.span[i] - 1
			update[i].next[i] = node.next[i]
		} else {
			update[i].span[i]--
		}
	}
	for rs.level > 1 && rs.head.next[rs.level-1] == nil {
		atomic.AddInt32(&rs.level, -1)
	}
	atomic.AddInt32(&rs.length, -1)
}

// Rank returns key's 1-indexed rank (1 = highest score), or 0 if absent.
func (rs *RankedSet) Rank(key string) int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	rank := 0
	x := rs.head
	for i := int(rs.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && x.next[i].entry.Key <= key {
			rank += x.span[i]
			x = x.next[i]
			if x.entry.Key == key {
				return rank
			}
		}
	}
	return 0
}

// Score returns key's score, or (0, false) if absent.
func (rs *RankedSet) Score(key string) (float64, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	x := rs.head
	for i := int(rs.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && x.next[i].entry.Key < key {
			x = x.next[i]
		}
	}
	x = x.next[0]
	if x != nil && x.entry.Key == key {
		return x.entry.Score, true
	}
	return 0, false
}

// Range returns entries ranked [start, end] (1-indexed, inclusive).
func (rs *RankedSet) Range(start, end int) []RankedEntry {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if start <= 0 {
		start = 1
	}
	if end > int(rs.length) {
		end = int(rs.length)
	}
	if start > end {
		return nil
	}

	result := make([]RankedEntry, 0, end-start+1)
	traversed := 0
	x := rs.head
	for i := int(rs.level) - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] < start {
			traversed += x.span[i]
			x = x.next[i]
		}
	}
	x = x.next[0]
	for x != nil && traversed < end {
		traversed++
		if traversed >= start {
			result = append(result, x.entry)
		}
		x = x.next[0]
	}
	return result
}

// Len returns the number of members.
func (rs *RankedSet) Len() int { return int(atomic.LoadInt32(&rs.length)) }

// ForEach walks members in rank order (highest score first), stopping
// early if fn returns false.
func (rs *RankedSet) ForEach(fn func(rank int, entry RankedEntry) bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	rank := 0
	x := rs.head.next[0]
	for x != nil {
		rank++
		if !fn(rank, x.entry) {
			break
		}
		x = x.next[0]
	}
}
