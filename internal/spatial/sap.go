package spatial

import "sort"

// BlastOverlap finds pairs of bombs whose blast bounding boxes might
// intersect, via one-axis sweep with temporal coherence (insertion sort
// over nearly-sorted endpoints, since bomb positions are stationary
// between placement and detonation). The Bomb Analyzer uses these pairs
// as the seed edges of its chain-reaction graph before the narrow phase
// (exact blast silhouette overlap) decides which pairs actually chain.
//
// Origin: Baraff & Witkin (SIGGRAPH 1992) sweep-and-prune, adapted from
// pixel-space AABB overlap to integer tile-range overlap.
type BlastOverlap struct {
	endpoints  []sapEndpoint
	pairs      []BombPair
	active     []uint32
	useInsSort bool
}

type sapEndpoint struct {
	value  int
	bombID uint32
	isMin  bool
}

// BombPair is two bombs (by id) whose blast ranges overlap on the swept
// axis and therefore warrant a narrow-phase silhouette check.
type BombPair struct {
	A, B uint32
}

// NewBlastOverlap preallocates buffers for up to maxBombs simultaneous
// live bombs.
func NewBlastOverlap(maxBombs int) *BlastOverlap {
	return &BlastOverlap{
		endpoints:  make([]sapEndpoint, 0, maxBombs*2),
		pairs:      make([]BombPair, 0, maxBombs),
		active:     make([]uint32, 0, maxBombs),
		useInsSort: true,
	}
}

// BlastRange is one bomb's axis-aligned tile range: its blast silhouette's
// bounding box projected onto the X axis, [MinX, MaxX].
type BlastRange struct {
	BombID   uint32
	MinX, MaxX int
}

// Update rebuilds the sweep from this tick's blast ranges and returns
// every overlapping pair. The returned slice is reused on the next call.
func (s *BlastOverlap) Update(ranges []BlastRange) []BombPair {
	s.pairs = s.pairs[:0]
	s.endpoints = s.endpoints[:0]

	for _, r := range ranges {
		s.endpoints = append(s.endpoints,
			sapEndpoint{value: r.MinX, bombID: r.BombID, isMin: true},
			sapEndpoint{value: r.MaxX, bombID: r.BombID, isMin: false},
		)
	}

	if s.useInsSort && len(s.endpoints) > 1 {
		insertionSortEndpoints(s.endpoints)
	} else {
		sort.Slice(s.endpoints, func(i, j int) bool {
			// Min endpoints sort before max endpoints of equal value, so
			// ranges that only touch still count as overlapping.
			a, b := s.endpoints[i], s.endpoints[j]
			return a.value < b.value || (a.value == b.value && a.isMin && !b.isMin)
		})
	}

	s.active = s.active[:0]
	for _, ep := range s.endpoints {
		if ep.isMin {
			for _, other := range s.active {
				s.pairs = append(s.pairs, BombPair{ep.bombID, other})
			}
			s.active = append(s.active, ep.bombID)
		} else {
			for i, id := range s.active {
				if id == ep.bombID {
					s.active[i] = s.active[len(s.active)-1]
					s.active = s.active[:len(s.active)-1]
					break
				}
			}
		}
	}

	return s.pairs
}

// SetInsertionSort toggles the O(n)-on-nearly-sorted-data insertion sort
// against Go's O(n log n) general sort. Default true.
func (s *BlastOverlap) SetInsertionSort(enabled bool) { s.useInsSort = enabled }

func insertionSortEndpoints(eps []sapEndpoint) {
	for i := 1; i < len(eps); i++ {
		key := eps[i]
		j := i - 1
		for j >= 0 && (eps[j].value > key.value || (eps[j].value == key.value && !eps[j].isMin && key.isMin)) {
			eps[j+1] = eps[j]
			j--
		}
		eps[j+1] = key
	}
}
