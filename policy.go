package mirrorset

import (
	"sync"
	"sync/atomic"

	"github.com/blockmirror/mirrorset/internal/constants"
)

// PolicyKind names the active read-balancing policy.
type PolicyKind int

const (
	PolicyRoundRobin PolicyKind = iota
	PolicyLogicalPartition
	PolicyWeighted
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyRoundRobin:
		return "round_robin"
	case PolicyLogicalPartition:
		return "logical_part"
	case PolicyWeighted:
		return "weighted"
	default:
		return "unknown"
	}
}

// legSet is the minimal view a policy needs of the owning MirrorSet's
// legs, kept narrow so policy.go has no dependency on MirrorSet itself.
type legSet interface {
	numLegs() int
	legAlive(i int) bool
}

// readPolicy selects one alive leg for a read, or -1 if none is alive.
// Implementations must be safe to call concurrently, including from
// I/O-completion context, and must not block.
type readPolicy interface {
	kind() PolicyKind
	selectLeg(legs legSet, sector int64) int
}

// --- RoundRobin ---------------------------------------------------------

// roundRobinPolicy visits the cursor leg for `quantum` consecutive reads,
// then advances the cursor backward by one slot, wrapping around.
type roundRobinPolicy struct {
	mu        sync.Mutex // stands in for the original's IRQ-safe choose_lock
	quantum   atomic.Int64
	cursor    int
	remaining int64
}

func newRoundRobinPolicy(quantum int64, nlegs int) *roundRobinPolicy {
	p := &roundRobinPolicy{cursor: nlegs - 1}
	p.quantum.Store(quantum)
	p.remaining = quantum
	return p
}

func (p *roundRobinPolicy) kind() PolicyKind { return PolicyRoundRobin }

func (p *roundRobinPolicy) setQuantum(q int64) {
	p.quantum.Store(q)
}

func (p *roundRobinPolicy) selectLeg(legs legSet, _ int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := legs.numLegs()
	if n == 0 {
		return -1
	}
	if p.cursor >= n {
		p.cursor = n - 1
	}

	for attempts := 0; attempts < n; attempts++ {
		if p.remaining > 0 && legs.legAlive(p.cursor) {
			p.remaining--
			return p.cursor
		}

		p.remaining = p.quantum.Load()
		p.cursor--
		if p.cursor < 0 {
			p.cursor = n - 1
		}
		if legs.legAlive(p.cursor) {
			p.remaining--
			return p.cursor
		}
	}
	return -1
}

// --- LogicalPartition ----------------------------------------------------

// logicalPartitionPolicy deterministically maps a sector to a leg by
// chunk-aligned striping, with backward-wrap fallback to the nearest
// alive leg.
type logicalPartitionPolicy struct {
	chunkKiB atomic.Int64
}

func newLogicalPartitionPolicy(chunkKiB int64) *logicalPartitionPolicy {
	p := &logicalPartitionPolicy{}
	p.chunkKiB.Store(chunkKiB)
	return p
}

func (p *logicalPartitionPolicy) kind() PolicyKind { return PolicyLogicalPartition }

func (p *logicalPartitionPolicy) setChunkKiB(kib int64) {
	p.chunkKiB.Store(kib)
}

func (p *logicalPartitionPolicy) selectLeg(legs legSet, sector int64) int {
	n := legs.numLegs()
	if n == 0 {
		return -1
	}

	c := constants.ChunkSectors(int(p.chunkKiB.Load()))
	target := int((sector / c) % int64(n))

	for i := 0; i < n; i++ {
		idx := target - i
		for idx < 0 {
			idx += n
		}
		if legs.legAlive(idx) {
			return idx
		}
	}
	return -1
}

// --- Weighted -------------------------------------------------------------

// weightedPolicy returns the cached highest-weighted alive leg, recomputing
// the argmax only when the cached leg dies or a weight changes.
type weightedPolicy struct {
	mu         sync.Mutex
	weights    [constants.MaxLegs]atomic.Int32
	maxLiveIdx atomic.Int32
}

func newWeightedPolicy(nlegs int, defaultWeight int32) *weightedPolicy {
	p := &weightedPolicy{}
	for i := 0; i < nlegs; i++ {
		p.weights[i].Store(defaultWeight)
	}
	p.maxLiveIdx.Store(0)
	return p
}

func (p *weightedPolicy) kind() PolicyKind { return PolicyWeighted }

func (p *weightedPolicy) setWeight(legs legSet, idx int, weight int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.weights[idx].Store(weight)
	p.recomputeMaxLocked(legs)
}

// recomputeMax is recomputeMaxLocked with its own locking, for callers
// that don't already hold p.mu (e.g. right after construction, before
// the policy is published to any other goroutine).
func (p *weightedPolicy) recomputeMax(legs legSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recomputeMaxLocked(legs)
}

// recomputeMaxLocked finds the alive leg with the highest weight,
// breaking ties by lowest index. Caller holds p.mu.
func (p *weightedPolicy) recomputeMaxLocked(legs legSet) {
	n := legs.numLegs()
	best := -1
	var bestWeight int32 = -1
	for i := 0; i < n; i++ {
		if !legs.legAlive(i) {
			continue
		}
		w := p.weights[i].Load()
		if w > bestWeight {
			bestWeight = w
			best = i
		}
	}
	if best >= 0 {
		p.maxLiveIdx.Store(int32(best))
	}
}

func (p *weightedPolicy) selectLeg(legs legSet, _ int64) int {
	cached := int(p.maxLiveIdx.Load())
	if cached < legs.numLegs() && legs.legAlive(cached) {
		return cached
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.recomputeMaxLocked(legs)

	cached = int(p.maxLiveIdx.Load())
	if cached < legs.numLegs() && legs.legAlive(cached) {
		return cached
	}
	return -1
}
