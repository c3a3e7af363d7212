package mirrorset

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockmirror/mirrorset/internal/constants"
	"github.com/blockmirror/mirrorset/internal/logging"
)

// lifecycleState is the MirrorSet's coarse state machine:
// Constructed -> Active -> Suspended -> Active -> ... -> Destroyed.
type lifecycleState int32

const (
	stateConstructed lifecycleState = iota
	stateActive
	stateSuspended
	stateDestroyed
)

// MirrorSet is the root entity: an ordered array of Legs plus the
// workers and counters that implement synchronous fan-out writes,
// policy-routed single-leg reads, and leg-failure tracking.
type MirrorSet struct {
	name string
	id   string // per-instance identifier, freshly generated by every New (not inherited on reconfig)

	legs []*Leg

	policy     atomic.Value // readPolicy
	defaultLeg defaultLegAtomic

	totalReads    atomic.Int64
	pendingReads  atomic.Int64
	totalWrites   atomic.Int64
	pendingWrites atomic.Int64

	suspended        atomic.Bool
	suppressedErrors atomic.Int64

	retryQueue      chan *retryRequest
	retryBusy       atomic.Bool
	retryWorkerDone sync.WaitGroup
	closed          chan struct{}
	closeOnce       sync.Once

	registry   *Registry
	regSlot    int
	observer   Observer
	eventTrigger EventTrigger

	state atomic.Int32
}

// New constructs a MirrorSet from cfg. It claims a reconfiguration-
// registry slot, inheriting counters and suspend state from any prior
// MirrorSet registered under the same device name, starts the single
// background retry worker, and transitions to Active.
func New(cfg Config) (*MirrorSet, error) {
	if len(cfg.Legs) < MinLegs || len(cfg.Legs) > MaxLegs {
		return nil, NewError("CONSTRUCT", ErrCodeLegCountRange, "leg count out of range")
	}
	if len(cfg.Backends) != len(cfg.Legs) {
		return nil, NewError("CONSTRUCT", ErrCodeInvalidArgument, "backends/legs length mismatch")
	}
	if len(cfg.Name) > DeviceNameSize {
		return nil, NewDeviceError("CONSTRUCT", cfg.Name, ErrCodeDeviceNameLength, "device name exceeds 16 bytes")
	}

	ms := &MirrorSet{
		name:       cfg.Name,
		id:         newInstanceID(),
		retryQueue: make(chan *retryRequest, 256),
		closed:     make(chan struct{}),
		registry:   cfg.Registry,
		observer:   cfg.Observer,
	}
	if ms.observer == nil {
		ms.observer = NoOpObserver{}
	}
	ms.eventTrigger = cfg.OnEvent
	if ms.eventTrigger == nil {
		ms.eventTrigger = defaultEventTrigger
	}

	for i, spec := range cfg.Legs {
		ms.legs = append(ms.legs, NewLeg(i, spec.Device, spec.Offset, cfg.Backends[i]))
	}
	ms.defaultLeg.Store(ms.legs[0])

	switch cfg.Policy {
	case PolicyRoundRobin:
		q := cfg.Quantum
		if q == 0 {
			q = constants.DefaultRoundRobinQuantum
		}
		ms.policy.Store(readPolicy(newRoundRobinPolicy(q, len(ms.legs))))
	case PolicyLogicalPartition:
		c := cfg.ChunkKiB
		if c == 0 {
			c = constants.DefaultChunkKiB
		}
		ms.policy.Store(readPolicy(newLogicalPartitionPolicy(c)))
	case PolicyWeighted:
		w := cfg.Weight
		if w == 0 {
			w = MinWeight
		}
		p := newWeightedPolicy(len(ms.legs), w)
		if cfg.WeightOverrideSet && cfg.WeightOverrideLeg >= 0 && cfg.WeightOverrideLeg < len(ms.legs) {
			p.setWeight(ms, cfg.WeightOverrideLeg, cfg.WeightOverrideValue)
		} else {
			p.recomputeMax(ms)
		}
		ms.policy.Store(readPolicy(p))
	default:
		ms.policy.Store(readPolicy(newRoundRobinPolicy(constants.DefaultRoundRobinQuantum, len(ms.legs))))
	}

	if ms.registry != nil {
		slot, prior, err := ms.registry.claim(ms)
		if err != nil {
			return nil, err
		}
		ms.regSlot = slot
		if prior.found {
			ms.suspended.Store(prior.suspend)
			ms.totalReads.Store(prior.totalReads)
			ms.pendingReads.Store(prior.pendingReads)
			ms.totalWrites.Store(prior.totalWrites)
			ms.pendingWrites.Store(prior.pendingWrites)
			if rr, ok := ms.policy.Load().(readPolicy).(*roundRobinPolicy); ok {
				rr.setQuantum(prior.quantum)
			}
			ms.observer.ObserveReconfig()
		}
	}

	ms.retryWorkerDone.Add(1)
	go ms.retryWorker()

	ms.state.Store(int32(stateActive))
	return ms, nil
}

// roundRobinQuantum returns the active round-robin quantum, or 0 if
// round-robin is not the active policy. Used by the registry to carry
// the quantum forward across a reconfig.
func (ms *MirrorSet) roundRobinQuantum() int64 {
	if p, ok := ms.policy.Load().(readPolicy).(*roundRobinPolicy); ok {
		return p.quantum.Load()
	}
	return 0
}

// Size returns the mirrored range's size in bytes: the smallest leg's
// backend size, since every leg must present an identical range.
func (ms *MirrorSet) Size() int64 {
	min := int64(-1)
	for _, leg := range ms.legs {
		s := leg.Backend.Size()
		if min < 0 || s < min {
			min = s
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// WriteAt implements Backend: the Write Dispatcher and Completion
// Aggregator. A write is fanned out to every alive leg; the upper
// layer sees success iff at least one leg acknowledged it.
func (ms *MirrorSet) WriteAt(p []byte, off int64) (int, error) {
	start := time.Now()
	sector := off / constants.SectorSize
	ms.totalWrites.Add(1)
	ms.pendingWrites.Add(1)

	nrLive, results := ms.dispatchWrite(sector, p)
	if nrLive == 0 {
		ms.pendingWrites.Add(-1)
		ms.noteSuppressedError()
		ms.observer.ObserveWrite(0, uint64(time.Since(start)), false)
		return 0, NewError("WRITE", ErrCodeAllLegsDead, "no alive leg to write to")
	}

	if err := ms.completeWrite(results); err != nil {
		ms.observer.ObserveWrite(0, uint64(time.Since(start)), false)
		return 0, err
	}
	ms.observer.ObserveWrite(uint64(len(p)), uint64(time.Since(start)), true)
	return len(p), nil
}

// DiscardAt fans a TRIM/discard hint out to every alive leg. Unlike
// WriteAt, a discard is best-effort: any leg that cannot service it —
// whether because its Backend has no Discarder support or because the
// Discard call itself failed — makes the whole operation report
// not-supported to the caller without recording a leg failure or
// touching the default leg. Discard is never retried and never
// degrades the array (spec.md §4.2).
func (ms *MirrorSet) DiscardAt(off, length int64) error {
	start := time.Now()
	sector := off / constants.SectorSize

	nrLive, results := ms.dispatchDiscard(sector, length)
	if nrLive == 0 {
		ms.observer.ObserveDiscard(0, uint64(time.Since(start)), false)
		return NewError("DISCARD", ErrCodeAllLegsDead, "no alive leg to discard against")
	}

	if err := ms.completeDiscard(results); err != nil {
		ms.observer.ObserveDiscard(0, uint64(time.Since(start)), false)
		return err
	}
	ms.observer.ObserveDiscard(uint64(length), uint64(time.Since(start)), true)
	return nil
}

// Flush flushes every alive leg, returning success iff at least one
// leg flushed successfully — mirroring the write fan-out's
// partial-failure semantics.
func (ms *MirrorSet) Flush() error {
	start := time.Now()
	ok := false
	for _, leg := range ms.legs {
		if !leg.Alive() {
			continue
		}
		if err := leg.Backend.Flush(); err != nil {
			ms.recordLegFailure(leg, ErrorSync)
			continue
		}
		ok = true
	}
	ms.observer.ObserveFlush(uint64(time.Since(start)), ok)
	if !ok {
		return NewError("FLUSH", ErrCodeAllLegsDead, "no leg flushed successfully")
	}
	return nil
}

// Close implements the Destroyed transition: it drains the retry
// worker, releases the reconfig slot, and closes every leg backend.
func (ms *MirrorSet) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.closed)
	})
	ms.retryWorkerDone.Wait()

	if ms.registry != nil {
		ms.registry.release(ms.regSlot)
	}

	var firstErr error
	for _, leg := range ms.legs {
		if err := leg.Backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	ms.state.Store(int32(stateDestroyed))
	logging.Default().Infof("mirrorset %s (%s) destroyed", ms.name, ms.id)
	return firstErr
}

// Presuspend raises the suspend flag and waits for the retry worker to
// drain: every request already queued (or currently being serviced) is
// allowed to finish before Presuspend returns. It does not cancel
// outstanding writes. The map path does not gate on suspend —
// suspension only guarantees the retry worker is quiescent so the
// upper layer can safely swap tables.
func (ms *MirrorSet) Presuspend() {
	ms.suspended.Store(true)
	for len(ms.retryQueue) > 0 || ms.retryBusy.Load() {
		runtime.Gosched()
	}
	ms.state.Store(int32(stateSuspended))
}

// Postsuspend asserts the suspend flag is set; it performs no work of
// its own.
func (ms *MirrorSet) Postsuspend() bool {
	return ms.suspended.Load()
}

// Resume clears the suspend flag and returns to Active.
func (ms *MirrorSet) Resume() {
	ms.suspended.Store(false)
	ms.state.Store(int32(stateActive))
}

// DefaultLeg returns the current default leg, or nil if every leg is
// dead (terminal-degraded state).
func (ms *MirrorSet) DefaultLeg() *Leg {
	return ms.defaultLeg.Get()
}

// metricsObserver returns this MirrorSet's observer as a
// *MetricsObserver, and false if it was constructed with another kind.
func (ms *MirrorSet) metricsObserver() (*MetricsObserver, bool) {
	mo, ok := ms.observer.(*MetricsObserver)
	return mo, ok
}

// Compile-time interface check: a MirrorSet can itself serve as a leg
// of an outer mirror, or be driven directly by a block-layer adapter.
var _ Backend = (*MirrorSet)(nil)
