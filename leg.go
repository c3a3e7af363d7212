package mirrorset

import (
	"sync/atomic"

	"github.com/blockmirror/mirrorset/internal/constants"
)

// ErrorKind is a bitset of the three fault categories a leg can suffer.
// The recorder sets all three together on any single fault (see
// DESIGN.md — this conservative behavior is preserved from the
// original driver), but the bits are tracked independently so a future
// caller could distinguish them from Leg.ErrorType.
type ErrorKind uint32

const (
	// ErrorWrite marks a leg that failed a write.
	ErrorWrite ErrorKind = 1 << iota
	// ErrorSync marks a leg that failed a flush/sync.
	ErrorSync
	// ErrorRead marks a leg that failed a read.
	ErrorRead
)

const allErrorBits = ErrorWrite | ErrorSync | ErrorRead

func (k ErrorKind) String() string {
	switch {
	case k&ErrorWrite != 0:
		return "write-error"
	case k&ErrorSync != 0:
		return "sync-error"
	case k&ErrorRead != 0:
		return "read-error"
	default:
		return "none"
	}
}

// Leg is one underlying device in the mirror array. A Leg carries only
// its own index and state; it holds no back-pointer to its owning
// MirrorSet (see DESIGN.md — the cyclic back-pointer from the original
// driver is eliminated by having callbacks carry a MirrorSet handle
// instead).
type Leg struct {
	// Index is this leg's fixed position in the MirrorSet's leg array.
	Index int

	// Name identifies the underlying device for status/table output.
	Name string

	// Offset is the sector offset within the backing device at which
	// the mirrored range begins.
	Offset int64

	// Backend is the storage implementation for this leg.
	Backend Backend

	errorType  atomic.Uint32 // uniform bitset exposed via ErrorType/StatusChar
	seenKinds  atomic.Uint32 // per-kind idempotence guard, set-and-tested one bit at a time
	errorCount atomic.Int32
}

// NewLeg constructs a fresh, alive Leg.
func NewLeg(index int, name string, offset int64, backend Backend) *Leg {
	return &Leg{
		Index:   index,
		Name:    name,
		Offset:  offset,
		Backend: backend,
	}
}

// Alive reports whether the leg has no error bits set and a zero error
// count. Once any bit is set, a leg can never become alive again within
// this MirrorSet's lifetime.
func (l *Leg) Alive() bool {
	return l.errorType.Load() == 0 && l.errorCount.Load() == 0
}

// ErrorType returns the current error bitset.
func (l *Leg) ErrorType() ErrorKind {
	return ErrorKind(l.errorType.Load())
}

// ErrorCount returns the current error counter (capped at
// constants.DMSMaxErrors).
func (l *Leg) ErrorCount() int32 {
	return l.errorCount.Load()
}

// StatusChar returns the per-leg status character used in INFO status
// output: 'A' if alive, 'D' if the write-error bit is set, else 'U' for
// any other fault. This is purely a function of ErrorType/ErrorCount
// (testable property 6 in spec.md §8).
func (l *Leg) StatusChar() byte {
	if l.Alive() {
		return 'A'
	}
	if l.ErrorType()&ErrorWrite != 0 {
		return 'D'
	}
	return 'U'
}

// markFailed records a fault of the given kind. It is idempotent per
// (leg, kind): a repeat of a kind already observed on this leg is a
// complete no-op (no counter bump, no event). The first observation of
// any NEW kind (there are at most three) always raises all three
// uniform error bits — so the leg goes fully dead on the very first
// fault of any kind — bumps error_count up to the DMSMaxErrors cap, and
// reports a transition so the caller schedules exactly one event.
func (l *Leg) markFailed(kind ErrorKind) (transitioned bool) {
	for {
		old := l.seenKinds.Load()
		if old&uint32(kind) != 0 {
			// This exact kind was already recorded; fully idempotent.
			return false
		}
		if l.seenKinds.CompareAndSwap(old, old|uint32(kind)) {
			break
		}
	}

	l.errorType.Store(uint32(allErrorBits))

	for {
		old := l.errorCount.Load()
		if old >= constants.DMSMaxErrors {
			break
		}
		if l.errorCount.CompareAndSwap(old, old+1) {
			break
		}
	}
	return true
}

// mappedSector computes the physical sector on this leg's backing
// device for a mirrored-range sector, per spec.md §4.2:
// leg.offset + (request.sector - target_begin). target_begin is always
// 0 in this implementation — the mirror always maps the whole backing
// range starting at sector 0 of the upper-layer device.
func (l *Leg) mappedSector(sector int64) int64 {
	return l.Offset + sector
}
