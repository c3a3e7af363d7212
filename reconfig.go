package mirrorset

import (
	"sync"

	"github.com/blockmirror/mirrorset/internal/constants"
	"github.com/google/uuid"
)

// reconfigSlot is one entry in the process-wide registry of live
// MirrorSets, used to carry selected state across table swaps
// (graceful leg add/remove).
type reconfigSlot struct {
	inUse   bool
	devName string
	ms      *MirrorSet
}

// Registry is the Reconfiguration Registry: a fixed-size slot table
// keyed by device name. A fresh MirrorSet claims the first free slot
// at construction and, if a prior MirrorSet with the same device name
// still occupies another slot, inherits its counters and suspend flag
// before going live. It is safe for concurrent use — two table-swap
// operations can legitimately race.
type Registry struct {
	mu    sync.Mutex
	slots []reconfigSlot
}

// NewRegistry creates a registry with the given slot capacity. A
// process normally holds one Registry as a singleton and passes it to
// every MirrorSet it constructs; dependency-injecting it (rather than
// reaching for a package-level global) keeps tests hermetic.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = constants.DefaultReconfigSlots
	}
	return &Registry{slots: make([]reconfigSlot, capacity)}
}

// inherited carries forward state from a prior MirrorSet occupying a
// slot under the same device name.
type inherited struct {
	found        bool
	suspend      bool
	quantum      int64
	totalReads   int64
	pendingReads int64
	totalWrites  int64
	pendingWrites int64
}

// claim reserves the first free slot for ms, inheriting state from any
// prior MirrorSet registered under the same device name. It returns
// the claimed slot index, or an error if the registry is full.
func (r *Registry) claim(ms *MirrorSet) (int, inherited, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prior inherited
	for _, s := range r.slots {
		if s.inUse && s.devName == ms.name {
			prior = inherited{
				found:         true,
				suspend:       s.ms.suspended.Load(),
				quantum:       s.ms.roundRobinQuantum(),
				totalReads:    s.ms.totalReads.Load(),
				pendingReads:  s.ms.pendingReads.Load(),
				totalWrites:   s.ms.totalWrites.Load(),
				pendingWrites: s.ms.pendingWrites.Load(),
			}
			break
		}
	}

	for i := range r.slots {
		if !r.slots[i].inUse {
			r.slots[i] = reconfigSlot{inUse: true, devName: ms.name, ms: ms}
			return i, prior, nil
		}
	}

	return -1, inherited{}, NewDeviceError("RECONFIG", ms.name, ErrCodeRegistryFull, "no free reconfig slot")
}

// release frees the slot at index i. Called during MirrorSet teardown.
func (r *Registry) release(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= 0 && i < len(r.slots) {
		r.slots[i] = reconfigSlot{}
	}
}

// findByName returns the MirrorSet currently registered under name, if any.
func (r *Registry) findByName(name string) (*MirrorSet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if s.inUse && s.devName == name {
			return s.ms, true
		}
	}
	return nil, false
}

// newInstanceID produces a per-MirrorSet identifier for log
// correlation across reconfigurations of the same device name.
func newInstanceID() string {
	return uuid.NewString()
}
