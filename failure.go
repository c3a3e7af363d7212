package mirrorset

import (
	"sync/atomic"

	"github.com/blockmirror/mirrorset/internal/constants"
	"github.com/blockmirror/mirrorset/internal/logging"
)

// EventTrigger is notified once per new-kind fail_mirror transition so
// an operator can react (log, alert, trigger a reconfig). The default
// implementation logs at warn level; Config.OnEvent passed to New can
// override it.
type EventTrigger func(ms *MirrorSet, leg *Leg, kind ErrorKind)

// defaultEventTrigger logs the transition through the package's
// structured logger.
func defaultEventTrigger(ms *MirrorSet, leg *Leg, kind ErrorKind) {
	logging.Default().Warnf("leg failure: dev=%s leg=%d name=%s kind=%s", ms.name, leg.Index, leg.Name, kind)
}

// recordLegFailure is the Failure Recorder. It is idempotent per
// (leg, kind), never blocks, and is safe to call from I/O-completion
// context: Leg.markFailed only touches atomics, and the default-leg
// promotion below scans the (fixed-size, read-only-after-construction)
// leg slice without allocating.
func (ms *MirrorSet) recordLegFailure(leg *Leg, kind ErrorKind) {
	transitioned := leg.markFailed(kind)
	if !transitioned {
		return
	}

	ms.observer.ObserveLegFailure(leg.Index, kind)
	ms.promoteDefaultIfNeeded(leg)
	ms.eventTrigger(ms, leg, kind)
}

// promoteDefaultIfNeeded replaces the default leg with the first alive
// leg (lowest index) when the leg that just died was the default. If
// no alive leg remains, the default becomes nil and the MirrorSet is
// in terminal-degraded state.
func (ms *MirrorSet) promoteDefaultIfNeeded(dead *Leg) {
	for {
		cur := ms.defaultLeg.Load()
		current, _ := cur.(*Leg)
		if current != dead {
			return
		}

		var replacement *Leg
		for _, l := range ms.legs {
			if l.Alive() {
				replacement = l
				break
			}
		}

		if ms.defaultLeg.CompareAndSwap(cur, replacement) {
			return
		}
	}
}

// noteSuppressedError increments the error-message suppression counter.
// Messages are only emitted (via the logger) while the counter is below
// constants.MaxSuppressedErrors; the counter itself never resets within
// a MirrorSet's lifetime.
func (ms *MirrorSet) noteSuppressedError() {
	n := ms.suppressedErrors.Add(1)
	if n <= constants.MaxSuppressedErrors {
		logging.Default().Errorf("mirror %s: I/O error, no alive leg (suppressed after %d)", ms.name, constants.MaxSuppressedErrors)
	}
}

// defaultLegAtomic is a small helper type so MirrorSet.defaultLeg can
// hold a *Leg (including nil) behind an atomic.Value without every
// caller having to type-assert defensively.
type defaultLegAtomic struct {
	atomic.Value
}

func (d *defaultLegAtomic) Get() *Leg {
	v := d.Load()
	if v == nil {
		return nil
	}
	leg, _ := v.(*Leg)
	return leg
}
