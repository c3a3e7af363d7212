package mirrorset

import (
	"time"

	"github.com/blockmirror/mirrorset/internal/constants"
)

// scratch is the per-request record ReadAt builds when a read fails
// and hands to the retry queue. It records the leg the read was
// dispatched to and enough of the original request to retry it on a
// different leg. Writes are never retried and do not use it.
type scratch struct {
	sector int64
	size   int64
	buf    []byte
	leg    *Leg // leg this read was last dispatched to
}

// selectReadLeg consults the active read policy and returns the chosen
// leg, or nil if no leg is alive. Safe to call from completion context.
func (ms *MirrorSet) selectReadLeg(sector int64) *Leg {
	idx := ms.policy.Load().(readPolicy).selectLeg(ms, sector)
	if idx < 0 {
		return nil
	}
	return ms.legs[idx]
}

// numLegs and legAlive implement legSet so the active policy can be
// consulted without depending on MirrorSet's full surface.
func (ms *MirrorSet) numLegs() int { return len(ms.legs) }

func (ms *MirrorSet) legAlive(i int) bool { return ms.legs[i].Alive() }

// ReadAt implements Backend: the MirrorSet itself can stand in as a
// leg of an outer mirror, or be driven directly by a block-layer
// adapter. It picks one alive leg via the active policy, issues the
// read, and on failure pushes the request onto the retry queue.
func (ms *MirrorSet) ReadAt(p []byte, off int64) (int, error) {
	start := time.Now()
	sector := off / constants.SectorSize
	ms.totalReads.Add(1)
	ms.pendingReads.Add(1)

	leg := ms.selectReadLeg(sector)
	if leg == nil {
		ms.pendingReads.Add(-1)
		ms.noteSuppressedError()
		ms.observer.ObserveRead(0, uint64(time.Since(start)), false)
		return 0, NewError("READ", ErrCodeAllLegsDead, "no alive leg to read from")
	}

	n, err := leg.Backend.ReadAt(p, leg.mappedSector(sector)*constants.SectorSize)
	if err == nil {
		ms.pendingReads.Add(-1)
		ms.observer.ObserveRead(uint64(n), uint64(time.Since(start)), true)
		return n, nil
	}

	ms.recordLegFailure(leg, ErrorRead)

	sc := &scratch{sector: sector, size: int64(len(p)), buf: p, leg: leg}
	n, err = ms.enqueueRetry(sc)
	ms.observer.ObserveRead(uint64(n), uint64(time.Since(start)), err == nil)
	return n, err
}
