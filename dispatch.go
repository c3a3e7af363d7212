package mirrorset

import (
	"github.com/blockmirror/mirrorset/internal/constants"
	"golang.org/x/sync/errgroup"
)

// writeResult is the single-leg outcome the completion aggregator
// collates into one upper-layer completion.
type writeResult struct {
	leg *Leg
	err error
}

// dispatchFanout issues action against every currently alive leg as one
// parallel batch, using an errgroup in place of the original hand-rolled
// per-leg channel/waitgroup pair. It returns nr_live (the number of legs
// the op was actually issued against) and the per-leg outcomes. Shared
// by dispatchWrite and dispatchDiscard — both are "fan out to every
// alive leg, collect per-leg errors" with different per-leg actions and
// different completion-aggregation rules.
//
// If no leg is alive, dispatchFanout issues nothing and returns nr_live
// 0 with no results; the caller then reports I/O-error. No goroutine in the batch ever
// returns an error from g.Wait's perspective (errors are carried in
// results instead, never used to cancel siblings), so a plain
// errgroup.Group is used in place of errgroup.WithContext — there is no
// cancellation signal for any leg to observe.
func (ms *MirrorSet) dispatchFanout(action func(leg *Leg) error) (nrLive int, results []writeResult) {
	targeted := make([]*Leg, 0, len(ms.legs))
	for _, leg := range ms.legs {
		if leg.Alive() {
			targeted = append(targeted, leg)
		}
	}
	nrLive = len(targeted)
	if nrLive == 0 {
		return 0, nil
	}

	results = make([]writeResult, nrLive)
	var g errgroup.Group

	for i, leg := range targeted {
		i, leg := i, leg
		g.Go(func() error {
			results[i] = writeResult{leg: leg, err: action(leg)}
			return nil
		})
	}
	// Errors are carried in results, not returned from Wait: a failed
	// leg must not short-circuit the other legs' I/O.
	_ = g.Wait()

	return nrLive, results
}

// dispatchWrite fans one write out to every currently alive leg.
func (ms *MirrorSet) dispatchWrite(sector int64, p []byte) (nrLive int, results []writeResult) {
	return ms.dispatchFanout(func(leg *Leg) error {
		off := leg.mappedSector(sector) * int64(constants.SectorSize)
		_, err := leg.Backend.WriteAt(p, off)
		return err
	})
}

// completeWrite is the Write Completion Aggregator: it records every
// failed leg via the Failure Recorder and reports success to the
// caller iff at least one leg in the batch succeeded.
func (ms *MirrorSet) completeWrite(results []writeResult) error {
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			ms.recordLegFailure(r.leg, ErrorWrite)
		}
	}
	ms.pendingWrites.Add(-1)

	if len(results)-failed > 0 {
		return nil
	}
	return NewError("WRITE", ErrCodeAllLegsDead, "every targeted leg failed")
}

// dispatchDiscard fans one discard/trim hint out to every currently
// alive leg. A leg whose Backend does not implement Discarder reports
// not-supported for itself, same as a Discarder.Discard call that
// returns it.
func (ms *MirrorSet) dispatchDiscard(sector, length int64) (nrLive int, results []writeResult) {
	return ms.dispatchFanout(func(leg *Leg) error {
		d, ok := leg.Backend.(Discarder)
		if !ok {
			return ErrNotSupported
		}
		off := leg.mappedSector(sector) * int64(constants.SectorSize)
		return d.Discard(off, length)
	})
}

// completeDiscard is the discard-path completion aggregator. Unlike
// completeWrite, any per-leg failure here bypasses the Failure Recorder
// entirely and is reported to the caller as an ErrCodeNotSupported
// error, whatever the leg's own error was: discard is best-effort
// and must never degrade the array (spec.md §4.2, grounded on
// original_source/linux-kernel-3.13/dms.c's write_callback, whose
// REQ_DISCARD branch always replies -EOPNOTSUPP without ever reaching
// fail_mirror()).
func (ms *MirrorSet) completeDiscard(results []writeResult) error {
	for _, r := range results {
		if r.err != nil {
			return NewError("DISCARD", ErrCodeNotSupported, "discard not supported by a mirror leg")
		}
	}
	return nil
}
