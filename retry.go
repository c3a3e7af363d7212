package mirrorset

import "github.com/blockmirror/mirrorset/internal/constants"

// retryRequest is a failed read pushed onto the FIFO retry queue. It
// carries everything retryWorker needs to reselect a live leg and
// re-issue the read, plus a channel the original caller blocks on for
// the terminal outcome.
type retryRequest struct {
	sc   *scratch
	done chan retryOutcome
}

type retryOutcome struct {
	n   int
	err error
}

// enqueueRetry pushes a failed read onto the MirrorSet's retry queue
// and blocks until the single background retry worker has reselected
// a live leg, re-issued the read, and produced a terminal outcome.
// This mirrors the original's "restore from scratch, push under
// spinlock, schedule worker" path while keeping the Go ReadAt contract
// synchronous to its caller.
func (ms *MirrorSet) enqueueRetry(sc *scratch) (int, error) {
	req := &retryRequest{sc: sc, done: make(chan retryOutcome, 1)}

	select {
	case ms.retryQueue <- req:
	case <-ms.closed:
		ms.pendingReads.Add(-1)
		return 0, NewError("READ", ErrCodeAllLegsDead, "mirror set closed")
	}

	outcome := <-req.done
	ms.pendingReads.Add(-1)
	return outcome.n, outcome.err
}

// retryWorker is the single long-lived goroutine draining the retry
// queue in FIFO order. One worker per MirrorSet, started in New and
// stopped when the MirrorSet is destroyed (Close). Presuspend does not
// stop it; it only waits for the worker to go idle.
func (ms *MirrorSet) retryWorker() {
	defer ms.retryWorkerDone.Done()

	for {
		select {
		case req := <-ms.retryQueue:
			ms.retryBusy.Store(true)
			ms.serviceRetry(req)
			ms.retryBusy.Store(false)
		case <-ms.closed:
			ms.drainRetryQueue()
			return
		}
	}
}

// drainRetryQueue services every request already buffered on the retry
// queue before the worker exits. Without this, a caller whose
// enqueueRetry already pushed onto the buffered channel just ahead of
// Close could have its request picked up by the closed branch of the
// select above instead of ever being serviced — leaving it blocked
// forever on <-req.done, since nothing would ever send to it.
func (ms *MirrorSet) drainRetryQueue() {
	for {
		select {
		case req := <-ms.retryQueue:
			ms.retryBusy.Store(true)
			ms.serviceRetry(req)
			ms.retryBusy.Store(false)
		default:
			return
		}
	}
}

// serviceRetry reselects a live leg and re-issues the read, trying at
// most once per leg so a string of freshly-dying legs can never spin
// the worker forever. The last leg tried is excluded from the next
// selection so a failing leg is never retried against itself.
func (ms *MirrorSet) serviceRetry(req *retryRequest) {
	sc := req.sc
	excluded := sc.leg

	for attempt := 0; attempt < len(ms.legs); attempt++ {
		leg := ms.selectReadLeg(sc.sector)
		if leg == nil || leg == excluded {
			leg = ms.nextAliveLegExcept(excluded)
		}
		if leg == nil {
			break
		}

		n, err := leg.Backend.ReadAt(sc.buf, leg.mappedSector(sc.sector)*constants.SectorSize)
		if err == nil {
			ms.observer.ObserveRetry(true)
			req.done <- retryOutcome{n, nil}
			return
		}

		ms.recordLegFailure(leg, ErrorRead)
		excluded = leg
	}

	ms.observer.ObserveRetry(false)
	req.done <- retryOutcome{0, NewError("READ", ErrCodeAllLegsDead, "no surviving leg for retry")}
}

// nextAliveLegExcept walks the leg array for the first alive leg other
// than except, or nil if none remains.
func (ms *MirrorSet) nextAliveLegExcept(except *Leg) *Leg {
	for _, leg := range ms.legs {
		if leg != except && leg.Alive() {
			return leg
		}
	}
	return nil
}
