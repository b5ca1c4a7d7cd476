package coordinator

import "golang.org/x/exp/slices"

// partitionState tracks one partition's progress through the barrier
// protocol for the current round. It is reset wholesale whenever its
// barrier kind releases.
type partitionState struct {
	reachedBarrier     bool
	reachedStepBarrier bool
	empty              bool
	stopped            bool
}

// roundState is the coordinator's full view across all N partitions.
// It is not safe for concurrent use; the event loop in Coordinator.Run
// is its only caller.
type roundState struct {
	partitions []partitionState

	barrierCount     int
	stepBarrierCount int
	stoppedCount     int
}

func newRoundState(n int) *roundState {
	return &roundState{partitions: make([]partitionState, n)}
}

// markBarrier records a BARRIER from partition i. It reports whether
// this was a repeat (the partition already reached this round's
// barrier) so the caller can reply "repeated" per spec.md §4.5.
func (r *roundState) markBarrier(i int) (repeated bool) {
	if r.partitions[i].reachedBarrier {
		return true
	}
	r.partitions[i].reachedBarrier = true
	r.barrierCount++
	return false
}

// releaseBarrier resets every partition's reachedBarrier flag and the
// counter, called once barrierCount reaches N.
func (r *roundState) releaseBarrier() {
	for i := range r.partitions {
		r.partitions[i].reachedBarrier = false
	}
	r.barrierCount = 0
}

// markStepBarrier records a BARRIER_STEP from partition i along with its
// reported local emptiness.
func (r *roundState) markStepBarrier(i int, empty bool) (repeated bool) {
	if r.partitions[i].reachedStepBarrier {
		return true
	}
	r.partitions[i].reachedStepBarrier = true
	r.partitions[i].empty = empty
	r.stepBarrierCount++
	return false
}

// allEmpty is the AND of every partition's reported emptiness. Valid
// only once stepBarrierCount == N.
func (r *roundState) allEmpty() bool {
	return slices.IndexFunc(r.partitions, func(p partitionState) bool { return !p.empty }) == -1
}

// releaseStepBarrier resets every partition's reachedStepBarrier flag
// and the counter, called once stepBarrierCount reaches N.
func (r *roundState) releaseStepBarrier() {
	for i := range r.partitions {
		r.partitions[i].reachedStepBarrier = false
	}
	r.stepBarrierCount = 0
}

// markStopped records a FINISHED from partition i.
func (r *roundState) markStopped(i int) {
	if r.partitions[i].stopped {
		return
	}
	r.partitions[i].stopped = true
	r.stoppedCount++
}

func (r *roundState) allStopped() bool {
	return r.stoppedCount == len(r.partitions)
}
