package cqf

import "github.com/zeebo/mon"

// waitObserver is telemetry, not functional state (DESIGN NOTES,
// "Instrumentation record" — the C reference's wait_time_data is explicitly
// "not used in normal operations of the CQF"). It is an optional hook a
// caller can attach to a Filter; nothing in the mutation path depends on
// its presence. Modeled the way the teacher's check/main.go aggregates
// mon.Thunk timings for the Add path (addThunk) and prints them via
// mon.Times.
type waitObserver struct {
	locksTaken          uint64
	locksAcquiredSingle uint64
}

// NewWaitObserver returns an observer that can be set as Options.Observer
// to record stripe-lock contention statistics.
func NewWaitObserver() *waitObserver { return &waitObserver{} }

func (w *waitObserver) recordAttempt(acquiredFirstTry bool) {
	w.locksTaken++
	if acquiredFirstTry {
		w.locksAcquiredSingle++
	}
}

// LocksTaken reports the number of stripe-lock acquisitions recorded.
func (w *waitObserver) LocksTaken() uint64 { return w.locksTaken }

// LocksAcquiredSingleAttempt reports how many of those acquisitions
// succeeded on the first, non-blocking attempt (spec §4.4's "try-then-spin
// policy is used: one non-blocking attempt (recorded for telemetry)").
func (w *waitObserver) LocksAcquiredSingleAttempt() uint64 { return w.locksAcquiredSingle }

var mutateThunk mon.Thunk

// timeMutation wraps a mutator body with a zeebo/mon timing thunk, the same
// pattern cascade.go uses around Add/spill (mon.Start().Stop(&err) at the
// casFilter level, a named mon.Thunk at the hot Add path).
func timeMutation(f func() error) error {
	timer := mutateThunk.Start()
	err := f()
	timer.Stop(&err)
	return err
}
