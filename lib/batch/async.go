package batch

import "sync/atomic"

// AsyncResult is a batch that notifies the issuer through callbacks instead of
// (or in addition to) a blocking Wait.
//
// It keeps its own pending counter which is independent of Remaining: the counter
// starts with one scheduling hold owned by the issuer, so the notification cannot
// fire while sub-operations are still being scheduled. The issuer drops the hold
// once everything is scheduled.
type AsyncResult struct {
	*MultiResult

	pending   atomic.Int64
	invoked   atomic.Bool
	onSuccess func(*MultiResult)
	onError   func(*MultiResult)
}

// NewAsync creates an async batch. onSuccess is invoked if all sub-operations
// succeeded and no fatal error was recorded, onError otherwise. Either may be nil.
func NewAsync(flags Flag, dur Durability, onSuccess, onError func(*MultiResult)) *AsyncResult {
	a := &AsyncResult{
		MultiResult: New(flags, dur),
		onSuccess:   onSuccess,
		onError:     onError,
	}
	a.pending.Store(1)
	a.MultiResult.async = a
	return a
}

// Pending returns the number of pending sub-operations including the scheduling hold.
func (a *AsyncResult) Pending() int {
	return int(a.pending.Load())
}

// OpDone marks one pending sub-operation (or the scheduling hold) as done and
// reports whether it was the last one. Dropping below zero panics.
func (a *AsyncResult) OpDone() bool {
	left := a.pending.Add(-1)
	if left < 0 {
		panic("batch: async pending count dropped below zero")
	}
	return left == 0
}

// Invoked reports whether the notification has been delivered.
func (a *AsyncResult) Invoked() bool {
	return a.invoked.Load()
}

// Invoke delivers the completion notification. Only the first call has an effect.
func (a *AsyncResult) Invoke() {
	if !a.invoked.CompareAndSwap(false, true) {
		return
	}
	if a.AllOk() && len(a.Exceptions()) == 0 {
		if a.onSuccess != nil {
			a.onSuccess(a.MultiResult)
		}
		return
	}
	if a.onError != nil {
		a.onError(a.MultiResult)
	}
}
