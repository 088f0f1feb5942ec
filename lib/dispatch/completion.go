package dispatch

import "github.com/ValentinKolb/dCB/lib/batch"

// operationCompleted counts one sub-operation of the batch as completed. When the
// last one completes the waiters are released. An async batch is released once
// its pending count (which includes the scheduling hold) drops to zero; it is
// queued for notification, which is sent after d.mu is released.
func (d *Dispatcher) operationCompleted(mres *batch.MultiResult) {
	left := mres.Decrement()

	if a := mres.Async(); a != nil {
		if a.OpDone() {
			d.release(mres)
			d.ready = append(d.ready, a)
		}
		return
	}
	if left == 0 {
		d.release(mres)
	}
}

func (d *Dispatcher) release(mres *batch.MultiResult) {
	completedBatches.Inc()
	mres.Release()
}
