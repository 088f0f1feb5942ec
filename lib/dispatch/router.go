package dispatch

import (
	"github.com/ValentinKolb/dCB/lib/batch"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
)

// route resolves the batch of an event and hands the event to the handler of its
// operation kind. The caller holds d.mu.
func (d *Dispatcher) route(ev engine.Event) {
	eventCounter(ev.Kind).Inc()

	mres, ok := ev.Cookie.(*batch.MultiResult)
	if !ok || mres == nil {
		orphanEvents.Inc()
		Logger.Errorf("dropping %s event for key %q: cookie %T is not a batch", ev.Kind, ev.Key, ev.Cookie)
		return
	}

	if mres.Completed() || mres.Remaining() == 0 {
		lateEvents.Inc()
		Logger.Warningf("dropping %s event for key %q: batch already completed", ev.Kind, ev.Key)
		return
	}

	if owner := mres.Owner(); owner != d {
		d.pushFatal(mres, ev.Kind, string(ev.Key), ErrForeignBatch)
		if !isPartial(ev) {
			d.operationCompleted(mres)
		}
		return
	}

	handler, ok := d.table[ev.Kind]
	if !ok {
		d.pushFatal(mres, ev.Kind, string(ev.Key), ErrUnknownOp)
		d.operationCompleted(mres)
		return
	}
	handler(mres, ev)
}

// isPartial reports whether an event is one of several reports of a single
// sub-operation that does not complete it.
func isPartial(ev engine.Event) bool {
	switch ev.Kind {
	case engine.OpObserve:
		return !ev.Final
	case engine.OpStats:
		return ev.Server != ""
	default:
		return false
	}
}

func (d *Dispatcher) pushFatal(mres *batch.MultiResult, op engine.OpKind, key string, err error) {
	fatalErrors.Inc()
	Logger.Errorf("fatal error in %s callback for key %q: %v", op, key, err)
	mres.PushFatal(&FatalError{Op: op, Key: key, Err: err})
}

// commonObjects decodes the key of an event and returns the record for it,
// creating the record if needed. A key that cannot be decoded is recorded as a
// fatal error and false is returned; completing the sub-operation is left to the
// caller.
//
// A record that already exists is reused if the operation tolerates repeated
// events for a key (tolerant), if the records were supplied by the caller or if
// the batch allows duplicates. Otherwise the old record is dropped with a warning
// and a fresh one takes its place. A reused record takes the status of the new
// event.
func (d *Dispatcher) commonObjects(mres *batch.MultiResult, ev engine.Event, kind result.Kind, tolerant bool) (*result.Result, bool) {
	key, err := d.tc.DecodeKey(ev.Key)
	if err != nil {
		d.pushFatal(mres, ev.Kind, string(ev.Key), err)
		return nil, false
	}

	flags := mres.Flags()
	res, exists := mres.Lookup(key)
	if exists && !tolerant && !flags.Has(batch.FlagUserAllocated) && !flags.Has(batch.FlagAllowDuplicates) {
		duplicateKeys.Inc()
		Logger.Warningf("found duplicate key %q in %s callback", key, ev.Kind)
		mres.Warn(batch.DuplicateKeyWarning{Key: key, Op: ev.Kind.String()})
		mres.Discard(key)
		exists = false
	}

	if !exists {
		if flags.Has(batch.FlagItems) {
			kind = result.KindItem
		}
		res = result.New(kind, key)
		mres.Put(res)
	}

	// tolerant operations report per node, a later success must not hide a failure
	if !tolerant || !ev.Status.Success() {
		res.Status = ev.Status
	}
	return res, true
}

// maybePushOpErr marks the batch as failed if status is a failure. With
// checkNotFound set, a missing key in a quiet batch is not treated as a failure.
func (d *Dispatcher) maybePushOpErr(mres *batch.MultiResult, res *result.Result, status result.Status, checkNotFound bool) {
	if status.Success() {
		return
	}
	if checkNotFound && status == result.StatusKeyNotFound && mres.Flags().Has(batch.FlagQuiet) {
		return
	}
	mres.Fail()
	mres.SetFirstError(res)
}
