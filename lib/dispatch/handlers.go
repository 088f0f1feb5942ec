package dispatch

import (
	"strconv"

	"github.com/ValentinKolb/dCB/lib/batch"
	"github.com/ValentinKolb/dCB/lib/codec"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
)

// --------------------------------------------------------------------------
// Handlers (called with d.mu held)
// --------------------------------------------------------------------------

// onValue handles get, get-replica and counter events.
func (d *Dispatcher) onValue(mres *batch.MultiResult, ev engine.Event) {
	defer d.operationCompleted(mres)

	res, ok := d.commonObjects(mres, ev, result.KindValue, false)
	if !ok {
		return
	}

	if !ev.Status.Success() {
		d.maybePushOpErr(mres, res, ev.Status, ev.Kind != engine.OpCounter)
		return
	}

	res.Cas = ev.Cas
	if ev.Kind == engine.OpCounter {
		res.Value = ev.Counter
		return
	}

	res.Flags = ev.Flags
	format := ev.Flags
	if mres.Flags().Has(batch.FlagForceBytes) {
		format = codec.FormatBytes
	}
	value, err := d.tc.DecodeValue(ev.Value, format)
	if err != nil {
		d.pushFatal(mres, ev.Kind, res.Key(), err)
		return
	}
	res.Value = value
}

// onKeyOp handles touch, unlock and endure events.
func (d *Dispatcher) onKeyOp(mres *batch.MultiResult, ev engine.Event) {
	defer d.operationCompleted(mres)

	res, ok := d.commonObjects(mres, ev, result.KindOperation, ev.Kind == engine.OpEndure)
	if !ok {
		return
	}
	res.Status = ev.Status
	d.maybePushOpErr(mres, res, ev.Status, false)
	if ev.Cas != 0 {
		res.Cas = ev.Cas
	}
}

// onObserve handles observe events. Every node report is appended to the record
// of the key, the final event completes the sub-operation.
func (d *Dispatcher) onObserve(mres *batch.MultiResult, ev engine.Event) {
	if ev.Final {
		// a failed final event (timeout, network error) carries the failure of the whole observe
		if !ev.Status.Success() {
			if res, ok := d.commonObjects(mres, ev, result.KindValue, true); ok {
				d.maybePushOpErr(mres, res, ev.Status, false)
			}
		}
		d.operationCompleted(mres)
		return
	}

	res, ok := d.commonObjects(mres, ev, result.KindValue, true)
	if !ok {
		return
	}
	d.maybePushOpErr(mres, res, ev.Status, false)
	if !ev.Status.Success() {
		return
	}
	res.Value = append(res.ObserveInfo(), result.ObserveInfo{
		FromMaster: ev.FromMaster,
		State:      ev.KeyState,
		Cas:        ev.Cas,
	})
}

// onStats handles stats events. A report without server ends the sub-operation,
// a failed one fails the batch.
func (d *Dispatcher) onStats(mres *batch.MultiResult, ev engine.Event) {
	if !ev.Status.Success() {
		mres.Fail()
		if mres.FirstError() == nil {
			res := result.New(result.KindBase, "")
			res.Status = ev.Status
			mres.SetFirstError(res)
		}
	}

	if ev.Server == "" {
		d.operationCompleted(mres)
		return
	}
	if !ev.Status.Success() {
		return
	}

	mres.AddStat(string(ev.Key), ev.Server, coerceStat(string(ev.Value)))
}

// coerceStat converts a stat value to int64 or float64 if possible.
func coerceStat(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
