package dispatch

import (
	"github.com/ValentinKolb/dCB/lib/batch"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
)

func (d *Dispatcher) onStore(mres *batch.MultiResult, ev engine.Event) {
	d.durabilityChain(mres, ev, false)
}

func (d *Dispatcher) onRemove(mres *batch.MultiResult, ev engine.Event) {
	d.durabilityChain(mres, ev, true)
}

// durabilityChain records the primary outcome of a mutation. If the mutation
// succeeded and the batch requires durability, an endure request for the key is
// issued and the sub-operation stays open until its OpEndure event arrives.
// Otherwise the sub-operation completes here.
func (d *Dispatcher) durabilityChain(mres *batch.MultiResult, ev engine.Event, isRemove bool) {
	res, ok := d.commonObjects(mres, ev, result.KindOperation, false)
	if !ok {
		d.operationCompleted(mres)
		return
	}

	d.maybePushOpErr(mres, res, ev.Status, isRemove)
	if ev.Status.Success() {
		res.Cas = ev.Cas
	}

	if !mres.Flags().Has(batch.FlagDurability) || !ev.Status.Success() {
		d.operationCompleted(mres)
		return
	}

	if d.testHook != nil {
		d.testHook(res)
	}

	dur := mres.Durability()
	cmd := engine.EndureCommand{
		Cookie: mres,
		Key:    ev.Key,
		Cas:    ev.Cas,
		Options: engine.EndureOptions{
			PersistTo:   dur.PersistTo,
			ReplicateTo: dur.ReplicateTo,
			CapMax:      dur.CapMax(),
			CheckDelete: isRemove,
			Timeout:     d.cfg.DurabilityTimeout,
			Interval:    d.cfg.DurabilityInterval,
		},
	}

	endureRequests.Inc()
	if err := d.eng.Endure(cmd); err != nil {
		Logger.Warningf("failed to schedule endure for key %q: %v", res.Key(), err)
		res.Status = result.StatusOf(err)
		d.maybePushOpErr(mres, res, res.Status, false)
		d.operationCompleted(mres)
	}
}
