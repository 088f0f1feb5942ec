package dispatch

import (
	"fmt"

	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/VictoriaMetrics/metrics"
)

var (
	orphanEvents     = metrics.NewCounter("dcb_dispatch_orphan_events_total")
	lateEvents       = metrics.NewCounter("dcb_dispatch_late_events_total")
	duplicateKeys    = metrics.NewCounter("dcb_dispatch_duplicate_keys_total")
	fatalErrors      = metrics.NewCounter("dcb_dispatch_fatal_errors_total")
	endureRequests   = metrics.NewCounter("dcb_dispatch_endure_requests_total")
	completedBatches = metrics.NewCounter("dcb_dispatch_completed_batches_total")
)

// eventCounter returns the per operation event counter.
func eventCounter(op engine.OpKind) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dcb_dispatch_events_total{op=%q}`, op.String()))
}
