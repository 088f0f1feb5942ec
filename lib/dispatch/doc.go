// Package dispatch routes engine completions back to the batches that issued them.
//
// A Dispatcher owns one engine. Callers issue commands for a batch.MultiResult
// through the dispatcher; the dispatcher sets the batch as the cookie of every
// command. Each event the engine delivers is resolved back to its batch and handed
// to the handler registered for its operation kind:
//
//	get, get-replica, counter  -> value handler (decodes the value)
//	store, remove              -> durability chain (optionally issues an endure request)
//	touch, unlock, endure      -> key operation handler
//	observe                    -> per node reports, completed by a final event
//	stats                      -> per node stat values, completed by a report without server
//
// Every sub-operation completes exactly once; the batch is released when the last
// one completes.
package dispatch
