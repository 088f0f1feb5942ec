// Package result defines the per-key result record produced by the dispatcher.
//
// A Result carries the status of one key operation together with the key, the
// CAS returned by the server, the decoded value and the format flags. Results are
// created by the dispatcher on the first completion for a key (or supplied by the
// caller as Items) and are owned by the batch.MultiResult they belong to.
//
// Status codes are shared by all layers: the engines report them in completion
// events, the server encodes them on the wire and callers inspect them through
// Result.Status, Result.Success and Result.Err.
package result
