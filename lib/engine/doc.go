// Package engine defines the contract between the response dispatcher and the
// component that talks to the servers.
//
// The dispatcher hands Commands to an Engine. The engine executes them (in process
// or over the network) and reports each completion as an Event carrying the
// Command's opaque Cookie. Events of one engine are delivered serially through a
// Loop.
//
// Implementations:
//   - local: executes commands against an in-process bucket
//   - rpc/transport/base: sends commands over framed connections (tcp, unix)
//   - enginetest: a scripted engine for tests
package engine
