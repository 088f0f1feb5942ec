// Package base provides the protocol-agnostic part of the rpc transports. The tcp
// and unix packages extend it with connectors that open and tune the sockets.
//
// Frames carry a shard id, a request id and the payload length (see writeFrame).
// A request may be answered by any number of response frames with the same
// request id. The client keeps a handler per pending request until the caller
// forgets the request, so streamed responses need no extra bookkeeping.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: manages multiple connections per endpoint with round-robin
//     selection. If a connection breaks, all requests sent over it fail with an
//     error and the connection is restored with exponential backoff. Requests are
//     never resent, the operations are not idempotent.
//
//   - serverTransport: accepts connections and hands every request to the
//     registered handler. A semaphore limits the concurrent workers per
//     connection and read buffers come from a sync.Pool.
//
// Thread Safety:
//
//	All public methods are thread-safe. Response writers handed to the server
//	handler may be used from any goroutine.
package base
