// Package common provides the data structures shared by the rpc client and server.
//
// Key Components:
//
//   - Message: the wire message for requests and responses, with conversions from
//     and to engine commands, endure commands and events. One request may produce
//     several responses (observe, stats), the last one has Last set.
//
//   - MessageType: the operation of a message, mirrors engine.OpKind.
//
//   - ServerConfig / ClientConfig: configuration of the server and client with a
//     table formatted String method.
//
//   - Logger: a dragonboat logger factory with a consistent format for all packages.
package common
