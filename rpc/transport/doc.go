// Package transport defines the interfaces of the rpc transport layer.
//
// Transports move opaque frames between client and server. Every request frame
// carries a shard id (the bucket) and a request id. The server may answer a
// request with several response frames carrying the same request id, which lets
// one request stream observe or stats results and lets durability checks answer
// once they finish.
//
// Implementations live in the tcp and unix subpackages, both built on base.
package transport
