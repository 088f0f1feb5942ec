// Package rpc connects dCB clients and servers over the network.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, its conversion to and from engine commands
//     and events, configuration structures and logging.
//
//   - transport: Framed, multiplexed connections (TCP, Unix sockets). A request
//     is answered by one or more response frames carrying its request id.
//
//   - serializer: Message serialization with multiple format options (Binary, CBOR,
//     JSON, GOB) for converting between Message objects and byte arrays.
//
//   - client: An engine.Engine on top of a client transport and the Bucket
//     operation API built on the dispatcher.
//
//   - server: The RPC server executing requests against in-memory buckets and
//     streaming the resulting events back.
package rpc
