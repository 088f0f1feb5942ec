// Package client implements the dCB client: an engine.Engine that talks to an
// RPC server, and the Bucket operation API on top of the dispatcher.
//
// Key Components:
//
//   - Engine: sends every command as its own request over the transport and turns
//     the response stream into engine events. Requests are bounded by the client
//     timeout (a deadline heap drives a single timer goroutine). Requests that time
//     out complete with StatusTimeout, requests on a failed connection with
//     StatusNetworkError, so every scheduled command completes.
//
//   - Bucket: get, store, remove, touch, unlock, counter, observe, endure and stats
//     on one bucket, synchronous or with callbacks. Keys and values are encoded
//     with the default transcoder (JSON, CBOR, raw bytes or UTF-8, optionally
//     zstd compressed). Operation latencies are recorded in go-metrics timers.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Bucket:        1,
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"localhost:8080"},
//	    RetryCount: 3,
//	  },
//	}
//
//	b, err := client.Connect(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer b.Close()
//
//	b.Store(engine.StoreSet, "user:1", map[string]any{"name": "ada"}, client.StoreOptions{
//	  Durability: batch.Durability{PersistTo: 1},
//	})
//	res, err := b.Get("user:1")
//
// Performance Considerations:
//
//   - Multi-key calls send all requests before waiting, a batch costs one round
//     trip regardless of its size.
//
//   - For small messages, a single connection per endpoint is often more efficient
//     due to reduced connection overhead.
//
//   - The binary serializer provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	Engine and Bucket are safe for concurrent use from multiple goroutines.
package client
