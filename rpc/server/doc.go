// Package server implements the RPC server of dCB. It serves in-memory buckets
// (see lib/bucket) over any transport and serializer.
//
// Every frame selects a bucket through its shard id. The adapter executes the
// request against the bucket and streams the resulting events back as responses,
// the last one marked with Last. Observe and stats produce several responses,
// durability checks answer from a background goroutine once the mutation is
// durable or the check timed out.
//
// Key Components:
//
//   - IRPCServerAdapter: executes a request against a bucket. The bucket adapter
//     (NewBucketServerAdapter) validates commands with engine.Validate and
//     durability targets against the bucket topology before executing them.
//
//   - RPCServer: creates the buckets of the config, registers the transport
//     handler and optionally serves the Prometheus metrics of the process
//     (VictoriaMetrics) on the configured metrics endpoint.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards:    []common.ServerShard{{ShardID: 1, Name: "default"}},
//	  Replicas:  1,
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatal(err)
//	}
package server
