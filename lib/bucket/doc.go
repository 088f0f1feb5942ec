// Package bucket provides an in-memory document store that the engines execute
// commands against.
//
// A bucket stores documents (value, format flags, cas, expiry) and supports
// conditional writes, locking reads, counters and removal. It simulates a small
// cluster: every key has a master node and Options.Replicas replica nodes. A
// mutation reaches the replicas after ReplicateDelay and every node persists it
// PersistDelay after receiving it, which makes observe and durability checks
// (endure) behave like they do against a real cluster.
//
// Usage:
//
//	b, _ := bucket.New(bucket.DefaultOptions())
//	cas, status := b.Store(engine.StoreSet, "k", []byte(`{"a":1}`), codec.FormatJSON, 0, 0)
//	doc, status := b.Get("k", 0)
//
// Execute turns an engine.Command into the events an engine has to deliver, so
// the local engine and the rpc server share the exact same semantics.
package bucket
