// Package util provides small building blocks shared by the engines and the store.
//
// The package contains:
//   - queue: a lock-free multi-producer single-consumer queue, used to deliver engine events to one loop goroutine
//   - deadlines: a min-heap of request deadlines with access by request id, used to time out in-flight requests
//   - histogram: a SizeHistogram tracking the size distribution of stored values
//   - functions: key hashing and partitioning
package util
