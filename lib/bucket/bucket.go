package bucket

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dCB/lib/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Logger is the logger of the bucket.
var Logger = logger.GetLogger("bucket")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	// DefaultMaxValueSize is the default size limit of a value (20 MiB).
	DefaultMaxValueSize = 20 * 1024 * 1024
	// DefaultLockTime is used for locking gets without a lock time.
	DefaultLockTime = 15 * time.Second
	// MaxLockTime caps the lock time of locking gets.
	MaxLockTime = 30 * time.Second
	// MaxReplicas is the largest number of replica nodes a bucket can simulate.
	MaxReplicas = 3
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a bucket.
type Options struct {
	// Name is reported in the stats.
	Name string
	// Replicas is the number of simulated replica nodes (0 - MaxReplicas).
	Replicas int
	// PersistDelay is the time a node needs to persist a mutation.
	PersistDelay time.Duration
	// ReplicateDelay is the time a mutation needs to reach the replica nodes.
	ReplicateDelay time.Duration
	// MaxValueSize is the size limit of a value (0 = DefaultMaxValueSize).
	MaxValueSize int
}

// DefaultOptions returns the default bucket options
func DefaultOptions() Options {
	return Options{
		Name:           "default",
		Replicas:       1,
		PersistDelay:   5 * time.Millisecond,
		ReplicateDelay: 2 * time.Millisecond,
		MaxValueSize:   DefaultMaxValueSize,
	}
}

// --------------------------------------------------------------------------
// Bucket
// --------------------------------------------------------------------------

// entry is one document. Removed documents stay as tombstones so that observe
// can report the progress of the deletion.
type entry struct {
	value       []byte
	flags       uint32
	cas         uint64
	expireAt    time.Time // zero = never
	lockedUntil time.Time // zero = not locked
	deleted     bool
	mutatedAt   time.Time
	prevCas     uint64 // cas of the previous version, 0 if there was none
}

func (e entry) locked(now time.Time) bool {
	return !e.lockedUntil.IsZero() && now.Before(e.lockedUntil)
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// live reports whether the entry is visible to reads.
func (e entry) live(now time.Time) bool {
	return !e.deleted && !e.expired(now)
}

// Bucket is an in-memory document store with CAS, flags, expiry, locks and
// counters. It simulates a master node and a configurable number of replica
// nodes that receive and persist every mutation after a delay.
//
// Thread-safety: all methods are safe for concurrent use
type Bucket struct {
	opts    Options
	data    *xsync.MapOf[string, entry]
	cas     atomic.Uint64
	sizes   *util.SizeHistogram
	started time.Time
	now     func() time.Time

	// counters reported by the stats
	cmdGet     atomic.Uint64
	cmdSet     atomic.Uint64
	getHits    atomic.Uint64
	getMisses  atomic.Uint64
	deleteHits atomic.Uint64
	casMisses  atomic.Uint64
	lockErrors atomic.Uint64
	totalItems atomic.Uint64
}

// New creates a bucket.
func New(opts Options) (*Bucket, error) {
	if opts.Replicas < 0 || opts.Replicas > MaxReplicas {
		return nil, fmt.Errorf("replicas must be between 0 and %d, got %d", MaxReplicas, opts.Replicas)
	}
	if opts.PersistDelay < 0 || opts.ReplicateDelay < 0 {
		return nil, fmt.Errorf("delays must not be negative")
	}
	if opts.MaxValueSize <= 0 {
		opts.MaxValueSize = DefaultMaxValueSize
	}
	if opts.Name == "" {
		opts.Name = "default"
	}

	b := &Bucket{
		opts:    opts,
		data:    xsync.NewMapOf[string, entry](),
		sizes:   util.NewSizeHistogram(),
		started: time.Now(),
		now:     time.Now,
	}
	Logger.Infof("created bucket %q with %d replicas", opts.Name, opts.Replicas)
	return b, nil
}

// Options returns the options of the bucket.
func (b *Bucket) Options() Options {
	return b.opts
}

// Nodes returns the number of simulated nodes (master + replicas).
func (b *Bucket) Nodes() int {
	return 1 + b.opts.Replicas
}

// NodeName returns the name of a node.
func (b *Bucket) NodeName(node int) string {
	return fmt.Sprintf("node-%d", node)
}

// master returns the node that owns a key. The replicas are the following nodes.
func (b *Bucket) master(key string) int {
	return util.Partition(key, b.Nodes())
}

// replicaNode returns the node that holds the i-th replica of a key.
func (b *Bucket) replicaNode(key string, i int) int {
	return (b.master(key) + 1 + i) % b.Nodes()
}

func (b *Bucket) nextCas() uint64 {
	return b.cas.Add(1)
}
