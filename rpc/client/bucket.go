package client

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dCB/lib/batch"
	"github.com/ValentinKolb/dCB/lib/codec"
	"github.com/ValentinKolb/dCB/lib/dispatch"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/serializer"
	"github.com/ValentinKolb/dCB/rpc/transport"
	"github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// ReadOptions controls get operations.
type ReadOptions struct {
	Flags batch.Flag
	// LockTime locks the keys for the given number of seconds (get and lock).
	LockTime uint32
}

// StoreOptions controls store operations.
type StoreOptions struct {
	Flags      batch.Flag
	Durability batch.Durability
	// Format selects the value encoding (codec.FormatJSON, ...).
	Format uint32
	Expiry uint32
	Cas    uint64
}

// CounterOptions controls counter operations.
type CounterOptions struct {
	// Initial is stored if the key does not exist and Create is set.
	Initial uint64
	Create  bool
	Expiry  uint32
}

// Callback receives a completed async batch.
type Callback func(mres *batch.MultiResult)

// --------------------------------------------------------------------------
// Bucket
// --------------------------------------------------------------------------

// Bucket is the operation API of one bucket. Every call issues a single batch
// through the dispatcher and, for the synchronous variants, waits for it.
//
// Multi-key calls return the batch, their error is only set if the batch could
// not be issued: per-key failures are found in the batch records. Single-key
// calls return the record and the error of the batch.
//
// The latency of every operation is recorded in a go-metrics timer named after
// the operation (see Metrics).
type Bucket struct {
	d        *dispatch.Dispatcher
	registry metrics.Registry
}

// NewBucket creates a bucket on top of an engine.
func NewBucket(eng engine.Engine, config common.ClientConfig) *Bucket {
	cfg := dispatch.DefaultConfig()
	if config.DurabilityTimeoutMs > 0 {
		cfg.DurabilityTimeout = time.Duration(config.DurabilityTimeoutMs) * time.Millisecond
	}
	if config.DurabilityIntervalMs > 0 {
		cfg.DurabilityInterval = time.Duration(config.DurabilityIntervalMs) * time.Millisecond
	}
	return &Bucket{
		d:        dispatch.New(eng, codec.MustDefault(), cfg),
		registry: metrics.NewRegistry(),
	}
}

// Connect creates an rpc engine for config and returns the bucket on top of it.
func Connect(config common.ClientConfig, t transport.IRPCClientTransport, s serializer.IRPCSerializer) (*Bucket, error) {
	eng, err := NewEngine(config, t, s)
	if err != nil {
		return nil, err
	}
	return NewBucket(eng, config), nil
}

// Dispatcher returns the dispatcher of the bucket.
func (b *Bucket) Dispatcher() *dispatch.Dispatcher {
	return b.d
}

// Metrics returns the registry holding the operation timers.
func (b *Bucket) Metrics() metrics.Registry {
	return b.registry
}

// Close closes the engine.
func (b *Bucket) Close() error {
	return b.d.Close()
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// GetMulti fetches several keys.
func (b *Bucket) GetMulti(keys []string, opts ReadOptions) (*batch.MultiResult, error) {
	cmds, err := b.keyCommands(engine.OpGet, keys, func(cmd *engine.Command) { cmd.LockTime = opts.LockTime })
	if err != nil {
		return nil, err
	}
	return b.run("get", batch.New(opts.Flags, batch.Durability{}), cmds)
}

// Get fetches a single key.
func (b *Bucket) Get(key string) (*result.Result, error) {
	return single(b.GetMulti([]string{key}, ReadOptions{}))
}

// GetAndLock fetches a key and locks it for lockTime seconds. The cas of the
// record unlocks the key.
func (b *Bucket) GetAndLock(key string, lockTime uint32) (*result.Result, error) {
	return single(b.GetMulti([]string{key}, ReadOptions{LockTime: lockTime}))
}

// GetReplica fetches a key from a replica, -1 selects the first replica that answers.
func (b *Bucket) GetReplica(key string, replica int) (*result.Result, error) {
	cmds, err := b.keyCommands(engine.OpGetReplica, []string{key}, func(cmd *engine.Command) { cmd.Replica = replica })
	if err != nil {
		return nil, err
	}
	return single(b.run("get_replica", batch.New(0, batch.Durability{}), cmds))
}

// GetItems fetches the keys of caller supplied items. The fetched values replace
// the values of the items.
func (b *Bucket) GetItems(items []*result.Result, opts ReadOptions) (*batch.MultiResult, error) {
	mres, err := batch.NewWithItems(items, opts.Flags, batch.Durability{})
	if err != nil {
		return nil, err
	}
	cmds, err := b.keyCommands(engine.OpGet, mres.Keys(), func(cmd *engine.Command) { cmd.LockTime = opts.LockTime })
	if err != nil {
		return nil, err
	}
	return b.run("get", mres, cmds)
}

// --------------------------------------------------------------------------
// Mutations
// --------------------------------------------------------------------------

// StoreMulti stores several values with the same mode and options.
func (b *Bucket) StoreMulti(mode engine.StoreMode, values map[string]any, opts StoreOptions) (*batch.MultiResult, error) {
	cmds, err := b.storeCommands(mode, values, opts)
	if err != nil {
		return nil, err
	}
	return b.run("store", batch.New(opts.Flags, opts.Durability), cmds)
}

// Store stores a single value.
func (b *Bucket) Store(mode engine.StoreMode, key string, value any, opts StoreOptions) (*result.Result, error) {
	return single(b.StoreMulti(mode, map[string]any{key: value}, opts))
}

// StoreItems stores the values of caller supplied items, the records are filled
// with the outcome.
func (b *Bucket) StoreItems(mode engine.StoreMode, items []*result.Result, opts StoreOptions) (*batch.MultiResult, error) {
	mres, err := batch.NewWithItems(items, opts.Flags, opts.Durability)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(items))
	for _, item := range items {
		values[item.Key()] = item.Value
	}
	cmds, err := b.storeCommands(mode, values, opts)
	if err != nil {
		return nil, err
	}
	return b.run("store", mres, cmds)
}

// RemoveMulti removes several keys.
func (b *Bucket) RemoveMulti(keys []string, flags batch.Flag, dur batch.Durability) (*batch.MultiResult, error) {
	cmds, err := b.keyCommands(engine.OpRemove, keys, nil)
	if err != nil {
		return nil, err
	}
	return b.run("remove", batch.New(flags, dur), cmds)
}

// Remove removes a key. A non-zero cas must match the current cas of the key.
func (b *Bucket) Remove(key string, cas uint64, dur batch.Durability) (*result.Result, error) {
	cmds, err := b.keyCommands(engine.OpRemove, []string{key}, func(cmd *engine.Command) { cmd.Cas = cas })
	if err != nil {
		return nil, err
	}
	return single(b.run("remove", batch.New(0, dur), cmds))
}

// Touch updates the expiry of a key.
func (b *Bucket) Touch(key string, expiry uint32) (*result.Result, error) {
	cmds, err := b.keyCommands(engine.OpTouch, []string{key}, func(cmd *engine.Command) { cmd.Expiry = expiry })
	if err != nil {
		return nil, err
	}
	return single(b.run("touch", batch.New(0, batch.Durability{}), cmds))
}

// Unlock releases the lock of a key taken by GetAndLock.
func (b *Bucket) Unlock(key string, cas uint64) (*result.Result, error) {
	cmds, err := b.keyCommands(engine.OpUnlock, []string{key}, func(cmd *engine.Command) { cmd.Cas = cas })
	if err != nil {
		return nil, err
	}
	return single(b.run("unlock", batch.New(0, batch.Durability{}), cmds))
}

// Counter adds delta to the numeric value of a key. The new value is the Value
// (uint64) of the record.
func (b *Bucket) Counter(key string, delta int64, opts CounterOptions) (*result.Result, error) {
	cmds, err := b.keyCommands(engine.OpCounter, []string{key}, func(cmd *engine.Command) {
		cmd.Delta = delta
		cmd.Initial = opts.Initial
		cmd.Create = opts.Create
		cmd.Expiry = opts.Expiry
	})
	if err != nil {
		return nil, err
	}
	return single(b.run("counter", batch.New(0, batch.Durability{}), cmds))
}

// --------------------------------------------------------------------------
// Observe, Durability & Stats
// --------------------------------------------------------------------------

// Observe reports the state of the keys on every node. The records hold a
// []result.ObserveInfo.
func (b *Bucket) Observe(keys ...string) (*batch.MultiResult, error) {
	cmds, err := b.keyCommands(engine.OpObserve, keys, nil)
	if err != nil {
		return nil, err
	}
	return b.run("observe", batch.New(0, batch.Durability{}), cmds)
}

// Endure waits until the mutations given as key to cas reached the durability
// targets. With checkDelete the keys are expected to be removed.
func (b *Bucket) Endure(mutations map[string]uint64, dur batch.Durability, checkDelete bool) (*batch.MultiResult, error) {
	if len(mutations) == 0 {
		return nil, fmt.Errorf("no mutations given")
	}
	cmds := make([]engine.EndureCommand, 0, len(mutations))
	for key, cas := range mutations {
		raw, err := b.d.Transcoder().EncodeKey(key)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, engine.EndureCommand{
			Key: raw,
			Cas: cas,
			Options: engine.EndureOptions{
				PersistTo:   dur.PersistTo,
				ReplicateTo: dur.ReplicateTo,
				CapMax:      dur.CapMax(),
				CheckDelete: checkDelete,
			},
		})
	}

	mres := batch.New(0, batch.Durability{})
	start := time.Now()
	err := b.d.IssueEndure(mres, cmds...)
	mres.Wait()
	metrics.GetOrRegisterTimer("endure", b.registry).UpdateSince(start)
	return mres, err
}

// Stats collects the statistics of a group ("" for the default group). The batch
// holds them as stat name to node to value.
func (b *Bucket) Stats(group string) (*batch.MultiResult, error) {
	cmd := engine.Command{Kind: engine.OpStats, Group: group}
	return b.run("stats", batch.New(0, batch.Durability{}), []engine.Command{cmd})
}

// --------------------------------------------------------------------------
// Async Operations
// --------------------------------------------------------------------------

// GetMultiAsync fetches several keys without waiting. Exactly one of the
// callbacks is called once all keys completed, also if the batch could not be
// issued.
func (b *Bucket) GetMultiAsync(keys []string, opts ReadOptions, onSuccess, onError Callback) error {
	cmds, err := b.keyCommands(engine.OpGet, keys, func(cmd *engine.Command) { cmd.LockTime = opts.LockTime })
	if err != nil {
		return err
	}
	return b.runAsync("get", opts.Flags, batch.Durability{}, cmds, onSuccess, onError)
}

// StoreMultiAsync stores several values without waiting, see GetMultiAsync.
func (b *Bucket) StoreMultiAsync(mode engine.StoreMode, values map[string]any, opts StoreOptions, onSuccess, onError Callback) error {
	cmds, err := b.storeCommands(mode, values, opts)
	if err != nil {
		return err
	}
	return b.runAsync("store", opts.Flags, opts.Durability, cmds, onSuccess, onError)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// run issues the commands and waits for the batch
func (b *Bucket) run(op string, mres *batch.MultiResult, cmds []engine.Command) (*batch.MultiResult, error) {
	start := time.Now()
	err := b.d.Issue(mres, cmds...)
	mres.Wait()
	metrics.GetOrRegisterTimer(op, b.registry).UpdateSince(start)
	return mres, err
}

// runAsync issues the commands of an async batch and drops the scheduling hold
func (b *Bucket) runAsync(op string, flags batch.Flag, dur batch.Durability, cmds []engine.Command, onSuccess, onError Callback) error {
	start := time.Now()
	timer := metrics.GetOrRegisterTimer(op, b.registry)
	timed := func(cb Callback) func(*batch.MultiResult) {
		return func(mres *batch.MultiResult) {
			timer.UpdateSince(start)
			if cb != nil {
				cb(mres)
			}
		}
	}

	a := batch.NewAsync(flags, dur, timed(onSuccess), timed(onError))
	err := b.d.Issue(a.MultiResult, cmds...)
	b.d.ReleaseHold(a)
	return err
}

// keyCommands creates one command per key, set customizes each command
func (b *Bucket) keyCommands(kind engine.OpKind, keys []string, set func(cmd *engine.Command)) ([]engine.Command, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys given")
	}
	cmds := make([]engine.Command, 0, len(keys))
	for _, key := range keys {
		raw, err := b.d.Transcoder().EncodeKey(key)
		if err != nil {
			return nil, err
		}
		cmd := engine.Command{Kind: kind, Key: raw}
		if set != nil {
			set(&cmd)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// storeCommands encodes the values and creates the store commands
func (b *Bucket) storeCommands(mode engine.StoreMode, values map[string]any, opts StoreOptions) ([]engine.Command, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no values given")
	}
	tc := b.d.Transcoder()
	cmds := make([]engine.Command, 0, len(values))
	for key, value := range values {
		raw, err := tc.EncodeKey(key)
		if err != nil {
			return nil, err
		}
		data, flags, err := tc.EncodeValue(value, opts.Format)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value of key %q: %w", key, err)
		}
		cmds = append(cmds, engine.Command{
			Kind:   engine.OpStore,
			Key:    raw,
			Mode:   mode,
			Value:  data,
			Flags:  flags,
			Cas:    opts.Cas,
			Expiry: opts.Expiry,
		})
	}
	return cmds, nil
}

// single returns the only record of a batch and the error of the batch
func single(mres *batch.MultiResult, err error) (*result.Result, error) {
	if mres == nil {
		return nil, err
	}
	if err == nil {
		err = mres.Err()
	}
	for _, res := range mres.Results() {
		return res, err
	}
	return nil, err
}
