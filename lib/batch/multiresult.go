package batch

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Warnings
// --------------------------------------------------------------------------

// DuplicateKeyWarning is recorded when a key completed more than once in a batch
// that does not tolerate duplicates. The newer completion replaced the older record.
type DuplicateKeyWarning struct {
	Key string
	Op  string
}

// String returns a short representation of the warning.
func (w DuplicateKeyWarning) String() string {
	return fmt.Sprintf("found duplicate key %q (%s)", w.Key, w.Op)
}

// --------------------------------------------------------------------------
// MultiResult
// --------------------------------------------------------------------------

// MultiResult aggregates the results of all sub-operations of one batch.
//
// A MultiResult is created by the issuer, shared by every completion of the batch
// and inspected by the issuer after Wait returns. All mutating methods are meant to
// be called by the dispatcher; accessors are safe for concurrent use.
type MultiResult struct {
	flags Flag
	dur   Durability

	results *xsync.MapOf[string, *result.Result]

	mu         sync.RWMutex
	owner      any
	allOk      bool
	firstError *result.Result
	exceptions []error
	warnings   []DuplicateKeyWarning
	stats      map[string]map[string]any

	remaining atomic.Int64
	completed atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once

	async *AsyncResult
}

// New creates an empty batch. If the durability targets are set,
// FlagDurability is added to the flags.
func New(flags Flag, dur Durability) *MultiResult {
	if dur.Required() {
		flags |= FlagDurability
	}
	return &MultiResult{
		flags:   flags,
		dur:     dur,
		results: xsync.NewMapOf[string, *result.Result](),
		allOk:   true,
		done:    make(chan struct{}),
	}
}

// NewWithItems creates a batch whose result records are supplied by the caller.
// The dispatcher fills the given items instead of allocating new records.
func NewWithItems(items []*result.Result, flags Flag, dur Durability) (*MultiResult, error) {
	m := New(flags|FlagItems|FlagUserAllocated, dur)
	if err := m.AddItems(items...); err != nil {
		return nil, err
	}
	return m, nil
}

// AddItems registers caller supplied records. Keys must be unique and non-empty.
func (m *MultiResult) AddItems(items ...*result.Result) error {
	for _, item := range items {
		if item == nil || item.Key() == "" {
			return fmt.Errorf("item without key")
		}
		if _, loaded := m.results.LoadOrStore(item.Key(), item); loaded {
			return fmt.Errorf("duplicate item for key %q", item.Key())
		}
	}
	m.mu.Lock()
	m.flags |= FlagItems | FlagUserAllocated
	m.mu.Unlock()
	return nil
}

// --------------------------------------------------------------------------
// Caller Accessors
// --------------------------------------------------------------------------

// Flags returns the mode flags of the batch.
func (m *MultiResult) Flags() Flag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags
}

// Durability returns the durability targets of the batch.
func (m *MultiResult) Durability() Durability {
	return m.dur
}

// Get returns the result for a key.
func (m *MultiResult) Get(key string) (*result.Result, bool) {
	return m.results.Load(key)
}

// Results returns a snapshot of the key to result mapping.
func (m *MultiResult) Results() map[string]*result.Result {
	out := make(map[string]*result.Result, m.results.Size())
	m.results.Range(func(key string, res *result.Result) bool {
		out[key] = res
		return true
	})
	return out
}

// Keys returns the sorted keys of all results.
func (m *MultiResult) Keys() []string {
	keys := make([]string, 0, m.results.Size())
	m.results.Range(func(key string, _ *result.Result) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

// Len returns the number of results.
func (m *MultiResult) Len() int {
	return m.results.Size()
}

// AllOk reports whether no sub-operation failed.
func (m *MultiResult) AllOk() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allOk
}

// FirstError returns the first failing result or nil.
func (m *MultiResult) FirstError() *result.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.firstError
}

// Exceptions returns the fatal errors captured while processing completions.
func (m *MultiResult) Exceptions() []error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]error(nil), m.exceptions...)
}

// Warnings returns the duplicate key warnings of the batch.
func (m *MultiResult) Warnings() []DuplicateKeyWarning {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]DuplicateKeyWarning(nil), m.warnings...)
}

// Stats returns a copy of the collected statistics (stat name -> node -> value).
func (m *MultiResult) Stats() map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]any, len(m.stats))
	for name, nodes := range m.stats {
		cp := make(map[string]any, len(nodes))
		for node, v := range nodes {
			cp[node] = v
		}
		out[name] = cp
	}
	return out
}

// Remaining returns the number of outstanding sub-operations.
func (m *MultiResult) Remaining() int {
	return int(m.remaining.Load())
}

// Completed reports whether all sub-operations have completed.
func (m *MultiResult) Completed() bool {
	return m.completed.Load()
}

// Done returns a channel that is closed once all sub-operations completed.
func (m *MultiResult) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until all sub-operations completed.
// There is no way to abort the wait, the engine guarantees that every
// sub-operation completes (at the latest with a timeout status).
func (m *MultiResult) Wait() {
	<-m.done
}

// Err returns the fatal errors joined together, or the error of the first failing
// result, or nil if the batch succeeded.
func (m *MultiResult) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.exceptions) > 0 {
		return errors.Join(m.exceptions...)
	}
	if m.firstError != nil {
		return m.firstError.Err()
	}
	return nil
}

// Async returns the async bridge of the batch or nil for synchronous batches.
func (m *MultiResult) Async() *AsyncResult {
	return m.async
}

// --------------------------------------------------------------------------
// Dispatcher Methods
// --------------------------------------------------------------------------

// Bind attaches the batch to the dispatcher that owns its completions.
// Binding the same owner twice is allowed, binding a different owner is not.
func (m *MultiResult) Bind(owner any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != nil && m.owner != owner {
		return fmt.Errorf("batch is already bound to another dispatcher")
	}
	m.owner = owner
	return nil
}

// Owner returns the dispatcher the batch is bound to.
func (m *MultiResult) Owner() any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.owner
}

// Expect registers n additional outstanding sub-operations.
// It must be called before the sub-operations are scheduled.
func (m *MultiResult) Expect(n int) {
	if n < 0 {
		panic("batch: negative expect")
	}
	if m.completed.Load() {
		panic("batch: expect on a completed batch")
	}
	m.remaining.Add(int64(n))
	if m.async != nil {
		m.async.pending.Add(int64(n))
	}
}

// Lookup returns the record for a key.
func (m *MultiResult) Lookup(key string) (*result.Result, bool) {
	return m.results.Load(key)
}

// Put registers a record under its key, replacing any existing record.
func (m *MultiResult) Put(res *result.Result) {
	m.results.Store(res.Key(), res)
}

// Discard removes the record for a key.
func (m *MultiResult) Discard(key string) {
	m.results.Delete(key)
}

// Fail marks the batch as failed.
func (m *MultiResult) Fail() {
	m.mu.Lock()
	m.allOk = false
	m.mu.Unlock()
}

// SetFirstError remembers res as the first failing result unless one is already set.
func (m *MultiResult) SetFirstError(res *result.Result) {
	m.mu.Lock()
	if m.firstError == nil {
		m.firstError = res
	}
	m.mu.Unlock()
}

// PushFatal appends a fatal error and marks the batch as failed.
func (m *MultiResult) PushFatal(err error) {
	m.mu.Lock()
	m.allOk = false
	m.exceptions = append(m.exceptions, err)
	m.mu.Unlock()
}

// Warn records a duplicate key warning.
func (m *MultiResult) Warn(w DuplicateKeyWarning) {
	m.mu.Lock()
	m.warnings = append(m.warnings, w)
	m.mu.Unlock()
}

// AddStat stores the value a node reported for a stat.
func (m *MultiResult) AddStat(name, node string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stats == nil {
		m.stats = make(map[string]map[string]any)
	}
	nodes, ok := m.stats[name]
	if !ok {
		nodes = make(map[string]any)
		m.stats[name] = nodes
	}
	nodes[node] = value
}

// Decrement marks one sub-operation as completed and returns the number of
// sub-operations still outstanding. Decrementing below zero panics.
func (m *MultiResult) Decrement() int {
	left := m.remaining.Add(-1)
	if left < 0 {
		panic("batch: remaining sub-operations dropped below zero")
	}
	return int(left)
}

// Release unblocks Wait. It is idempotent.
func (m *MultiResult) Release() {
	m.doneOnce.Do(func() {
		m.completed.Store(true)
		close(m.done)
	})
}
