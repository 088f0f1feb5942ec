package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dCB/lib/batch"
	"github.com/ValentinKolb/dCB/lib/codec"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/lni/dragonboat/v4/logger"
)

// Logger is the logger of the dispatcher.
var Logger = logger.GetLogger("dispatch")

// Config holds the dispatcher settings.
type Config struct {
	// DurabilityTimeout bounds every endure request issued by the durability chain.
	DurabilityTimeout time.Duration
	// DurabilityInterval is the poll interval of endure requests.
	DurabilityInterval time.Duration
}

// DefaultConfig returns the default dispatcher settings.
func DefaultConfig() Config {
	return Config{
		DurabilityTimeout:  5 * time.Second,
		DurabilityInterval: 100 * time.Millisecond,
	}
}

type handlerFunc func(mres *batch.MultiResult, ev engine.Event)

// Dispatcher routes engine events back to the batches that issued the commands.
//
// Events are processed one at a time under the dispatcher mutex. Async
// notifications are delivered after the mutex is released, so callbacks may issue
// new operations on the same dispatcher.
type Dispatcher struct {
	mu       sync.Mutex
	eng      engine.Engine
	tc       codec.Transcoder
	cfg      Config
	table    map[engine.OpKind]handlerFunc
	testHook func(res *result.Result)

	// async batches that became ready while the mutex was held
	ready []*batch.AsyncResult
}

// New creates a dispatcher and installs it as the handler of the engine.
func New(eng engine.Engine, tc codec.Transcoder, cfg Config) *Dispatcher {
	if cfg.DurabilityTimeout <= 0 {
		cfg.DurabilityTimeout = DefaultConfig().DurabilityTimeout
	}
	if cfg.DurabilityInterval <= 0 {
		cfg.DurabilityInterval = DefaultConfig().DurabilityInterval
	}

	d := &Dispatcher{
		eng: eng,
		tc:  tc,
		cfg: cfg,
	}
	d.table = map[engine.OpKind]handlerFunc{
		engine.OpGet:        d.onValue,
		engine.OpGetReplica: d.onValue,
		engine.OpCounter:    d.onValue,
		engine.OpStore:      d.onStore,
		engine.OpRemove:     d.onRemove,
		engine.OpTouch:      d.onKeyOp,
		engine.OpUnlock:     d.onKeyOp,
		engine.OpEndure:     d.onKeyOp,
		engine.OpObserve:    d.onObserve,
		engine.OpStats:      d.onStats,
	}
	eng.SetHandler(d)
	return d
}

// Transcoder returns the transcoder used for keys and values.
func (d *Dispatcher) Transcoder() codec.Transcoder {
	return d.tc
}

// Config returns the dispatcher settings.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// SetDurabilityTestHook installs a function that is called with the record of every
// mutation right before its endure request is issued. Pass nil to remove it.
func (d *Dispatcher) SetDurabilityTestHook(fn func(res *result.Result)) {
	d.mu.Lock()
	d.testHook = fn
	d.mu.Unlock()
}

// Close closes the underlying engine.
func (d *Dispatcher) Close() error {
	return d.eng.Close()
}

// --------------------------------------------------------------------------
// Issuing
// --------------------------------------------------------------------------

// Issue schedules the commands of a batch. The batch cookie is set on every
// command and the batch expects one completion per command.
//
// A synchronous batch must be issued with a single call, its completions may
// release it before a second call. A synchronous batch issued without commands
// is released at once. Async batches stay open until ReleaseHold. If scheduling
// fails, every command is recorded as failed with the scheduling status and
// counted as completed, so Wait still returns.
func (d *Dispatcher) Issue(mres *batch.MultiResult, cmds ...engine.Command) error {
	if len(cmds) == 0 {
		d.releaseEmpty(mres)
		return nil
	}
	if err := mres.Bind(d); err != nil {
		return err
	}

	scheduled := make([]engine.Command, len(cmds))
	copy(scheduled, cmds)
	for i := range scheduled {
		scheduled[i].Cookie = mres
	}

	mres.Expect(len(scheduled))
	err := d.eng.Schedule(scheduled...)
	if err == nil {
		return nil
	}

	Logger.Warningf("failed to schedule %d commands: %v", len(scheduled), err)
	d.notify(d.failCommands(mres, scheduled, err))
	return fmt.Errorf("failed to schedule %d commands: %w", len(scheduled), err)
}

// IssueEndure schedules standalone durability checks for a batch. Each check
// completes with an OpEndure event. Checks that cannot be scheduled are recorded
// as failed right away.
func (d *Dispatcher) IssueEndure(mres *batch.MultiResult, cmds ...engine.EndureCommand) error {
	if len(cmds) == 0 {
		d.releaseEmpty(mres)
		return nil
	}
	if err := mres.Bind(d); err != nil {
		return err
	}

	mres.Expect(len(cmds))
	var firstErr error
	for _, cmd := range cmds {
		cmd.Cookie = mres
		if cmd.Options.Timeout <= 0 {
			cmd.Options.Timeout = d.cfg.DurabilityTimeout
		}
		if cmd.Options.Interval <= 0 {
			cmd.Options.Interval = d.cfg.DurabilityInterval
		}
		endureRequests.Inc()
		if err := d.eng.Endure(cmd); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			d.notify(d.failCommands(mres, []engine.Command{{Kind: engine.OpEndure, Key: cmd.Key}}, err))
		}
	}
	return firstErr
}

// ReleaseHold drops the scheduling hold of an async batch. The issuer calls it
// once all commands of the batch are issued. Until then the batch is not
// released, so it may be issued with several calls.
func (d *Dispatcher) ReleaseHold(a *batch.AsyncResult) {
	d.mu.Lock()
	ready := a.OpDone()
	if ready {
		d.release(a.MultiResult)
	}
	d.mu.Unlock()
	if ready {
		a.Invoke()
	}
}

// releaseEmpty releases a synchronous batch that was issued without commands and
// has nothing outstanding. Async batches are released by ReleaseHold.
func (d *Dispatcher) releaseEmpty(mres *batch.MultiResult) {
	if mres.Async() != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if mres.Remaining() == 0 {
		d.release(mres)
	}
}

// failCommands records a scheduling failure for every command and completes them.
func (d *Dispatcher) failCommands(mres *batch.MultiResult, cmds []engine.Command, cause error) []*batch.AsyncResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := result.StatusOf(cause)
	if status.Success() {
		status = result.StatusInternalError
	}
	for _, cmd := range cmds {
		if cmd.Kind == engine.OpStats || len(cmd.Key) == 0 {
			res := result.New(result.KindBase, "")
			res.Status = status
			mres.Fail()
			mres.SetFirstError(res)
		} else {
			ev := engine.Event{Kind: cmd.Kind, Cookie: mres, Key: cmd.Key, Status: status}
			if res, ok := d.commonObjects(mres, ev, recordKind(cmd.Kind), true); ok {
				d.maybePushOpErr(mres, res, status, false)
			}
		}
		d.operationCompleted(mres)
	}
	return d.takeReady()
}

// recordKind returns the record kind an operation produces.
func recordKind(op engine.OpKind) result.Kind {
	switch op {
	case engine.OpGet, engine.OpGetReplica, engine.OpCounter, engine.OpObserve:
		return result.KindValue
	case engine.OpStats:
		return result.KindBase
	default:
		return result.KindOperation
	}
}

// --------------------------------------------------------------------------
// Event Handling
// --------------------------------------------------------------------------

// Handle implements engine.Handler.
func (d *Dispatcher) Handle(ev engine.Event) {
	d.notify(d.handleLocked(ev))
}

func (d *Dispatcher) handleLocked(ev engine.Event) []*batch.AsyncResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.route(ev)
	return d.takeReady()
}

func (d *Dispatcher) takeReady() []*batch.AsyncResult {
	ready := d.ready
	d.ready = nil
	return ready
}

func (d *Dispatcher) notify(ready []*batch.AsyncResult) {
	for _, a := range ready {
		a.Invoke()
	}
}
