// Package local provides an engine that executes commands against an in-process
// bucket.
//
// Commands run synchronously inside Schedule, their events are delivered through
// an engine.Loop. Durability checks poll the bucket in their own goroutine.
package local

import (
	"context"
	"errors"
	"sync"

	"github.com/ValentinKolb/dCB/lib/bucket"
	"github.com/ValentinKolb/dCB/lib/engine"
)

// ErrClosed is returned by an engine that was closed.
var ErrClosed = errors.New("engine closed")

// Engine is an engine.Engine backed by a bucket.
//
// Thread-safety: all methods are safe for concurrent use
type Engine struct {
	bucket *bucket.Bucket
	loop   *engine.Loop

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine that executes commands against b.
func New(b *bucket.Bucket) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		bucket: b,
		loop:   engine.NewLoop(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Bucket returns the bucket of the engine.
func (e *Engine) Bucket() *bucket.Bucket {
	return e.bucket
}

// SetHandler implements engine.Engine.
func (e *Engine) SetHandler(h engine.Handler) {
	e.loop.SetHandler(h)
}

// Schedule implements engine.Engine. Every command is validated before the first
// one is executed.
func (e *Engine) Schedule(cmds ...engine.Command) error {
	for _, cmd := range cmds {
		if err := engine.Validate(cmd); err != nil {
			return err
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	for _, cmd := range cmds {
		for _, ev := range e.bucket.Execute(cmd) {
			e.loop.Deliver(ev)
		}
	}
	return nil
}

// Endure implements engine.Engine. The targets are validated against the bucket
// topology before the check is started.
func (e *Engine) Endure(cmd engine.EndureCommand) error {
	opts := cmd.Options
	if _, _, err := e.bucket.ValidateDurability(opts.PersistTo, opts.ReplicateTo, opts.CapMax); err != nil {
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop.Deliver(e.bucket.ExecuteEndure(e.ctx, cmd))
	}()
	return nil
}

// Close implements engine.Engine. Running durability checks complete with
// StatusTimeout, queued events are still delivered.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.loop.Close()
	return nil
}
