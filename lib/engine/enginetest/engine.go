// Package enginetest provides a scripted engine for tests.
//
// Commands are recorded instead of executed. Tests inject events with Emit (or
// install responders that answer commands automatically) and call Sync to wait
// until every injected event was handled.
package enginetest

import (
	"sync"

	"github.com/ValentinKolb/dCB/lib/engine"
)

// Engine is a scripted engine.Engine.
type Engine struct {
	loop *engine.Loop

	mu        sync.Mutex
	cond      *sync.Cond
	pushed    int
	handled   int
	scheduled []engine.Command
	endures   []engine.EndureCommand

	// ScheduleErr is returned by Schedule if set.
	ScheduleErr error
	// EndureErr is returned by Endure if set.
	EndureErr error
	// OnSchedule answers every scheduled command with the returned events.
	OnSchedule func(cmd engine.Command) []engine.Event
	// OnEndure answers every endure request with the returned events.
	OnEndure func(cmd engine.EndureCommand) []engine.Event
}

// New creates a scripted engine.
func New() *Engine {
	e := &Engine{loop: engine.NewLoop()}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// SetHandler implements engine.Engine.
func (e *Engine) SetHandler(h engine.Handler) {
	e.loop.SetHandler(engine.HandlerFunc(func(ev engine.Event) {
		h.Handle(ev)
		e.mu.Lock()
		e.handled++
		e.cond.Broadcast()
		e.mu.Unlock()
	}))
}

// Schedule implements engine.Engine.
func (e *Engine) Schedule(cmds ...engine.Command) error {
	e.mu.Lock()
	if e.ScheduleErr != nil {
		err := e.ScheduleErr
		e.mu.Unlock()
		return err
	}
	e.scheduled = append(e.scheduled, cmds...)
	respond := e.OnSchedule
	e.mu.Unlock()

	if respond != nil {
		for _, cmd := range cmds {
			e.Emit(respond(cmd)...)
		}
	}
	return nil
}

// Endure implements engine.Engine.
func (e *Engine) Endure(cmd engine.EndureCommand) error {
	e.mu.Lock()
	if e.EndureErr != nil {
		err := e.EndureErr
		e.mu.Unlock()
		return err
	}
	e.endures = append(e.endures, cmd)
	respond := e.OnEndure
	e.mu.Unlock()

	if respond != nil {
		e.Emit(respond(cmd)...)
	}
	return nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.loop.Close()
	return nil
}

// Emit delivers events to the handler.
func (e *Engine) Emit(evs ...engine.Event) {
	for _, ev := range evs {
		e.mu.Lock()
		e.pushed++
		e.mu.Unlock()
		if !e.loop.Deliver(ev) {
			e.mu.Lock()
			e.pushed--
			e.mu.Unlock()
		}
	}
}

// Sync blocks until every emitted event was handled.
func (e *Engine) Sync() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.handled < e.pushed {
		e.cond.Wait()
	}
}

// Scheduled returns the recorded commands.
func (e *Engine) Scheduled() []engine.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Command(nil), e.scheduled...)
}

// Endures returns the recorded endure requests.
func (e *Engine) Endures() []engine.EndureCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.EndureCommand(nil), e.endures...)
}
