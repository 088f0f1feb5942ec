package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/ValentinKolb/dCB/lib/util"
	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/serializer"
	"github.com/ValentinKolb/dCB/rpc/transport"
)

// --------------------------------------------------------------------------
// Request State
// --------------------------------------------------------------------------

// request is a command in flight. Its terminal event is delivered exactly once,
// either from the response stream, from a connection failure or from the
// deadline timer.
type request struct {
	kind   engine.OpKind
	cookie any
	key    []byte

	mu       sync.Mutex
	id       uint64 // 0 until Send returned
	finished bool
}

// failure builds the terminal event of the request for a failure status. Observe
// and stats need a terminal marker to complete their sub-operation.
func (r *request) failure(status result.Status) engine.Event {
	return engine.Event{
		Kind:   r.kind,
		Cookie: r.cookie,
		Status: status,
		Key:    r.key,
		Final:  r.kind == engine.OpObserve,
	}
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Engine is an engine.Engine that sends commands to a server. Every request is
// bounded by the client timeout: requests that do not finish in time complete
// with StatusTimeout, requests on a failed connection with StatusNetworkError.
//
// Thread-safety: all methods are safe for concurrent use
type Engine struct {
	shardID    uint64
	config     common.ClientConfig
	timeout    time.Duration
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	loop       *engine.Loop

	mu        sync.Mutex
	closed    bool
	deadlines *util.Deadlines
	requests  map[uint64]*request

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewEngine connects the transport and returns an engine for the bucket selected
// by config.Bucket.
func NewEngine(config common.ClientConfig, t transport.IRPCClientTransport, s serializer.IRPCSerializer) (*Engine, error) {
	if err := t.Connect(config); err != nil {
		return nil, err
	}

	timeout := config.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	e := &Engine{
		shardID:    config.Bucket,
		config:     config,
		timeout:    timeout,
		transport:  t,
		serializer: s,
		loop:       engine.NewLoop(),
		deadlines:  util.NewDeadlines(),
		requests:   make(map[uint64]*request),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	e.wg.Add(1)
	go e.expire()
	return e, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine.Engine)
// --------------------------------------------------------------------------

func (e *Engine) SetHandler(h engine.Handler) {
	e.loop.SetHandler(h)
}

// Schedule validates and serializes all commands before the first one is sent.
// If the first request cannot be sent nothing was scheduled and the error is
// returned, later send failures complete their command with StatusNetworkError.
func (e *Engine) Schedule(cmds ...engine.Command) error {
	payloads := make([][]byte, len(cmds))
	for i, cmd := range cmds {
		if err := engine.Validate(cmd); err != nil {
			return err
		}
		payload, err := e.serializer.Serialize(*common.NewCommandRequest(cmd))
		if err != nil {
			return result.NewError(result.StatusInvalidArgs, fmt.Sprintf("failed to serialize %s request: %v", cmd.Kind, err))
		}
		payloads[i] = payload
	}

	if e.isClosed() {
		return ErrClosed
	}

	for i, cmd := range cmds {
		req := &request{kind: cmd.Kind, cookie: cmd.Cookie, key: cmd.Key}
		if err := e.send(req, payloads[i], e.timeout); err != nil {
			if i == 0 {
				return result.NewError(result.StatusNetworkError, err.Error())
			}
			Logger.Warningf("failed to send %s request for key %q: %v", cmd.Kind, cmd.Key, err)
			e.finish(req, req.failure(result.StatusNetworkError))
		}
	}
	return nil
}

// Endure sends a durability check. The topology is validated by the server, a
// check exceeding it completes with StatusDurabilityTooMany.
func (e *Engine) Endure(cmd engine.EndureCommand) error {
	payload, err := e.serializer.Serialize(*common.NewEndureRequest(cmd))
	if err != nil {
		return result.NewError(result.StatusInvalidArgs, fmt.Sprintf("failed to serialize endure request: %v", err))
	}

	if e.isClosed() {
		return ErrClosed
	}

	req := &request{kind: engine.OpEndure, cookie: cmd.Cookie, key: cmd.Key}
	if err := e.send(req, payload, cmd.Options.Timeout+e.timeout); err != nil {
		return result.NewError(result.StatusNetworkError, err.Error())
	}
	return nil
}

// Close closes the transport. Requests in flight complete with
// StatusNetworkError, queued events are still delivered.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	err := e.transport.Close()
	close(e.stop)
	e.wg.Wait()

	// requests the transport did not know about yet
	e.mu.Lock()
	pending := make([]*request, 0, len(e.requests))
	for id, req := range e.requests {
		pending = append(pending, req)
		e.deadlines.Remove(id)
	}
	e.requests = make(map[uint64]*request)
	e.mu.Unlock()
	for _, req := range pending {
		e.finish(req, req.failure(result.StatusNetworkError))
	}

	e.loop.Close()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// send writes the request and starts its deadline
func (e *Engine) send(req *request, payload []byte, timeout time.Duration) error {
	id, err := e.transport.Send(e.shardID, payload, func(resp []byte, err error) {
		e.onResponse(req, resp, err)
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	req.mu.Lock()
	req.id = id
	finished := req.finished
	req.mu.Unlock()
	if !finished {
		e.requests[id] = req
		e.deadlines.Set(id, time.Now().Add(timeout))
	}
	e.mu.Unlock()

	if finished {
		// the response arrived before Send returned
		e.transport.Forget(id)
		return nil
	}

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

// onResponse is called by the transport for every response frame of a request
func (e *Engine) onResponse(req *request, resp []byte, err error) {
	if err != nil {
		Logger.Debugf("%s request for key %q failed: %v", req.kind, req.key, err)
		e.finish(req, req.failure(result.StatusNetworkError))
		return
	}

	var msg common.Message
	if err := e.serializer.Deserialize(resp, &msg); err != nil {
		Logger.Errorf("failed to deserialize %s response for key %q: %v", req.kind, req.key, err)
		e.finish(req, req.failure(result.StatusInternalError))
		return
	}

	if msg.MsgType == common.MsgTError {
		status := result.Status(msg.Status)
		if status.Success() {
			status = result.StatusInternalError
		}
		Logger.Debugf("%s request for key %q rejected: %s", req.kind, req.key, msg.Err)
		e.finish(req, req.failure(status))
		return
	}

	ev := msg.Event(req.cookie)
	if ev.Kind != req.kind {
		Logger.Errorf("unexpected message type %s for %s request", msg.MsgType, req.kind)
		e.finish(req, req.failure(result.StatusInternalError))
		return
	}
	if len(ev.Key) == 0 && req.kind != engine.OpStats {
		ev.Key = req.key
	}

	if msg.Last {
		e.finish(req, ev)
		return
	}

	req.mu.Lock()
	defer req.mu.Unlock()
	if !req.finished {
		e.loop.Deliver(ev)
	}
}

// finish delivers the terminal event of a request if it has none yet
func (e *Engine) finish(req *request, ev engine.Event) {
	req.mu.Lock()
	if req.finished {
		req.mu.Unlock()
		return
	}
	req.finished = true
	id := req.id
	e.loop.Deliver(ev)
	req.mu.Unlock()

	if id == 0 {
		return
	}
	e.transport.Forget(id)
	e.mu.Lock()
	e.deadlines.Remove(id)
	delete(e.requests, id)
	e.mu.Unlock()
}

// expire completes requests whose deadline passed with StatusTimeout
func (e *Engine) expire() {
	defer e.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		e.mu.Lock()
		next, ok := e.deadlines.Next()
		e.mu.Unlock()

		wait := time.Hour
		if ok {
			wait = max(time.Until(next), 0)
		}
		timer.Reset(wait)

		select {
		case <-e.stop:
			return
		case <-e.wake:
			continue
		case <-timer.C:
		}

		e.mu.Lock()
		var expired []*request
		for _, id := range e.deadlines.PopExpired(time.Now()) {
			if req, ok := e.requests[id]; ok {
				expired = append(expired, req)
				delete(e.requests, id)
			}
		}
		e.mu.Unlock()

		for _, req := range expired {
			Logger.Debugf("%s request for key %q timed out", req.kind, req.key)
			e.finish(req, req.failure(result.StatusTimeout))
		}
	}
}
