package engine

import (
	"sync"

	"github.com/ValentinKolb/dCB/lib/util"
	"github.com/lni/dragonboat/v4/logger"
)

// Logger is the logger of the engines.
var Logger = logger.GetLogger("engine")

// Loop serializes event delivery: producers push events from any goroutine, one
// goroutine hands them to the handler in push order.
type Loop struct {
	queue   *util.Queue[Event]
	mu      sync.RWMutex
	handler Handler
	done    chan struct{}
}

// NewLoop creates a loop and starts its delivery goroutine.
func NewLoop() *Loop {
	l := &Loop{
		queue: util.NewQueue[Event](),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// SetHandler installs the handler that receives the events.
func (l *Loop) SetHandler(h Handler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// Deliver queues an event. It returns false if the loop is closed.
func (l *Loop) Deliver(ev Event) bool {
	return l.queue.Push(ev)
}

// Pending returns the number of queued events.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

func (l *Loop) run() {
	defer close(l.done)
	for ev := range l.queue.Recv() {
		l.mu.RLock()
		h := l.handler
		l.mu.RUnlock()

		if h == nil {
			Logger.Errorf("dropping %s event for key %q: no handler installed", ev.Kind, ev.Key)
			continue
		}
		h.Handle(ev)
	}
}

// Close stops accepting events and waits until the queued events are delivered.
func (l *Loop) Close() {
	l.queue.Close()
	<-l.done
}
