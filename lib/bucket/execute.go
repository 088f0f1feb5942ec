package bucket

import (
	"context"
	"time"

	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
)

func seconds(s uint32) time.Duration {
	return time.Duration(s) * time.Second
}

// Execute runs a command against the bucket and returns the events it produces.
// Observe and stats produce several events, every other command exactly one.
func (b *Bucket) Execute(cmd engine.Command) []engine.Event {
	key := string(cmd.Key)
	ev := engine.Event{Kind: cmd.Kind, Cookie: cmd.Cookie, Key: cmd.Key}

	switch cmd.Kind {
	case engine.OpGet:
		doc, status := b.Get(key, seconds(cmd.LockTime))
		ev.Status, ev.Value, ev.Flags, ev.Cas = status, doc.Value, doc.Flags, doc.Cas

	case engine.OpGetReplica:
		doc, status := b.GetReplica(key, cmd.Replica)
		ev.Status, ev.Value, ev.Flags, ev.Cas = status, doc.Value, doc.Flags, doc.Cas

	case engine.OpCounter:
		ev.Counter, ev.Cas, ev.Status = b.Counter(key, cmd.Delta, cmd.Initial, cmd.Create, seconds(cmd.Expiry))

	case engine.OpStore:
		ev.Cas, ev.Status = b.Store(cmd.Mode, key, cmd.Value, cmd.Flags, cmd.Cas, seconds(cmd.Expiry))

	case engine.OpRemove:
		ev.Cas, ev.Status = b.Remove(key, cmd.Cas)

	case engine.OpTouch:
		ev.Cas, ev.Status = b.Touch(key, seconds(cmd.Expiry))

	case engine.OpUnlock:
		ev.Status = b.Unlock(key, cmd.Cas)

	case engine.OpObserve:
		return b.observeEvents(cmd)

	case engine.OpStats:
		return b.statsEvents(cmd)

	default:
		ev.Status = result.StatusUnknownCommand
	}
	return []engine.Event{ev}
}

func (b *Bucket) observeEvents(cmd engine.Command) []engine.Event {
	states := b.Observe(string(cmd.Key))
	events := make([]engine.Event, 0, len(states)+1)
	for _, s := range states {
		events = append(events, engine.Event{
			Kind:       engine.OpObserve,
			Cookie:     cmd.Cookie,
			Key:        cmd.Key,
			Cas:        s.Cas,
			FromMaster: s.Master,
			KeyState:   s.State,
			Server:     s.Node,
		})
	}
	return append(events, engine.Event{Kind: engine.OpObserve, Cookie: cmd.Cookie, Key: cmd.Key, Final: true})
}

func (b *Bucket) statsEvents(cmd engine.Command) []engine.Event {
	stats, status := b.Stats(cmd.Group)
	var events []engine.Event
	if status != result.StatusSuccess {
		for n := 0; n < b.Nodes(); n++ {
			events = append(events, engine.Event{Kind: engine.OpStats, Cookie: cmd.Cookie, Status: status, Server: b.NodeName(n)})
		}
	}
	for _, s := range stats {
		events = append(events, engine.Event{
			Kind:   engine.OpStats,
			Cookie: cmd.Cookie,
			Key:    []byte(s.Name),
			Value:  []byte(s.Value),
			Server: s.Node,
		})
	}
	return append(events, engine.Event{Kind: engine.OpStats, Cookie: cmd.Cookie})
}

// ExecuteEndure waits until the mutation of cmd is durable and returns the OpEndure event.
func (b *Bucket) ExecuteEndure(ctx context.Context, cmd engine.EndureCommand) engine.Event {
	cas, status := b.WaitDurable(ctx, string(cmd.Key), cmd.Cas, cmd.Options)
	return engine.Event{Kind: engine.OpEndure, Cookie: cmd.Cookie, Key: cmd.Key, Cas: cas, Status: status}
}
