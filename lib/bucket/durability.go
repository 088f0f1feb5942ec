package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
)

// NodeState is the state of a key on one node.
type NodeState struct {
	Node   string
	Master bool
	State  result.KeyState
	Cas    uint64
}

type nodeView struct {
	state result.KeyState
	cas   uint64
}

// view returns what a node knows about an entry at the given time. The master
// receives a mutation immediately, replicas after ReplicateDelay; every node
// persists it PersistDelay after receiving it. A node that has not received the
// mutation yet still holds the previous (persisted) version.
func (b *Bucket) view(e entry, loaded, master bool, now time.Time) nodeView {
	if !loaded {
		return nodeView{state: result.KeyStateNotFound}
	}

	receivedAt := e.mutatedAt
	if !master {
		receivedAt = receivedAt.Add(b.opts.ReplicateDelay)
	}
	if now.Before(receivedAt) {
		if e.prevCas == 0 {
			return nodeView{state: result.KeyStateNotFound}
		}
		return nodeView{state: result.KeyStatePersisted, cas: e.prevCas}
	}

	persisted := !now.Before(receivedAt.Add(b.opts.PersistDelay))
	switch {
	case e.deleted && persisted:
		return nodeView{state: result.KeyStateNotFound, cas: e.cas}
	case e.deleted:
		return nodeView{state: result.KeyStateLogicallyDeleted, cas: e.cas}
	case persisted:
		return nodeView{state: result.KeyStatePersisted, cas: e.cas}
	default:
		return nodeView{state: result.KeyStateFound, cas: e.cas}
	}
}

// Observe returns the state of a key on every node, master first.
func (b *Bucket) Observe(key string) []NodeState {
	now := b.now()
	e, loaded := b.data.Load(key)

	master := b.master(key)
	states := make([]NodeState, 0, b.Nodes())
	v := b.view(e, loaded, true, now)
	states = append(states, NodeState{Node: b.NodeName(master), Master: true, State: v.state, Cas: v.cas})
	for i := 0; i < b.opts.Replicas; i++ {
		v = b.view(e, loaded, false, now)
		states = append(states, NodeState{Node: b.NodeName(b.replicaNode(key, i)), State: v.state, Cas: v.cas})
	}
	return states
}

// --------------------------------------------------------------------------
// Durability
// --------------------------------------------------------------------------

// ValidateDurability checks durability targets against the topology and returns
// the effective targets. Negative targets mean "all nodes". Targets larger than
// the topology fail with StatusDurabilityTooMany unless capMax is set.
func (b *Bucket) ValidateDurability(persistTo, replicateTo int, capMax bool) (int, int, error) {
	nodes, replicas := b.Nodes(), b.opts.Replicas
	if persistTo < 0 {
		persistTo = nodes
	}
	if replicateTo < 0 {
		replicateTo = replicas
	}
	if persistTo > nodes || replicateTo > replicas {
		if !capMax {
			return 0, 0, result.NewError(result.StatusDurabilityTooMany,
				fmt.Sprintf("persist_to=%d replicate_to=%d exceeds %d nodes with %d replicas", persistTo, replicateTo, nodes, replicas))
		}
		persistTo = min(persistTo, nodes)
		replicateTo = min(replicateTo, replicas)
	}
	return persistTo, replicateTo, nil
}

// durable checks once whether a mutation reached the targets. It returns the cas
// seen on the master. A document that was modified again on the master fails
// with StatusKeyExists.
func (b *Bucket) durable(key string, cas uint64, persistTo, replicateTo int, checkDelete bool) (bool, uint64, result.Status) {
	now := b.now()
	e, loaded := b.data.Load(key)

	var persisted, replicated int
	count := func(v nodeView, master bool) {
		if checkDelete {
			switch v.state {
			case result.KeyStateNotFound:
				persisted++
				if !master {
					replicated++
				}
			case result.KeyStateLogicallyDeleted:
				if !master {
					replicated++
				}
			}
			return
		}
		if (v.state == result.KeyStateFound || v.state == result.KeyStatePersisted) && (cas == 0 || v.cas == cas) {
			if v.state == result.KeyStatePersisted {
				persisted++
			}
			if !master {
				replicated++
			}
		}
	}

	mv := b.view(e, loaded, true, now)
	if !checkDelete && cas != 0 && mv.cas != cas && (mv.state == result.KeyStateFound || mv.state == result.KeyStatePersisted) {
		return false, mv.cas, result.StatusKeyExists
	}
	count(mv, true)
	for i := 0; i < b.opts.Replicas; i++ {
		count(b.view(e, loaded, false, now), false)
	}
	return persisted >= persistTo && replicated >= replicateTo, mv.cas, result.StatusSuccess
}

// WaitDurable polls until a mutation reached the durability targets of opts, the
// timeout of opts expires or ctx is done. It returns the cas seen on the master.
func (b *Bucket) WaitDurable(ctx context.Context, key string, cas uint64, opts engine.EndureOptions) (uint64, result.Status) {
	persistTo, replicateTo, err := b.ValidateDurability(opts.PersistTo, opts.ReplicateTo, opts.CapMax)
	if err != nil {
		return 0, result.StatusOf(err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, seen, status := b.durable(key, cas, persistTo, replicateTo, opts.CheckDelete)
		if status != result.StatusSuccess {
			return seen, status
		}
		if ok {
			return seen, result.StatusSuccess
		}

		select {
		case <-ctx.Done():
			return seen, result.StatusTimeout
		case <-deadline.C:
			return seen, result.StatusTimeout
		case <-ticker.C:
		}
	}
}
