package bucket

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move the bucket time forward.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBucket(t *testing.T, opts Options) (*Bucket, *fakeClock) {
	t.Helper()
	b, err := New(opts)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b.now = clock.now
	return b, clock
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Replicas: MaxReplicas + 1})
	assert.Error(t, err)
	_, err = New(Options{PersistDelay: -time.Second})
	assert.Error(t, err)

	b, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, "default", b.Options().Name)
	assert.Equal(t, DefaultMaxValueSize, b.Options().MaxValueSize)
	assert.Equal(t, 1, b.Nodes())
}

func TestStoreModes(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
		mode   engine.StoreMode
		want   result.Status
		value  string
	}{
		{"set new", false, engine.StoreSet, result.StatusSuccess, "new"},
		{"set existing", true, engine.StoreSet, result.StatusSuccess, "new"},
		{"add new", false, engine.StoreAdd, result.StatusSuccess, "new"},
		{"add existing", true, engine.StoreAdd, result.StatusKeyExists, "old"},
		{"replace new", false, engine.StoreReplace, result.StatusKeyNotFound, ""},
		{"replace existing", true, engine.StoreReplace, result.StatusSuccess, "new"},
		{"append new", false, engine.StoreAppend, result.StatusNotStored, ""},
		{"append existing", true, engine.StoreAppend, result.StatusSuccess, "oldnew"},
		{"prepend existing", true, engine.StorePrepend, result.StatusSuccess, "newold"},
		{"invalid mode", true, engine.StoreMode(99), result.StatusInvalidArgs, "old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBucket(t, Options{})
			if tt.exists {
				_, status := b.Store(engine.StoreSet, "k", []byte("old"), 0x04, 0, 0)
				require.Equal(t, result.StatusSuccess, status)
			}

			cas, status := b.Store(tt.mode, "k", []byte("new"), 0x01, 0, 0)
			assert.Equal(t, tt.want, status)
			if status == result.StatusSuccess {
				assert.NotZero(t, cas)
			}

			doc, status := b.Get("k", 0)
			if tt.value == "" {
				assert.Equal(t, result.StatusKeyNotFound, status)
				return
			}
			require.Equal(t, result.StatusSuccess, status)
			assert.Equal(t, tt.value, string(doc.Value))
		})
	}
}

func TestAppendKeepsFlags(t *testing.T) {
	b, _ := newTestBucket(t, Options{})
	b.Store(engine.StoreSet, "k", []byte("a"), 0x04, 0, 0)
	b.Store(engine.StoreAppend, "k", []byte("b"), 0x02, 0, 0)

	doc, _ := b.Get("k", 0)
	assert.Equal(t, uint32(0x04), doc.Flags)
}

func TestCasChecks(t *testing.T) {
	b, _ := newTestBucket(t, Options{})

	_, status := b.Store(engine.StoreSet, "k", []byte("v"), 0, 99, 0)
	assert.Equal(t, result.StatusKeyNotFound, status)

	cas, status := b.Store(engine.StoreSet, "k", []byte("v1"), 0, 0, 0)
	require.Equal(t, result.StatusSuccess, status)

	_, status = b.Store(engine.StoreSet, "k", []byte("v2"), 0, cas+100, 0)
	assert.Equal(t, result.StatusKeyExists, status)

	cas2, status := b.Store(engine.StoreSet, "k", []byte("v2"), 0, cas, 0)
	require.Equal(t, result.StatusSuccess, status)
	assert.Greater(t, cas2, cas)

	_, status = b.Remove("k", cas)
	assert.Equal(t, result.StatusKeyExists, status)
	_, status = b.Remove("k", cas2)
	assert.Equal(t, result.StatusSuccess, status)
	_, status = b.Remove("k", 0)
	assert.Equal(t, result.StatusKeyNotFound, status)
}

func TestTooBig(t *testing.T) {
	b, _ := newTestBucket(t, Options{MaxValueSize: 4})
	_, status := b.Store(engine.StoreSet, "k", []byte("12345"), 0, 0, 0)
	assert.Equal(t, result.StatusTooBig, status)

	b.Store(engine.StoreSet, "k", []byte("123"), 0, 0, 0)
	_, status = b.Store(engine.StoreAppend, "k", []byte("45"), 0, 0, 0)
	assert.Equal(t, result.StatusTooBig, status)
}

func TestExpiry(t *testing.T) {
	b, clock := newTestBucket(t, Options{})
	b.Store(engine.StoreSet, "k", []byte("v"), 0, 0, 10*time.Second)

	_, status := b.Get("k", 0)
	assert.Equal(t, result.StatusSuccess, status)

	clock.advance(5 * time.Second)
	_, status = b.Touch("k", 20*time.Second)
	require.Equal(t, result.StatusSuccess, status)

	clock.advance(10 * time.Second)
	_, status = b.Get("k", 0)
	assert.Equal(t, result.StatusSuccess, status)

	clock.advance(15 * time.Second)
	_, status = b.Get("k", 0)
	assert.Equal(t, result.StatusKeyNotFound, status)

	// expired documents can be added again
	_, status = b.Store(engine.StoreAdd, "k", []byte("v2"), 0, 0, 0)
	assert.Equal(t, result.StatusSuccess, status)
}

func TestLocking(t *testing.T) {
	b, clock := newTestBucket(t, Options{})
	cas, _ := b.Store(engine.StoreSet, "k", []byte("v"), 0, 0, 0)

	doc, status := b.Get("k", 5*time.Second)
	require.Equal(t, result.StatusSuccess, status)
	lockCas := doc.Cas
	assert.NotEqual(t, cas, lockCas)

	_, status = b.Get("k", 5*time.Second)
	assert.Equal(t, result.StatusLocked, status)

	_, status = b.Store(engine.StoreSet, "k", []byte("x"), 0, 0, 0)
	assert.Equal(t, result.StatusLocked, status)
	_, status = b.Touch("k", 0)
	assert.Equal(t, result.StatusLocked, status)

	assert.Equal(t, result.StatusLocked, b.Unlock("k", cas))
	assert.Equal(t, result.StatusSuccess, b.Unlock("k", lockCas))
	assert.Equal(t, result.StatusTempFail, b.Unlock("k", lockCas))

	// the lock expires on its own
	doc, _ = b.Get("k", time.Second)
	_, status = b.Store(engine.StoreSet, "k", []byte("x"), 0, 0, 0)
	assert.Equal(t, result.StatusLocked, status)
	clock.advance(2 * time.Second)
	_, status = b.Store(engine.StoreSet, "k", []byte("x"), 0, 0, 0)
	assert.Equal(t, result.StatusSuccess, status)

	// storing with the lock cas releases the lock
	doc, _ = b.Get("k", time.Second)
	_, status = b.Store(engine.StoreSet, "k", []byte("y"), 0, doc.Cas, 0)
	assert.Equal(t, result.StatusSuccess, status)
	_, status = b.Store(engine.StoreSet, "k", []byte("z"), 0, 0, 0)
	assert.Equal(t, result.StatusSuccess, status)

	assert.Equal(t, result.StatusKeyNotFound, b.Unlock("missing", 1))
}

func TestCounter(t *testing.T) {
	b, _ := newTestBucket(t, Options{})

	_, _, status := b.Counter("c", 1, 0, false, 0)
	assert.Equal(t, result.StatusKeyNotFound, status)

	value, cas, status := b.Counter("c", 1, 10, true, 0)
	require.Equal(t, result.StatusSuccess, status)
	assert.Equal(t, uint64(10), value)
	assert.NotZero(t, cas)

	value, _, _ = b.Counter("c", 5, 0, false, 0)
	assert.Equal(t, uint64(15), value)

	value, _, _ = b.Counter("c", -100, 0, false, 0)
	assert.Equal(t, uint64(0), value)

	doc, _ := b.Get("c", 0)
	assert.Equal(t, "0", string(doc.Value))

	b.Store(engine.StoreSet, "s", []byte("abc"), 0, 0, 0)
	_, _, status = b.Counter("s", 1, 0, false, 0)
	assert.Equal(t, result.StatusDeltaBadValue, status)
}

func TestObserveProgress(t *testing.T) {
	b, clock := newTestBucket(t, Options{
		Replicas:       2,
		PersistDelay:   10 * time.Millisecond,
		ReplicateDelay: 5 * time.Millisecond,
	})

	states := b.Observe("k")
	require.Len(t, states, 3)
	for _, s := range states {
		assert.Equal(t, result.KeyStateNotFound, s.State)
	}
	assert.True(t, states[0].Master)

	cas, _ := b.Store(engine.StoreSet, "k", []byte("v"), 0, 0, 0)
	states = b.Observe("k")
	assert.Equal(t, result.KeyStateFound, states[0].State)
	assert.Equal(t, cas, states[0].Cas)
	assert.Equal(t, result.KeyStateNotFound, states[1].State)

	clock.advance(6 * time.Millisecond)
	states = b.Observe("k")
	assert.Equal(t, result.KeyStateFound, states[1].State)
	assert.Equal(t, result.KeyStateFound, states[2].State)

	clock.advance(20 * time.Millisecond)
	for _, s := range b.Observe("k") {
		assert.Equal(t, result.KeyStatePersisted, s.State)
		assert.Equal(t, cas, s.Cas)
	}

	delCas, _ := b.Remove("k", 0)
	states = b.Observe("k")
	assert.Equal(t, result.KeyStateLogicallyDeleted, states[0].State)
	assert.Equal(t, delCas, states[0].Cas)
	// replicas still hold the persisted document
	assert.Equal(t, result.KeyStatePersisted, states[1].State)
	assert.Equal(t, cas, states[1].Cas)

	clock.advance(time.Second)
	for _, s := range b.Observe("k") {
		assert.Equal(t, result.KeyStateNotFound, s.State)
	}
}

func TestGetReplica(t *testing.T) {
	b, clock := newTestBucket(t, Options{Replicas: 1, ReplicateDelay: 5 * time.Millisecond})
	b.Store(engine.StoreSet, "k", []byte("v"), 0, 0, 0)

	_, status := b.GetReplica("k", 0)
	assert.Equal(t, result.StatusKeyNotFound, status)

	clock.advance(10 * time.Millisecond)
	doc, status := b.GetReplica("k", -1)
	require.Equal(t, result.StatusSuccess, status)
	assert.Equal(t, "v", string(doc.Value))

	_, status = b.GetReplica("k", 1)
	assert.Equal(t, result.StatusInvalidArgs, status)

	single, _ := newTestBucket(t, Options{})
	_, status = single.GetReplica("k", 0)
	assert.Equal(t, result.StatusNoMatchingServer, status)
}

func TestValidateDurability(t *testing.T) {
	b, _ := newTestBucket(t, Options{Replicas: 1})

	tests := []struct {
		name                  string
		persist, replicate    int
		capMax                bool
		wantPersist, wantRepl int
		wantErr               bool
	}{
		{"within topology", 2, 1, false, 2, 1, false},
		{"all nodes", -1, -1, true, 2, 1, false},
		{"too many", 3, 0, false, 0, 0, true},
		{"too many replicas", 0, 2, false, 0, 0, true},
		{"capped", 5, 5, true, 2, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, r, err := b.ValidateDurability(tt.persist, tt.replicate, tt.capMax)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, result.StatusDurabilityTooMany, result.StatusOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPersist, p)
			assert.Equal(t, tt.wantRepl, r)
		})
	}
}

func TestWaitDurable(t *testing.T) {
	ctx := context.Background()

	t.Run("immediate", func(t *testing.T) {
		b, err := New(Options{Replicas: 1})
		require.NoError(t, err)
		cas, _ := b.Store(engine.StoreSet, "k", []byte("v"), 0, 0, 0)

		seen, status := b.WaitDurable(ctx, "k", cas, engine.EndureOptions{PersistTo: 2, ReplicateTo: 1, Timeout: time.Second})
		assert.Equal(t, result.StatusSuccess, status)
		assert.Equal(t, cas, seen)
	})

	t.Run("after delay", func(t *testing.T) {
		b, err := New(Options{Replicas: 1, PersistDelay: 10 * time.Millisecond, ReplicateDelay: 10 * time.Millisecond})
		require.NoError(t, err)
		cas, _ := b.Store(engine.StoreSet, "k", []byte("v"), 0, 0, 0)

		_, status := b.WaitDurable(ctx, "k", cas, engine.EndureOptions{PersistTo: 2, ReplicateTo: 1, Timeout: time.Second, Interval: 2 * time.Millisecond})
		assert.Equal(t, result.StatusSuccess, status)
	})

	t.Run("timeout", func(t *testing.T) {
		b, err := New(Options{Replicas: 1, PersistDelay: time.Hour})
		require.NoError(t, err)
		cas, _ := b.Store(engine.StoreSet, "k", []byte("v"), 0, 0, 0)

		seen, status := b.WaitDurable(ctx, "k", cas, engine.EndureOptions{PersistTo: 1, Timeout: 20 * time.Millisecond, Interval: 5 * time.Millisecond})
		assert.Equal(t, result.StatusTimeout, status)
		assert.Equal(t, cas, seen)
	})

	t.Run("too many", func(t *testing.T) {
		b, err := New(Options{})
		require.NoError(t, err)
		_, status := b.WaitDurable(ctx, "k", 0, engine.EndureOptions{ReplicateTo: 1})
		assert.Equal(t, result.StatusDurabilityTooMany, status)
	})

	t.Run("modified", func(t *testing.T) {
		b, err := New(Options{})
		require.NoError(t, err)
		cas, _ := b.Store(engine.StoreSet, "k", []byte("v"), 0, 0, 0)
		b.Store(engine.StoreSet, "k", []byte("v2"), 0, 0, 0)
		_, status := b.WaitDurable(ctx, "k", cas, engine.EndureOptions{PersistTo: 1})
		assert.Equal(t, result.StatusKeyExists, status)
	})

	t.Run("delete", func(t *testing.T) {
		b, err := New(Options{Replicas: 1})
		require.NoError(t, err)
		b.Store(engine.StoreSet, "k", []byte("v"), 0, 0, 0)
		cas, _ := b.Remove("k", 0)
		seen, status := b.WaitDurable(ctx, "k", cas, engine.EndureOptions{PersistTo: 2, ReplicateTo: 1, CheckDelete: true})
		assert.Equal(t, result.StatusSuccess, status)
		assert.Equal(t, cas, seen)
	})
}

func TestStats(t *testing.T) {
	b, _ := newTestBucket(t, Options{Replicas: 1, Name: "test"})
	b.Store(engine.StoreSet, "a", []byte("1234"), 0, 0, 0)
	b.Store(engine.StoreSet, "b", []byte("12"), 0, 0, 0)
	b.Get("a", 0)
	b.Get("missing", 0)

	stats, status := b.Stats("")
	require.Equal(t, result.StatusSuccess, status)

	byNode := map[string]map[string]string{}
	for _, s := range stats {
		if byNode[s.Node] == nil {
			byNode[s.Node] = map[string]string{}
		}
		byNode[s.Node][s.Name] = s.Value
	}
	require.Len(t, byNode, 2)
	assert.Equal(t, "test", byNode["node-0"]["bucket"])
	assert.Equal(t, "1", byNode["node-1"]["get_hits"])
	assert.Equal(t, "1", byNode["node-1"]["get_misses"])
	assert.Equal(t, "6", byNode["node-0"]["mem_used"])

	var items, replicaItems int
	for _, node := range byNode {
		items += atoi(t, node["curr_items"])
		replicaItems += atoi(t, node["vb_replica_curr_items"])
	}
	assert.Equal(t, 2, items)
	assert.Equal(t, 2, replicaItems)

	sizes, status := b.Stats("sizes")
	require.Equal(t, result.StatusSuccess, status)
	found := map[string]string{}
	for _, s := range sizes {
		assert.Equal(t, "node-0", s.Node)
		found[s.Name] = s.Value
	}
	assert.Equal(t, "2", found["size_count"])
	assert.Equal(t, "2", found["size<=16"])

	_, status = b.Stats("nope")
	assert.Equal(t, result.StatusInvalidArgs, status)
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}

func TestExecute(t *testing.T) {
	b, _ := newTestBucket(t, Options{Replicas: 2})
	cookie := new(int)

	events := b.Execute(engine.Command{Kind: engine.OpStore, Cookie: cookie, Key: []byte("k"), Value: []byte(`"v"`)})
	require.Len(t, events, 1)
	assert.Equal(t, result.StatusSuccess, events[0].Status)
	assert.Same(t, cookie, events[0].Cookie)
	cas := events[0].Cas

	events = b.Execute(engine.Command{Kind: engine.OpGet, Cookie: cookie, Key: []byte("k")})
	require.Len(t, events, 1)
	assert.Equal(t, `"v"`, string(events[0].Value))
	assert.Equal(t, cas, events[0].Cas)

	events = b.Execute(engine.Command{Kind: engine.OpObserve, Cookie: cookie, Key: []byte("k")})
	require.Len(t, events, 4)
	assert.True(t, events[0].FromMaster)
	assert.True(t, events[3].Final)

	events = b.Execute(engine.Command{Kind: engine.OpStats, Cookie: cookie, Group: "bad"})
	require.Len(t, events, 4)
	assert.Equal(t, result.StatusInvalidArgs, events[0].Status)
	assert.Equal(t, "", events[3].Server)

	events = b.Execute(engine.Command{Kind: engine.OpCounter, Key: []byte("n"), Delta: 2, Initial: 7, Create: true})
	assert.Equal(t, uint64(7), events[0].Counter)

	events = b.Execute(engine.Command{Kind: engine.OpInvalid, Key: []byte("k")})
	assert.Equal(t, result.StatusUnknownCommand, events[0].Status)

	ev := b.ExecuteEndure(context.Background(), engine.EndureCommand{Cookie: cookie, Key: []byte("k"), Cas: cas, Options: engine.EndureOptions{PersistTo: 1}})
	assert.Equal(t, engine.OpEndure, ev.Kind)
	assert.Equal(t, result.StatusSuccess, ev.Status)
	assert.Same(t, cookie, ev.Cookie)
}
