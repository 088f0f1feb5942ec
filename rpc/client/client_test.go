package client

import (
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dCB/lib/batch"
	"github.com/ValentinKolb/dCB/lib/codec"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/serializer"
	"github.com/ValentinKolb/dCB/rpc/server"
	"github.com/ValentinKolb/dCB/rpc/transport"
	"github.com/ValentinKolb/dCB/rpc/transport/tcp"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func startServer(t *testing.T, s serializer.IRPCSerializer) string {
	t.Helper()
	srv := server.NewRPCServer(common.ServerConfig{
		Shards:           []common.ServerShard{{ShardID: 1, Name: "default"}},
		Replicas:         1,
		PersistDelayMs:   2,
		ReplicateDelayMs: 1,
		Transport:        common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
	}, tcp.NewTCPServerTransport(), s)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Close() })
	return srv.Addr().String()
}

func clientConfig(addr string) common.ClientConfig {
	return common.ClientConfig{
		Bucket:               1,
		TimeoutSecond:        5,
		DurabilityTimeoutMs:  2000,
		DurabilityIntervalMs: 1,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{addr},
			ConnectionsPerEndpoint: 2,
			RetryCount:             1,
		},
	}
}

func connect(t *testing.T, addr string, s serializer.IRPCSerializer) *Bucket {
	t.Helper()
	b, err := Connect(clientConfig(addr), tcp.NewTCPClientTransport(), s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newTestBucket(t *testing.T) *Bucket {
	t.Helper()
	s := serializer.NewBinarySerializer()
	return connect(t, startServer(t, s), s)
}

// silentServer accepts requests and never answers them
func silentServer(t *testing.T) transport.IRPCServerTransport {
	t.Helper()
	srv := tcp.NewTCPServerTransport()
	srv.RegisterHandler(func(uint64, []byte, transport.ResponseWriter) {})
	require.NoError(t, srv.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"}}))
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// --------------------------------------------------------------------------
// Bucket API
// --------------------------------------------------------------------------

func TestStoreAndGet(t *testing.T) {
	b := newTestBucket(t)

	stored, err := b.Store(engine.StoreSet, "a", map[string]any{"x": 1}, StoreOptions{})
	require.NoError(t, err)
	assert.NotZero(t, stored.Cas)

	res, err := b.Get("a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(1)}, res.Value)
	assert.Equal(t, stored.Cas, res.Cas)

	mres, err := b.GetMulti([]string{"a", "b"}, ReadOptions{})
	require.NoError(t, err)
	assert.False(t, mres.AllOk())
	assert.Equal(t, "b", mres.FirstError().Key())
	missing, _ := mres.Get("b")
	assert.Equal(t, result.StatusKeyNotFound, missing.Status)

	quiet, err := b.GetMulti([]string{"a", "b"}, ReadOptions{Flags: batch.FlagQuiet})
	require.NoError(t, err)
	assert.True(t, quiet.AllOk())
	assert.Nil(t, quiet.FirstError())
}

func TestStoreModes(t *testing.T) {
	b := newTestBucket(t)

	_, err := b.Store(engine.StoreAdd, "k", "v", StoreOptions{Format: codec.FormatUTF8})
	require.NoError(t, err)

	res, err := b.Store(engine.StoreAdd, "k", "v", StoreOptions{Format: codec.FormatUTF8})
	assert.Error(t, err)
	assert.Equal(t, result.StatusKeyExists, res.Status)

	_, err = b.Store(engine.StoreAppend, "k", "w", StoreOptions{Format: codec.FormatUTF8})
	require.NoError(t, err)
	_, err = b.Store(engine.StorePrepend, "k", "u", StoreOptions{Format: codec.FormatUTF8})
	require.NoError(t, err)

	res, err = b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "uvw", res.Value)

	res, err = b.Store(engine.StoreReplace, "missing", "v", StoreOptions{Format: codec.FormatUTF8})
	assert.Error(t, err)
	assert.Equal(t, result.StatusKeyNotFound, res.Status)
}

func TestCasAndLocking(t *testing.T) {
	b := newTestBucket(t)

	stored, err := b.Store(engine.StoreSet, "k", 1, StoreOptions{})
	require.NoError(t, err)

	res, err := b.Store(engine.StoreSet, "k", 2, StoreOptions{Cas: stored.Cas + 1})
	assert.Error(t, err)
	assert.Equal(t, result.StatusKeyExists, res.Status)

	locked, err := b.GetAndLock("k", 5)
	require.NoError(t, err)

	res, err = b.Store(engine.StoreSet, "k", 3, StoreOptions{})
	assert.Error(t, err)
	assert.Equal(t, result.StatusLocked, res.Status)

	_, err = b.Unlock("k", locked.Cas)
	require.NoError(t, err)
	_, err = b.Store(engine.StoreSet, "k", 3, StoreOptions{})
	require.NoError(t, err)
}

func TestCounterTouchRemove(t *testing.T) {
	b := newTestBucket(t)

	res, err := b.Counter("n", 5, CounterOptions{Initial: 10, Create: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.Value)

	res, err = b.Counter("n", -3, CounterOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res.Value)

	_, err = b.Touch("n", 60)
	require.NoError(t, err)

	_, err = b.Remove("n", 0, batch.Durability{})
	require.NoError(t, err)

	res, err = b.Counter("n", 1, CounterOptions{})
	assert.Error(t, err)
	assert.Equal(t, result.StatusKeyNotFound, res.Status)
}

func TestDurability(t *testing.T) {
	b := newTestBucket(t)

	var hooked []string
	var mu sync.Mutex
	b.Dispatcher().SetDurabilityTestHook(func(res *result.Result) {
		mu.Lock()
		hooked = append(hooked, res.Key())
		mu.Unlock()
	})

	mres, err := b.StoreMulti(engine.StoreSet, map[string]any{"a": 1, "b": 2}, StoreOptions{
		Durability: batch.Durability{PersistTo: 2, ReplicateTo: 1},
	})
	require.NoError(t, err)
	assert.True(t, mres.AllOk(), "%v", mres.Err())
	assert.ElementsMatch(t, []string{"a", "b"}, hooked)

	res, err := b.Store(engine.StoreSet, "c", 1, StoreOptions{Durability: batch.Durability{ReplicateTo: 2}})
	assert.Error(t, err)
	assert.Equal(t, result.StatusDurabilityTooMany, res.Status)

	a, _ := mres.Get("a")
	endured, err := b.Endure(map[string]uint64{"a": a.Cas}, batch.Durability{PersistTo: -1, ReplicateTo: -1}, false)
	require.NoError(t, err)
	assert.True(t, endured.AllOk(), "%v", endured.Err())

	_, err = b.Remove("b", 0, batch.Durability{PersistTo: 1})
	require.NoError(t, err)
}

func TestObserveAndStats(t *testing.T) {
	b := newTestBucket(t)
	_, err := b.Store(engine.StoreSet, "a", 1, StoreOptions{})
	require.NoError(t, err)

	mres, err := b.Observe("a", "b")
	require.NoError(t, err)
	require.True(t, mres.AllOk())
	a, _ := mres.Get("a")
	require.Len(t, a.ObserveInfo(), 2)
	assert.True(t, a.ObserveInfo()[0].FromMaster)
	missing, _ := mres.Get("b")
	assert.Equal(t, result.KeyStateNotFound, missing.ObserveInfo()[0].State)

	stats, err := b.Stats("")
	require.NoError(t, err)
	require.True(t, stats.AllOk())
	assert.Equal(t, "default", stats.Stats()["bucket"]["node-0"])

	bad, err := b.Stats("nope")
	require.NoError(t, err)
	assert.False(t, bad.AllOk())
	assert.Equal(t, result.StatusInvalidArgs, bad.FirstError().Status)
}

func TestItems(t *testing.T) {
	b := newTestBucket(t)

	items := []*result.Result{result.NewItem("a", "x"), result.NewItem("b", "y")}
	items[0].Fields["owner"] = "me"
	mres, err := b.StoreItems(engine.StoreSet, items, StoreOptions{Format: codec.FormatUTF8})
	require.NoError(t, err)
	require.True(t, mres.AllOk())
	assert.NotZero(t, items[0].Cas)

	fetch := []*result.Result{result.NewItem("a", nil), result.NewItem("b", nil)}
	mres, err = b.GetItems(fetch, ReadOptions{})
	require.NoError(t, err)
	require.True(t, mres.AllOk())
	assert.Equal(t, "x", fetch[0].Value)
	assert.Equal(t, "y", fetch[1].Value)
}

func TestAsync(t *testing.T) {
	b := newTestBucket(t)

	done := make(chan *batch.MultiResult, 1)
	fail := func(m *batch.MultiResult) { t.Errorf("unexpected error callback: %v", m.Err()) }
	require.NoError(t, b.StoreMultiAsync(engine.StoreSet, map[string]any{"a": 1, "b": 2}, StoreOptions{},
		func(m *batch.MultiResult) { done <- m }, fail))

	select {
	case m := <-done:
		assert.Equal(t, 2, m.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("store callback not called")
	}

	failed := make(chan *batch.MultiResult, 1)
	require.NoError(t, b.GetMultiAsync([]string{"a", "missing"}, ReadOptions{},
		func(m *batch.MultiResult) { t.Error("unexpected success callback") },
		func(m *batch.MultiResult) { failed <- m }))

	select {
	case m := <-failed:
		assert.Equal(t, "missing", m.FirstError().Key())
	case <-time.After(5 * time.Second):
		t.Fatal("get callback not called")
	}

	assert.Equal(t, int64(1), b.Metrics().Get("store").(metrics.Timer).Count())
	assert.Equal(t, int64(1), b.Metrics().Get("get").(metrics.Timer).Count())
}

func TestSerializers(t *testing.T) {
	for _, name := range serializer.Names() {
		t.Run(name, func(t *testing.T) {
			s, err := serializer.New(name)
			require.NoError(t, err)
			b := connect(t, startServer(t, s), s)

			_, err = b.Store(engine.StoreSet, "k", []any{"v", 1.5}, StoreOptions{Format: codec.FormatCBOR})
			require.NoError(t, err)
			res, err := b.Get("k")
			require.NoError(t, err)
			assert.Equal(t, []any{"v", 1.5}, res.Value)

			mres, err := b.Observe("k")
			require.NoError(t, err)
			assert.True(t, mres.AllOk())
		})
	}
}

func TestInvalidInput(t *testing.T) {
	b := newTestBucket(t)

	_, err := b.Get("")
	assert.Error(t, err)
	_, err = b.GetMulti(nil, ReadOptions{})
	assert.Error(t, err)
	_, err = b.Store(engine.StoreSet, "k", make(chan int), StoreOptions{})
	assert.Error(t, err)
	_, err = b.Endure(map[string]uint64{}, batch.Durability{PersistTo: 1}, false)
	assert.Error(t, err)
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

func TestEngineTimeout(t *testing.T) {
	srv := silentServer(t)
	config := clientConfig(srv.Addr().String())
	config.TimeoutSecond = 1
	b, err := Connect(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)
	defer b.Close()

	mres, err := b.Observe("k")
	require.NoError(t, err)
	res, _ := mres.Get("k")
	assert.Equal(t, result.StatusTimeout, res.Status)

	stats, err := b.Stats("")
	require.NoError(t, err)
	assert.Equal(t, result.StatusTimeout, stats.FirstError().Status)
}

func TestEngineConnectionLoss(t *testing.T) {
	srv := silentServer(t)
	b, err := Connect(clientConfig(srv.Addr().String()), tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)
	defer b.Close()

	done := make(chan *result.Result, 1)
	go func() {
		res, _ := b.Get("k")
		done <- res
	}()

	// give the request time to reach the server
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, srv.Close())

	select {
	case res := <-done:
		assert.Equal(t, result.StatusNetworkError, res.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("request did not fail")
	}
}

func TestEngineClosed(t *testing.T) {
	srv := silentServer(t)
	eng, err := NewEngine(clientConfig(srv.Addr().String()), tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)
	eng.SetHandler(engine.HandlerFunc(func(engine.Event) {}))

	require.NoError(t, eng.Close())
	assert.ErrorIs(t, eng.Schedule(engine.Command{Kind: engine.OpGet, Key: []byte("k")}), ErrClosed)
	assert.ErrorIs(t, eng.Endure(engine.EndureCommand{Key: []byte("k")}), ErrClosed)
	assert.NoError(t, eng.Close())

	assert.Equal(t, result.StatusUnknownCommand, result.StatusOf(eng.Schedule(engine.Command{Kind: engine.OpEndure, Key: []byte("k")})))
}

func TestConnectFails(t *testing.T) {
	config := clientConfig("127.0.0.1:1")
	_, err := Connect(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
	assert.Error(t, err)
}
