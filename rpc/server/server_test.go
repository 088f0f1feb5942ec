package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dCB/lib/bucket"
	"github.com/ValentinKolb/dCB/lib/codec"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/serializer"
	"github.com/ValentinKolb/dCB/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the responses of one request
type recorder struct {
	mu    sync.Mutex
	resps []*common.Message
	last  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{last: make(chan struct{})}
}

func (r *recorder) respond(resp *common.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resps = append(r.resps, resp)
	if resp.Last {
		close(r.last)
	}
	return nil
}

func (r *recorder) wait(t *testing.T) []*common.Message {
	t.Helper()
	select {
	case <-r.last:
	case <-time.After(5 * time.Second):
		t.Fatal("request did not end")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resps
}

func handle(t *testing.T, a IRPCServerAdapter, b *bucket.Bucket, req *common.Message) []*common.Message {
	t.Helper()
	rec := newRecorder()
	a.Handle(context.Background(), req, b, rec.respond)
	return rec.wait(t)
}

func newBucket(t *testing.T, opts bucket.Options) *bucket.Bucket {
	t.Helper()
	b, err := bucket.New(opts)
	require.NoError(t, err)
	return b
}

func TestAdapterStoreAndGet(t *testing.T) {
	a := NewBucketServerAdapter()
	b := newBucket(t, bucket.Options{})

	store := common.NewCommandRequest(engine.Command{Kind: engine.OpStore, Key: []byte("k"), Value: []byte(`1`), Flags: codec.FormatJSON})
	resps := handle(t, a, b, store)
	require.Len(t, resps, 1)
	assert.True(t, resps[0].Last)
	assert.Equal(t, common.MsgTStore, resps[0].MsgType)
	assert.Equal(t, uint16(result.StatusSuccess), resps[0].Status)
	cas := resps[0].Cas
	assert.NotZero(t, cas)

	resps = handle(t, a, b, common.NewCommandRequest(engine.Command{Kind: engine.OpGet, Key: []byte("k")}))
	require.Len(t, resps, 1)
	assert.Equal(t, []byte(`1`), resps[0].Value)
	assert.Equal(t, cas, resps[0].Cas)
}

func TestAdapterStreamsObserve(t *testing.T) {
	a := NewBucketServerAdapter()
	b := newBucket(t, bucket.Options{Replicas: 2})

	resps := handle(t, a, b, common.NewCommandRequest(engine.Command{Kind: engine.OpObserve, Key: []byte("k")}))
	require.Len(t, resps, 4)
	for _, resp := range resps[:3] {
		assert.False(t, resp.Last)
		assert.False(t, resp.Final)
	}
	assert.True(t, resps[3].Last)
	assert.True(t, resps[3].Final)
}

func TestAdapterRejectsInvalidRequests(t *testing.T) {
	a := NewBucketServerAdapter()
	b := newBucket(t, bucket.Options{})

	tests := []struct {
		name string
		req  *common.Message
		want result.Status
	}{
		{"unknown type", &common.Message{MsgType: common.MsgTUnknown, Key: []byte("k")}, result.StatusUnknownCommand},
		{"missing key", &common.Message{MsgType: common.MsgTGet}, result.StatusInvalidArgs},
		{"too many replicas", common.NewEndureRequest(engine.EndureCommand{
			Key:     []byte("k"),
			Options: engine.EndureOptions{ReplicateTo: 1, Timeout: time.Second},
		}), result.StatusDurabilityTooMany},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resps := handle(t, a, b, tt.req)
			require.Len(t, resps, 1)
			assert.Equal(t, common.MsgTError, resps[0].MsgType)
			assert.Equal(t, uint16(tt.want), resps[0].Status)
			assert.NotEmpty(t, resps[0].Err)
		})
	}
}

func TestAdapterEndure(t *testing.T) {
	a := NewBucketServerAdapter()
	b := newBucket(t, bucket.Options{Replicas: 1, PersistDelay: 5 * time.Millisecond, ReplicateDelay: 5 * time.Millisecond})

	resps := handle(t, a, b, common.NewCommandRequest(engine.Command{Kind: engine.OpStore, Key: []byte("k"), Value: []byte(`1`)}))
	cas := resps[0].Cas

	resps = handle(t, a, b, common.NewEndureRequest(engine.EndureCommand{
		Key: []byte("k"),
		Cas: cas,
		Options: engine.EndureOptions{
			PersistTo:   2,
			ReplicateTo: 1,
			Timeout:     time.Second,
			Interval:    time.Millisecond,
		},
	}))
	require.Len(t, resps, 1)
	assert.Equal(t, common.MsgTEndure, resps[0].MsgType)
	assert.Equal(t, uint16(result.StatusSuccess), resps[0].Status)
	assert.Equal(t, cas, resps[0].Cas)
	a.Wait()
}

func TestAdapterEndureCancelled(t *testing.T) {
	a := NewBucketServerAdapter()
	b := newBucket(t, bucket.Options{PersistDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	a.Handle(ctx, common.NewEndureRequest(engine.EndureCommand{
		Key:     []byte("k"),
		Options: engine.EndureOptions{PersistTo: 1, Timeout: time.Hour, Interval: time.Millisecond},
	}), b, rec.respond)
	cancel()

	resps := rec.wait(t)
	require.Len(t, resps, 1)
	assert.Equal(t, uint16(result.StatusTimeout), resps[0].Status)
	a.Wait()
}

func TestServerRejectsUnknownBucket(t *testing.T) {
	s := NewRPCServer(common.ServerConfig{
		Shards:    []common.ServerShard{{ShardID: 1, Name: "default"}},
		Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
	}, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
	require.NoError(t, s.Start())
	defer s.Close()

	_, ok := s.Bucket(1)
	assert.True(t, ok)
	_, ok = s.Bucket(2)
	assert.False(t, ok)
	assert.NotNil(t, s.Addr())
}

func TestServerConfigErrors(t *testing.T) {
	s := NewRPCServer(common.ServerConfig{}, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
	assert.Error(t, s.Start())

	s = NewRPCServer(common.ServerConfig{
		Shards:    []common.ServerShard{{ShardID: 1}, {ShardID: 1}},
		Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
	}, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
	assert.Error(t, s.Start())
}
