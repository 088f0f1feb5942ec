package server

import (
	"context"
	"sync"

	"github.com/ValentinKolb/dCB/lib/bucket"
	"github.com/ValentinKolb/dCB/lib/engine"
	"github.com/ValentinKolb/dCB/lib/result"
	"github.com/ValentinKolb/dCB/rpc/common"
)

// NewBucketServerAdapter creates the adapter that executes bucket operations.
func NewBucketServerAdapter() IRPCServerAdapter {
	return &bucketServerAdapterImpl{}
}

type bucketServerAdapterImpl struct {
	wg sync.WaitGroup
}

func (adapter *bucketServerAdapterImpl) Handle(ctx context.Context, req *common.Message, b *bucket.Bucket, respond Responder) {
	// Check for nil bucket
	if b == nil {
		_ = respond(common.NewErrorResponse(result.StatusInternalError, "handler: bucket is nil"))
		return
	}

	if req.MsgType == common.MsgTEndure {
		adapter.endure(ctx, req.EndureCommand(), b, respond)
		return
	}

	cmd := req.Command()
	if err := engine.Validate(cmd); err != nil {
		_ = respond(common.NewErrorResponse(result.StatusOf(err), err.Error()))
		return
	}

	events := b.Execute(cmd)
	for i, ev := range events {
		if err := respond(common.NewEventResponse(ev, i == len(events)-1)); err != nil {
			return
		}
	}
}

// endure validates the targets right away and answers once the mutation is durable
func (adapter *bucketServerAdapterImpl) endure(ctx context.Context, cmd engine.EndureCommand, b *bucket.Bucket, respond Responder) {
	opts := cmd.Options
	if _, _, err := b.ValidateDurability(opts.PersistTo, opts.ReplicateTo, opts.CapMax); err != nil {
		_ = respond(common.NewErrorResponse(result.StatusOf(err), err.Error()))
		return
	}

	adapter.wg.Add(1)
	endureInFlight.Inc()
	go func() {
		defer adapter.wg.Done()
		defer endureInFlight.Dec()

		ev := b.ExecuteEndure(ctx, cmd)
		if err := respond(common.NewEventResponse(ev, true)); err != nil {
			Logger.Debugf("failed to send endure response for key %q: %v", cmd.Key, err)
		}
	}()
}

func (adapter *bucketServerAdapterImpl) Wait() {
	adapter.wg.Wait()
}
