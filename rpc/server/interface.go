package server

import (
	"context"

	"github.com/ValentinKolb/dCB/lib/bucket"
	"github.com/ValentinKolb/dCB/rpc/common"
)

// Responder sends one response of the request being handled. The response with
// Last set ends the request. A Responder may be used from any goroutine.
type Responder func(resp *common.Message) error

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle executes a request against a bucket and sends its responses. Work
	// that outlives the call (durability checks) must stop when ctx is done.
	Handle(ctx context.Context, req *common.Message, b *bucket.Bucket, respond Responder)
	// Wait blocks until the background work started by Handle finished.
	Wait()
}
