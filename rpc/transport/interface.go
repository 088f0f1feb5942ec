package transport

import (
	"net"

	"github.com/ValentinKolb/dCB/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ResponseWriter writes one response frame for the request it was created for.
// It may be called several times and from any goroutine, also after the handler
// returned. It fails once the connection is closed.
type ResponseWriter func(resp []byte) error

// ServerHandleFunc handles an incoming request. req is only valid until the
// function returns.
type ServerHandleFunc func(shardId uint64, req []byte, w ResponseWriter)

// IRPCServerTransport is the interface for the server side of the transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the handler that is called for every request.
	// It must be called before Listen.
	RegisterHandler(handler ServerHandleFunc)
	// Listen binds the configured endpoint and serves connections in the background.
	Listen(config common.ServerConfig) error
	// Addr returns the address the transport listens on (nil before Listen).
	Addr() net.Addr
	// Close stops accepting connections and closes all open connections.
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// ResponseHandler receives the response frames of one request. A non-nil err
// means the connection carrying the request failed, no frame follows after it.
type ResponseHandler func(resp []byte, err error)

// IRPCClientTransport is the interface for the client side of the transport layer
type IRPCClientTransport interface {
	// Connect opens the connections to the configured endpoints
	Connect(config common.ClientConfig) error
	// Send writes a request frame. handler receives every response frame with the
	// same request id until Forget is called for the returned id.
	Send(shardId uint64, req []byte, handler ResponseHandler) (requestID uint64, err error)
	// Forget drops the handler of a request, later responses are discarded.
	Forget(requestID uint64)
	// Close closes all connections. Pending requests fail.
	Close() error
}
