package base

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrConnectionClosed is returned by Send if no open connection could take the request.
var ErrConnectionClosed = errors.New("connection is closed")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection based on the provided configuration
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// pendingRequest is a request waiting for responses
type pendingRequest struct {
	conn    *clientConnection
	handler transport.ResponseHandler
}

// clientConnection represents a single net connection
type clientConnection struct {
	conn     net.Conn // nil while broken
	endpoint string
	connMu   sync.Mutex // Protects the connection itself
	parent   *clientTransport
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	pending       *xsync.MapOf[uint64, pendingRequest]
	nextConnIndex uint64 // Atomic counter for Round Robin
	nextRequestID uint64 // Atomic counter for unique request IDs
	stopping      atomic.Bool
	readers       sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		pending:   xsync.NewMapOf[uint64, pendingRequest](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	t.stopping.Store(true)
	t.closeConnections()
	t.readers.Wait()
	t.stopping.Store(false)

	t.config = config

	// Set default value for ConnectionsPerEndpoint
	connectionsPerEP := max(config.Transport.ConnectionsPerEndpoint, 1)
	connections := make([]*clientConnection, 0, len(config.Transport.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Transport.Endpoints {
		// Create multiple connections per endpoint
		for i := 0; i < connectionsPerEP; i++ {
			clientConn := &clientConnection{
				endpoint: endpoint,
				parent:   t,
			}

			conn, err := clientConn.reconnect()
			if err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connections = append(connections, clientConn)
			Logger.Debugf("Connected to %s (connection %d/%d)", endpoint, i+1, connectionsPerEP)

			// Start the response reader
			t.readers.Add(1)
			go clientConn.readResponses(conn)
		}
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	// Check if we have at least one connection
	if len(connections) == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}

	Logger.Infof("Connected to %d out of %d connections to %d endpoints using %s transport",
		len(connections), len(config.Transport.Endpoints)*connectionsPerEP, len(config.Transport.Endpoints), t.connector.GetName())

	return nil
}

func (t *clientTransport) Send(shardId uint64, req []byte, handler transport.ResponseHandler) (uint64, error) {
	if t.stopping.Load() {
		return 0, ErrConnectionClosed
	}

	// Generate a unique request ID
	requestID := atomic.AddUint64(&t.nextRequestID, 1)

	t.connectionsMu.RLock()
	attempts := len(t.connections)
	t.connectionsMu.RUnlock()

	// Nothing was written if a connection is broken, so the next one may take the request.
	// Requests are never resent after a write was attempted.
	lastErr := ErrConnectionClosed
	for i := 0; i < attempts; i++ {
		conn := t.getNextConnection()
		if conn == nil {
			break
		}

		err := conn.send(shardId, requestID, req, handler)
		if err == nil {
			return requestID, nil
		}
		lastErr = err
		if !errors.Is(err, ErrConnectionClosed) {
			break
		}
	}
	return 0, lastErr
}

func (t *clientTransport) Forget(requestID uint64) {
	t.pending.Delete(requestID)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	t.readers.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	if len(t.connections) == 0 {
		return nil
	}

	// Simple Round Robin algorithm
	var index uint64
	if len(t.connections) == 1 {
		// optimize for single connection
		index = 0
	} else {
		index = atomic.AddUint64(&t.nextConnIndex, 1) % uint64(len(t.connections))
	}
	return t.connections[index]
}

// closeConnections closes all active connections. The readers notice and fail
// their pending requests.
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	defer t.connectionsMu.Unlock()

	for _, c := range t.connections {
		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.connMu.Unlock()
	}

	// Empty the list
	t.connections = nil
}

// send registers the handler and writes the request frame
func (c *clientConnection) send(shardId, requestID uint64, req []byte, handler transport.ResponseHandler) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	// Test if connection is still valid
	if c.conn == nil {
		return ErrConnectionClosed
	}

	// Register before writing, the response may arrive before writeFrame returns
	c.parent.pending.Store(requestID, pendingRequest{conn: c, handler: handler})

	if timeout := c.parent.config.Timeout(); timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}

	if err := writeFrame(c.conn, shardId, requestID, req); err != nil {
		c.parent.pending.Delete(requestID)
		// the reader notices the closed connection and reconnects
		_ = c.conn.Close()
		return fmt.Errorf("failed to write request to %s: %v", c.endpoint, err)
	}
	return nil
}

// readResponses reads responses in a loop and passes them to the registered handlers
func (c *clientConnection) readResponses(conn net.Conn) {
	defer c.parent.readers.Done()

	for {
		// Read the response frame
		shardID, requestID, data, err := readFrame(conn, nil, 0)

		if err != nil {
			c.failPending(conn, fmt.Errorf("error reading response: %v", err))
			if c.parent.stopping.Load() {
				return
			}
			Logger.Warningf("Connection to %s failed: %v", c.endpoint, err)

			// Try to restore the connection
			conn, err = c.reconnect()
			if err != nil {
				Logger.Errorf("Failed to reconnect to %s: %v", c.endpoint, err)
				return
			}
			Logger.Infof("Reconnected to %s", c.endpoint)
			continue
		}

		// Find the corresponding request
		p, found := c.parent.pending.Load(requestID)
		if !found {
			// forgotten requests (timeouts) end up here
			Logger.Debugf("Discarding response for unknown request ID %d with shard ID %d", requestID, shardID)
			continue
		}
		p.handler(data, nil)
	}
}

// failPending marks the connection as broken and fails all requests sent over it
func (c *clientConnection) failPending(conn net.Conn, err error) {
	c.connMu.Lock()
	if c.conn == conn {
		_ = c.conn.Close()
		c.conn = nil
	}
	var failed []transport.ResponseHandler
	c.parent.pending.Range(func(id uint64, p pendingRequest) bool {
		if p.conn == c {
			if _, ok := c.parent.pending.LoadAndDelete(id); ok {
				failed = append(failed, p.handler)
			}
		}
		return true
	})
	c.connMu.Unlock()

	for _, handler := range failed {
		handler(nil, err)
	}
}

// reconnect establishes or restores a connection to the endpoint. It tries
// RetryCount times (at least once) with exponential backoff.
func (c *clientConnection) reconnect() (net.Conn, error) {
	maxRetries := max(c.parent.config.Transport.RetryCount, 1)

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if c.parent.stopping.Load() {
			return nil, ErrConnectionClosed
		}

		conn, err := c.dial()
		if err == nil {
			c.connMu.Lock()
			defer c.connMu.Unlock()
			if c.parent.stopping.Load() {
				_ = conn.Close()
				return nil, ErrConnectionClosed
			}
			c.conn = conn
			return conn, nil
		}

		lastErr = err
		Logger.Debugf("Connection attempt %d/%d to %s failed: %v", i+1, maxRetries, c.endpoint, err)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxRetries, lastErr)
}

// dial opens and upgrades a single connection
func (c *clientConnection) dial() (net.Conn, error) {
	conn, err := c.parent.connector.Connect(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", c.endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %v", c.endpoint, err)
	}
	return conn, nil
}
