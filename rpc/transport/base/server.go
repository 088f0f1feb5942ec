package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector         IServerConnector
	handler           transport.ServerHandleFunc
	config            common.ServerConfig
	listener          net.Listener
	bufferPool        *sync.Pool
	bufferSize        int
	maxWorkersPerConn int
	conns             *xsync.MapOf[net.Conn, struct{}]
	closed            atomic.Bool
	wg                sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with per-connection worker pool.
// The buffer size and worker count are defaults, the transport section of the server
// config overrides them if set.
func NewBaseServerTransport(connector IServerConnector, bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {
	return &serverTransport{
		connector:         connector,
		bufferSize:        bufferSize,
		maxWorkersPerConn: maxWorkersPerConn,
		conns:             xsync.NewMapOf[net.Conn, struct{}](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	if config.Transport.BufferSize > 0 {
		t.bufferSize = config.Transport.BufferSize
	}
	if config.Transport.WorkersPerConn > 0 {
		t.maxWorkersPerConn = config.Transport.WorkersPerConn
	}
	// minimum one worker per connection
	t.maxWorkersPerConn = max(t.maxWorkersPerConn, 1)

	bufferSize := t.bufferSize
	t.bufferPool = &sync.Pool{
		New: func() interface{} {
			return make([]byte, bufferSize)
		},
	}

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	t.listener = listener

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), listener.Addr(), t.maxWorkersPerConn)

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

func (t *serverTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		return true
	})
	t.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// acceptLoop accepts connections until the listener is closed
func (t *serverTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Errorf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		// Handle the connection in a goroutine
		t.conns.Store(conn, struct{}{})
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			defer t.conns.Delete(conn)
			t.handleConnection(conn)
		}()
	}
}

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer conn.Close()

	// Timeout in seconds
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// Create a semaphore to limit concurrent workers for this connection
	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, t.maxWorkersPerConn)

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Create a mutex to protect writes to the connection.
	// Responses may be written after the worker returned (durability checks),
	// so every write goes through it.
	var connMutex sync.Mutex

	writerFor := func(shardID, requestID uint64) transport.ResponseWriter {
		return func(resp []byte) error {
			connMutex.Lock()
			defer connMutex.Unlock()

			if timeout > 0 {
				if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
					return fmt.Errorf("failed to set write deadline: %v", err)
				}
			}

			// Write the response with the same requestID
			if err := writeFrame(conn, shardID, requestID, resp); err != nil {
				Logger.Errorf("Failed to write response for request %d: %v", requestID, err)
				return err
			}
			return nil
		}
	}

	// Handler function that processes requests in worker goroutines
	handle := func(shardID, requestID uint64, data []byte) {
		// When done, release the semaphore and mark worker as done
		defer func() {
			<-workerSemaphore // Release semaphore slot
			wg.Done()         // Mark worker as done
		}()

		start := time.Now()
		t.handler(shardID, data, writerFor(shardID, requestID))
		Logger.Debugf("Processed request for shard %d with requestID %d took %s", shardID, requestID, time.Since(start))
	}

	// Function to handle incoming requests
	handleRequest := func() error {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		// Get a buffer from the pool
		buf := t.bufferPool.Get().([]byte)

		// Read the frame with requestID
		shardID, requestID, data, err := readFrame(conn, buf, t.config.Transport.MaxFrameSizeBytes)

		// Error reading frame
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Acquire a slot in the semaphore (blocks if maxWorkersPerConn is reached)
		workerSemaphore <- struct{}{}

		// Increment the wait group counter
		wg.Add(1)

		// Process in a goroutine
		go func() {
			defer t.bufferPool.Put(buf)
			handle(shardID, requestID, data)
		}()

		return nil
	}

	// Handle requests in a loop
	for {
		err := handleRequest()

		// Case EOF: Connection closed by client
		if err == io.EOF {
			Logger.Debugf("Connection closed by client %s", conn.RemoteAddr())
			break
		}

		// Case error: log and close connection
		if err != nil {
			if !t.closed.Load() {
				Logger.Errorf("Error handling request: %v", err)
			}
			break
		}
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}
