package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/transport"
	"github.com/ValentinKolb/dCB/rpc/transport/base"
)

const (
	defaultBufferSize = 512 * 1024 // 512 KB
	defaultWorkers    = 64
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}

	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	t := config.Transport
	return upgrade(conn, socketOptions{
		noDelay:         t.TCPNoDelay,
		keepAliveSec:    t.TCPKeepAliveSec,
		lingerSec:       t.TCPLingerSec,
		writeBufferSize: t.WriteBufferSize,
		readBufferSize:  t.ReadBufferSize,
	})
}

// --------------------------------------------------------------------------
// Socket tuning (shared by client and server)
// --------------------------------------------------------------------------

type socketOptions struct {
	noDelay         bool
	keepAliveSec    int
	lingerSec       int // 0 keeps the system default
	writeBufferSize int
	readBufferSize  int
}

// upgrade applies performance optimizations to a TCP connection
func upgrade(conn net.Conn, opts socketOptions) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(opts.noDelay); err != nil {
		return err
	}

	if opts.writeBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(opts.writeBufferSize); err != nil {
			return err
		}
	}

	if opts.readBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(opts.readBufferSize); err != nil {
			return err
		}
	}

	if opts.keepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(opts.keepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	if opts.lingerSec > 0 {
		if err := tcpConn.SetLinger(opts.lingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a new TCP server transport with the default buffer size.
// The transport section of the server config may override buffer size and workers.
func NewTCPServerTransport() transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, defaultBufferSize, defaultWorkers)
}
