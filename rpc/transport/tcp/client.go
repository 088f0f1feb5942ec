package tcp

import (
	"net"
	"time"

	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/transport"
	"github.com/ValentinKolb/dCB/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, dialTimeout)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
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
// Client Transport Factory Method
// --------------------------------------------------------------------------

const dialTimeout = 5 * time.Second

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
