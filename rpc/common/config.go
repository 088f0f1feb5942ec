package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Formatting helpers
// --------------------------------------------------------------------------

type table struct {
	sb strings.Builder
}

func (t *table) section(title string) {
	t.sb.WriteString("\n")
	t.sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
}

func (t *table) field(name, value string) {
	t.sb.WriteString(fmt.Sprintf("  %-26s: %s\n", name, value))
}

func (t *table) String() string {
	return t.sb.String()
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerShard is one bucket served by the server. Requests select the bucket
// through the shard id of their frame.
type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Name is the bucket name reported by the stats
	Name string
}

// ServerTransportConfig holds the socket settings of the server transport.
type ServerTransportConfig struct {
	Endpoint          string
	WorkersPerConn    int
	BufferSize        int
	TCPNoDelay        bool
	TCPKeepAliveSec   int
	TCPLingerSec      int
	WriteBufferSize   int
	ReadBufferSize    int
	MaxFrameSizeBytes int
}

// ServerConfig holds all configuration parameters of the RPC server.
type ServerConfig struct {
	Shards []ServerShard

	// simulated topology of every bucket
	Replicas         int
	PersistDelayMs   int
	ReplicateDelayMs int
	MaxValueSize     int

	// TimeoutSecond is the idle timeout of client connections (0 = none)
	TimeoutSecond int64

	// MetricsEndpoint serves the prometheus metrics (empty = disabled)
	MetricsEndpoint string

	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string
}

// PersistDelay returns the simulated persistence delay.
func (c *ServerConfig) PersistDelay() time.Duration {
	return time.Duration(c.PersistDelayMs) * time.Millisecond
}

// ReplicateDelay returns the simulated replication delay.
func (c *ServerConfig) ReplicateDelay() time.Duration {
	return time.Duration(c.ReplicateDelayMs) * time.Millisecond
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var t table

	t.section("RPC Server")
	t.field("Endpoint", c.Transport.Endpoint)
	t.field("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	t.field("Workers Per Connection", strconv.Itoa(c.Transport.WorkersPerConn))
	t.field("Buffer Size", fmt.Sprintf("%d bytes", c.Transport.BufferSize))
	t.field("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
	t.field("Metrics Endpoint", orNone(c.MetricsEndpoint))

	t.section("Logging")
	t.field("Log Level", c.LogLevel)

	t.section("Topology")
	t.field("Replicas", strconv.Itoa(c.Replicas))
	t.field("Persist Delay", fmt.Sprintf("%d ms", c.PersistDelayMs))
	t.field("Replicate Delay", fmt.Sprintf("%d ms", c.ReplicateDelayMs))
	t.field("Max Value Size", fmt.Sprintf("%d bytes", c.MaxValueSize))

	t.section("Buckets")
	for _, shard := range c.Shards {
		t.field(strconv.FormatUint(shard.ShardID, 10), shard.Name)
	}
	return t.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the connection settings of the client transport.
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	TCPNoDelay             bool
	TCPKeepAliveSec        int
	TCPLingerSec           int
	WriteBufferSize        int
	ReadBufferSize         int
}

// ClientConfig holds all configuration parameters of the RPC client.
type ClientConfig struct {
	// Bucket is the shard id of the bucket the client talks to
	Bucket uint64
	// TimeoutSecond bounds every request (0 = client default)
	TimeoutSecond int
	// durability checks issued for batches with durability requirements
	DurabilityTimeoutMs  int
	DurabilityIntervalMs int

	Transport ClientTransportConfig
}

// Timeout returns the request timeout.
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var t table

	t.section("Client Configuration")
	t.field("Bucket", strconv.FormatUint(c.Bucket, 10))
	t.field("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	t.field("Durability Timeout", fmt.Sprintf("%d ms", c.DurabilityTimeoutMs))
	t.field("Durability Interval", fmt.Sprintf("%d ms", c.DurabilityIntervalMs))
	t.field("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	t.field("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	t.section("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		t.field(strconv.Itoa(i), endpoint)
	}
	return t.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
