package serve

import (
	"fmt"
	"strconv"
	"strings"

	cmdUtil "github.com/ValentinKolb/dCB/cmd/util"
	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dCB server",
		Long:    `Start the dCB server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DCB_<flag> (e.g. DCB_PERSIST_DELAY=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "buckets"
	ServeCmd.PersistentFlags().String(key, "1=default", cmdUtil.WrapString("Comma-separated list of buckets to serve. Format: ID=NAME"))

	key = "replicas"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Number of simulated replica nodes of every bucket"))

	key = "persist-delay"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Delay in milliseconds until a mutation is persisted on a node"))

	key = "replicate-delay"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Delay in milliseconds until a mutation reached a replica"))

	key = "max-value-size"
	ServeCmd.PersistentFlags().Int(key, 20*1024*1024, cmdUtil.WrapString("Largest value a bucket accepts (in bytes)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Idle timeout of client connections in seconds (0 = none)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/dcb.sock, ...)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the prometheus metrics endpoint (e.g. localhost:9090, empty = disabled)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Requests handled in parallel per connection (0 = transport default)"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Size of the request buffers in KB (0 = transport default)"))

	key = "max-frame-size"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Largest accepted request in KB (0 = transport default)"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket write buffer (in KB)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket read buffer (in KB)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time (in seconds, only for tcp)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseBuckets(viper.GetString("buckets"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	serveCmdConfig.Replicas = viper.GetInt("replicas")
	serveCmdConfig.PersistDelayMs = viper.GetInt("persist-delay")
	serveCmdConfig.ReplicateDelayMs = viper.GetInt("replicate-delay")
	serveCmdConfig.MaxValueSize = viper.GetInt("max-value-size")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:          viper.GetString("endpoint"),
		WorkersPerConn:    viper.GetInt("workers-per-conn"),
		BufferSize:        viper.GetInt("buffer-size") * 1024,
		MaxFrameSizeBytes: viper.GetInt("max-frame-size") * 1024,
		WriteBufferSize:   viper.GetInt("write-buffer") * 1024,
		ReadBufferSize:    viper.GetInt("read-buffer") * 1024,
		TCPNoDelay:        viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec:   viper.GetInt("tcp-keepalive"),
		TCPLingerSec:      viper.GetInt("tcp-linger"),
	}

	if serveCmdConfig.Replicas < 0 {
		return fmt.Errorf("replicas must not be negative")
	}
	return nil
}

// parseBuckets parses a list in the format ID=NAME,ID=NAME
func parseBuckets(list string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	for _, bucketConfig := range strings.Split(list, ",") {
		parts := strings.Split(bucketConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid bucket format: %s (expected ID=NAME)", bucketConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket ID %s: %v", parts[0], err)
		}

		name := strings.TrimSpace(parts[1])
		if name == "" {
			return nil, fmt.Errorf("bucket %d has no name", shardID)
		}

		shards = append(shards, common.ServerShard{ShardID: shardID, Name: name})
	}
	return shards, nil
}

// run starts the dCB server
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	return server.NewRPCServer(*serveCmdConfig, t, s).Serve()
}
