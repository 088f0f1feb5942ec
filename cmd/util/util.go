package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/ValentinKolb/dCB/rpc/serializer"
	"github.com/ValentinKolb/dCB/rpc/transport"
	"github.com/ValentinKolb/dCB/rpc/transport/tcp"
	"github.com/ValentinKolb/dCB/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (DCB_TIMEOUT, ...)
	EnvPrefix = "dcb"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads the .env files and makes viper read matching environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "bucket"
	cmd.PersistentFlags().Uint64(key, 1, WrapString("ID of the bucket to connect to"))

	key = "timeout"
	cmd.PersistentFlags().Int(key, 5, WrapString("The timeout in seconds of every request (0 = 5 seconds)"))

	key = "durability-timeout"
	cmd.PersistentFlags().Int(key, 5000, WrapString("How long to wait for durability requirements (in milliseconds)"))

	key = "durability-interval"
	cmd.PersistentFlags().Int(key, 100, WrapString("How often the durability of a mutation is polled (in milliseconds)"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the dCB server. Multiple endpoints can be specified as a comma-separated list, requests are balanced between them"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to try reconnecting a broken connection"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, only for tcp)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Bucket:               viper.GetUint64("bucket"),
		TimeoutSecond:        viper.GetInt("timeout"),
		DurabilityTimeoutMs:  viper.GetInt("durability-timeout"),
		DurabilityIntervalMs: viper.GetInt("durability-interval"),
		Transport: common.ClientTransportConfig{
			Endpoints:              splitList(viper.GetString("transport-endpoints")),
			RetryCount:             viper.GetInt("transport-retries"),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			WriteBufferSize:        viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:         viper.GetInt("transport-read-buffer") * 1024,
			TCPNoDelay:             viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec:        viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:           viper.GetInt("transport-tcp-linger"),
		},
	}
}

// GetSerializer creates the serializer selected by the serializer flag
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.New(viper.GetString("serializer"))
}

// GetClientTransport creates the client transport selected by the transport flag
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch name := viper.GetString("transport"); name {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected tcp or unix)", name)
	}
}

// GetServerTransport creates the server transport selected by the transport flag
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch name := viper.GetString("transport"); name {
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s (expected tcp or unix)", name)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
