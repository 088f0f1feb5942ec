package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dCB/cmd/kv"
	"github.com/ValentinKolb/dCB/cmd/serve"
	"github.com/ValentinKolb/dCB/cmd/util"
	"github.com/ValentinKolb/dCB/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dcb",
		Short: "document bucket server and client",
		Long: fmt.Sprintf(`dCB (v%s)

A document bucket with an asynchronous client written in Go. Operations
are batched, their responses are dispatched to per-key results and
mutations can wait for persistence and replication.`, Version),
		PersistentPreRunE: setupLogging,
		SilenceUsage:      true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dCB",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dCB v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	// run the logging setup of the root before the hooks of kv and serve
	cobra.EnableTraverseRunHooks = true

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (binary, cbor, json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// setupLogging installs the logger factory before any command logs.
func setupLogging(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
