package kv

import (
	"github.com/ValentinKolb/dCB/cmd/util"
	"github.com/ValentinKolb/dCB/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcBucket *client.Bucket

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform bucket operations",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(getCmd)
	for _, cmd := range storeCmds {
		KeyValueCommands.AddCommand(cmd)
	}
	KeyValueCommands.AddCommand(rmCmd)
	KeyValueCommands.AddCommand(touchCmd)
	KeyValueCommands.AddCommand(unlockCmd)
	KeyValueCommands.AddCommand(incrCmd)
	KeyValueCommands.AddCommand(observeCmd)
	KeyValueCommands.AddCommand(endureCmd)
	KeyValueCommands.AddCommand(statsCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient connects the bucket client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcBucket, err = client.Connect(*util.GetClientConfig(), t, s)
	return err
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcBucket == nil {
		return nil
	}
	return rpcBucket.Close()
}
