package kv

import (
	"github.com/spf13/cobra"
	"github.com/ulikoehler/YakDB-sub001/cmd/util"
	"github.com/ulikoehler/YakDB-sub001/rpc/client"
	"github.com/ulikoehler/YakDB-sub001/rpc/serializer"
)

var (
	rpcClient client.IYakClient

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value operations against a YakDB server",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	KeyValueCommands.PersistentFlags().String("sync", "buffered", util.WrapString("Durability of writes (buffered, group-commit, fsync)"))

	// Add subcommands
	KeyValueCommands.AddCommand(readCmd)
	KeyValueCommands.AddCommand(existsCmd)
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(delRangeCmd)
	KeyValueCommands.AddCommand(countCmd)
	KeyValueCommands.AddCommand(scanCmd)
	KeyValueCommands.AddCommand(openCmd)
	KeyValueCommands.AddCommand(closeCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(compactCmd)
	KeyValueCommands.AddCommand(truncateCmd)
	KeyValueCommands.AddCommand(serverInfoCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the RPC client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcClient, err = client.NewRPCClient(
		*config,
		t,
		serializer.NewFrameSerializer(),
	)

	return err
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}
