package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ulikoehler/YakDB-sub001/cmd/discover"
	"github.com/ulikoehler/YakDB-sub001/cmd/kv"
	"github.com/ulikoehler/YakDB-sub001/cmd/serve"
	"github.com/ulikoehler/YakDB-sub001/cmd/util"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "yakdb",
		Short: "multi-table key-value server",
		Long: fmt.Sprintf(`YakDB (v%s)

A key-value server with multiple independently tunable tables,
batched reads and writes and chunked range scans, backed by
one pebble LSM engine per table.`, common.ServerVersion),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of YakDB",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("YakDB v%s\n", common.ServerVersion)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(discover.DiscoverCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
