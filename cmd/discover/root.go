package discover

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ulikoehler/YakDB-sub001/cmd/util"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/discovery"
)

// DiscoverCmd listens for discovery beacons and prints the servers of one cluster
var DiscoverCmd = &cobra.Command{
	Use:     "discover",
	Short:   "Find YakDB servers on the local network",
	Long:    `Listens for the UDP beacons of YakDB servers and prints the address of every server that announced the given cluster name within the timeout.`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE:    run,
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func run(_ *cobra.Command, _ []string) error {
	timeout := time.Duration(viper.GetInt("wait")) * time.Second
	servers, err := discovery.Discover(context.Background(), viper.GetString("listen"), viper.GetString("cluster-name"), timeout)
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Println("no servers found")
		return nil
	}
	for _, s := range servers {
		fmt.Println(s)
	}
	return nil
}

func init() {
	cobra.OnInitialize(util.InitConfig)

	DiscoverCmd.Flags().String("listen", fmt.Sprintf("0.0.0.0:%d", common.DefaultDiscoveryPort), util.WrapString("UDP address to listen on for beacons"))
	DiscoverCmd.Flags().String("cluster-name", "default", util.WrapString("Only report servers of this cluster"))
	DiscoverCmd.Flags().Int("wait", 10, util.WrapString("Seconds to listen for beacons"))
}
