package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cmdUtil "github.com/ulikoehler/YakDB-sub001/cmd/util"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/serializer"
	"github.com/ulikoehler/YakDB-sub001/rpc/server"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the YakDB server",
		Long:    `Start the YakDB server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is YAKDB_<flag> (e.g. YAKDB_DATA_DIR=/var/lib/yakdb)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	flags := ServeCmd.PersistentFlags()

	// add flags
	key := "endpoint"
	flags.String(key, "0.0.0.0:7100", cmdUtil.WrapString("The address on which the RPC API will listen (e.g. 0.0.0.0:7100 for tcp, /tmp/yakdb.sock for unix)"))

	key = "data-dir"
	flags.String(key, "data", cmdUtil.WrapString("DataDir is the directory that holds one sub directory per table"))

	key = "max-tables"
	flags.Uint32(key, 0, cmdUtil.WrapString("Number of addressable table indices, 0 = 1048576"))

	key = "table-presets"
	flags.String(key, "", cmdUtil.WrapString("Optional YAML file mapping table indices to their initial configuration"))

	key = "workers"
	flags.Int(key, 0, cmdUtil.WrapString("Number of request workers, 0 = number of CPUs"))

	key = "scan-chunk-size"
	flags.Int(key, common.DefaultScanChunkSize, cmdUtil.WrapString("Default number of pairs per scan chunk"))

	key = "timeout"
	flags.Int64(key, 0, cmdUtil.WrapString("Idle read timeout per connection in seconds, 0 = none"))

	key = "shutdown-timeout"
	flags.Int64(key, common.DefaultShutdownTimeoutSecond, cmdUtil.WrapString("Upper bound in seconds for draining in-flight work on shutdown"))

	key = "inbound-queue"
	flags.Int(key, common.DefaultInboundQueueSize, cmdUtil.WrapString("Capacity of the request queue shared by all connections"))

	key = "outbox"
	flags.Int(key, common.DefaultOutboxSize, cmdUtil.WrapString("Number of responses buffered per connection"))

	key = "max-message"
	flags.Int(key, common.DefaultMaxMessageBytes, cmdUtil.WrapString("Maximum size of a request in bytes"))

	key = "read-buffer"
	flags.Int(key, 0, cmdUtil.WrapString("Socket read buffer in KB, 0 = OS default"))

	key = "write-buffer"
	flags.Int(key, 0, cmdUtil.WrapString("Socket write buffer in KB, 0 = OS default"))

	key = "tcp-nodelay"
	flags.Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "tcp-keepalive"
	flags.Int(key, 0, cmdUtil.WrapString("The keepalive interval in seconds (tcp only)"))

	key = "tcp-linger"
	flags.Int(key, 0, cmdUtil.WrapString("The linger time in seconds (tcp only)"))

	key = "http-endpoint"
	flags.String(key, "", cmdUtil.WrapString("Address of the HTTP front end (e.g. 0.0.0.0:7180), empty = disabled"))

	key = "cluster-name"
	flags.String(key, "default", cmdUtil.WrapString("Name of the cluster announced by the discovery beacon"))

	key = "discovery-address"
	flags.String(key, "", cmdUtil.WrapString("UDP broadcast address of the discovery beacon (e.g. 255.255.255.255:7199), empty = disabled"))

	key = "discovery-interval"
	flags.Int(key, 5, cmdUtil.WrapString("Seconds between two discovery beacons"))

	key = "log-level"
	flags.String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Transport = common.ServerTransportConfig{
		TransportType:    viper.GetString("transport"),
		Endpoint:         viper.GetString("endpoint"),
		InboundQueueSize: viper.GetInt("inbound-queue"),
		OutboxSize:       viper.GetInt("outbox"),
		MaxMessageBytes:  viper.GetInt("max-message"),
		SocketConf: common.SocketConf{
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
	}
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.MaxTables = viper.GetUint32("max-tables")
	serveCmdConfig.TablePresetsFile = viper.GetString("table-presets")
	serveCmdConfig.Workers = viper.GetInt("workers")
	serveCmdConfig.ScanChunkSize = viper.GetInt("scan-chunk-size")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.ShutdownTimeoutSecond = viper.GetInt64("shutdown-timeout")
	serveCmdConfig.HTTPEndpoint = viper.GetString("http-endpoint")
	serveCmdConfig.ClusterName = viper.GetString("cluster-name")
	serveCmdConfig.DiscoveryAddress = viper.GetString("discovery-address")
	serveCmdConfig.DiscoveryIntervalSec = viper.GetInt("discovery-interval")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// validate the log level before anything is started
	_, err := common.ParseLogLevel(serveCmdConfig.LogLevel)
	return err
}

// run starts the YakDB server and blocks until SIGINT/SIGTERM completed the shutdown
func run(_ *cobra.Command, _ []string) error {
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		serializer.NewFrameSerializer(),
	)

	return serv.Serve(ctx)
}
