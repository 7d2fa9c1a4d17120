package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	// ServerVersion is reported by ServerInfo and the version command
	ServerVersion = "0.3.0"

	// DefaultMaxMessageBytes bounds the size of one frame and of one buffered message
	DefaultMaxMessageBytes = 64 * 1024 * 1024
	// DefaultInboundQueueSize is the capacity of the shared request queue
	DefaultInboundQueueSize = 1024
	// DefaultOutboxSize is the number of responses buffered per connection
	DefaultOutboxSize = 64
	// DefaultScanChunkSize is the number of pairs per scan chunk
	DefaultScanChunkSize = 1000
	// MaxScanChunkSize caps the chunk size a client may request
	MaxScanChunkSize = 100_000
	// DefaultScanChunkBytes bounds the encoded pairs of one scan chunk, half a default
	// message leaves room for the response header frames
	DefaultScanChunkBytes = DefaultMaxMessageBytes / 2
	// DefaultShutdownTimeoutSecond bounds the drain of in-flight work
	DefaultShutdownTimeoutSecond = 30
	// DiscoveryNamespace prefixes every discovery beacon
	DiscoveryNamespace = "YakDB"
	// DefaultDiscoveryPort is the UDP port of the discovery beacon
	DefaultDiscoveryPort = 7199
)

// --------------------------------------------------------------------------
// Socket configuration shared by server and client
// --------------------------------------------------------------------------

// SocketConf holds options that apply to every stream socket
type SocketConf struct {
	WriteBufferSize int // SO_SNDBUF, 0 = OS default
	ReadBufferSize  int // SO_RCVBUF, 0 = OS default
}

// TCPConf holds TCP specific options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int // 0 = disabled
	TCPLingerSec    int // 0 = OS default
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig configures the listening side of the transport
type ServerTransportConfig struct {
	// TransportType is "tcp" or "unix"
	TransportType string
	// Endpoint is the listen address (host:port or socket path)
	Endpoint string

	SocketConf
	TCPConf

	// InboundQueueSize is the capacity of the queue shared by all connections
	InboundQueueSize int
	// OutboxSize is the number of outbound messages buffered per connection
	OutboxSize int
	// MaxMessageBytes bounds a single frame and a complete message
	MaxMessageBytes int
}

// ServerConfig holds all configuration parameters of a server process
type ServerConfig struct {
	Transport ServerTransportConfig

	// Storage
	DataDir          string
	MaxTables        uint32
	TablePresetsFile string

	// Dispatcher
	Workers       int
	ScanChunkSize int

	// Idle read timeout per connection, 0 = none
	TimeoutSecond int64
	// Upper bound for draining in-flight work on shutdown
	ShutdownTimeoutSecond int64

	// HTTP front end, empty = disabled
	HTTPEndpoint string

	// Discovery beacon, empty address = disabled
	ClusterName          string
	DiscoveryAddress     string
	DiscoveryIntervalSec int

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orDisabled := func(v string) string {
		if v == "" {
			return "disabled"
		}
		return v
	}

	// RPC settings
	addSection("RPC Server")
	addField("Transport", c.Transport.TransportType)
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Inbound Queue", strconv.Itoa(c.Transport.InboundQueueSize))
	addField("Outbox Per Peer", strconv.Itoa(c.Transport.OutboxSize))
	addField("Max Message", fmt.Sprintf("%d bytes", c.Transport.MaxMessageBytes))
	if c.Transport.TransportType == "tcp" {
		addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPNoDelay))
		addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))
		addField("TCP Linger", fmt.Sprintf("%d sec", c.Transport.TCPLingerSec))
	}
	if c.Transport.ReadBufferSize > 0 || c.Transport.WriteBufferSize > 0 {
		addField("Socket Read Buffer", strconv.Itoa(c.Transport.ReadBufferSize))
		addField("Socket Write Buffer", strconv.Itoa(c.Transport.WriteBufferSize))
	}

	// Dispatcher
	addSection("Dispatcher")
	addField("Workers", strconv.Itoa(c.Workers))
	addField("Scan Chunk Size", strconv.Itoa(c.ScanChunkSize))
	addField("Shutdown Timeout", fmt.Sprintf("%d sec", c.ShutdownTimeoutSecond))

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Max Tables", strconv.FormatUint(uint64(c.MaxTables), 10))
	addField("Table Presets", orDisabled(c.TablePresetsFile))

	// Auxiliary services
	addSection("Services")
	addField("HTTP Endpoint", orDisabled(c.HTTPEndpoint))
	addField("Cluster Name", c.ClusterName)
	addField("Discovery Address", orDisabled(c.DiscoveryAddress))
	if c.DiscoveryAddress != "" {
		addField("Discovery Interval", fmt.Sprintf("%d sec", c.DiscoveryIntervalSec))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig configures the connecting side of the transport
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	MaxMessageBytes        int

	SocketConf
	TCPConf
}

type ClientConfig struct {
	Transport     ClientTransportConfig
	TimeoutSecond int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
