package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

var log = logger.GetLogger("discovery")

// DefaultInterval is the beacon period when none is configured
const DefaultInterval = 5 * time.Second

// Payload is the datagram announcing a server of cluster
func Payload(cluster string) []byte {
	return []byte(common.DiscoveryNamespace + "/" + cluster)
}

// BeaconConfig configures a Beacon
type BeaconConfig struct {
	// Address is the destination host[:port], the port defaults to DefaultDiscoveryPort
	Address     string
	ClusterName string
	Interval    time.Duration
}

// Beacon announces a server periodically
type Beacon struct {
	conn     *net.UDPConn
	payload  []byte
	interval time.Duration
	once     sync.Once
}

// NewBeacon resolves the destination and opens the socket
func NewBeacon(config BeaconConfig) (*Beacon, error) {
	address := withDefaultPort(config.Address)
	dst, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery address %q: %w", config.Address, err)
	}
	conn, err := net.DialUDP("udp", nil, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Beacon{
		conn:     conn,
		payload:  Payload(config.ClusterName),
		interval: interval,
	}, nil
}

// Run sends the beacon immediately and then once per interval until ctx is done.
// Send failures are logged, they do not end the beacon.
func (b *Beacon) Run(ctx context.Context) error {
	log.Infof("Announcing %q to %s every %s", b.payload, b.conn.RemoteAddr(), b.interval)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		if _, err := b.conn.Write(b.payload); err != nil {
			log.Warningf("Failed to send beacon: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close closes the socket
func (b *Beacon) Close() error {
	var err error
	b.once.Do(func() { err = b.conn.Close() })
	return err
}

func withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(common.DefaultDiscoveryPort))
}
