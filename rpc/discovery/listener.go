package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"
)

// Listener receives beacons
type Listener struct {
	conn net.PacketConn
}

// Listen binds the beacon port, e.g. ":7199"
func Listen(address string) (*Listener, error) {
	conn, err := net.ListenPacket("udp", withDefaultPort(address))
	if err != nil {
		return nil, fmt.Errorf("failed to listen for beacons: %w", err)
	}
	return &Listener{conn: conn}, nil
}

// Addr is the bound address
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Collect returns the sorted, distinct hosts that announced cluster within timeout
func (l *Listener) Collect(ctx context.Context, cluster string, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// a previous Collect leaves an expired deadline behind
	if err := l.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	want := Payload(cluster)
	seen := map[string]struct{}{}
	buf := make([]byte, 512)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if ctx.Err() != nil || (errors.As(err, &ne) && ne.Timeout()) {
				break
			}
			return nil, err
		}
		if !bytes.Equal(buf[:n], want) {
			continue
		}
		host := from.String()
		if udp, ok := from.(*net.UDPAddr); ok {
			host = udp.IP.String()
		}
		if _, ok := seen[host]; !ok {
			log.Debugf("Discovered %s for cluster %q", host, cluster)
			seen[host] = struct{}{}
		}
	}

	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts, nil
}

// Close closes the socket
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Discover listens on address for timeout and returns the hosts of every server that
// announced cluster
func Discover(ctx context.Context, address, cluster string, timeout time.Duration) ([]string, error) {
	l, err := Listen(address)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return l.Collect(ctx, cluster, timeout)
}
