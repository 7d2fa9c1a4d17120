package server

import (
	"context"
	"net"
)

// IRPCServer is a YakDB server process
type IRPCServer interface {
	// Listen performs every fallible startup step: it creates the data directory, loads
	// the table presets and binds the transport, the HTTP front end and the beacon.
	// Listen is called by Serve if it was not called before.
	Listen() error

	// Serve handles requests until ctx is done, then shuts down: it stops the intake,
	// cancels scan jobs, drains in-flight work, closes the transport and closes every
	// table, in this order.
	Serve(ctx context.Context) error

	// Addr is the bound transport address (nil before Listen)
	Addr() net.Addr

	// HTTPAddr is the bound HTTP front end address (nil if disabled)
	HTTPAddr() net.Addr
}
