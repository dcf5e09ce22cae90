package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/sKV/rpc/transport/tcp"
	"github.com/ValentinKolb/sKV/rpc/transport/unix"
)

// IConnector creates the byte streams the multiplexer runs on. One
// implementation exists per socket family.
type IConnector interface {
	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// Listen creates a listener on endpoint
	Listen(endpoint string) (net.Listener, error)

	// Dial establishes a single connection to endpoint
	Dial(ctx context.Context, endpoint string) (net.Conn, error)

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn) error
}

// NewConnector returns the connector for the named transport. An empty name selects tcp.
func NewConnector(name string, keepAlive time.Duration) (IConnector, error) {
	switch name {
	case "", "tcp":
		return tcp.NewConnector(keepAlive), nil
	case "unix":
		return unix.NewConnector(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q (expected tcp or unix)", name)
	}
}
