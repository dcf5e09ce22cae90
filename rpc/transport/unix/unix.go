package unix

import (
	"context"
	"fmt"
	"net"
	"os"
)

// Connector opens and accepts Unix domain socket connections
type Connector struct{}

func NewConnector() *Connector {
	return &Connector{}
}

func (c *Connector) GetName() string {
	return "unix"
}

func (c *Connector) Listen(endpoint string) (net.Listener, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(endpoint); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %w", err)
	}
	return listener, nil
}

func (c *Connector) Dial(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", endpoint)
}

func (c *Connector) UpgradeConnection(net.Conn) error {
	return nil
}
