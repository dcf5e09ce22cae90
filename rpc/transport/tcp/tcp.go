package tcp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Connector opens and accepts TCP connections
type Connector struct {
	keepAlive time.Duration
}

// NewConnector creates a TCP connector. A positive keepAlive enables TCP keep alive probes.
func NewConnector(keepAlive time.Duration) *Connector {
	return &Connector{keepAlive: keepAlive}
}

func (c *Connector) GetName() string {
	return "tcp"
}

func (c *Connector) Listen(endpoint string) (net.Listener, error) {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %w", err)
	}
	return listener, nil
}

func (c *Connector) Dial(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, err
	}
	if err := c.UpgradeConnection(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// UpgradeConnection disables Nagle's algorithm and configures keep alive
func (c *Connector) UpgradeConnection(conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // not a TCP connection, nothing to upgrade
	}

	// frames are flushed whole, so waiting for more data only adds latency
	if err := tcpConn.SetNoDelay(true); err != nil {
		return err
	}

	if c.keepAlive > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(c.keepAlive); err != nil {
			return err
		}
	}
	return nil
}
