package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/frame"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport"
	"github.com/ValentinKolb/sKV/rpc/transport/mux"
	"github.com/ValentinKolb/sKV/rpc/transport/tlsutil"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("client")

// Client is one connection to a server. Logical streams opened on it run
// independently of each other. All methods are safe for concurrent use.
type Client struct {
	config  common.ClientConfig
	session *mux.Client
	codec   frame.Codec

	streams  *xsync.MapOf[uint64, *Stream]
	streamID atomic.Uint64
}

// Dial connects to the server described by config. Failed attempts are
// retried RetryCount times with exponential backoff.
func Dial(ctx context.Context, config common.ClientConfig) (*Client, error) {
	ser, err := serializer.New(config.Serializer)
	if err != nil {
		return nil, err
	}

	connector, err := transport.NewConnector(config.Transport, config.KeepAlive)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if config.TLSEnabled {
		tlsConfig, err = tlsutil.LoadClientTLSConfig(tlsutil.ClientOptions{
			ServerName: config.TLSServerName,
			CAFile:     config.TLSCA,
			CertFile:   config.TLSCert,
			KeyFile:    config.TLSKey,
			Insecure:   config.TLSInsecure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
	}

	muxConfig := mux.DefaultConfig()
	if config.KeepAlive != 0 {
		muxConfig.KeepAlive = config.KeepAlive
	}

	c := &Client{
		config:  config,
		codec:   frame.NewCodec(ser),
		streams: xsync.NewMapOf[uint64, *Stream](),
	}

	// We always try at least once
	maxRetries := config.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	// Initial backoff duration in milliseconds
	backoffMs := 50

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		session, err := c.connect(ctx, connector, tlsConfig, muxConfig)
		if err == nil {
			c.session = session
			Logger.Infof("Connected to %s://%s (tls=%t)", connector.GetName(), config.Endpoint, tlsConfig != nil)
			return c, nil
		}

		lastErr = err
		Logger.Debugf("Connection attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i+1 < maxRetries {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			select {
			case <-time.After(time.Duration(jitter) * time.Millisecond):
			case <-ctx.Done():
				return nil, store.NewConnectionError("dial "+config.Endpoint, ctx.Err())
			}
			backoffMs *= 2
		}
	}

	return nil, store.NewConnectionError(fmt.Sprintf("failed to connect after %d attempts", maxRetries), lastErr)
}

// connect dials once and runs the TLS handshake and the multiplexer on top
func (c *Client) connect(ctx context.Context, connector transport.IConnector, tlsConfig *tls.Config, muxConfig mux.Config) (*mux.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout())
	defer cancel()

	conn, err := connector.Dial(ctx, c.config.Endpoint)
	if err != nil {
		return nil, err
	}

	if tlsConfig != nil {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake: %w", err)
		}
		if err := tlsutil.VerifyALPN(tlsConn.ConnectionState()); err != nil {
			tlsConn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	session, err := mux.NewClient(conn, muxConfig, c.codec)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return session, nil
}

// OpenStream opens a new logical stream on the connection
func (c *Client) OpenStream(ctx context.Context) (*Stream, error) {
	if c.session.IsClosed() {
		return nil, store.NewConnectionError("open stream", net.ErrClosed)
	}

	fs, err := c.session.OpenStream(ctx)
	if err != nil {
		return nil, store.NewConnectionError("open stream", err)
	}

	s := &Stream{client: c, id: c.streamID.Add(1), fs: fs}
	c.streams.Store(s.id, s)
	return s, nil
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} { return c.session.Done() }

// Close closes every open stream and the connection
func (c *Client) Close() error {
	var errs []error
	c.streams.Range(func(id uint64, s *Stream) bool {
		if err := s.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		return true
	})
	errs = append(errs, c.session.Close())
	return errors.Join(errs...)
}

// withTimeout applies the configured request timeout when ctx has no deadline
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.Timeout())
}

// do runs one request on its own logical stream
func (c *Client) do(ctx context.Context, req *common.CommandRequest) (*common.CommandResponse, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	s, err := c.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return s.Execute(ctx, req)
}
