package mux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/rpc/frame"
	"github.com/ValentinKolb/sKV/rpc/transport/stream"
	"github.com/hashicorp/yamux"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// Config tunes the multiplexing session
type Config struct {
	// MaxStreams bounds the number of inbound streams waiting to be accepted
	MaxStreams int
	// KeepAlive is the ping interval; zero disables keep alives
	KeepAlive time.Duration
	// StreamWindow is the per stream receive window in bytes
	StreamWindow uint32
	// WriteTimeout bounds a single write on the shared connection
	WriteTimeout time.Duration
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		MaxStreams:   256,
		KeepAlive:    30 * time.Second,
		StreamWindow: 256 * 1024,
		WriteTimeout: 10 * time.Second,
	}
}

func (c Config) yamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	if c.MaxStreams > 0 {
		cfg.AcceptBacklog = c.MaxStreams
	}
	cfg.EnableKeepAlive = c.KeepAlive > 0
	if c.KeepAlive > 0 {
		cfg.KeepAliveInterval = c.KeepAlive
	}
	if c.StreamWindow >= 256*1024 {
		cfg.MaxStreamWindowSize = c.StreamWindow
	}
	if c.WriteTimeout > 0 {
		cfg.ConnectionWriteTimeout = c.WriteTimeout
	}
	cfg.LogOutput = logWriter{}
	return cfg
}

// logWriter forwards yamux log lines to the transport logger
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	Logger.Warningf("yamux: %s", bytes.TrimSpace(p))
	return len(p), nil
}

// --------------------------------------------------------------------------
// Client role
// --------------------------------------------------------------------------

// Client opens logical streams on one connection
type Client struct {
	session *yamux.Session
	codec   frame.Codec
}

// NewClient starts a client session on conn. The session owns conn from now on.
func NewClient(conn io.ReadWriteCloser, cfg Config, codec frame.Codec) (*Client, error) {
	session, err := yamux.Client(conn, cfg.yamuxConfig())
	if err != nil {
		return nil, err
	}
	return &Client{session: session, codec: codec}, nil
}

// OpenStream opens a new logical stream and returns it as a framed client stream
func (c *Client) OpenStream(ctx context.Context) (*stream.ClientStream, error) {
	type result struct {
		s   *yamux.Stream
		err error
	}

	ch := make(chan result, 1)
	go func() {
		s, err := c.session.OpenStream()
		ch <- result{s, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return stream.NewClientStream(r.s, c.codec), nil
	case <-ctx.Done():
		// release the stream if the open completes after we gave up
		go func() {
			if r := <-ch; r.s != nil {
				r.s.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// NumStreams returns the number of open logical streams
func (c *Client) NumStreams() int { return c.session.NumStreams() }

// Done is closed when the session ends
func (c *Client) Done() <-chan struct{} { return c.session.CloseChan() }

// IsClosed reports whether the session has ended
func (c *Client) IsClosed() bool { return c.session.IsClosed() }

// Close ends the session, all logical streams and the connection
func (c *Client) Close() error { return c.session.Close() }

// --------------------------------------------------------------------------
// Server role
// --------------------------------------------------------------------------

// StreamHandler serves one inbound logical stream. ctx is cancelled when the session ends.
type StreamHandler func(ctx context.Context, s *stream.ServerStream)

// Server accepts logical streams on one connection
type Server struct {
	session *yamux.Session
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Serve starts a server session on conn and calls handler once per inbound
// stream, each in its own goroutine. Serve does not block.
func Serve(conn io.ReadWriteCloser, cfg Config, codec frame.Codec, handler StreamHandler) (*Server, error) {
	session, err := yamux.Server(conn, cfg.yamuxConfig())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{session: session, cancel: cancel}

	s.wg.Add(1)
	go s.acceptLoop(ctx, codec, handler)
	return s, nil
}

func (s *Server) acceptLoop(ctx context.Context, codec frame.Codec, handler StreamHandler) {
	defer s.wg.Done()
	defer s.cancel()

	for {
		raw, err := s.session.AcceptStream()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, yamux.ErrSessionShutdown) && !errors.Is(err, net.ErrClosed) {
				Logger.Warningf("Session ended: %v", err)
			}
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fs := stream.NewServerStream(raw, codec)
			defer fs.Close()

			defer func() {
				if r := recover(); r != nil {
					Logger.Errorf("Stream %d handler panicked: %v", raw.StreamID(), r)
				}
			}()
			handler(ctx, fs)
		}()
	}
}

// Done is closed when the session ends
func (s *Server) Done() <-chan struct{} { return s.session.CloseChan() }

// Close ends the session. Every open logical stream is closed with it.
func (s *Server) Close() error {
	s.cancel()
	return s.session.Close()
}

// Wait blocks until the accept loop and all stream handlers have returned
func (s *Server) Wait() { s.wg.Wait() }
