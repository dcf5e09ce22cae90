package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/memstore"
	"github.com/ValentinKolb/sKV/lib/store/pebblestore"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/frame"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport"
	"github.com/ValentinKolb/sKV/rpc/transport/http"
	"github.com/ValentinKolb/sKV/rpc/transport/mux"
	"github.com/ValentinKolb/sKV/rpc/transport/stream"
	"github.com/ValentinKolb/sKV/rpc/transport/tlsutil"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("server")

const handshakeTimeout = 10 * time.Second

// ErrServerClosed is returned by Serve after Shutdown
var ErrServerClosed = errors.New("server: closed")

// OpenStore creates the storage backend selected by config
func OpenStore(config common.ServerConfig) (store.IStore, error) {
	switch config.Storage {
	case "", common.StorageMem:
		return memstore.New(), nil
	case common.StoragePebble:
		return pebblestore.Open(pebblestore.Options{Path: config.DataDir, Sync: config.SyncWrite})
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected mem or pebble)", config.Storage)
	}
}

// Server accepts connections, multiplexes logical streams on them and runs
// every request through the command service.
//
// Usage:
//
//	st, _ := server.OpenStore(config)
//	s, err := server.NewServer(config, st)
//	if err != nil {
//		panic(err)
//	}
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
type Server struct {
	config    common.ServerConfig
	store     store.IStore
	broker    *Broadcaster
	service   *Service
	metrics   *serverMetrics
	codec     frame.Codec
	connector transport.IConnector
	tlsConfig *tls.Config
	muxConfig mux.Config
	admin     *http.AdminServer

	mu       sync.Mutex
	listener net.Listener
	sessions *xsync.MapOf[string, *mux.Server]
	conns    sync.WaitGroup
	closed   atomic.Bool
}

// NewServer creates a server on top of st. The server owns st and closes it on Shutdown.
// opts are passed on to the command service.
func NewServer(config common.ServerConfig, st store.IStore, opts ...Option) (*Server, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	ser, err := serializer.New(config.Serializer)
	if err != nil {
		return nil, err
	}

	connector, err := transport.NewConnector(config.Transport, config.KeepAlive)
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if config.TLSEnabled() {
		tlsConfig, err = tlsutil.LoadServerTLSConfig(tlsutil.ServerOptions{
			CertFile:     config.TLSCert,
			KeyFile:      config.TLSKey,
			ClientCAFile: config.TLSClientCA,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
	}

	muxConfig := mux.DefaultConfig()
	if config.MaxStreams > 0 {
		muxConfig.MaxStreams = config.MaxStreams
	}
	if config.KeepAlive != 0 {
		muxConfig.KeepAlive = config.KeepAlive
	}

	m := newServerMetrics()
	broker := NewBroadcaster()
	m.observeBroadcaster(broker)

	s := &Server{
		config:    config,
		store:     st,
		broker:    broker,
		service:   NewService(st, broker, append(opts, withMetrics(m))...),
		metrics:   m,
		codec:     frame.NewCodec(ser),
		connector: connector,
		tlsConfig: tlsConfig,
		muxConfig: muxConfig,
		sessions:  xsync.NewMapOf[string, *mux.Server](),
	}

	if config.MetricsEndpoint != "" {
		s.admin = http.NewAdminServer(m.set, s.health, config.LogLevel == "debug")
	}

	Logger.Infof("Created sKV server")
	Logger.Infof(config.String())
	return s, nil
}

// Service returns the command service of the server
func (s *Server) Service() *Service { return s.service }

// Listen binds the listener (and the admin endpoint, if configured) without accepting yet
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrServerClosed
	}
	if s.listener != nil {
		return nil
	}

	listener, err := s.connector.Listen(s.config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	if s.admin != nil {
		if err := s.admin.Start(s.config.MetricsEndpoint); err != nil {
			listener.Close()
			s.listener = nil
			return err
		}
	}

	Logger.Infof("Listening on %s://%s (tls=%t)", s.connector.GetName(), listener.Addr(), s.tlsConfig != nil)
	return nil
}

// Addr returns the address of the listener, nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown is called. It always returns a
// non-nil error, ErrServerClosed after a shutdown.
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				Logger.Warningf("Accept error: %v", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// Shutdown stops accepting, closes every session and then the broadcaster and the store
func (s *Server) Shutdown() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error

	s.mu.Lock()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.mu.Unlock()

	s.sessions.Range(func(id string, session *mux.Server) bool {
		_ = session.Close()
		return true
	})
	s.conns.Wait()

	s.broker.Close()

	if s.admin != nil {
		if err := s.admin.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}

	Logger.Infof("Server stopped")
	return errors.Join(errs...)
}

func (s *Server) health() error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	return nil
}

// --------------------------------------------------------------------------
// Connection handling
// --------------------------------------------------------------------------

// handleConnection runs one multiplexing session until the peer or Shutdown ends it
func (s *Server) handleConnection(conn net.Conn) {
	connID := uuid.NewString()
	remote := conn.RemoteAddr()

	if err := s.connector.UpgradeConnection(conn); err != nil {
		Logger.Warningf("[%s] Failed to upgrade connection from %s: %v", connID, remote, err)
	}

	if s.tlsConfig != nil {
		tlsConn, err := s.handshake(conn)
		if err != nil {
			Logger.Warningf("[%s] TLS handshake with %s failed: %v", connID, remote, err)
			conn.Close()
			return
		}
		conn = tlsConn
	}

	session, err := mux.Serve(conn, s.muxConfig, s.codec, func(ctx context.Context, fs *stream.ServerStream) {
		s.processStream(ctx, connID, fs)
	})
	if err != nil {
		Logger.Errorf("[%s] Failed to start session: %v", connID, err)
		conn.Close()
		return
	}

	s.sessions.Store(connID, session)
	s.metrics.activeConnections.Inc()
	Logger.Debugf("[%s] Connection from %s", connID, remote)

	// the session may have been missed by a concurrent Shutdown
	if s.closed.Load() {
		session.Close()
	}

	<-session.Done()
	session.Wait()

	s.sessions.Delete(connID)
	s.metrics.activeConnections.Dec()
	Logger.Debugf("[%s] Connection from %s closed", connID, remote)
}

func (s *Server) handshake(conn net.Conn) (net.Conn, error) {
	tlsConn := tls.Server(conn, s.tlsConfig)

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	if err := tlsutil.VerifyALPN(tlsConn.ConnectionState()); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

// processStream serves one logical stream: requests are handled one after the
// other and every response is written before the next request is read.
func (s *Server) processStream(ctx context.Context, connID string, fs *stream.ServerStream) {
	s.metrics.activeStreams.Inc()
	defer s.metrics.activeStreams.Dec()

	for {
		req, err := fs.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}

			// a malformed body leaves the frame boundary intact, a truncated frame does not
			if store.KindOf(err) == store.ErrProtocol && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.metrics.protocolErrors.Inc()
				Logger.Warningf("[%s] Bad frame: %v", connID, err)
				if err := fs.Send(common.NewErrorResponse(err)); err != nil {
					return
				}
				continue
			}

			if ctx.Err() == nil {
				Logger.Debugf("[%s] Stream ended: %v", connID, err)
			}
			return
		}

		if req.Kind() == common.ReqKSubscribe {
			// a streaming response occupies the logical stream until it ends
			s.serveSubscription(ctx, connID, fs, req)
			return
		}

		if !s.serveRequest(ctx, connID, fs, req) {
			return
		}
	}
}

// serveRequest writes every response of req. It reports whether the stream is still usable.
func (s *Server) serveRequest(ctx context.Context, connID string, fs *stream.ServerStream, req *common.CommandRequest) bool {
	rs := s.service.Execute(ctx, req)
	defer rs.Close()

	for {
		resp, err := rs.Recv(ctx)
		if err != nil {
			return errors.Is(err, io.EOF)
		}
		if err := fs.Send(resp); err != nil {
			Logger.Debugf("[%s] Failed to send %s response: %v", connID, req.Kind(), err)
			return false
		}
		s.service.AfterSend(ctx)
	}
}

// serveSubscription streams a subscription until it is unsubscribed, the
// client goes away or the session ends. While it runs, any inbound frame or
// read error on the logical stream ends the subscription.
func (s *Server) serveSubscription(ctx context.Context, connID string, fs *stream.ServerStream, req *common.CommandRequest) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		if _, err := fs.Recv(); err == nil {
			Logger.Debugf("[%s] Request on a subscribed stream, ending subscription", connID)
		}
	}()

	s.serveRequest(ctx, connID, fs, req)
}
