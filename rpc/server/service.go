package server

import (
	"context"
	"io"
	"time"

	"github.com/ValentinKolb/sKV/lib/pubsub"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var serviceLogger = logger.GetLogger("service")

// Broadcaster is the topic broadcaster the service publishes responses on
type Broadcaster = pubsub.Broadcaster[*common.CommandResponse]

// NewBroadcaster creates an empty broadcaster for command responses
func NewBroadcaster() *Broadcaster {
	return pubsub.New[*common.CommandResponse]()
}

// Service executes commands against a store and a broadcaster.
// Execute is safe for concurrent use.
type Service struct {
	store   store.IStore
	broker  *Broadcaster
	hooks   hooks
	metrics *serverMetrics
}

// NewService creates a command service. The store and broadcaster are shared, not owned.
func NewService(st store.IStore, broker *Broadcaster, opts ...Option) *Service {
	s := &Service{store: st, broker: broker}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withMetrics records per command metrics into m
func withMetrics(m *serverMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Execute runs req and returns the stream of its responses. Hooks fire
// around dispatch and for every response the stream yields.
func (s *Service) Execute(ctx context.Context, req *common.CommandRequest) ResponseStream {
	s.hooks.onReceived(ctx, req)

	start := time.Now()
	inner := s.dispatch(ctx, req)
	return &hookedStream{svc: s, req: req, inner: inner, start: start}
}

// AfterSend is called by the transport after a response was written
func (s *Service) AfterSend(ctx context.Context) {
	s.hooks.onAfterSend(ctx)
}

// dispatch maps every command variant to its handler
func (s *Service) dispatch(ctx context.Context, req *common.CommandRequest) ResponseStream {
	if req == nil {
		return single(common.NewErrorResponse(store.NewInvalidCommandError("empty request")))
	}

	switch r := req.Data.(type) {
	case *common.Get:
		return single(s.get(r))
	case *common.Set:
		return single(s.set(r))
	case *common.GetAll:
		return single(s.getAll(r))
	case *common.MultiGet:
		return single(s.multiGet(r))
	case *common.MultiSet:
		return single(s.multiSet(r))
	case *common.Delete:
		return single(s.delete(r))
	case *common.MultiDelete:
		return single(s.multiDelete(r))
	case *common.Exists:
		return single(s.exists(r))
	case *common.MultiExists:
		return single(s.multiExists(r))
	case *common.Subscribe:
		return s.subscribe(r)
	case *common.Unsubscribe:
		return single(s.unsubscribe(r))
	case *common.Publish:
		return single(s.publish(r))
	case nil:
		return single(common.NewErrorResponse(store.NewInvalidCommandError("empty request")))
	default:
		return single(common.NewErrorResponse(store.NewInvalidCommandError(req.Kind().String())))
	}
}

// --------------------------------------------------------------------------
// Response streams
// --------------------------------------------------------------------------

// hookedStream runs the per response hooks on top of a dispatched stream
type hookedStream struct {
	svc      *Service
	req      *common.CommandRequest
	inner    ResponseStream
	start    time.Time
	observed bool
}

func (h *hookedStream) Recv(ctx context.Context) (*common.CommandResponse, error) {
	resp, err := h.inner.Recv(ctx)
	if err != nil {
		return nil, err
	}

	// the first response closes the request, later ones are subscription deliveries
	if !h.observed {
		h.observed = true
		h.svc.metrics.observe(h.req.Kind(), resp.Status, h.start)
	}

	h.svc.hooks.onExecuted(ctx, h.req, resp)
	h.svc.hooks.onBeforeSend(ctx, h.req, resp)
	return resp, nil
}

func (h *hookedStream) Close() { h.inner.Close() }

// singleStream yields exactly one response
type singleStream struct {
	resp *common.CommandResponse
	done bool
}

func single(resp *common.CommandResponse) ResponseStream {
	return &singleStream{resp: resp}
}

func (s *singleStream) Recv(context.Context) (*common.CommandResponse, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.resp, nil
}

func (s *singleStream) Close() { s.done = true }
