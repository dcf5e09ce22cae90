package client

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/transport/stream"
)

// ErrStreamBusy is returned when a stream is used while a previous call on it is still running
var ErrStreamBusy = errors.New("client: stream is busy")

// Stream is one logical stream. Requests on a stream are answered in order;
// a stream serves one call at a time.
type Stream struct {
	client *Client
	id     uint64
	fs     *stream.ClientStream

	busy      sync.Mutex
	broken    bool
	closeOnce sync.Once
	closeErr  error
}

// Execute sends req and returns its single response. A response with an
// error status is returned as is; the error is reserved for transport failures.
func (s *Stream) Execute(ctx context.Context, req *common.CommandRequest) (*common.CommandResponse, error) {
	if !s.busy.TryLock() {
		return nil, ErrStreamBusy
	}
	defer s.busy.Unlock()

	if err := s.send(req); err != nil {
		return nil, err
	}
	return s.recv(ctx)
}

// ExecuteStreaming sends a streaming request and reads its handshake. The
// first response must be status 200 carrying the integer subscription id.
// The stream belongs to the returned result until it is closed.
func (s *Stream) ExecuteStreaming(ctx context.Context, req *common.CommandRequest) (*StreamResult, error) {
	if !s.busy.TryLock() {
		return nil, ErrStreamBusy
	}

	if err := s.send(req); err != nil {
		s.busy.Unlock()
		return nil, err
	}

	first, err := s.recv(ctx)
	if err != nil {
		s.busy.Unlock()
		return nil, err
	}

	id, ok := handshakeID(first)
	if !ok {
		s.busy.Unlock()
		s.Close()
		if !first.IsOK() {
			return nil, first.Err()
		}
		return nil, store.NewInternalError("invalid stream")
	}

	return &StreamResult{ID: id, stream: s}, nil
}

func handshakeID(resp *common.CommandResponse) (uint32, bool) {
	if resp.Status != common.StatusOK || len(resp.Values) == 0 {
		return 0, false
	}
	id, err := resp.Values[0].AsInt()
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint32(id), true
}

func (s *Stream) send(req *common.CommandRequest) error {
	if s.broken {
		return store.NewConnectionError("send", stream.ErrClosed)
	}
	if err := s.fs.Send(req); err != nil {
		return store.NewConnectionError("send "+req.Kind().String(), err)
	}
	return nil
}

// recv waits for the next response. When ctx ends first the stream is closed,
// since the pending frame can no longer be matched to a request.
func (s *Stream) recv(ctx context.Context) (*common.CommandResponse, error) {
	if s.broken {
		return nil, store.NewConnectionError("recv", stream.ErrClosed)
	}

	type result struct {
		resp *common.CommandResponse
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		resp, err := s.fs.Recv()
		ch <- result{resp, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, io.EOF) {
				return nil, io.EOF
			}
			if store.KindOf(r.err) != store.ErrProtocol {
				s.broken = true
			}
			return nil, r.err
		}
		return r.resp, nil
	case <-ctx.Done():
		s.broken = true
		s.Close()
		return nil, ctx.Err()
	}
}

// Close closes the logical stream. Repeated calls return the first result.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.client.streams.Delete(s.id)
		s.closeErr = s.fs.Close()
	})
	return s.closeErr
}

// --------------------------------------------------------------------------
// Streaming results
// --------------------------------------------------------------------------

// StreamResult is an open streaming response, such as a subscription
type StreamResult struct {
	// ID is the subscription id from the handshake
	ID     uint32
	stream *Stream
	once   sync.Once
}

// Recv returns the next streamed response. io.EOF marks the end of the
// stream, for example after an unsubscribe.
func (r *StreamResult) Recv(ctx context.Context) (*common.CommandResponse, error) {
	return r.stream.recv(ctx)
}

// Close ends the streaming response and closes its logical stream
func (r *StreamResult) Close() error {
	var err error
	r.once.Do(func() {
		err = r.stream.Close()
		r.stream.busy.Unlock()
	})
	return err
}
