package mux

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/frame"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec(t *testing.T) frame.Codec {
	s, err := serializer.New("proto")
	require.NoError(t, err)
	return frame.NewCodec(s)
}

// echoHandler answers every Get with the key it was asked for
func echoHandler(ctx context.Context, s *stream.ServerStream) {
	for req, err := range s.Messages() {
		if err != nil {
			return
		}
		get, ok := req.Data.(*common.Get)
		if !ok {
			_ = s.Send(common.NewErrorResponse(store.NewInvalidCommandError("unexpected")))
			continue
		}
		if err := s.Send(common.NewValuesResponse(store.StringValue(get.Key))); err != nil {
			return
		}
	}
}

func newPair(t *testing.T, handler StreamHandler) (*Client, *Server) {
	t.Helper()
	a, b := net.Pipe()
	codec := testCodec(t)

	srv, err := Serve(b, DefaultConfig(), codec, handler)
	require.NoError(t, err)
	cli, err := NewClient(a, DefaultConfig(), codec)
	require.NoError(t, err)

	t.Cleanup(func() {
		cli.Close()
		srv.Close()
		srv.Wait()
	})
	return cli, srv
}

func TestOpenStreamRoundTrip(t *testing.T) {
	cli, _ := newPair(t, echoHandler)

	s, err := cli.OpenStream(context.Background())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Send(common.NewGetRequest("t", "hello")))
	resp, err := s.Recv()
	require.NoError(t, err)
	require.Len(t, resp.Values, 1)
	got, _ := resp.Values[0].AsString()
	assert.Equal(t, "hello", got)
}

func TestManyStreamsAreIndependent(t *testing.T) {
	cli, _ := newPair(t, echoHandler)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := cli.OpenStream(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer s.Close()

			for j := 0; j < 20; j++ {
				key := fmt.Sprintf("s%d-%d", i, j)
				if !assert.NoError(t, s.Send(common.NewGetRequest("t", key))) {
					return
				}
				resp, err := s.Recv()
				if !assert.NoError(t, err) {
					return
				}
				got, _ := resp.Values[0].AsString()
				assert.Equal(t, key, got)
			}
		}(i)
	}
	wg.Wait()
}

func TestClosedStreamDoesNotAffectSibling(t *testing.T) {
	cli, _ := newPair(t, echoHandler)

	first, err := cli.OpenStream(context.Background())
	require.NoError(t, err)
	second, err := cli.OpenStream(context.Background())
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Close())

	require.NoError(t, second.Send(common.NewGetRequest("t", "still-here")))
	resp, err := second.Recv()
	require.NoError(t, err)
	got, _ := resp.Values[0].AsString()
	assert.Equal(t, "still-here", got)
}

func TestSessionCloseCancelsHandlers(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})

	cli, _ := newPair(t, func(ctx context.Context, s *stream.ServerStream) {
		close(started)
		<-ctx.Done()
		close(finished)
	})

	s, err := cli.OpenStream(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Send(common.NewGetRequest("t", "k")))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}

	require.NoError(t, cli.Close())

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("handler context was not cancelled")
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	var calls sync.WaitGroup
	calls.Add(2)
	cli, _ := newPair(t, func(ctx context.Context, s *stream.ServerStream) {
		defer calls.Done()
		req, err := s.Recv()
		if err != nil {
			return
		}
		if req.Data.(*common.Get).Key == "boom" {
			panic("boom")
		}
		_ = s.Send(common.NewOKResponse())
	})

	bad, err := cli.OpenStream(context.Background())
	require.NoError(t, err)
	require.NoError(t, bad.Send(common.NewGetRequest("t", "boom")))

	good, err := cli.OpenStream(context.Background())
	require.NoError(t, err)
	defer good.Close()
	require.NoError(t, good.Send(common.NewGetRequest("t", "fine")))

	resp, err := good.Recv()
	require.NoError(t, err)
	assert.True(t, resp.IsOK())
	calls.Wait()
}

func TestOpenStreamHonoursContext(t *testing.T) {
	cli, _ := newPair(t, echoHandler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// open may win the race against the cancelled context; both outcomes are valid
	s, err := cli.OpenStream(ctx)
	if err == nil {
		s.Close()
		return
	}
	assert.ErrorIs(t, err, context.Canceled)
}
