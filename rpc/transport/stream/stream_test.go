package stream

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/frame"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codec = frame.NewCodec(serializer.NewProtoSerializer())

// shortConn accepts at most max bytes per Write call
type shortConn struct {
	net.Conn
	max     int
	writes  int
	flushes int
}

func (c *shortConn) Write(p []byte) (int, error) {
	c.writes++
	if len(p) > c.max {
		p = p[:c.max]
	}
	return c.Conn.Write(p)
}

func (c *shortConn) Flush() error {
	c.flushes++
	return nil
}

func pipe(t *testing.T) (*ClientStream, *ServerStream) {
	a, b := net.Pipe()
	client := NewClientStream(a, codec)
	server := NewServerStream(b, codec)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestRequestResponse(t *testing.T) {
	client, server := pipe(t)

	go func() {
		for req, err := range server.Messages() {
			if err != nil {
				return
			}
			get := req.Data.(*common.Get)
			server.Send(common.NewValuesResponse(store.StringValue(get.Key)))
		}
	}()

	for _, key := range []string{"a", "b", strings.Repeat("c", 5000)} {
		require.NoError(t, client.Send(common.NewGetRequest("t", key)))
		resp, err := client.Recv()
		require.NoError(t, err)
		assert.Equal(t, common.NewValuesResponse(store.StringValue(key)), resp)
	}
}

func TestSendHandlesShortWrites(t *testing.T) {
	a, b := net.Pipe()
	sc := &shortConn{Conn: a, max: 3}
	client := NewClientStream(sc, codec)
	server := NewServerStream(b, codec)
	defer client.Close()
	defer server.Close()

	req := common.NewSetRequest("t", "key", store.StringValue("a value longer than three bytes"))

	done := make(chan error, 1)
	go func() { done <- client.Send(req) }()

	got, err := server.Recv()
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, req, got)
	assert.Greater(t, sc.writes, 1)
	assert.Equal(t, 1, sc.flushes)
}

func TestCloseIsIdempotent(t *testing.T) {
	client, server := pipe(t)

	recvErr := make(chan error, 1)
	go func() {
		_, err := server.Recv()
		recvErr <- err
	}()

	require.NoError(t, client.Close())
	assert.NoError(t, client.Close())
	assert.ErrorIs(t, client.Send(common.NewGetRequest("t", "k")), ErrClosed)
	assert.ErrorIs(t, <-recvErr, io.EOF)
}

func TestMessagesEndsOnEOF(t *testing.T) {
	client, server := pipe(t)

	go func() {
		for i := 0; i < 3; i++ {
			client.Send(common.NewGetRequest("t", "k"))
		}
		client.Close()
	}()

	count := 0
	for req, err := range server.Messages() {
		require.NoError(t, err)
		assert.Equal(t, common.ReqKGet, req.Kind())
		count++
	}
	assert.Equal(t, 3, count)
}

func TestRecvTruncatedFrame(t *testing.T) {
	a, b := net.Pipe()
	server := NewServerStream(b, codec)
	defer server.Close()

	var buf bytes.Buffer
	require.NoError(t, codec.EncodeRequest(&buf, common.NewGetRequest("table", "key")))

	go func() {
		a.Write(buf.Bytes()[:buf.Len()-2])
		a.Close()
	}()

	_, err := server.Recv()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, store.ErrProtocol, store.KindOf(err))
}

func TestRecvMalformedBodyKeepsStream(t *testing.T) {
	a, b := net.Pipe()
	server := NewServerStream(b, codec)
	defer server.Close()
	defer a.Close()

	var good bytes.Buffer
	require.NoError(t, codec.EncodeRequest(&good, common.NewExistsRequest("t", "k")))

	go func() {
		a.Write([]byte{0, 0, 0, 2, 0x0a, 0x05})
		a.Write(good.Bytes())
	}()

	_, err := server.Recv()
	assert.Equal(t, store.ErrProtocol, store.KindOf(err))

	req, err := server.Recv()
	require.NoError(t, err)
	assert.Equal(t, common.NewExistsRequest("t", "k"), req)
}

func TestConcurrentSendsDoNotInterleave(t *testing.T) {
	client, server := pipe(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			server.Send(common.NewValuesResponse(store.StringValue(strings.Repeat("v", 2000))))
		}()
	}

	for i := 0; i < n; i++ {
		resp, err := client.Recv()
		require.NoError(t, err)
		require.Len(t, resp.Values, 1)
	}
	wg.Wait()
}
