package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/memstore"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/frame"
	"github.com/ValentinKolb/sKV/rpc/serializer"
	"github.com/ValentinKolb/sKV/rpc/transport/mux"
	"github.com/ValentinKolb/sKV/rpc/transport/stream"
	"github.com/hashicorp/yamux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, config common.ServerConfig) *Server {
	t.Helper()
	if config.Endpoint == "" {
		config.Endpoint = "127.0.0.1:0"
	}

	s, err := NewServer(config, memstore.New())
	require.NoError(t, err)
	require.NoError(t, s.Listen())

	served := make(chan error, 1)
	go func() { served <- s.Serve() }()

	t.Cleanup(func() {
		assert.NoError(t, s.Shutdown())
		select {
		case err := <-served:
			assert.ErrorIs(t, err, ErrServerClosed)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Shutdown")
		}
	})
	return s
}

func testCodec(t *testing.T) frame.Codec {
	ser, err := serializer.New("proto")
	require.NoError(t, err)
	return frame.NewCodec(ser)
}

func dialMux(t *testing.T, s *Server) *mux.Client {
	t.Helper()
	conn, err := net.Dial(s.Addr().Network(), s.Addr().String())
	require.NoError(t, err)
	c, err := mux.NewClient(conn, mux.DefaultConfig(), testCodec(t))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func roundTrip(t *testing.T, fs *stream.ClientStream, req *common.CommandRequest) *common.CommandResponse {
	t.Helper()
	require.NoError(t, fs.Send(req))
	resp, err := fs.Recv()
	require.NoError(t, err)
	return resp
}

func TestOpenStore(t *testing.T) {
	st, err := OpenStore(common.ServerConfig{Storage: common.StorageMem})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = OpenStore(common.ServerConfig{Storage: common.StoragePebble, DataDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = OpenStore(common.ServerConfig{Storage: "etcd"})
	assert.Error(t, err)
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	_, err := NewServer(common.ServerConfig{Transport: "carrier-pigeon"}, memstore.New())
	assert.Error(t, err)

	_, err = NewServer(common.ServerConfig{Serializer: "xml"}, memstore.New())
	assert.Error(t, err)

	_, err = NewServer(common.ServerConfig{TLSCert: "/does/not/exist.pem"}, memstore.New())
	assert.Error(t, err)
}

func TestStreamRequestsInOrder(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	c := dialMux(t, s)

	fs, err := c.OpenStream(context.Background())
	require.NoError(t, err)
	defer fs.Close()

	resp := roundTrip(t, fs, common.NewSetRequest("t", "k", store.StringValue("v1")))
	assert.Equal(t, common.StatusOK, resp.Status)
	assert.Empty(t, resp.Values)

	// pipeline several requests, answers come back in the same order
	for i := 0; i < 5; i++ {
		require.NoError(t, fs.Send(common.NewGetRequest("t", "k")))
	}
	require.NoError(t, fs.Send(common.NewGetRequest("t", "missing")))

	for i := 0; i < 5; i++ {
		resp, err := fs.Recv()
		require.NoError(t, err)
		assert.Equal(t, common.StatusOK, resp.Status)
	}
	resp, err = fs.Recv()
	require.NoError(t, err)
	assert.Equal(t, common.StatusNotFound, resp.Status)
}

func TestMalformedFrameGets400(t *testing.T) {
	s := startServer(t, common.ServerConfig{})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	session, err := yamux.Client(conn, nil)
	require.NoError(t, err)
	defer session.Close()

	raw, err := session.OpenStream()
	require.NoError(t, err)
	defer raw.Close()

	// a frame whose body is not a valid request
	var buf bytes.Buffer
	require.NoError(t, frame.EncodeBody(&buf, []byte{0xff, 0xff, 0xff}))
	_, err = raw.Write(buf.Bytes())
	require.NoError(t, err)

	// the same stream keeps working afterwards
	codec := testCodec(t)
	fs := stream.NewClientStream(raw, codec)
	resp, err := fs.Recv()
	require.NoError(t, err)
	assert.Equal(t, common.StatusBadRequest, resp.Status)

	resp = roundTrip(t, fs, common.NewExistsRequest("t", "k"))
	assert.Equal(t, common.StatusOK, resp.Status)
}

func TestSubscriptionOverStreams(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	c := dialMux(t, s)
	ctx := context.Background()

	subStream, err := c.OpenStream(ctx)
	require.NoError(t, err)
	defer subStream.Close()

	hello := roundTrip(t, subStream, common.NewSubscribeRequest("lobby"))
	require.Equal(t, common.StatusOK, hello.Status)
	id, err := hello.Values[0].AsInt()
	require.NoError(t, err)
	assert.Positive(t, id)

	pub, err := c.OpenStream(ctx)
	require.NoError(t, err)
	defer pub.Close()
	resp := roundTrip(t, pub, common.NewPublishRequest("lobby", store.StringValue("hello")))
	assert.Equal(t, common.StatusOK, resp.Status)

	msg, err := subStream.Recv()
	require.NoError(t, err)
	got, _ := msg.Values[0].AsString()
	assert.Equal(t, "hello", got)

	// unsubscribing ends the subscribed stream
	resp = roundTrip(t, pub, common.NewUnsubscribeRequest("lobby", uint32(id)))
	assert.Equal(t, common.StatusOK, resp.Status)

	_, err = subStream.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDisconnectedSubscriberIsCleanedUp(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	ctx := context.Background()

	gone := dialMux(t, s)
	fs, err := gone.OpenStream(ctx)
	require.NoError(t, err)
	hello := roundTrip(t, fs, common.NewSubscribeRequest("lobby"))
	id, _ := hello.Values[0].AsInt()
	require.NoError(t, gone.Close())

	other := dialMux(t, s)
	pub, err := other.OpenStream(ctx)
	require.NoError(t, err)
	defer pub.Close()

	// the subscription is gone once the server noticed the disconnect and a publish reached it
	require.Eventually(t, func() bool {
		roundTrip(t, pub, common.NewPublishRequest("lobby", store.StringValue("ping")))
		s.broker.Wait()
		return s.broker.Len() == 0
	}, 5*time.Second, 20*time.Millisecond)

	resp := roundTrip(t, pub, common.NewUnsubscribeRequest("lobby", uint32(id)))
	assert.Equal(t, common.StatusNotFound, resp.Status)
}

func TestUnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "skv.sock")
	s := startServer(t, common.ServerConfig{Transport: "unix", Endpoint: sock})
	c := dialMux(t, s)

	fs, err := c.OpenStream(context.Background())
	require.NoError(t, err)
	defer fs.Close()

	resp := roundTrip(t, fs, common.NewSetRequest("t", "k", store.BoolValue(true)))
	assert.Equal(t, common.StatusOK, resp.Status)
}

func TestShutdownClosesSessions(t *testing.T) {
	s, err := NewServer(common.ServerConfig{Endpoint: "127.0.0.1:0"}, memstore.New())
	require.NoError(t, err)
	require.NoError(t, s.Listen())
	go s.Serve()

	c := dialMux(t, s)
	fs, err := c.OpenStream(context.Background())
	require.NoError(t, err)
	roundTrip(t, fs, common.NewExistsRequest("t", "k"))

	require.NoError(t, s.Shutdown())

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client session still open after shutdown")
	}

	assert.True(t, errors.Is(s.health(), ErrServerClosed))
	assert.NoError(t, s.Shutdown(), "second shutdown is a no-op")
}
