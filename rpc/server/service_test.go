package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/store/memstore"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *Broadcaster) {
	t.Helper()
	st := memstore.New()
	b := NewBroadcaster()
	t.Cleanup(func() {
		b.Close()
		st.Close()
	})
	return NewService(st, b, opts...), b
}

// execOne runs a single-shot command and checks that it yields exactly one response
func execOne(t *testing.T, s *Service, req *common.CommandRequest) *common.CommandResponse {
	t.Helper()
	ctx := context.Background()
	rs := s.Execute(ctx, req)
	defer rs.Close()

	resp, err := rs.Recv(ctx)
	require.NoError(t, err)
	_, err = rs.Recv(ctx)
	require.ErrorIs(t, err, io.EOF)
	return resp
}

func recvTimeout(t *testing.T, rs ResponseStream) *common.CommandResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := rs.Recv(ctx)
	require.NoError(t, err)
	return resp
}

func str(v string) store.Value { return store.StringValue(v) }

func TestGetAndSet(t *testing.T) {
	s, _ := newTestService(t)

	resp := execOne(t, s, common.NewGetRequest("users", "u1"))
	assert.Equal(t, common.StatusNotFound, resp.Status)
	assert.Equal(t, "Not found for table: users, key: u1", resp.Message)

	resp = execOne(t, s, common.NewSetRequest("users", "u1", str("alice")))
	assert.Equal(t, common.StatusOK, resp.Status)
	assert.Empty(t, resp.Values, "first set has no previous value")

	resp = execOne(t, s, common.NewSetRequest("users", "u1", str("bob")))
	assert.Equal(t, common.StatusOK, resp.Status)
	require.Len(t, resp.Values, 1)
	assert.True(t, resp.Values[0].Equal(str("alice")))

	resp = execOne(t, s, common.NewGetRequest("users", "u1"))
	assert.Equal(t, common.StatusOK, resp.Status)
	assert.True(t, resp.Values[0].Equal(str("bob")))
}

func TestGetAllOrdered(t *testing.T) {
	s, _ := newTestService(t)
	for _, k := range []string{"c", "a", "b"} {
		execOne(t, s, common.NewSetRequest("t", k, str(k)))
	}

	resp := execOne(t, s, common.NewGetAllRequest("t"))
	assert.Equal(t, common.StatusOK, resp.Status)
	require.Len(t, resp.Pairs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{resp.Pairs[0].Key, resp.Pairs[1].Key, resp.Pairs[2].Key})

	resp = execOne(t, s, common.NewGetAllRequest("empty"))
	assert.Equal(t, common.StatusOK, resp.Status)
	assert.Empty(t, resp.Pairs)
}

func TestMultiCommands(t *testing.T) {
	s, _ := newTestService(t)

	resp := execOne(t, s, common.NewMultiSetRequest("t",
		store.NewKvpair("a", str("1")),
		store.NewKvpair("b", str("2")),
	))
	assert.Equal(t, common.StatusOK, resp.Status)
	require.Len(t, resp.Values, 2)
	assert.True(t, resp.Values[0].IsNone())
	assert.True(t, resp.Values[1].IsNone())

	resp = execOne(t, s, common.NewMultiGetRequest("t", "a", "missing", "b"))
	assert.Equal(t, common.StatusOK, resp.Status)
	require.Len(t, resp.Values, 3)
	assert.True(t, resp.Values[0].Equal(str("1")))
	assert.True(t, resp.Values[1].IsNone())
	assert.True(t, resp.Values[2].Equal(str("2")))

	resp = execOne(t, s, common.NewMultiGetRequest("t", "x", "y"))
	assert.Equal(t, common.StatusNoContent, resp.Status)

	resp = execOne(t, s, common.NewMultiExistsRequest("t", "a", "x"))
	require.Len(t, resp.Values, 2)
	a, _ := resp.Values[0].AsBool()
	x, _ := resp.Values[1].AsBool()
	assert.True(t, a)
	assert.False(t, x)

	resp = execOne(t, s, common.NewMultiDeleteRequest("t", "a", "x"))
	assert.Equal(t, common.StatusOK, resp.Status)
	require.Len(t, resp.Values, 2)
	assert.True(t, resp.Values[0].Equal(str("1")))
	assert.True(t, resp.Values[1].IsNone())

	resp = execOne(t, s, common.NewMultiDeleteRequest("t", "a", "x"))
	assert.Equal(t, common.StatusNoContent, resp.Status)
}

func TestDeleteAndExists(t *testing.T) {
	s, _ := newTestService(t)

	resp := execOne(t, s, common.NewDeleteRequest("t", "k"))
	assert.Equal(t, common.StatusNotFound, resp.Status)

	execOne(t, s, common.NewSetRequest("t", "k", store.IntValue(7)))

	resp = execOne(t, s, common.NewExistsRequest("t", "k"))
	ok, err := resp.Values[0].AsBool()
	require.NoError(t, err)
	assert.True(t, ok)

	resp = execOne(t, s, common.NewDeleteRequest("t", "k"))
	assert.Equal(t, common.StatusOK, resp.Status)
	assert.True(t, resp.Values[0].Equal(store.IntValue(7)))

	resp = execOne(t, s, common.NewExistsRequest("t", "k"))
	ok, _ = resp.Values[0].AsBool()
	assert.False(t, ok)
}

func TestInvalidRequests(t *testing.T) {
	s, _ := newTestService(t)

	resp := execOne(t, s, &common.CommandRequest{})
	assert.Equal(t, common.StatusBadRequest, resp.Status)
	assert.Equal(t, "Cannot parse command: `empty request`", resp.Message)

	resp = execOne(t, s, nil)
	assert.Equal(t, common.StatusBadRequest, resp.Status)
}

// failingStore fails every operation
type failingStore struct{ store.IStore }

func (failingStore) Get(table, key string) (store.Value, bool, error) {
	return store.Value{}, false, store.NewStorageError("get", table, key, errors.New("disk on fire"))
}

func TestStorageErrorIs500(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()
	s := NewService(failingStore{memstore.New()}, b)

	resp := execOne(t, s, common.NewGetRequest("t", "k"))
	assert.Equal(t, common.StatusInternal, resp.Status)
	assert.Contains(t, resp.Message, "disk on fire")
}

func TestSubscribeHandshakeAndDelivery(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	first := s.Execute(ctx, common.NewSubscribeRequest("lobby"))
	defer first.Close()
	second := s.Execute(ctx, common.NewSubscribeRequest("lobby"))
	defer second.Close()

	id1, err := recvTimeout(t, first).Values[0].AsInt()
	require.NoError(t, err)
	id2, err := recvTimeout(t, second).Values[0].AsInt()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.Positive(t, id1)
	assert.Positive(t, id2)

	resp := execOne(t, s, common.NewPublishRequest("lobby", str("hello")))
	assert.Equal(t, common.StatusOK, resp.Status)
	assert.Empty(t, resp.Values)

	for _, rs := range []ResponseStream{first, second} {
		msg := recvTimeout(t, rs)
		assert.Equal(t, common.StatusOK, msg.Status)
		require.Len(t, msg.Values, 1)
		assert.True(t, msg.Values[0].Equal(str("hello")))
	}
}

func TestUnsubscribeEndsStream(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	rs := s.Execute(ctx, common.NewSubscribeRequest("lobby"))
	defer rs.Close()
	id, _ := recvTimeout(t, rs).Values[0].AsInt()

	resp := execOne(t, s, common.NewUnsubscribeRequest("lobby", uint32(id)))
	assert.Equal(t, common.StatusOK, resp.Status)
	got, _ := resp.Values[0].AsInt()
	assert.Equal(t, id, got)

	_, err := rs.Recv(ctx)
	assert.ErrorIs(t, err, io.EOF)

	resp = execOne(t, s, common.NewUnsubscribeRequest("lobby", uint32(id)))
	assert.Equal(t, common.StatusNotFound, resp.Status)
	assert.Contains(t, resp.Message, "subscription")
}

func TestHooksRunInOrder(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	record := func(name string) {
		mu.Lock()
		calls = append(calls, name)
		mu.Unlock()
	}

	s, _ := newTestService(t,
		WithOnReceived(func(ctx context.Context, req *common.CommandRequest) error {
			record("received-1")
			return nil
		}),
		WithOnReceived(func(ctx context.Context, req *common.CommandRequest) error {
			record("received-2")
			return errors.New("ignored")
		}),
		WithOnExecuted(func(ctx context.Context, req *common.CommandRequest, resp *common.CommandResponse) error {
			record("executed")
			panic("hook panics are contained")
		}),
		WithOnBeforeSend(func(ctx context.Context, req *common.CommandRequest, resp *common.CommandResponse) error {
			record("before-send")
			resp.Message = "rewritten"
			return nil
		}),
		WithOnAfterSend(func(ctx context.Context) error {
			record("after-send")
			return nil
		}),
	)

	resp := execOne(t, s, common.NewSetRequest("t", "k", str("v")))
	assert.Equal(t, common.StatusOK, resp.Status)
	assert.Equal(t, "rewritten", resp.Message)

	s.AfterSend(context.Background())

	assert.Equal(t, []string{"received-1", "received-2", "executed", "before-send", "after-send"}, calls)
}

func TestExecuteConcurrently(t *testing.T) {
	s, _ := newTestService(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rs := s.Execute(context.Background(), common.NewSetRequest("t", "shared", store.IntValue(int64(i*100+j))))
				resp, err := rs.Recv(context.Background())
				rs.Close()
				assert.NoError(t, err)
				assert.Equal(t, common.StatusOK, resp.Status)
			}
		}(i)
	}
	wg.Wait()

	resp := execOne(t, s, common.NewExistsRequest("t", "shared"))
	ok, _ := resp.Values[0].AsBool()
	assert.True(t, ok)
}
