package serializer

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":  NewJSONSerializer,
	"Proto": NewProtoSerializer,
}

func testRequests() []*common.CommandRequest {
	return []*common.CommandRequest{
		{},
		common.NewGetRequest("t1", "hello"),
		common.NewGetRequest("", ""),
		common.NewSetRequest("t1", "hello", store.StringValue("world")),
		common.NewSetRequest("t1", "absent", store.Value{}),
		common.NewGetAllRequest("score"),
		common.NewMultiGetRequest("score", "u1", "", "u3"),
		common.NewMultiSetRequest("score",
			store.NewKvpair("u1", store.IntValue(10)),
			store.NewKvpair("u2", store.FloatValue(0.5)),
			store.NewKvpair("u3", store.BoolValue(false)),
		),
		common.NewDeleteRequest("t1", "hello"),
		common.NewMultiDeleteRequest("t1", "a", "b"),
		common.NewExistsRequest("t1", "hello"),
		common.NewMultiExistsRequest("t1", "a"),
		common.NewSubscribeRequest("lobby"),
		common.NewUnsubscribeRequest("lobby", 9527),
		common.NewPublishRequest("lobby", store.StringValue("hello"), store.BinaryValue([]byte{1, 2, 3}), store.IntValue(-7)),
	}
}

func testResponses() []*common.CommandResponse {
	return []*common.CommandResponse{
		common.NewOKResponse(),
		common.NewValuesResponse(store.StringValue("world")),
		common.NewValuesResponse(store.IntValue(1), store.Value{}, store.BoolValue(true)),
		common.NewPairsResponse([]store.Kvpair{
			store.NewKvpair("u1", store.IntValue(6)),
			store.NewKvpair("u2", store.Value{}),
		}),
		common.NewErrorResponse(store.NewNotFoundError("t1", "k1")),
		{Status: common.StatusNoContent},
	}
}

// TestSerializerRoundTrip tests that commands and responses survive serialization
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			s := factory()

			for i, req := range testRequests() {
				t.Run(fmt.Sprintf("request-%d-%s", i, req.Kind()), func(t *testing.T) {
					data, err := s.SerializeRequest(nil, req)
					require.NoError(t, err)

					var got common.CommandRequest
					require.NoError(t, s.DeserializeRequest(data, &got))
					assert.Equal(t, req, &got)
				})
			}

			for i, resp := range testResponses() {
				t.Run(fmt.Sprintf("response-%d", i), func(t *testing.T) {
					data, err := s.SerializeResponse(nil, resp)
					require.NoError(t, err)

					var got common.CommandResponse
					require.NoError(t, s.DeserializeResponse(data, &got))
					assert.Equal(t, resp, &got)
				})
			}
		})
	}
}

func TestSerializeAppendsToBuffer(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			prefix := []byte("head")
			data, err := factory().SerializeRequest(prefix, common.NewGetRequest("t", "k"))
			require.NoError(t, err)
			assert.Equal(t, "head", string(data[:4]))
		})
	}
}

func TestProtoSkipsUnknownFields(t *testing.T) {
	s := NewProtoSerializer()
	data, err := s.SerializeResponse(nil, common.NewValuesResponse(store.StringValue("x")))
	require.NoError(t, err)

	// field 15, varint 1
	data = append(data, 15<<3, 1)

	var got common.CommandResponse
	require.NoError(t, s.DeserializeResponse(data, &got))
	assert.Equal(t, common.NewValuesResponse(store.StringValue("x")), &got)
}

func TestProtoRejectsTruncatedInput(t *testing.T) {
	s := NewProtoSerializer()
	data, err := s.SerializeRequest(nil, common.NewSetRequest("table", "key", store.StringValue("value")))
	require.NoError(t, err)

	var got common.CommandRequest
	assert.Error(t, s.DeserializeRequest(data[:len(data)-3], &got))
}

func TestNew(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "proto", s.Name())

	s, err = New("json")
	require.NoError(t, err)
	assert.Equal(t, "json", s.Name())

	_, err = New("gob")
	assert.Error(t, err)
}

func BenchmarkSerializeRequest(b *testing.B) {
	req := common.NewSetRequest("bench", "key", store.BinaryValue(make([]byte, 1024)))
	for name, factory := range testSerializers {
		b.Run(name, func(b *testing.B) {
			s := factory()
			buf := make([]byte, 0, 2048)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				buf, _ = s.SerializeRequest(buf[:0], req)
			}
		})
	}
}
