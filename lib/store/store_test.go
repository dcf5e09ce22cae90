package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAccessors(t *testing.T) {
	s, err := StringValue("hello").AsString()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	_, err = StringValue("hello").AsInt()
	require.Error(t, err)
	assert.Equal(t, ErrConversion, KindOf(err))
	assert.Contains(t, err.Error(), "to integer")

	assert.True(t, Value{}.IsNone())
	assert.Equal(t, "<none>", Value{}.String())
}

func TestValueWireCodec(t *testing.T) {
	cases := []Value{
		{},
		StringValue(""),
		StringValue("world"),
		BinaryValue([]byte{0, 1, 2}),
		IntValue(-42),
		IntValue(math.MaxInt64),
		FloatValue(3.25),
		BoolValue(false),
		BoolValue(true),
	}
	for _, v := range cases {
		t.Run(fmt.Sprintf("%s/%s", v.Kind(), v), func(t *testing.T) {
			got, err := ConsumeValue(AppendValue(nil, v))
			require.NoError(t, err)
			assert.True(t, v.Equal(got), "want %s, got %s", v, got)
		})
	}
}

func TestKvpairWireCodecKeepsAbsentValue(t *testing.T) {
	p, err := ConsumeKvpair(AppendKvpair(nil, NewKvpair("k", Value{})))
	require.NoError(t, err)
	assert.Equal(t, "k", p.Key)
	assert.True(t, p.Value.IsNone())
}

func TestConsumeValueRejectsTruncatedInput(t *testing.T) {
	b := AppendValue(nil, StringValue("truncated"))
	_, err := ConsumeValue(b[:len(b)-2])
	assert.Error(t, err)
}

func TestValueJSON(t *testing.T) {
	data, err := json.Marshal([]Value{IntValue(7), {}, BinaryValue([]byte("x"))})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"integer":7},null,{"binary":"eA=="}]`, string(data))

	var back []Value
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 3)
	assert.True(t, back[0].Equal(IntValue(7)))
	assert.True(t, back[1].IsNone())
	assert.True(t, back[2].Equal(BinaryValue([]byte("x"))))
}

func TestErrorStatusAndMessages(t *testing.T) {
	nf := NewNotFoundError("t1", "k1")
	assert.Equal(t, uint32(404), nf.Status())
	assert.Equal(t, "Not found for table: t1, key: k1", nf.Error())

	sub := NewNotFoundError("", "subscription 9527")
	assert.Equal(t, "Not found for key: subscription 9527", sub.Error())

	cause := errors.New("disk on fire")
	se := NewStorageError("set", "t1", "k1", cause)
	assert.Equal(t, uint32(500), se.Status())
	assert.ErrorIs(t, se, cause)

	wrapped := fmt.Errorf("outer: %w", NewInvalidCommandError("Request has no data"))
	assert.Equal(t, ErrInvalidCommand, KindOf(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsNotFound(nf))
}
