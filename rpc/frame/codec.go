package frame

import (
	"bytes"
	"errors"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"github.com/ValentinKolb/sKV/rpc/serializer"
)

// Codec encodes commands and responses into frames using a body serializer.
// It keeps no state and is safe for concurrent use.
type Codec struct {
	serializer serializer.IRPCSerializer
}

func NewCodec(s serializer.IRPCSerializer) Codec {
	return Codec{serializer: s}
}

// Serializer returns the body serializer of the codec
func (c Codec) Serializer() serializer.IRPCSerializer {
	return c.serializer
}

// EncodeRequest appends the frame of req to dst
func (c Codec) EncodeRequest(dst *bytes.Buffer, req *common.CommandRequest) error {
	body, err := c.serializer.SerializeRequest(nil, req)
	if err != nil {
		return store.NewProtocolError("cannot encode request", err)
	}
	return EncodeBody(dst, body)
}

// EncodeResponse appends the frame of resp to dst
func (c Codec) EncodeResponse(dst *bytes.Buffer, resp *common.CommandResponse) error {
	body, err := c.serializer.SerializeResponse(nil, resp)
	if err != nil {
		return store.NewProtocolError("cannot encode response", err)
	}
	return EncodeBody(dst, body)
}

// DecodeRequest decodes the first frame of src as a request.
// On success and on a malformed body the frame is consumed from src; on
// ErrIncomplete src is left untouched.
func (c Codec) DecodeRequest(src *bytes.Buffer) (*common.CommandRequest, error) {
	body, err := c.next(src)
	if err != nil {
		return nil, err
	}
	req := &common.CommandRequest{}
	if err := c.serializer.DeserializeRequest(body, req); err != nil {
		return nil, store.NewProtocolError("cannot decode request", err)
	}
	return req, nil
}

// DecodeResponse decodes the first frame of src as a response (see DecodeRequest)
func (c Codec) DecodeResponse(src *bytes.Buffer) (*common.CommandResponse, error) {
	body, err := c.next(src)
	if err != nil {
		return nil, err
	}
	resp := &common.CommandResponse{}
	if err := c.serializer.DeserializeResponse(body, resp); err != nil {
		return nil, store.NewProtocolError("cannot decode response", err)
	}
	return resp, nil
}

func (c Codec) next(src *bytes.Buffer) ([]byte, error) {
	body, n, err := DecodeBody(src.Bytes())
	if errors.Is(err, ErrIncomplete) {
		return nil, err
	}
	// body may alias src, copy before dropping the frame from the buffer
	if err == nil {
		body = append([]byte(nil), body...)
	}
	src.Next(n)
	return body, err
}
