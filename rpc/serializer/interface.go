package serializer

import (
	"fmt"

	"github.com/ValentinKolb/sKV/rpc/common"
)

// IRPCSerializer converts commands and responses to and from frame bodies
type IRPCSerializer interface {
	// Name returns the identifier used in configuration (e.g. "proto")
	Name() string
	// SerializeRequest appends the encoding of req to dst and returns the extended buffer
	SerializeRequest(dst []byte, req *common.CommandRequest) ([]byte, error)
	// DeserializeRequest decodes b into req
	DeserializeRequest(b []byte, req *common.CommandRequest) error
	// SerializeResponse appends the encoding of resp to dst and returns the extended buffer
	SerializeResponse(dst []byte, resp *common.CommandResponse) ([]byte, error)
	// DeserializeResponse decodes b into resp
	DeserializeResponse(b []byte, resp *common.CommandResponse) error
}

// New returns the serializer registered under name. An empty name selects proto.
func New(name string) (IRPCSerializer, error) {
	switch name {
	case "", "proto":
		return NewProtoSerializer(), nil
	case "json":
		return NewJSONSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q (must be one of proto, json)", name)
	}
}
