package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/sKV/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Name() string { return "json" }

func (j jsonSerializerImpl) SerializeRequest(dst []byte, req *common.CommandRequest) ([]byte, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

func (j jsonSerializerImpl) DeserializeRequest(b []byte, req *common.CommandRequest) error {
	return json.Unmarshal(b, req)
}

func (j jsonSerializerImpl) SerializeResponse(dst []byte, resp *common.CommandResponse) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return dst, err
	}
	return append(dst, b...), nil
}

func (j jsonSerializerImpl) DeserializeResponse(b []byte, resp *common.CommandResponse) error {
	*resp = common.CommandResponse{}
	return json.Unmarshal(b, resp)
}
