package serializer

import (
	"fmt"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/rpc/common"
	"google.golang.org/protobuf/encoding/protowire"
)

// NewProtoSerializer creates a serializer producing the protobuf wire format of
//
//	message CommandRequest {
//	  oneof request_data {
//	    Get get = 1; GetAll getall = 2; MultiGet mget = 3; Set set = 4; MultiSet mset = 5;
//	    Delete del = 6; MultiDelete mdel = 7; Exists exists = 8; MultiExists mexists = 9;
//	    Subscribe subscribe = 10; Unsubscribe unsubscribe = 11; Publish publish = 12;
//	  }
//	}
//	message CommandResponse { uint32 status = 1; string message = 2; repeated Value values = 3; repeated Kvpair pairs = 4; }
//
// Commands use field 1 for the table (or topic) and field 2 for the key(s), pair(s), id or values.
func NewProtoSerializer() IRPCSerializer {
	return &protoSerializerImpl{}
}

type protoSerializerImpl struct{}

var requestFields = map[common.RequestKind]protowire.Number{
	common.ReqKGet:         1,
	common.ReqKGetAll:      2,
	common.ReqKMultiGet:    3,
	common.ReqKSet:         4,
	common.ReqKMultiSet:    5,
	common.ReqKDelete:      6,
	common.ReqKMultiDelete: 7,
	common.ReqKExists:      8,
	common.ReqKMultiExists: 9,
	common.ReqKSubscribe:   10,
	common.ReqKUnsubscribe: 11,
	common.ReqKPublish:     12,
}

var requestKinds = func() map[protowire.Number]common.RequestKind {
	m := make(map[protowire.Number]common.RequestKind, len(requestFields))
	for k, n := range requestFields {
		m[n] = k
	}
	return m
}()

const (
	respFieldStatus  protowire.Number = 1
	respFieldMessage protowire.Number = 2
	respFieldValues  protowire.Number = 3
	respFieldPairs   protowire.Number = 4
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (p protoSerializerImpl) Name() string { return "proto" }

func (p protoSerializerImpl) SerializeRequest(dst []byte, req *common.CommandRequest) ([]byte, error) {
	if req.Data == nil {
		return dst, nil
	}
	num, ok := requestFields[req.Data.Kind()]
	if !ok {
		return dst, fmt.Errorf("cannot serialize command of kind %s", req.Data.Kind())
	}
	body, err := appendCommand(nil, req.Data)
	if err != nil {
		return dst, err
	}
	dst = protowire.AppendTag(dst, num, protowire.BytesType)
	return protowire.AppendBytes(dst, body), nil
}

func (p protoSerializerImpl) DeserializeRequest(b []byte, req *common.CommandRequest) error {
	req.Data = nil
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		kind, ok := requestKinds[num]
		if !ok || typ != protowire.BytesType {
			return 0, nil
		}
		body, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		data, err := decodeCommand(kind, body)
		if err != nil {
			return 0, fmt.Errorf("invalid %s command: %w", kind, err)
		}
		req.Data = data
		return n, nil
	})
}

func (p protoSerializerImpl) SerializeResponse(dst []byte, resp *common.CommandResponse) ([]byte, error) {
	if resp.Status != 0 {
		dst = protowire.AppendTag(dst, respFieldStatus, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(resp.Status))
	}
	dst = appendString(dst, respFieldMessage, resp.Message)
	for _, v := range resp.Values {
		dst = appendMessage(dst, respFieldValues, store.AppendValue(nil, v))
	}
	for _, pair := range resp.Pairs {
		dst = appendMessage(dst, respFieldPairs, store.AppendKvpair(nil, pair))
	}
	return dst, nil
}

func (p protoSerializerImpl) DeserializeResponse(b []byte, resp *common.CommandResponse) error {
	*resp = common.CommandResponse{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == respFieldStatus && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			resp.Status = uint32(x)
			return n, nil
		case num == respFieldMessage && typ == protowire.BytesType:
			return consumeString(b, &resp.Message)
		case num == respFieldValues && typ == protowire.BytesType:
			return consumeValue(b, &resp.Values)
		case num == respFieldPairs && typ == protowire.BytesType:
			return consumePair(b, &resp.Pairs)
		}
		return 0, nil
	})
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

const (
	cmdFieldTarget protowire.Number = 1 // table or topic
	cmdFieldArg    protowire.Number = 2 // key(s), pair(s), id or values
)

func appendCommand(b []byte, data common.RequestData) ([]byte, error) {
	switch d := data.(type) {
	case *common.Get:
		b = appendString(b, cmdFieldTarget, d.Table)
		b = appendString(b, cmdFieldArg, d.Key)
	case *common.Delete:
		b = appendString(b, cmdFieldTarget, d.Table)
		b = appendString(b, cmdFieldArg, d.Key)
	case *common.Exists:
		b = appendString(b, cmdFieldTarget, d.Table)
		b = appendString(b, cmdFieldArg, d.Key)
	case *common.GetAll:
		b = appendString(b, cmdFieldTarget, d.Table)
	case *common.MultiGet:
		b = appendString(b, cmdFieldTarget, d.Table)
		b = appendRepeatedString(b, cmdFieldArg, d.Keys)
	case *common.MultiDelete:
		b = appendString(b, cmdFieldTarget, d.Table)
		b = appendRepeatedString(b, cmdFieldArg, d.Keys)
	case *common.MultiExists:
		b = appendString(b, cmdFieldTarget, d.Table)
		b = appendRepeatedString(b, cmdFieldArg, d.Keys)
	case *common.Set:
		b = appendString(b, cmdFieldTarget, d.Table)
		b = appendMessage(b, cmdFieldArg, store.AppendKvpair(nil, d.Pair))
	case *common.MultiSet:
		b = appendString(b, cmdFieldTarget, d.Table)
		for _, pair := range d.Pairs {
			b = appendMessage(b, cmdFieldArg, store.AppendKvpair(nil, pair))
		}
	case *common.Subscribe:
		b = appendString(b, cmdFieldTarget, d.Topic)
	case *common.Unsubscribe:
		b = appendString(b, cmdFieldTarget, d.Topic)
		if d.ID != 0 {
			b = protowire.AppendTag(b, cmdFieldArg, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(d.ID))
		}
	case *common.Publish:
		b = appendString(b, cmdFieldTarget, d.Topic)
		for _, v := range d.Values {
			b = appendMessage(b, cmdFieldArg, store.AppendValue(nil, v))
		}
	default:
		return nil, fmt.Errorf("unsupported command type %T", data)
	}
	return b, nil
}

func decodeCommand(kind common.RequestKind, b []byte) (common.RequestData, error) {
	switch kind {
	case common.ReqKGet:
		d := &common.Get{}
		return d, decodeTargetAndKey(b, &d.Table, &d.Key)
	case common.ReqKDelete:
		d := &common.Delete{}
		return d, decodeTargetAndKey(b, &d.Table, &d.Key)
	case common.ReqKExists:
		d := &common.Exists{}
		return d, decodeTargetAndKey(b, &d.Table, &d.Key)
	case common.ReqKGetAll:
		d := &common.GetAll{}
		return d, decodeTargetAndKey(b, &d.Table, nil)
	case common.ReqKSubscribe:
		d := &common.Subscribe{}
		return d, decodeTargetAndKey(b, &d.Topic, nil)
	case common.ReqKMultiGet:
		d := &common.MultiGet{}
		return d, decodeTargetAndKeys(b, &d.Table, &d.Keys)
	case common.ReqKMultiDelete:
		d := &common.MultiDelete{}
		return d, decodeTargetAndKeys(b, &d.Table, &d.Keys)
	case common.ReqKMultiExists:
		d := &common.MultiExists{}
		return d, decodeTargetAndKeys(b, &d.Table, &d.Keys)
	case common.ReqKSet:
		d := &common.Set{}
		var pairs []store.Kvpair
		err := decodeTarget(b, &d.Table, func(typ protowire.Type, b []byte) (int, error) {
			if typ != protowire.BytesType {
				return 0, nil
			}
			return consumePair(b, &pairs)
		})
		if len(pairs) > 0 {
			d.Pair = pairs[len(pairs)-1]
		}
		return d, err
	case common.ReqKMultiSet:
		d := &common.MultiSet{}
		return d, decodeTarget(b, &d.Table, func(typ protowire.Type, b []byte) (int, error) {
			if typ != protowire.BytesType {
				return 0, nil
			}
			return consumePair(b, &d.Pairs)
		})
	case common.ReqKUnsubscribe:
		d := &common.Unsubscribe{}
		return d, decodeTarget(b, &d.Topic, func(typ protowire.Type, b []byte) (int, error) {
			if typ != protowire.VarintType {
				return 0, nil
			}
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			d.ID = uint32(x)
			return n, nil
		})
	case common.ReqKPublish:
		d := &common.Publish{}
		return d, decodeTarget(b, &d.Topic, func(typ protowire.Type, b []byte) (int, error) {
			if typ != protowire.BytesType {
				return 0, nil
			}
			return consumeValue(b, &d.Values)
		})
	default:
		return nil, fmt.Errorf("unknown command kind %s", kind)
	}
}

// decodeTarget decodes field 1 into target and hands field 2 to arg
func decodeTarget(b []byte, target *string, arg func(typ protowire.Type, b []byte) (int, error)) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == cmdFieldTarget && typ == protowire.BytesType:
			return consumeString(b, target)
		case num == cmdFieldArg && arg != nil:
			return arg(typ, b)
		}
		return 0, nil
	})
}

func decodeTargetAndKey(b []byte, target, key *string) error {
	if key == nil {
		return decodeTarget(b, target, nil)
	}
	return decodeTarget(b, target, func(typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return 0, nil
		}
		return consumeString(b, key)
	})
}

func decodeTargetAndKeys(b []byte, target *string, keys *[]string) error {
	return decodeTarget(b, target, func(typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return 0, nil
		}
		var key string
		n, err := consumeString(b, &key)
		if err == nil {
			*keys = append(*keys, key)
		}
		return n, err
	})
}

// --------------------------------------------------------------------------
// Wire helpers
// --------------------------------------------------------------------------

// walkFields calls fn for every field in b. fn returns the number of bytes of the
// field value it consumed, or 0 to have the field skipped as unknown.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

// appendString appends a singular string field, omitting the default value
func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendRepeatedString(b []byte, num protowire.Number, ss []string) []byte {
	for _, s := range ss {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func consumeString(b []byte, dst *string) (int, error) {
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	*dst = s
	return n, nil
}

func consumeValue(b []byte, dst *[]store.Value) (int, error) {
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	v, err := store.ConsumeValue(raw)
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, v)
	return n, nil
}

func consumePair(b []byte, dst *[]store.Kvpair) (int, error) {
	raw, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	p, err := store.ConsumeKvpair(raw)
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, p)
	return n, nil
}
