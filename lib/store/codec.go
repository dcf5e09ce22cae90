package store

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// --------------------------------------------------------------------------
// Protobuf wire encoding for Value and Kvpair
//
//	message Value  { oneof value { string string = 1; bytes binary = 2; int64 integer = 3; double float = 4; bool bool = 5; } }
//	message Kvpair { string key = 1; Value value = 2; }
// --------------------------------------------------------------------------

const (
	valueFieldString  protowire.Number = 1
	valueFieldBinary  protowire.Number = 2
	valueFieldInteger protowire.Number = 3
	valueFieldFloat   protowire.Number = 4
	valueFieldBool    protowire.Number = 5

	pairFieldKey   protowire.Number = 1
	pairFieldValue protowire.Number = 2
)

// AppendValue appends the wire encoding of v to b. A none value encodes to zero bytes.
func AppendValue(b []byte, v Value) []byte {
	switch v.kind {
	case KindString:
		b = protowire.AppendTag(b, valueFieldString, protowire.BytesType)
		b = protowire.AppendString(b, v.str)
	case KindBinary:
		b = protowire.AppendTag(b, valueFieldBinary, protowire.BytesType)
		b = protowire.AppendBytes(b, v.bin)
	case KindInteger:
		b = protowire.AppendTag(b, valueFieldInteger, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.num))
	case KindFloat:
		b = protowire.AppendTag(b, valueFieldFloat, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v.flt))
	case KindBool:
		b = protowire.AppendTag(b, valueFieldBool, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(v.b))
	}
	return b
}

// ConsumeValue decodes a complete Value message. Unknown fields are skipped,
// the last oneof field wins.
func ConsumeValue(b []byte) (Value, error) {
	var v Value
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Value{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == valueFieldString && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(b)
			if m < 0 {
				return Value{}, protowire.ParseError(m)
			}
			v, n = StringValue(s), m
		case num == valueFieldBinary && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Value{}, protowire.ParseError(m)
			}
			v, n = BinaryValue(append([]byte{}, raw...)), m
		case num == valueFieldInteger && typ == protowire.VarintType:
			x, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Value{}, protowire.ParseError(m)
			}
			v, n = IntValue(int64(x)), m
		case num == valueFieldFloat && typ == protowire.Fixed64Type:
			x, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return Value{}, protowire.ParseError(m)
			}
			v, n = FloatValue(math.Float64frombits(x)), m
		case num == valueFieldBool && typ == protowire.VarintType:
			x, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Value{}, protowire.ParseError(m)
			}
			v, n = BoolValue(protowire.DecodeBool(x)), m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Value{}, protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return v, nil
}

// AppendKvpair appends the wire encoding of p to b
func AppendKvpair(b []byte, p Kvpair) []byte {
	if p.Key != "" {
		b = protowire.AppendTag(b, pairFieldKey, protowire.BytesType)
		b = protowire.AppendString(b, p.Key)
	}
	if !p.Value.IsNone() {
		b = protowire.AppendTag(b, pairFieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendValue(nil, p.Value))
	}
	return b
}

// ConsumeKvpair decodes a complete Kvpair message
func ConsumeKvpair(b []byte) (Kvpair, error) {
	var p Kvpair
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Kvpair{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == pairFieldKey && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(b)
			if m < 0 {
				return Kvpair{}, protowire.ParseError(m)
			}
			p.Key, n = s, m
		case num == pairFieldValue && typ == protowire.BytesType:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Kvpair{}, protowire.ParseError(m)
			}
			v, err := ConsumeValue(raw)
			if err != nil {
				return Kvpair{}, fmt.Errorf("kvpair value: %w", err)
			}
			p.Value, n = v, m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Kvpair{}, protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return p, nil
}
