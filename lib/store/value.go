package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// --------------------------------------------------------------------------
// Value
// --------------------------------------------------------------------------

// ValueKind identifies which variant of a Value is set
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindString
	KindBinary
	KindInteger
	KindFloat
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a tagged union of string, binary, integer, float and bool.
// The zero Value has no variant set and marks an absent value.
type Value struct {
	kind ValueKind
	str  string
	bin  []byte
	num  int64
	flt  float64
	b    bool
}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }
func BinaryValue(b []byte) Value { return Value{kind: KindBinary, bin: b} }
func IntValue(i int64) Value     { return Value{kind: KindInteger, num: i} }
func FloatValue(f float64) Value { return Value{kind: KindFloat, flt: f} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, b: b} }

// Kind returns the variant of the value
func (v Value) Kind() ValueKind { return v.kind }

// IsNone reports whether no variant is set
func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", NewConversionError(v, KindString)
	}
	return v.str, nil
}

func (v Value) AsBinary() ([]byte, error) {
	if v.kind != KindBinary {
		return nil, NewConversionError(v, KindBinary)
	}
	return v.bin, nil
}

func (v Value) AsInt() (int64, error) {
	if v.kind != KindInteger {
		return 0, NewConversionError(v, KindInteger)
	}
	return v.num, nil
}

func (v Value) AsFloat() (float64, error) {
	if v.kind != KindFloat {
		return 0, NewConversionError(v, KindFloat)
	}
	return v.flt, nil
}

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, NewConversionError(v, KindBool)
	}
	return v.b, nil
}

// Equal compares kind and payload. Float values compare by bit pattern so NaN equals itself.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBinary:
		return bytes.Equal(v.bin, o.bin)
	case KindInteger:
		return v.num == o.num
	case KindFloat:
		return math.Float64bits(v.flt) == math.Float64bits(o.flt)
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

// String renders the value for logs and the cli
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindBinary:
		return fmt.Sprintf("0x%x", v.bin)
	case KindInteger:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<none>"
	}
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

type jsonValue struct {
	String  *string  `json:"string,omitempty"`
	Binary  *string  `json:"binary,omitempty"`
	Integer *int64   `json:"integer,omitempty"`
	Float   *float64 `json:"float,omitempty"`
	Bool    *bool    `json:"bool,omitempty"`
}

// MarshalJSON encodes the value as an object with exactly one key, or null for none
func (v Value) MarshalJSON() ([]byte, error) {
	var j jsonValue
	switch v.kind {
	case KindNone:
		return []byte("null"), nil
	case KindString:
		j.String = &v.str
	case KindBinary:
		enc := base64.StdEncoding.EncodeToString(v.bin)
		j.Binary = &enc
	case KindInteger:
		j.Integer = &v.num
	case KindFloat:
		j.Float = &v.flt
	case KindBool:
		j.Bool = &v.b
	}
	return json.Marshal(j)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var j jsonValue
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	switch {
	case j.String != nil:
		*v = StringValue(*j.String)
	case j.Binary != nil:
		b, err := base64.StdEncoding.DecodeString(*j.Binary)
		if err != nil {
			return fmt.Errorf("invalid binary value: %w", err)
		}
		*v = BinaryValue(b)
	case j.Integer != nil:
		*v = IntValue(*j.Integer)
	case j.Float != nil:
		*v = FloatValue(*j.Float)
	case j.Bool != nil:
		*v = BoolValue(*j.Bool)
	default:
		*v = Value{}
	}
	return nil
}

// --------------------------------------------------------------------------
// Kvpair
// --------------------------------------------------------------------------

// Kvpair is a key together with its (possibly absent) value
type Kvpair struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

func NewKvpair(key string, value Value) Kvpair {
	return Kvpair{Key: key, Value: value}
}
