package message

import (
	"encoding/json"
	"fmt"
)

type wireValue struct {
	Kind string  `json:"kind"`
	S    string  `json:"s,omitempty"`
	I    int64   `json:"i,omitempty"`
	F    float64 `json:"f,omitempty"`
	B    bool    `json:"b,omitempty"`
}

func kindName(k ValueKind) string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindSymbol:
		return "symbol"
	default:
		return "null"
	}
}

// MarshalJSON encodes a Value as a small tagged object, used by the
// disk and SQL stores to persist headers.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: kindName(v.kind)}
	switch v.kind {
	case KindString:
		w.S = v.s
	case KindSymbol:
		w.S = v.s
	case KindInt:
		w.I = v.i
	case KindFloat:
		w.F = v.f
	case KindBool:
		w.B = v.b
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "", "null":
		*v = Null()
	case "string":
		*v = String(w.S)
	case "symbol":
		*v = Symbol(w.S)
	case "int":
		*v = Int(w.I)
	case "float":
		*v = Float(w.F)
	case "bool":
		*v = Bool(w.B)
	default:
		return fmt.Errorf("message: unknown header value kind %q", w.Kind)
	}
	return nil
}

// EncodeHeaders serializes a Headers map for durable storage.
func EncodeHeaders(h Headers) ([]byte, error) {
	return json.Marshal(h)
}

// DecodeHeaders deserializes a Headers map previously produced by
// EncodeHeaders.
func DecodeHeaders(data []byte) (Headers, error) {
	if len(data) == 0 {
		return Headers{}, nil
	}
	var h Headers
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return h, nil
}
