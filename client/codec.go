package client

import "encoding/json"

// Codec marshals a client-supplied body value to the opaque []byte
// the manager stores and back. The manager never inspects bodies;
// serialization is left entirely to the client façade.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if bp, ok := v.(*[]byte); ok {
		*bp = data
		return nil
	}
	return json.Unmarshal(data, v)
}

// RawCodec passes bodies through unmodified; v must be []byte.
type RawCodec struct{}

func (RawCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, errUnsupportedBodyType
	}
	return b, nil
}

func (RawCodec) Unmarshal(data []byte, v any) error {
	bp, ok := v.(*[]byte)
	if !ok {
		return errUnsupportedBodyType
	}
	*bp = data
	return nil
}

var errUnsupportedBodyType = errorString("client: RawCodec requires a []byte body")

type errorString string

func (e errorString) Error() string { return string(e) }
