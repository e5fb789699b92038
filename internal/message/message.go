// Package message defines the wire-level record the broker stores and
// passes between client and manager: headers, the scalar value union
// headers are restricted to, and the reserved headers the manager fills
// in on every put/publish.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery is the redelivery policy a message was put with.
type Delivery string

const (
	DeliveryBestEffort Delivery = "best_effort"
	DeliveryRepeated   Delivery = "repeated"
	DeliveryOnce       Delivery = "once"
)

func (d Delivery) Valid() bool {
	switch d {
	case DeliveryBestEffort, DeliveryRepeated, DeliveryOnce:
		return true
	default:
		return false
	}
}

// Reserved header names. id and created are present on every message
// the manager accepts; queue messages also carry delivery,
// max_deliveries and priority (topics omit them, see
// internal/manager). expires_at is present only when the caller
// supplied expires, and redelivery only after an abort requeued the
// message.
const (
	HeaderID            = "id"
	HeaderCreated       = "created"
	HeaderDelivery      = "delivery"
	HeaderMaxDeliveries = "max_deliveries"
	HeaderPriority      = "priority"
	HeaderExpiresAt     = "expires_at"
	HeaderRedelivery    = "redelivery"
)

const (
	DefaultMaxDeliveries = 5
	DefaultPriority      = 0
)

// DLQ is the reserved destination name that collects undeliverable
// messages from every queue.
const DLQ = "$dlq"

// ValueKind tags the scalar type carried by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindSymbol
)

// Value is the tagged scalar union header values are restricted to:
// string, integer, floating, boolean, symbolic, or null. It is
// immutable once constructed.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
}

func Null() Value                 { return Value{kind: KindNull} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Symbol(name string) Value    { return Value{kind: KindSymbol, s: name} }

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsSymbol() (string, bool) {
	if v.kind != KindSymbol {
		return "", false
	}
	return v.s, true
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) IsNull() bool { return v.kind == KindNull }

// Equal compares two values by kind and underlying scalar.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString, KindSymbol:
		return v.s == other.s
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "<null>"
	case KindString:
		return v.s
	case KindSymbol:
		return ":" + v.s
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return ""
	}
}

// Headers is a symbolic-name to scalar-value mapping. Values are
// immutable once a Headers map is accepted by the manager; callers
// must Clone before mutating a map they received back from the broker.
type Headers map[string]Value

// Clone returns a shallow copy safe to mutate; the Values themselves
// are already immutable scalars so a shallow copy is sufficient.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Message is the record a queue or topic stores: a unique id, a header
// map, and an opaque body the manager never inspects.
type Message struct {
	ID      string
	Headers Headers
	Body    []byte
}

// NewID returns a fresh 128-bit, string-printable message id.
func NewID() string {
	return uuid.NewString()
}

// NowUnix is the "now" primitive exposed to a client-side predicate
// selector.
func NowUnix() int64 {
	return time.Now().Unix()
}
