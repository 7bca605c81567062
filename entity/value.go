// Package entity defines the storage engine's schema-less data model: a
// primary key plus a field map of tagged values, and the codec that
// serializes it to and from the opaque byte blobs the key-value store holds.
package entity

import "fmt"

// Kind tags which variant a Value holds. Values are a closed sum — exactly
// the five variants below, matching the wire format in codec.go.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindVector:
		return "vector"
	default:
		return "unknown"
	}
}

// Value is a tagged field value: a string, a signed 64-bit integer, a
// double, a boolean, or an ordered float vector. Only one of the typed
// fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Str  string
	Int  int64
	Flt  float64
	Bool bool
	Vec  []float32
}

// String constructs a string-kind Value.
func String(v string) Value { return Value{Kind: KindString, Str: v} }

// Int constructs an int-kind Value.
func Int(v int64) Value { return Value{Kind: KindInt, Int: v} }

// Float constructs a float-kind Value.
func Float(v float64) Value { return Value{Kind: KindFloat, Flt: v} }

// Bool constructs a bool-kind Value.
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// Vector constructs a vector-kind Value. The slice is copied so the caller
// may reuse or mutate the original.
func Vector(v []float32) Value {
	cp := make([]float32, len(v))
	copy(cp, v)
	return Value{Kind: KindVector, Vec: cp}
}

// Equal reports whether two values carry the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Flt == other.Flt
	case KindBool:
		return v.Bool == other.Bool
	case KindVector:
		if len(v.Vec) != len(other.Vec) {
			return false
		}
		for i := range v.Vec {
			if v.Vec[i] != other.Vec[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// AsString renders the value's payload as a string, for index keys and
// diagnostics. Vector values render as their length since they are never
// legal secondary-index payloads.
func (v Value) AsString() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Flt)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindVector:
		return fmt.Sprintf("<vector:%d>", len(v.Vec))
	default:
		return ""
	}
}
