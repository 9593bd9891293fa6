// Package change defines the wire-level content of the operation log: the
// leaf value language, container identifiers, op content variants, and the
// Change record that batches ops from one peer.
package change

import "math"

// ValueKind discriminates the LoroValue tagged union.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindI64
	KindF64
	KindString
	KindBinary
	KindValueList
	KindValueMap
	KindContainer
)

// Value is the leaf value language shared by every container: Null, Bool,
// I64, F64, String, Binary, an ordered List of values, a string-keyed Map,
// or a reference to a nested Container.
type Value struct {
	Kind      ValueKind
	Bool      bool
	I64       int64
	F64       float64
	Str       string
	Bin       []byte
	List      []Value
	Map       map[string]Value
	Container ContainerID
}

// NullValue returns the canonical Null value.
func NullValue() Value { return Value{Kind: KindNull} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// I64Value wraps an int64.
func I64Value(v int64) Value { return Value{Kind: KindI64, I64: v} }

// F64Value wraps a float64, canonicalizing NaN to 0.0 so CRDT equality is
// well defined regardless of how a NaN was produced.
func F64Value(v float64) Value {
	if math.IsNaN(v) {
		v = 0.0
	}
	return Value{Kind: KindF64, F64: v}
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// BinaryValue wraps a byte slice.
func BinaryValue(b []byte) Value { return Value{Kind: KindBinary, Bin: b} }

// ListValue wraps an ordered sequence of values.
func ListValue(vs []Value) Value { return Value{Kind: KindValueList, List: vs} }

// MapValue wraps a string-keyed map of values.
func MapValue(m map[string]Value) Value { return Value{Kind: KindValueMap, Map: m} }

// ContainerValue wraps a reference to a nested container.
func ContainerValue(id ContainerID) Value { return Value{Kind: KindContainer, Container: id} }

// IsNull reports whether v is the Null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal reports deep value-equality, matching the normalization rules used
// for CRDT convergence (NaN already canonicalized to 0.0 at construction).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindI64:
		return v.I64 == o.I64
	case KindF64:
		return v.F64 == o.F64
	case KindString:
		return v.Str == o.Str
	case KindBinary:
		if len(v.Bin) != len(o.Bin) {
			return false
		}
		for i := range v.Bin {
			if v.Bin[i] != o.Bin[i] {
				return false
			}
		}
		return true
	case KindValueList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindValueMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, mv := range v.Map {
			ov, ok := o.Map[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	case KindContainer:
		return v.Container == o.Container
	}
	return false
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindValueList:
		out := make([]Value, len(v.List))
		for i, e := range v.List {
			out[i] = e.Clone()
		}
		return Value{Kind: KindValueList, List: out}
	case KindValueMap:
		out := make(map[string]Value, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.Clone()
		}
		return Value{Kind: KindValueMap, Map: out}
	case KindBinary:
		out := make([]byte, len(v.Bin))
		copy(out, v.Bin)
		return Value{Kind: KindBinary, Bin: out}
	default:
		return v
	}
}
