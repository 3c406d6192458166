package splotval

import (
	"net/url"
	"sort"
	"strconv"
)

// Kind tags the inhabitant of a Value. The universe is closed: nothing
// outside this list may appear in a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindReal
	KindBool
	KindStr
	KindUri
	KindBytes
	KindArray
	KindMap
	// KindObject is the base "Object"-typed key used by §4.1's
	// asymmetric-safe key equality: a key typed Object matches any
	// concretely-typed key of the same name.
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInt:
		return "Int"
	case KindReal:
		return "Real"
	case KindBool:
		return "Bool"
	case KindStr:
		return "Str"
	case KindUri:
		return "Uri"
	case KindBytes:
		return "Bytes"
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	case KindObject:
		return "Object"
	default:
		return "Unknown"
	}
}

// Value is the closed sum type carrying every property, parameter, and
// expression stack datum in the runtime.
type Value struct {
	kind Kind
	i    int64
	r    float64
	b    bool
	s    string
	u    *url.URL
	by   []byte
	arr  []Value
	m    map[string]Value
}

func Null() Value               { return Value{kind: KindNull} }
func Int(i int64) Value         { return Value{kind: KindInt, i: i} }
func Real(r float64) Value      { return Value{kind: KindReal, r: r} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Str(s string) Value        { return Value{kind: KindStr, s: s} }
func Uri(u *url.URL) Value      { return Value{kind: KindUri, u: u} }
func Bytes(b []byte) Value      { return Value{kind: KindBytes, by: append([]byte(nil), b...)} }
func Array(vs []Value) Value    { return Value{kind: KindArray, arr: append([]Value(nil), vs...)} }
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }

func (v Value) AsInt() (int64, bool)      { return v.i, v.kind == KindInt }
func (v Value) AsReal() (float64, bool)   { return v.r, v.kind == KindReal }
func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsStr() (string, bool)     { return v.s, v.kind == KindStr }
func (v Value) AsUri() (*url.URL, bool)   { return v.u, v.kind == KindUri }
func (v Value) AsBytes() ([]byte, bool)   { return v.by, v.kind == KindBytes }
func (v Value) AsArray() ([]Value, bool)  { return v.arr, v.kind == KindArray }
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Truthy implements the boolean-coercion rule shared by the RPN engine and
// modifier evaluation: numbers are truthy at >= 0.5, booleans by value,
// everything else by non-nullness.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return float64(v.i) >= 0.5
	case KindReal:
		return v.r >= 0.5
	case KindNull:
		return false
	default:
		return true
	}
}

// Equal implements value equality used by == and the scene/pairing
// round-trip invariants. Numeric kinds compare by numeric value so that
// Int(1) == Real(1.0).
func (v Value) Equal(o Value) bool {
	if v.kind == KindInt || v.kind == KindReal {
		if o.kind == KindInt || o.kind == KindReal {
			return v.numeric() == o.numeric()
		}
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindStr:
		return v.s == o.s
	case KindUri:
		return (v.u == nil && o.u == nil) || (v.u != nil && o.u != nil && v.u.String() == o.u.String())
	case KindBytes:
		if len(v.by) != len(o.by) {
			return false
		}
		for i := range v.by {
			if v.by[i] != o.by[i] {
				return false
			}
		}
		return true
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, mv := range v.m {
			ov, ok := o.m[k]
			if !ok || !mv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) numeric() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.r
}

// CanonicalText renders a value in the canonical string form used by
// number->string coercion and RPN's :foo string-literal round trip.
func (v Value) CanonicalText() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.r, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindStr:
		return v.s
	case KindUri:
		if v.u == nil {
			return ""
		}
		return v.u.String()
	case KindNull:
		return ""
	default:
		return ""
	}
}

// sortedKeys returns a map's keys sorted for deterministic iteration where
// that matters (e.g. building a canonical array from a map).
func sortedKeys(m map[string]Value) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
