package splotval

import (
	"math"
	"net/url"
)

// Cast is a pure type check: it succeeds iff v already has kind t (or t is
// KindObject, which matches anything), and never converts representations.
func Cast(v Value, t Kind) (Value, error) {
	if t == KindObject || v.kind == t {
		return v, nil
	}
	if v.kind == KindNull {
		return v, nil
	}
	return Value{}, NewError(ErrInvalidValue, "cannot cast %s to %s", v.kind, t)
}

// Coerce runs the full weak-typed conversion table from spec §3. Null
// passes through unchanged regardless of target kind.
func Coerce(v Value, t Kind) (Value, error) {
	if v.kind == KindNull {
		return v, nil
	}
	if t == KindObject || v.kind == t {
		return v, nil
	}
	switch t {
	case KindInt:
		return coerceToInt(v)
	case KindReal:
		return coerceToReal(v)
	case KindBool:
		return coerceToBool(v)
	case KindStr:
		return coerceToStr(v)
	case KindUri:
		return coerceToUri(v)
	case KindArray:
		return coerceToArray(v)
	case KindBytes:
		if v.kind == KindStr {
			return Bytes([]byte(v.s)), nil
		}
		return Value{}, NewError(ErrInvalidValue, "cannot coerce %s to Bytes", v.kind)
	case KindMap:
		return Value{}, NewError(ErrInvalidValue, "cannot coerce %s to Map", v.kind)
	default:
		return Value{}, NewError(ErrInvalidValue, "unknown target kind %s", t)
	}
}

func coerceToInt(v Value) (Value, error) {
	switch v.kind {
	case KindInt:
		return v, nil
	case KindReal:
		if v.r > math.MaxInt64 || v.r < math.MinInt64 || math.IsNaN(v.r) {
			return Value{}, NewError(ErrInvalidValue, "real %v out of int64 range", v.r)
		}
		return Int(int64(v.r)), nil
	case KindBool:
		if v.b {
			return Int(1), nil
		}
		return Int(0), nil
	case KindStr:
		n, err := parseInt(v.s)
		if err != nil {
			return Value{}, NewError(ErrInvalidValue, "string %q is not an integer", v.s)
		}
		return Int(n), nil
	default:
		return Value{}, NewError(ErrInvalidValue, "cannot coerce %s to Int", v.kind)
	}
}

func coerceToReal(v Value) (Value, error) {
	switch v.kind {
	case KindReal:
		return v, nil
	case KindInt:
		return Real(float64(v.i)), nil
	case KindBool:
		if v.b {
			return Real(1), nil
		}
		return Real(0), nil
	case KindStr:
		f, err := parseFloat(v.s)
		if err != nil {
			return Value{}, NewError(ErrInvalidValue, "string %q is not a real", v.s)
		}
		return Real(f), nil
	default:
		return Value{}, NewError(ErrInvalidValue, "cannot coerce %s to Real", v.kind)
	}
}

func coerceToBool(v Value) (Value, error) {
	switch v.kind {
	case KindBool:
		return v, nil
	case KindInt:
		return Bool(float64(v.i) >= 0.5), nil
	case KindReal:
		return Bool(v.r >= 0.5), nil
	case KindStr:
		b, err := parseBool(v.s)
		if err != nil {
			return Value{}, NewError(ErrInvalidValue, "string %q is not a bool", v.s)
		}
		return Bool(b), nil
	default:
		return Value{}, NewError(ErrInvalidValue, "cannot coerce %s to Bool", v.kind)
	}
}

func coerceToStr(v Value) (Value, error) {
	switch v.kind {
	case KindStr:
		return v, nil
	case KindInt, KindReal, KindBool:
		return Str(v.CanonicalText()), nil
	case KindUri:
		return Str(v.CanonicalText()), nil
	default:
		return Value{}, NewError(ErrInvalidValue, "cannot coerce %s to Str", v.kind)
	}
}

func coerceToUri(v Value) (Value, error) {
	switch v.kind {
	case KindUri:
		return v, nil
	case KindStr:
		u, err := url.Parse(v.s)
		if err != nil {
			return Value{}, NewError(ErrInvalidValue, "string %q is not a URI: %v", v.s, err)
		}
		return Uri(u), nil
	default:
		return Value{}, NewError(ErrInvalidValue, "cannot coerce %s to Uri", v.kind)
	}
}

// coerceToArray implements "collection -> typed-array by per-element
// coercion" and "number -> single-element array".
func coerceToArray(v Value) (Value, error) {
	switch v.kind {
	case KindArray:
		return v, nil
	case KindMap:
		out := make([]Value, 0, len(v.m))
		for _, k := range sortedKeys(v.m) {
			out = append(out, v.m[k])
		}
		return Array(out), nil
	case KindInt, KindReal, KindBool, KindStr, KindUri, KindBytes:
		return Array([]Value{v}), nil
	default:
		return Value{}, NewError(ErrInvalidValue, "cannot coerce %s to Array", v.kind)
	}
}

// CoerceArray coerces every element of an array value to elemKind,
// implementing "collection -> typed-array by per-element coercion".
func CoerceArray(v Value, elemKind Kind) (Value, error) {
	arr, ok := v.AsArray()
	if !ok {
		coerced, err := coerceToArray(v)
		if err != nil {
			return Value{}, err
		}
		arr, _ = coerced.AsArray()
	}
	out := make([]Value, len(arr))
	for i, e := range arr {
		c, err := Coerce(e, elemKind)
		if err != nil {
			return Value{}, err
		}
		out[i] = c
	}
	return Array(out), nil
}
