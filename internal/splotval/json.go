package splotval

import "net/url"

// JSON converts a Value into a plain any tree (bool/float64/int64/string/
// []byte/[]any/map[string]any/nil) suitable for encoding/json or a goja
// VM binding. The host-provided persistent store and the demo HTTP
// transport both round-trip property values opaquely through this shape.
func (v Value) JSON() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindReal:
		return v.r
	case KindBool:
		return v.b
	case KindStr:
		return v.s
	case KindUri:
		if v.u == nil {
			return ""
		}
		return v.u.String()
	case KindBytes:
		return append([]byte(nil), v.by...)
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.JSON()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.JSON()
		}
		return out
	default:
		return nil
	}
}

// ValueFromJSON is JSON's inverse: it rebuilds a Value from the plain any
// tree encoding/json produces when unmarshaling into interface{}. String
// values stay KindStr; callers that need a KindUri value must coerce
// explicitly via Coerce, since JSON carries no URI tag.
func ValueFromJSON(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return Str(t), nil
	case []byte:
		return Bytes(t), nil
	case int64:
		return Int(t), nil
	case int:
		return Int(int64(t)), nil
	case float64:
		return Real(t), nil
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			ev, err := ValueFromJSON(e)
			if err != nil {
				return Value{}, err
			}
			arr[i] = ev
		}
		return Array(arr), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := ValueFromJSON(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = ev
		}
		return Map(m), nil
	default:
		return Value{}, NewError(ErrInvalidValue, "unsupported JSON type %T", v)
	}
}

// ParseURIString is a small helper so callers decoding a JSON string into
// a URI-typed property don't need to import net/url themselves.
func ParseURIString(s string) (Value, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Value{}, NewError(ErrInvalidValue, "parse uri %q: %v", s, err)
	}
	return Uri(u), nil
}
