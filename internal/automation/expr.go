// Package automation implements the Pairing, Rule, and Timer state
// machines from spec §4.9, dispatching actions through Resource Links and
// evaluating transforms/conditions/schedules with either the RPN engine or
// a sandboxed script (spec §D.1).
package automation

import (
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/rakunlabs/splot/internal/rpn"
	"github.com/rakunlabs/splot/internal/splotval"
)

// scriptPrefix selects the goja-backed Expression kind; anything else
// compiles as an RPN program.
const scriptPrefix = "script:"

// EvalContext binds an expression's input variables, an optional operand
// stack seeded before the program runs (oldest value first, so the last
// entry ends up on top), and the clock moment RTC variables resolve
// against. Script expressions ignore Stack: JS has no operand stack, only
// the bound Vars.
type EvalContext struct {
	Vars  map[string]splotval.Value
	Stack []splotval.Value
	Now   time.Time
}

// Expression is the shared transform/condition/schedule contract: RPN and
// script programs both implement it, so Pairing/Rule/Timer don't care
// which kind they were configured with.
type Expression interface {
	// Eval returns the resulting value, or suppressed=true when the
	// program signals "do not propagate" (RPN STOP/empty stack, or a
	// script returning undefined/null).
	Eval(ctx EvalContext) (value splotval.Value, suppressed bool, err error)
}

// Compile builds an Expression from source text: a `script:`-prefixed
// body runs as sandboxed JavaScript, anything else compiles as RPN.
func Compile(src string) (Expression, error) {
	if body, ok := strings.CutPrefix(src, scriptPrefix); ok {
		return scriptExpr{src: body}, nil
	}
	expr, err := rpn.Compile(src)
	if err != nil {
		return nil, err
	}
	return rpnExpr{expr: expr}, nil
}

type rpnExpr struct{ expr *rpn.Expr }

func (e rpnExpr) Eval(ctx EvalContext) (splotval.Value, bool, error) {
	res, err := e.expr.EvalStack(ctx.Stack, rpn.Vars(ctx.Vars), rpn.RTCOptions{Now: ctx.Now})
	if err != nil {
		return splotval.Value{}, false, err
	}
	return res.Value, res.Suppress, nil
}

// scriptExpr implements spec §D.1's Script Action/Condition: a
// goja-sandboxed snippet with no HTTP/IO helpers, receiving its inputs as
// bound globals plus an `rtc` object mirroring the RPN engine's calendar
// variables.
type scriptExpr struct{ src string }

func (e scriptExpr) Eval(ctx EvalContext) (splotval.Value, bool, error) {
	vm := goja.New()
	for k, v := range ctx.Vars {
		if err := vm.Set(k, toJS(v)); err != nil {
			return splotval.Value{}, false, splotval.NewError(splotval.ErrRPNSyntaxError, "script: bind %q: %v", k, err)
		}
	}
	if err := vm.Set("rtc", rtcObject(ctx.Now)); err != nil {
		return splotval.Value{}, false, splotval.NewError(splotval.ErrRPNSyntaxError, "script: bind rtc: %v", err)
	}

	result, err := vm.RunString(e.src)
	if err != nil {
		return splotval.Value{}, false, splotval.NewError(splotval.ErrRPNSyntaxError, "script: %v", err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return splotval.Value{}, true, nil
	}
	v, err := fromJS(result.Export())
	if err != nil {
		return splotval.Value{}, false, err
	}
	return v, false, nil
}

// rtcObject mirrors the RPN engine's rtc.* calendar variables as a plain
// JS object, using the Monday-start/local-time defaults (a script can
// compute its own week-start/UTC variant directly, unlike RPN's rtc.wss/
// rtc.utc flags).
func rtcObject(now time.Time) map[string]any {
	t := now.Local()
	return map[string]any{
		"tod": float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600,
		"dow": (int(t.Weekday()) + 6) % 7, // Monday = 0
		"dom": t.Day() - 1,
		"moy": int(t.Month()) - 1,
		"y":   t.Year(),
	}
}

func toJS(v splotval.Value) any {
	switch v.Kind() {
	case splotval.KindInt:
		i, _ := v.AsInt()
		return i
	case splotval.KindReal:
		r, _ := v.AsReal()
		return r
	case splotval.KindBool:
		b, _ := v.AsBool()
		return b
	case splotval.KindStr:
		s, _ := v.AsStr()
		return s
	case splotval.KindUri:
		u, _ := v.AsUri()
		if u == nil {
			return ""
		}
		return u.String()
	case splotval.KindBytes:
		b, _ := v.AsBytes()
		return b
	case splotval.KindArray:
		arr, _ := v.AsArray()
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = toJS(e)
		}
		return out
	case splotval.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = toJS(e)
		}
		return out
	default:
		return nil
	}
}

func fromJS(v any) (splotval.Value, error) {
	switch t := v.(type) {
	case nil:
		return splotval.Null(), nil
	case bool:
		return splotval.Bool(t), nil
	case int64:
		return splotval.Int(t), nil
	case int:
		return splotval.Int(int64(t)), nil
	case float64:
		return splotval.Real(t), nil
	case string:
		return splotval.Str(t), nil
	case []byte:
		return splotval.Bytes(t), nil
	case []any:
		arr := make([]splotval.Value, len(t))
		for i, e := range t {
			v, err := fromJS(e)
			if err != nil {
				return splotval.Value{}, err
			}
			arr[i] = v
		}
		return splotval.Array(arr), nil
	case map[string]any:
		m := make(map[string]splotval.Value, len(t))
		for k, e := range t {
			v, err := fromJS(e)
			if err != nil {
				return splotval.Value{}, err
			}
			m[k] = v
		}
		return splotval.Map(m), nil
	default:
		return splotval.Value{}, splotval.NewError(splotval.ErrInvalidValue, "script returned unsupported type %T", v)
	}
}
