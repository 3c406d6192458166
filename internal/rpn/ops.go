package rpn

import (
	"math"

	"github.com/rakunlabs/splot/internal/splotval"
)

// opFn executes one operator against the VM stack.
type opFn func(vm *VM) error

type opNode struct {
	name string
	fn   opFn
}

func (n *opNode) exec(vm *VM) error { return n.fn(vm) }

var operators map[string]opFn

func init() {
	operators = map[string]opFn{
		"+":    binaryNumeric(func(a, b float64) float64 { return a + b }),
		"-":    binaryNumeric(func(a, b float64) float64 { return a - b }),
		"*":    binaryNumeric(func(a, b float64) float64 { return a * b }),
		"/":    binaryNumericErr(opDiv),
		"%":    binaryNumericErr(opMod),
		"NEG":  unaryNumeric(func(a float64) float64 { return -a }),
		"^":    binaryNumeric(math.Pow),
		"LOG":  unaryNumeric(math.Log),
		"ROUND": unaryNumeric(math.Round),
		"FLOOR": unaryNumeric(math.Floor),
		"CEIL":  unaryNumeric(math.Ceil),
		"MIN":  binaryNumeric(math.Min),
		"MAX":  binaryNumeric(math.Max),
		"CLAMP": opClamp,
		"RANGE": opRange,

		"==": opEq,
		"!=": opNeq,
		">":  comparisonOp(func(a, b float64) bool { return a > b }),
		">=": comparisonOp(func(a, b float64) bool { return a >= b }),
		"<":  comparisonOp(func(a, b float64) bool { return a < b }),
		"<=": comparisonOp(func(a, b float64) bool { return a <= b }),

		"&&":  boolBinary(func(a, b bool) bool { return a && b }),
		"||":  boolBinary(func(a, b bool) bool { return a || b }),
		"XOR": boolBinary(func(a, b bool) bool { return a != b }),
		"!":   opNot,

		"DUP":  opDup,
		"SWAP": opSwap,
		"DROP": opDrop,
		"POP":  opPop,

		"GET": opGet,
		"PUT": opPut,

		"SIN":  unaryNumeric(func(t float64) float64 { return math.Sin(t * 2 * math.Pi) }),
		"COS":  unaryNumeric(func(t float64) float64 { return math.Cos(t * 2 * math.Pi) }),
		"ASIN": unaryNumeric(func(v float64) float64 { return math.Asin(v) / (2 * math.Pi) }),
		"ACOS": unaryNumeric(func(v float64) float64 { return math.Acos(v) / (2 * math.Pi) }),

		"POLY3": opPoly3,

		"STOP": opStop,

		"PI":    pushConst(math.Pi),
		"TAU":   pushConst(2 * math.Pi),
		"E":     pushConst(math.E),
		"TRUE":  pushBoolConst(true),
		"FALSE": pushBoolConst(false),
		"NULL":  func(vm *VM) error { return vm.push(splotval.Null()) },

		"H>S": unaryNumeric(func(h float64) float64 { return h * 3600 }),
		"D>S": unaryNumeric(func(d float64) float64 { return d * 86400 }),
	}
}

func compileOperator(tok string) (node, bool) {
	fn, ok := operators[tok]
	if !ok {
		return nil, false
	}
	return &opNode{name: tok, fn: fn}, true
}

func numeric(v splotval.Value) (float64, error) {
	c, err := splotval.Coerce(v, splotval.KindReal)
	if err != nil {
		return 0, err
	}
	f, _ := c.AsReal()
	return f, nil
}

func binaryNumeric(f func(a, b float64) float64) opFn {
	return binaryNumericErr(func(a, b float64) (float64, error) { return f(a, b), nil })
}

func binaryNumericErr(f func(a, b float64) (float64, error)) opFn {
	return func(vm *VM) error {
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		af, err := numeric(a)
		if err != nil {
			return err
		}
		bf, err := numeric(b)
		if err != nil {
			return err
		}
		r, err := f(af, bf)
		if err != nil {
			return err
		}
		return vm.push(splotval.Real(r))
	}
}

func unaryNumeric(f func(a float64) float64) opFn {
	return func(vm *VM) error {
		a, err := vm.pop()
		if err != nil {
			return err
		}
		af, err := numeric(a)
		if err != nil {
			return err
		}
		return vm.push(splotval.Real(f(af)))
	}
}

func opDiv(a, b float64) (float64, error) {
	if b == 0 {
		return 0, splotval.NewError(splotval.ErrInvalidValue, "division by zero")
	}
	return a / b, nil
}

func opMod(a, b float64) (float64, error) {
	if b == 0 {
		return 0, splotval.NewError(splotval.ErrInvalidValue, "modulo by zero")
	}
	return math.Mod(a, b), nil
}

func opClamp(vm *VM) error {
	hi, err := vm.pop()
	if err != nil {
		return err
	}
	lo, err := vm.pop()
	if err != nil {
		return err
	}
	x, err := vm.pop()
	if err != nil {
		return err
	}
	xf, err := numeric(x)
	if err != nil {
		return err
	}
	lof, err := numeric(lo)
	if err != nil {
		return err
	}
	hif, err := numeric(hi)
	if err != nil {
		return err
	}
	return vm.push(splotval.Real(math.Min(math.Max(xf, lof), hif)))
}

// RANGE maps x from [inLo,inHi] to [outLo,outHi]: inLo inHi outLo outHi x RANGE
func opRange(vm *VM) error {
	vals, err := vm.popN(5)
	if err != nil {
		return err
	}
	nums := make([]float64, 5)
	for i, v := range vals {
		nums[i], err = numeric(v)
		if err != nil {
			return err
		}
	}
	inLo, inHi, outLo, outHi, x := nums[0], nums[1], nums[2], nums[3], nums[4]
	if inHi == inLo {
		return vm.push(splotval.Real(outLo))
	}
	t := (x - inLo) / (inHi - inLo)
	return vm.push(splotval.Real(outLo + t*(outHi-outLo)))
}

func opPoly3(vm *VM) error {
	vals, err := vm.popN(4)
	if err != nil {
		return err
	}
	xv, err := vm.pop()
	if err != nil {
		return err
	}
	a, b, c, d := vals[0], vals[1], vals[2], vals[3]
	af, _ := numeric(a)
	bf, _ := numeric(b)
	cf, _ := numeric(c)
	df, _ := numeric(d)
	xf, err := numeric(xv)
	if err != nil {
		return err
	}
	r := af*xf*xf*xf + bf*xf*xf + cf*xf + df
	return vm.push(splotval.Real(r))
}

func opEq(vm *VM) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.push(splotval.Bool(a.Equal(b)))
}

func opNeq(vm *VM) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.push(splotval.Bool(!a.Equal(b)))
}

func comparisonOp(f func(a, b float64) bool) opFn {
	return func(vm *VM) error {
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		af, err := numeric(a)
		if err != nil {
			return err
		}
		bf, err := numeric(b)
		if err != nil {
			return err
		}
		return vm.push(splotval.Bool(f(af, bf)))
	}
}

func boolBinary(f func(a, b bool) bool) opFn {
	return func(vm *VM) error {
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(splotval.Bool(f(a.Truthy(), b.Truthy())))
	}
}

func opNot(vm *VM) error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.push(splotval.Bool(!a.Truthy()))
}

func opDup(vm *VM) error {
	a, err := vm.peek()
	if err != nil {
		return err
	}
	return vm.push(a)
}

func opSwap(vm *VM) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if err := vm.push(b); err != nil {
		return err
	}
	return vm.push(a)
}

func opDrop(vm *VM) error {
	_, err := vm.pop()
	return err
}

// opPop removes the second-from-top element, per spec §9's explicit note
// that RPN POP is not a synonym for DROP.
func opPop(vm *VM) error {
	top, err := vm.pop()
	if err != nil {
		return err
	}
	if _, err := vm.pop(); err != nil {
		return err
	}
	return vm.push(top)
}

func opGet(vm *VM) error {
	key, err := vm.pop()
	if err != nil {
		return err
	}
	container, err := vm.pop()
	if err != nil {
		return err
	}
	switch container.Kind() {
	case splotval.KindMap:
		m, _ := container.AsMap()
		ks, _ := key.AsStr()
		v, ok := m[ks]
		if !ok {
			return vm.push(splotval.Null())
		}
		return vm.push(v)
	case splotval.KindArray:
		arr, _ := container.AsArray()
		idx, err := toInt(key)
		if err != nil {
			return err
		}
		if idx < 0 || int(idx) >= len(arr) {
			return vm.push(splotval.Null())
		}
		return vm.push(arr[idx])
	default:
		return splotval.NewError(splotval.ErrInvalidValue, "GET requires a map or array")
	}
}

func opPut(vm *VM) error {
	val, err := vm.pop()
	if err != nil {
		return err
	}
	key, err := vm.pop()
	if err != nil {
		return err
	}
	container, err := vm.pop()
	if err != nil {
		return err
	}
	switch container.Kind() {
	case splotval.KindMap:
		m, _ := container.AsMap()
		out := make(map[string]splotval.Value, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		ks, _ := key.AsStr()
		out[ks] = val
		return vm.push(splotval.Map(out))
	case splotval.KindArray:
		arr, _ := container.AsArray()
		idx, err := toInt(key)
		if err != nil {
			return err
		}
		out := append([]splotval.Value(nil), arr...)
		if int(idx) == len(out) {
			out = append(out, val)
		} else if idx >= 0 && int(idx) < len(out) {
			out[idx] = val
		} else {
			return splotval.NewError(splotval.ErrInvalidValue, "PUT index out of range")
		}
		return vm.push(splotval.Array(out))
	default:
		return splotval.NewError(splotval.ErrInvalidValue, "PUT requires a map or array")
	}
}

func pushConst(f float64) opFn {
	return func(vm *VM) error { return vm.push(splotval.Real(f)) }
}

func pushBoolConst(b bool) opFn {
	return func(vm *VM) error { return vm.push(splotval.Bool(b)) }
}

// opStop pushes the stop sentinel, causing the surrounding evaluation to
// suppress propagation per spec §4.2.
func opStop(vm *VM) error {
	vm.stopped = true
	return nil
}
