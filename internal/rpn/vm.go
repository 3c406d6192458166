package rpn

import (
	"strings"

	"github.com/rakunlabs/splot/internal/splotval"
)

// maxStackDepth is the bound from spec §4.2; exceeding it raises
// RPNStackOverflow.
const maxStackDepth = 32

// Vars is a flat variable binding, e.g. {"v": value} for a pairing
// transform or {"prev": ..., "next": ...} for a rule condition.
type Vars map[string]splotval.Value

// VM is the mutable evaluation state for one Eval call. It is never reused
// across calls, so a compiled Expr stays stateless and reusable.
type VM struct {
	stack   []splotval.Value
	base    Vars
	frames  []Vars // loop-variable frames, innermost last
	rtc     *rtcState
	stopped bool
}

func newVM(stack []splotval.Value, vars Vars, rtc *rtcState) *VM {
	return &VM{stack: append([]splotval.Value(nil), stack...), base: vars, rtc: rtc}
}

func (vm *VM) push(v splotval.Value) error {
	if len(vm.stack) >= maxStackDepth {
		return splotval.NewError(splotval.ErrRPNStackOverflow, "stack depth exceeds %d", maxStackDepth)
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() (splotval.Value, error) {
	if len(vm.stack) == 0 {
		return splotval.Value{}, splotval.NewError(splotval.ErrRPNStackUnderflow, "pop from empty stack")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) peek() (splotval.Value, error) {
	if len(vm.stack) == 0 {
		return splotval.Value{}, splotval.NewError(splotval.ErrRPNStackUnderflow, "peek at empty stack")
	}
	return vm.stack[len(vm.stack)-1], nil
}

// popN pops n elements and returns them in push order (oldest first).
func (vm *VM) popN(n int) ([]splotval.Value, error) {
	if n < 0 || len(vm.stack) < n {
		return nil, splotval.NewError(splotval.ErrRPNStackUnderflow, "need %d elements, have %d", n, len(vm.stack))
	}
	start := len(vm.stack) - n
	out := append([]splotval.Value(nil), vm.stack[start:]...)
	vm.stack = vm.stack[:start]
	return out, nil
}

func (vm *VM) pushLoopVar(i int64) {
	vm.frames = append(vm.frames, Vars{"i": splotval.Int(i)})
}

func (vm *VM) popLoopVar() {
	vm.frames = vm.frames[:len(vm.frames)-1]
}

func (vm *VM) execAll(body []node) error {
	for _, n := range body {
		if vm.stopped {
			return nil
		}
		if err := n.exec(vm); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM) lookupVar(name string) (splotval.Value, error) {
	for i := len(vm.frames) - 1; i >= 0; i-- {
		if v, ok := vm.frames[i][name]; ok {
			return v, nil
		}
	}
	if v, ok := vm.base[name]; ok {
		return v, nil
	}
	if strings.HasPrefix(name, "rtc.") {
		return vm.lookupRTC(name)
	}
	return splotval.Value{}, splotval.NewError(splotval.ErrRPNUnknownVariable, "unknown variable %q", name)
}

// Result is the outcome of evaluating a compiled expression.
type Result struct {
	Value     splotval.Value
	Suppress  bool // STOP sentinel hit, or stack empty at end: do not propagate
}

// Eval runs the compiled expression against the given variable bindings
// and RTC clock options, returning the top-of-stack value or a suppression
// signal per spec §4.2's STOP/empty-stack rule. The operand stack starts
// empty; use EvalStack to seed it with the caller's input value(s).
func (e *Expr) Eval(vars Vars, opts RTCOptions) (Result, error) {
	return e.EvalStack(nil, vars, opts)
}

// EvalStack is Eval with an initial operand stack, oldest first, so
// callers that hand an expression its input as stack operands (a pairing's
// observed value, a rule's previous/next pair) don't need to fake it
// through a named variable.
func (e *Expr) EvalStack(stack []splotval.Value, vars Vars, opts RTCOptions) (Result, error) {
	vm := newVM(stack, vars, newRTCState(opts))
	if err := vm.execAll(e.prog); err != nil {
		return Result{}, err
	}
	if vm.stopped || len(vm.stack) == 0 {
		return Result{Suppress: true}, nil
	}
	top, err := vm.peek()
	if err != nil {
		return Result{}, err
	}
	return Result{Value: top}, nil
}

// MustCompile is a test/initialization helper that panics on a syntax
// error, mirroring the teacher's habit of failing fast on malformed
// embedded programs rather than deferring the error.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}
