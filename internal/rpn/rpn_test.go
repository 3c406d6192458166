package rpn

import (
	"testing"
	"time"

	"github.com/rakunlabs/splot/internal/splotval"
)

func eval(t *testing.T, src string, vars Vars) Result {
	t.Helper()
	return evalStack(t, src, nil, vars)
}

// evalStack runs src with stack as its initial stack, the way automation
// seeds the input value v before a transform or predicate runs.
func evalStack(t *testing.T, src string, stack []splotval.Value, vars Vars) Result {
	t.Helper()
	e, err := Compile(src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	res, err := e.EvalStack(stack, vars, RTCOptions{Now: time.Date(2026, time.August, 3, 10, 30, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return res
}

func TestArithmetic(t *testing.T) {
	res := eval(t, "2 3 +", nil)
	f, _ := res.Value.AsReal()
	if f != 5 {
		t.Errorf("got %v, want 5", f)
	}
}

func TestForwardTransformHalf(t *testing.T) {
	v := splotval.Real(1.0)
	res := evalStack(t, "0.5 *", []splotval.Value{v}, Vars{"v": v})
	f, _ := res.Value.AsReal()
	if f != 0.5 {
		t.Errorf("expected v * 0.5, got %v", f)
	}
}

func TestDropPredicate(t *testing.T) {
	lo, hi := splotval.Real(0.3), splotval.Real(0.9)
	below := evalStack(t, "DUP 0.5 <= IF STOP ENDIF", []splotval.Value{lo}, Vars{"v": lo})
	if !below.Suppress {
		t.Error("expected suppression for v <= 0.5")
	}
	above := evalStack(t, "DUP 0.5 <= IF STOP ENDIF", []splotval.Value{hi}, Vars{"v": hi})
	if above.Suppress {
		t.Error("expected propagation for v > 0.5")
	}
}

func TestPopRemovesSecondFromTop(t *testing.T) {
	res := eval(t, "1 2 3 POP", nil)
	n, _ := res.Value.AsInt()
	if n != 3 {
		t.Errorf("top after POP should remain 3, got %v", n)
	}
}

func TestStackOverflow(t *testing.T) {
	src := ""
	for i := 0; i < 40; i++ {
		src += "1 "
	}
	e, err := Compile(src)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Eval(nil, RTCOptions{})
	if err == nil {
		t.Fatal("expected stack overflow")
	}
	if kind, ok := splotval.KindOf(err); !ok || kind != splotval.ErrRPNStackOverflow {
		t.Errorf("expected RPNStackOverflow, got %v", err)
	}
}

func TestDoLoop(t *testing.T) {
	res := eval(t, "0 5 0 DO i + LOOP", nil)
	f, _ := res.Value.AsReal()
	if f != 10 { // 0+0+1+2+3+4
		t.Errorf("got %v, want 10", f)
	}
}

func TestCaseStatement(t *testing.T) {
	res := eval(t, "2 CASE 1 OF :one ENDOF 2 OF :two ENDOF ENDCASE", nil)
	s, ok := res.Value.AsStr()
	if !ok || s != "two" {
		t.Errorf("got %v, want two", res.Value)
	}
}

func TestUnknownVariable(t *testing.T) {
	_, err := Compile("foo")
	if err != nil {
		t.Fatal(err)
	}
	e := MustCompile("foo")
	_, err = e.Eval(nil, RTCOptions{})
	if err == nil {
		t.Fatal("expected UnknownVariable")
	}
	if kind, ok := splotval.KindOf(err); !ok || kind != splotval.ErrRPNUnknownVariable {
		t.Errorf("expected RPNUnknownVariable, got %v", err)
	}
}

func TestEmptyStackSuppresses(t *testing.T) {
	res := eval(t, "1 DROP", nil)
	if !res.Suppress {
		t.Error("expected suppression for empty stack at end")
	}
}

func TestRTCDowMonZero(t *testing.T) {
	// 2026-08-03 is a Monday.
	res := eval(t, "rtc.dow", nil)
	n, _ := res.Value.AsInt()
	if n != 0 {
		t.Errorf("expected Monday=0, got %d", n)
	}
}

func TestRTCWeekStartsSunday(t *testing.T) {
	res := eval(t, "rtc.wss rtc.dow", nil)
	n, _ := res.Value.AsInt()
	if n != 1 {
		t.Errorf("expected Monday=1 when week starts Sunday, got %d", n)
	}
}
