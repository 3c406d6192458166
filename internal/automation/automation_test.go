package automation

import (
	"context"
	"testing"
	"time"

	"github.com/rakunlabs/splot/internal/reslink"
	"github.com/rakunlabs/splot/internal/sched"
	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/thing"
	"github.com/rakunlabs/splot/internal/trait"
)

func newTestRig(t *testing.T) (*sched.Scheduler, *reslink.Manager, *reslink.MapRegistry) {
	t.Helper()
	s := sched.NewVirtual(time.Unix(0, 0))
	reg := reslink.NewMapRegistry()
	m := reslink.NewManager(reg, nil)
	return s, m, reg
}

func TestPairingForwardsPushWithTransform(t *testing.T) {
	s, m, reg := newTestRig(t)
	src := thing.New("src-1", s, []trait.Trait{trait.NewLevelTrait()})
	dst := thing.New("dst-1", s, []trait.Trait{trait.NewLevelTrait()})
	reg.AddThing(src)
	reg.AddThing(dst)

	toDest, err := Compile("v 2 *")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	p := NewPairing(m, "loop://local/src-1/s/levl/v", "loop://local/dst-1/s/levl/v", true, false, toDest, nil, s.Now)
	if err := p.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if _, err := src.SetProperty(trait.KeyLevelValue, splotval.Real(3), splotval.ModifierSet{}).Wait(context.Background()); err != nil {
		t.Fatalf("set src: %v", err)
	}

	v, err := dst.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if err != nil {
		t.Fatalf("fetch dst: %v", err)
	}
	if r, _ := v.AsReal(); r != 6 {
		t.Fatalf("expected dest = 6, got %v", r)
	}
	if p.Count() != 1 {
		t.Fatalf("expected count 1, got %d", p.Count())
	}
}

func TestPairingSyncModeDebouncesEcho(t *testing.T) {
	s, m, reg := newTestRig(t)
	a := thing.New("a-1", s, []trait.Trait{trait.NewLevelTrait()})
	b := thing.New("b-1", s, []trait.Trait{trait.NewLevelTrait()})
	reg.AddThing(a)
	reg.AddThing(b)

	p := NewPairing(m, "loop://local/a-1/s/levl/v", "loop://local/b-1/s/levl/v", true, true, nil, nil, s.Now)
	if err := p.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if _, err := a.SetProperty(trait.KeyLevelValue, splotval.Real(5), splotval.ModifierSet{}).Wait(context.Background()); err != nil {
		t.Fatalf("set a: %v", err)
	}

	// b's write (the echo of a's forwarded value) must not bounce back to a
	// again within the debounce window.
	if p.Count() != 1 {
		t.Fatalf("expected exactly one fire from the forward write, got %d", p.Count())
	}
}

// TestPairingForwardTransformOperatesOnSeededStack exercises spec §8
// scenario 3's literal forward transform `0.5 *`, which operates on the
// seeded stack value directly rather than a named variable.
func TestPairingForwardTransformOperatesOnSeededStack(t *testing.T) {
	s, m, reg := newTestRig(t)
	src := thing.New("src-3", s, []trait.Trait{trait.NewLevelTrait()})
	dst := thing.New("dst-3", s, []trait.Trait{trait.NewLevelTrait()})
	reg.AddThing(src)
	reg.AddThing(dst)

	toDest, err := Compile("0.5 *")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	p := NewPairing(m, "loop://local/src-3/s/levl/v", "loop://local/dst-3/s/levl/v", true, false, toDest, nil, s.Now)
	if err := p.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if _, err := src.SetProperty(trait.KeyLevelValue, splotval.Real(1.0), splotval.ModifierSet{}).Wait(context.Background()); err != nil {
		t.Fatalf("set src: %v", err)
	}

	v, err := dst.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if err != nil {
		t.Fatalf("fetch dst: %v", err)
	}
	if r, _ := v.AsReal(); r != 0.5 {
		t.Fatalf("expected dest = 0.5, got %v", r)
	}
}

// TestPairingDropPredicateSuppressesLowValues exercises spec §8 scenario 4's
// literal drop predicate `DUP 0.5 <= IF STOP ENDIF`: writes at or below 0.5
// do not propagate, writes above do.
func TestPairingDropPredicateSuppressesLowValues(t *testing.T) {
	s, m, reg := newTestRig(t)
	src := thing.New("src-4", s, []trait.Trait{trait.NewLevelTrait()})
	dst := thing.New("dst-4", s, []trait.Trait{trait.NewLevelTrait()})
	reg.AddThing(src)
	reg.AddThing(dst)

	toDest, err := Compile("DUP 0.5 <= IF STOP ENDIF")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	p := NewPairing(m, "loop://local/src-4/s/levl/v", "loop://local/dst-4/s/levl/v", true, false, toDest, nil, s.Now)
	if err := p.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if _, err := src.SetProperty(trait.KeyLevelValue, splotval.Real(0.5), splotval.ModifierSet{}).Wait(context.Background()); err != nil {
		t.Fatalf("set src: %v", err)
	}
	v, _ := dst.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if r, _ := v.AsReal(); r != 0 {
		t.Fatalf("expected write <= 0.5 to be dropped, dest = %v", r)
	}
	if p.Count() != 0 {
		t.Fatalf("expected no fire for a dropped write, got %d", p.Count())
	}

	if _, err := src.SetProperty(trait.KeyLevelValue, splotval.Real(0.9), splotval.ModifierSet{}).Wait(context.Background()); err != nil {
		t.Fatalf("set src: %v", err)
	}
	v, _ = dst.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if r, _ := v.AsReal(); r != 0.9 {
		t.Fatalf("expected write > 0.5 to propagate, dest = %v", r)
	}
	if p.Count() != 1 {
		t.Fatalf("expected one fire for the propagated write, got %d", p.Count())
	}
}

func TestPairingSwallowsStopTransform(t *testing.T) {
	s, m, reg := newTestRig(t)
	src := thing.New("src-2", s, []trait.Trait{trait.NewLevelTrait()})
	dst := thing.New("dst-2", s, []trait.Trait{trait.NewLevelTrait()})
	reg.AddThing(src)
	reg.AddThing(dst)

	toDest, err := Compile("STOP")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	p := NewPairing(m, "loop://local/src-2/s/levl/v", "loop://local/dst-2/s/levl/v", true, false, toDest, nil, s.Now)
	if err := p.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if _, err := src.SetProperty(trait.KeyLevelValue, splotval.Real(9), splotval.ModifierSet{}).Wait(context.Background()); err != nil {
		t.Fatalf("set src: %v", err)
	}

	v, _ := dst.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if r, _ := v.AsReal(); r != 0 {
		t.Fatalf("expected dest untouched at 0, got %v", r)
	}
	if p.Count() != 0 {
		t.Fatalf("expected no fire for a suppressed transform, got %d", p.Count())
	}
}

// TestRuleAllModeFiresOnlyWhenBothConditionsBecomeSatisfied exercises the
// all-mode rule from spec §8: condition A (`v 0.5 >`) reads bulb1's level,
// condition B (`! !`) reads bulb1's on/off as a stack operand, and the
// action sets bulb2's level to 0.2.
func TestRuleAllModeFiresOnlyWhenBothConditionsBecomeSatisfied(t *testing.T) {
	s, m, reg := newTestRig(t)
	bulb1 := thing.New("bulb1", s, []trait.Trait{trait.NewLevelTrait(), trait.NewOnOffTrait()})
	bulb2 := thing.New("bulb2", s, []trait.Trait{trait.NewLevelTrait()})
	reg.AddThing(bulb1)
	reg.AddThing(bulb2)

	levelExpr, err := Compile("v 0.5 >")
	if err != nil {
		t.Fatalf("compile level condition: %v", err)
	}
	onOffExpr, err := Compile("! !")
	if err != nil {
		t.Fatalf("compile on/off condition: %v", err)
	}
	conds := []Condition{
		{Path: "loop://local/bulb1/s/levl/v", Expr: levelExpr},
		{Path: "loop://local/bulb1/s/onof/v", Expr: onOffExpr},
	}
	actions := []Action{{Method: ActionSet, Path: "loop://local/bulb2/s/levl/v", Body: splotval.Real(0.2)}}
	r := NewRule(m, conds, MatchAll, actions, s.Now)
	if err := r.Enable(); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// toggling on/off alone, before the level condition is satisfied, must
	// not fire.
	bulb1.SetProperty(trait.KeyOnOffValue, splotval.Bool(true), splotval.ModifierSet{}).Wait(context.Background())
	if r.Count() != 0 {
		t.Fatalf("expected no fire from on/off alone, got count %d", r.Count())
	}

	// both conditions now satisfied: false->true composite transition fires.
	bulb1.SetProperty(trait.KeyLevelValue, splotval.Real(1.0), splotval.ModifierSet{}).Wait(context.Background())
	if r.Count() != 1 {
		t.Fatalf("expected fire count 1 once both conditions hold, got %d", r.Count())
	}
	v, err := bulb2.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if err != nil {
		t.Fatalf("fetch bulb2 level: %v", err)
	}
	if got, _ := v.AsReal(); got != 0.2 {
		t.Fatalf("expected bulb2 level 0.2, got %v", got)
	}

	// re-observing the same on/off value (true->true) is not a transition.
	bulb1.SetProperty(trait.KeyOnOffValue, splotval.Bool(true), splotval.ModifierSet{}).Wait(context.Background())
	if r.Count() != 1 {
		t.Fatalf("expected no re-fire on true->true, got %d", r.Count())
	}

	// a genuine exit and re-entry of the composite re-fires.
	bulb1.SetProperty(trait.KeyOnOffValue, splotval.Bool(false), splotval.ModifierSet{}).Wait(context.Background())
	bulb1.SetProperty(trait.KeyOnOffValue, splotval.Bool(true), splotval.ModifierSet{}).Wait(context.Background())
	if r.Count() != 2 {
		t.Fatalf("expected a second fire after a fresh false->true, got %d", r.Count())
	}
}

// TestTimerCountBoundedScheduleFiresTwiceThenStops exercises spec §8's
// count-gated timer: schedule `c 2 < IF 0.2 ENDIF` re-arms at 0.2s while the
// fire count is below 2, then on the third evaluation the IF condition is
// false, nothing is pushed, and the suppressed result stops the timer.
func TestTimerCountBoundedScheduleFiresTwiceThenStops(t *testing.T) {
	s, m, reg := newTestRig(t)
	lamp := thing.New("lamp-t1", s, []trait.Trait{trait.NewOnOffTrait()})
	reg.AddThing(lamp)

	actions := []Action{{Method: ActionToggle, Path: "loop://local/lamp-t1/s/onof/v"}}
	tm, err := NewTimer(m, s, "c 2 < IF 0.2 ENDIF", "", actions, true, false, nil)
	if err != nil {
		t.Fatalf("new timer: %v", err)
	}
	if err := tm.Arm(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if tm.State() != TimerWaiting {
		t.Fatalf("expected waiting state, got %s", tm.State())
	}

	s.Tick(200 * time.Millisecond)
	if tm.Count() != 1 {
		t.Fatalf("expected one fire after first deadline, got count %d", tm.Count())
	}
	if tm.State() != TimerWaiting {
		t.Fatalf("expected auto_reset to re-arm into waiting, got %s", tm.State())
	}

	s.Tick(200 * time.Millisecond)
	if tm.Count() != 2 {
		t.Fatalf("expected a second fire, got count %d", tm.Count())
	}
	if tm.State() != TimerIdle {
		t.Fatalf("expected the schedule to stop re-arming once c=2, got %s", tm.State())
	}
	if tm.Running() {
		t.Fatal("expected running to clear once the schedule stops firing")
	}

	// two toggles from the default false returns to false.
	v, _ := lamp.FetchProperty(trait.KeyOnOffValue, splotval.ModifierSet{}).Wait(context.Background())
	if b, _ := v.AsBool(); b {
		t.Fatalf("expected toggle action to have fired an even number of times, got %v", b)
	}
}

func TestTimerRunningFalseCancelsPendingFire(t *testing.T) {
	s, m, reg := newTestRig(t)
	lamp := thing.New("lamp-t2", s, []trait.Trait{trait.NewOnOffTrait()})
	reg.AddThing(lamp)

	actions := []Action{{Method: ActionToggle, Path: "loop://local/lamp-t2/s/onof/v"}}
	tm, err := NewTimer(m, s, "5", "", actions, false, false, nil)
	if err != nil {
		t.Fatalf("new timer: %v", err)
	}
	if err := tm.Arm(); err != nil {
		t.Fatalf("arm: %v", err)
	}

	if err := tm.SetRunning(false); err != nil {
		t.Fatalf("set running false: %v", err)
	}
	s.Tick(10 * time.Second)
	if tm.Count() != 0 {
		t.Fatalf("expected cancelled timer not to fire, got count %d", tm.Count())
	}
}
