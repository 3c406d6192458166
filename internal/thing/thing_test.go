package thing

import (
	"context"
	"testing"
	"time"

	"github.com/rakunlabs/splot/internal/sched"
	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/trait"
)

func newVirtualThing(t *testing.T, traits []trait.Trait, opts ...Option) (*Thing, *sched.Scheduler) {
	t.Helper()
	s := sched.NewVirtual(time.Unix(0, 0))
	th := New("test-thing", s, traits, opts...)
	return th, s
}

// TestToggleOnLoopback grounds spec §8 scenario 1: toggling a boolean
// property flips its value and fires exactly one property-listener
// notification carrying the new value.
func TestToggleOnLoopback(t *testing.T) {
	th, _ := newVirtualThing(t, []trait.Trait{trait.NewOnOffTrait()})

	var got []bool
	unreg := th.RegisterPropertyListener(trait.KeyOnOffValue, func(key splotval.TypedKey, value splotval.Value) {
		b, _ := value.AsBool()
		got = append(got, b)
	})
	defer unreg()

	f := th.ToggleProperty(trait.KeyOnOffValue, splotval.ModifierSet{})
	v, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if b, _ := v.AsBool(); !b {
		t.Fatalf("expected toggled value true, got %v", v)
	}
	if len(got) != 1 || !got[0] {
		t.Fatalf("expected one listener call with true, got %v", got)
	}

	f2 := th.FetchProperty(trait.KeyOnOffValue, splotval.ModifierSet{})
	v2, err := f2.Wait(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if b, _ := v2.AsBool(); !b {
		t.Fatalf("expected fetched value true, got %v", v2)
	}
}

// TestTransitionLinearInterpolation grounds spec §8's transition timing
// scenario: a 0 -> 10 transition over 1s reads ~5 at t=500ms and exactly
// 10 (with TransDuration 0) once the transition completes.
func TestTransitionLinearInterpolation(t *testing.T) {
	th, s := newVirtualThing(t, []trait.Trait{trait.NewLevelTrait()}, WithTransitions(10))

	mods := splotval.ModifierSet{Duration: time.Second, HasDuration: true}
	f := th.SetProperty(trait.KeyLevelValue, splotval.Real(10), mods)
	if _, err := f.Wait(context.Background()); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	s.Tick(500 * time.Millisecond)
	mid, err := th.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	r, _ := mid.AsReal()
	if r < 4.0 || r > 6.0 {
		t.Fatalf("expected ~5 at t=500ms, got %v", r)
	}

	s.Tick(600 * time.Millisecond)
	final, err := th.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	rf, _ := final.AsReal()
	if rf != 10 {
		t.Fatalf("expected exactly 10 once complete, got %v", rf)
	}
	if d := th.TransDuration(trait.KeyLevelValue); d != 0 {
		t.Fatalf("expected TransDuration 0 once complete, got %v", d)
	}
}

// TestTransitionCancelOnPlainWrite grounds spec §5's cancellation rule: a
// plain (no-duration) write to a STATE property in transition cancels the
// interpolation and commits immediately.
func TestTransitionCancelOnPlainWrite(t *testing.T) {
	th, s := newVirtualThing(t, []trait.Trait{trait.NewLevelTrait()}, WithTransitions(10))

	mods := splotval.ModifierSet{Duration: time.Second, HasDuration: true}
	th.SetProperty(trait.KeyLevelValue, splotval.Real(10), mods).Wait(context.Background())
	s.Tick(200 * time.Millisecond)

	th.SetProperty(trait.KeyLevelValue, splotval.Real(3), splotval.ModifierSet{}).Wait(context.Background())
	v, _ := th.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	r, _ := v.AsReal()
	if r != 3 {
		t.Fatalf("expected immediate commit to 3, got %v", r)
	}
	if d := th.TransDuration(trait.KeyLevelValue); d != 0 {
		t.Fatalf("expected no in-flight transition after cancel, got %v", d)
	}
}

// TestGroupFanOut grounds spec §8's group scenario: a STATE write on a
// Group reaches every member and no non-member.
func TestGroupFanOut(t *testing.T) {
	s := sched.NewVirtual(time.Unix(0, 0))
	member1 := New("m1", s, []trait.Trait{trait.NewOnOffTrait()})
	member2 := New("m2", s, []trait.Trait{trait.NewOnOffTrait()})
	nonMember := New("m3", s, []trait.Trait{trait.NewOnOffTrait()})

	g := NewGroup("grp-1", "grp-1", s, true)
	g.AddMember(member1)
	g.AddMember(member2)

	_, err := g.GroupSetState(trait.KeyOnOffValue, splotval.Bool(true), splotval.ModifierSet{}).Wait(context.Background())
	if err != nil {
		t.Fatalf("group set failed: %v", err)
	}

	for _, m := range []*Thing{member1, member2} {
		v, err := m.FetchProperty(trait.KeyOnOffValue, splotval.ModifierSet{}).Wait(context.Background())
		if err != nil {
			t.Fatalf("member fetch failed: %v", err)
		}
		if b, _ := v.AsBool(); !b {
			t.Fatalf("expected member %s true, got %v", m.UID(), v)
		}
	}

	v, err := nonMember.FetchProperty(trait.KeyOnOffValue, splotval.ModifierSet{}).Wait(context.Background())
	if err != nil {
		t.Fatalf("non-member fetch failed: %v", err)
	}
	if b, _ := v.AsBool(); b {
		t.Fatalf("expected non-member to remain false, got %v", v)
	}
}

// TestGroupUnreliableSwallowsMemberFailure grounds the reliability flag:
// an unreliable group's fan-out future succeeds even when a member write
// fails, and a reliable group's future fails.
func TestGroupUnreliableSwallowsMemberFailure(t *testing.T) {
	s := sched.NewVirtual(time.Unix(0, 0))
	ok := New("ok", s, []trait.Trait{trait.NewOnOffTrait()})
	bad := New("bad", s, []trait.Trait{trait.NewLevelTrait()}) // no onof trait: member write will fail

	unreliable := NewGroup("grp-soft", "grp-soft", s, false)
	unreliable.AddMember(ok)
	unreliable.AddMember(bad)
	if _, err := unreliable.GroupSetState(trait.KeyOnOffValue, splotval.Bool(true), splotval.ModifierSet{}).Wait(context.Background()); err != nil {
		t.Fatalf("unreliable group fan-out should not surface member failure, got %v", err)
	}

	reliable := NewGroup("grp-hard", "grp-hard", s, true)
	reliable.AddMember(ok)
	reliable.AddMember(bad)
	if _, err := reliable.GroupSetState(trait.KeyOnOffValue, splotval.Bool(true), splotval.ModifierSet{}).Wait(context.Background()); err == nil {
		t.Fatalf("reliable group fan-out should surface member failure")
	}
}

// TestSceneSaveAndRestore grounds spec §8's scene scenario: saving then
// mutating then restoring a scene round-trips the STATE value, and the
// snapshot is also reachable as a restricted child Thing.
func TestSceneSaveAndRestore(t *testing.T) {
	th, _ := newVirtualThing(t, []trait.Trait{trait.NewLevelTrait()}, WithScene())

	th.SetProperty(trait.KeyLevelValue, splotval.Real(7), splotval.ModifierSet{}).Wait(context.Background())
	th.InvokeMethod(trait.KeySceneSave, map[string]splotval.Value{
		"scene_id": splotval.Str("warm"),
	}).Wait(context.Background())

	th.SetProperty(trait.KeyLevelValue, splotval.Real(1), splotval.ModifierSet{}).Wait(context.Background())
	v, _ := th.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if r, _ := v.AsReal(); r != 1 {
		t.Fatalf("expected 1 after plain write, got %v", r)
	}

	th.SetProperty(trait.KeySceneID, splotval.Str("warm"), splotval.ModifierSet{}).Wait(context.Background())
	restored, err := th.FetchProperty(trait.KeyLevelValue, splotval.ModifierSet{}).Wait(context.Background())
	if err != nil {
		t.Fatalf("fetch after scene apply failed: %v", err)
	}
	if r, _ := restored.AsReal(); r != 7 {
		t.Fatalf("expected 7 restored from scene, got %v", r)
	}

	child, err := th.SceneChild("warm")
	if err != nil {
		t.Fatalf("scene child lookup failed: %v", err)
	}
	if _, err := child.IncrementProperty(trait.KeyLevelValue, splotval.Real(1), splotval.ModifierSet{}).Wait(context.Background()); err == nil {
		t.Fatalf("expected increment on a scene child to be rejected")
	}
}

// TestSceneIDClearedByOtherStateWrite grounds the "writing any other STATE
// property clears the scene id" rule.
func TestSceneIDClearedByOtherStateWrite(t *testing.T) {
	th, _ := newVirtualThing(t, []trait.Trait{trait.NewLevelTrait()}, WithScene())

	th.SetProperty(trait.KeyLevelValue, splotval.Real(7), splotval.ModifierSet{}).Wait(context.Background())
	th.InvokeMethod(trait.KeySceneSave, map[string]splotval.Value{"scene_id": splotval.Str("warm")}).Wait(context.Background())
	th.SetProperty(trait.KeySceneID, splotval.Str("warm"), splotval.ModifierSet{}).Wait(context.Background())

	th.SetProperty(trait.KeyLevelValue, splotval.Real(2), splotval.ModifierSet{}).Wait(context.Background())

	id, _ := th.FetchProperty(trait.KeySceneID, splotval.ModifierSet{}).Wait(context.Background())
	if s, _ := id.AsStr(); s != "" {
		t.Fatalf("expected scene id cleared, got %q", s)
	}
}
