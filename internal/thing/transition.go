package thing

import (
	"context"
	"sync"
	"time"

	"github.com/rakunlabs/splot/internal/sched"
	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/trait"
)

// rawAccessor is implemented by *trait.Base; it lets the transition
// capability read and write a property's stored value directly, bypassing
// capability checks and the validating state machine that a plain OnSet
// would run on every interpolation tick.
type rawAccessor interface {
	Get(key splotval.TypedKey) splotval.Value
	SetRaw(key splotval.TypedKey, value splotval.Value)
}

func baseGet(tr trait.Trait, key splotval.TypedKey) splotval.Value {
	if ra, ok := tr.(rawAccessor); ok {
		return ra.Get(key)
	}
	v, _ := tr.OnGet(key)
	return v
}

func baseSetRaw(tr trait.Trait, key splotval.TypedKey, value splotval.Value) {
	if ra, ok := tr.(rawAccessor); ok {
		ra.SetRaw(key, value)
		return
	}
	_ = tr.OnSet(key, value)
}

// transitionTickRate is the nominal interpolation rate from spec §4.6:
// 10 ticks per second.
const transitionTickRate = 10.0

// activeTransition is one in-flight linear interpolation.
type activeTransition struct {
	key      splotval.TypedKey
	start    splotval.Value
	target   splotval.Value
	duration time.Duration
	begun    time.Time
	cancel   sched.CancelHandle
}

// transitionCapability implements the Transitioning Thing extension from
// spec §4.6: time-interpolated STATE changes driven by scheduler ticks,
// with the target value observable only under the TransitionTarget
// modifier and a cancellable in-flight transition per property.
type transitionCapability struct {
	owner *Thing
	rate  float64

	mu     sync.Mutex
	active map[string]*activeTransition
}

func newTransitionCapability(owner *Thing, rate float64) *transitionCapability {
	if rate <= 0 {
		rate = transitionTickRate
	}
	return &transitionCapability{owner: owner, rate: rate, active: make(map[string]*activeTransition)}
}

// begin starts (or replaces) a linear interpolation of key from its
// current immediate value to target over duration. A non-positive
// duration commits the value immediately with no transition.
func (c *transitionCapability) begin(key splotval.TypedKey, target splotval.Value, duration time.Duration) error {
	tr, def, ok := c.owner.findOwner(key)
	if !ok {
		return splotval.NewError(splotval.ErrPropertyNotFound, "%s", key)
	}
	coercedTarget, err := splotval.Coerce(target, def.Key.Type)
	if err != nil {
		return splotval.NewError(splotval.ErrInvalidPropertyValue, "%s: %v", key, err)
	}
	if duration <= 0 {
		c.cancelLocked(key.HashName())
		return tr.OnSet(key, coercedTarget)
	}

	c.mu.Lock()
	name := key.HashName()
	if existing, ok := c.active[name]; ok {
		existing.cancel.Cancel()
		delete(c.active, name)
	}
	startVal := baseGet(tr, key)
	at := &activeTransition{key: key, start: startVal, target: coercedTarget, duration: duration, begun: c.owner.sched.Now()}
	c.active[name] = at
	c.mu.Unlock()

	interval := time.Duration(float64(time.Second) / c.rate)
	at.cancel = c.owner.sched.SchedulePeriodic(func(ctx context.Context) {
		c.tick(name)
	}, interval, interval)
	return nil
}

func (c *transitionCapability) tick(name string) {
	c.mu.Lock()
	at, ok := c.active[name]
	if !ok {
		c.mu.Unlock()
		return
	}
	elapsed := c.owner.sched.Now().Sub(at.begun)
	frac := float64(elapsed) / float64(at.duration)
	done := frac >= 1
	if frac > 1 {
		frac = 1
	}
	interp := interpolate(at.start, at.target, frac)
	if done {
		delete(c.active, name)
	}
	key := at.key
	cancelHandle := at.cancel
	c.mu.Unlock()

	tr, _, ok := c.owner.findOwner(key)
	if !ok {
		return
	}
	baseSetRaw(tr, key, interp)
	if done {
		cancelHandle.Cancel()
	}
}

// cancel stops an in-flight transition, leaving STATE at the current
// interpolated value and reporting duration 0, per spec §5.
func (c *transitionCapability) cancel(key splotval.TypedKey) {
	c.mu.Lock()
	c.cancelLocked(key.HashName())
	c.mu.Unlock()
}

func (c *transitionCapability) cancelLocked(name string) {
	at, ok := c.active[name]
	if !ok {
		return
	}
	at.cancel.Cancel()
	delete(c.active, name)
}

// target returns the configured target value for an in-flight transition,
// for the TransitionTarget modifier's read path.
func (c *transitionCapability) target(key splotval.TypedKey) (splotval.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.active[key.HashName()]
	if !ok {
		return splotval.Value{}, false
	}
	return at.target, true
}

// remaining reports TRANS_DURATION: seconds left on an in-flight
// transition for key, or 0 when idle.
func (c *transitionCapability) remaining(key splotval.TypedKey) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.active[key.HashName()]
	if !ok {
		return 0
	}
	elapsed := c.owner.sched.Now().Sub(at.begun)
	left := at.duration - elapsed
	if left < 0 {
		return 0
	}
	return left.Seconds()
}

func interpolate(start, target splotval.Value, frac float64) splotval.Value {
	sf, err1 := splotval.Coerce(start, splotval.KindReal)
	tf, err2 := splotval.Coerce(target, splotval.KindReal)
	if err1 != nil || err2 != nil {
		return target
	}
	s, _ := sf.AsReal()
	tt, _ := tf.AsReal()
	v := s + (tt-s)*frac
	if target.Kind() == splotval.KindInt {
		return splotval.Int(int64(v))
	}
	return splotval.Real(v)
}

// TransDuration exposes the remaining transition time for key, used by a
// trait that reports a TRANS_DURATION-shaped property.
func (t *Thing) TransDuration(key splotval.TypedKey) float64 {
	if t.transitions == nil {
		return 0
	}
	return t.transitions.remaining(key)
}
