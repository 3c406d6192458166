package automation

import (
	"sync"
	"time"

	"github.com/rakunlabs/splot/internal/reslink"
	"github.com/rakunlabs/splot/internal/splotval"
)

// MatchMode selects how a Rule's condition list combines into one
// composite truth value.
type MatchMode string

const (
	MatchAll MatchMode = "all" // conjunction, default
	MatchAny MatchMode = "any" // disjunction
)

// Condition is one entry of a Rule's condition list from spec §4.9: an
// optional observed path, the expression evaluated on change, and an
// optional skip flag to temporarily exclude the condition without
// removing it.
type Condition struct {
	Path string // empty means the constant 1.0 input
	Expr Expression
	Skip bool
}

// Rule implements spec §4.9's event-driven conditional action dispatch:
// subscribes to each condition's path, evaluates the composite match on
// every observed change, and fires its action list only on a false->true
// transition.
type Rule struct {
	resolver   LinkResolver
	conditions []Condition
	mode       MatchMode
	actions    []Action
	now        func() time.Time

	mu          sync.Mutex
	enabled     bool
	values      map[int]bool // last known per-condition satisfaction
	prevValues  map[int]splotval.Value
	composite   bool
	count       int64
	trap        string
	unregs      []reslink.Unregister
	lastObserve time.Time
	stateEnter  time.Time
	lastFire    time.Time
}

// NewRule builds a disabled Rule. mode defaults to MatchAll when empty.
func NewRule(resolver LinkResolver, conditions []Condition, mode MatchMode, actions []Action, now func() time.Time) *Rule {
	if mode == "" {
		mode = MatchAll
	}
	if now == nil {
		now = time.Now
	}
	return &Rule{
		resolver:   resolver,
		conditions: conditions,
		mode:       mode,
		actions:    actions,
		now:        now,
		values:     make(map[int]bool),
		prevValues: make(map[int]splotval.Value),
	}
}

// Count and Trap report the Rule's bookkeeping STATE properties.
func (r *Rule) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Rule) Trap() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trap
}

// Enable subscribes to every condition's path and seeds the composite
// from the constant-input conditions.
func (r *Rule) Enable() error {
	r.mu.Lock()
	if r.enabled {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	for i, c := range r.conditions {
		if c.Path == "" {
			r.evaluate(i, splotval.Value{}, splotval.Real(1.0))
			continue
		}
		idx := i
		link, err := r.resolver.Resolve(c.Path)
		if err != nil {
			r.Disable()
			return err
		}
		unreg := link.Register(func(v splotval.Value) {
			r.mu.Lock()
			prev := r.prevValues[idx]
			r.mu.Unlock()
			r.evaluate(idx, prev, v)
		})
		r.mu.Lock()
		r.unregs = append(r.unregs, unreg)
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.enabled = true
	r.stateEnter = r.now()
	r.mu.Unlock()
	return nil
}

// Disable unsubscribes every condition and returns the Rule to its
// initial, unobserved state.
func (r *Rule) Disable() {
	r.mu.Lock()
	unregs := r.unregs
	r.unregs = nil
	r.enabled = false
	r.mu.Unlock()
	for _, u := range unregs {
		u()
	}
}

func (r *Rule) evaluate(idx int, prev, next splotval.Value) {
	r.mu.Lock()
	if r.conditions[idx].Skip {
		r.mu.Unlock()
		return
	}
	now := r.now()
	vars := map[string]splotval.Value{
		"prev":  prev,
		"next":  next,
		"v":     next,
		"dt_dx": splotval.Real(now.Sub(r.lastObserve).Seconds()),
		"dt_cs": splotval.Real(now.Sub(r.stateEnter).Seconds()),
		"dt_rt": splotval.Real(now.Sub(r.lastFire).Seconds()),
	}
	r.lastObserve = now
	expr := r.conditions[idx].Expr
	r.mu.Unlock()

	result, suppressed, err := expr.Eval(EvalContext{
		Vars:  vars,
		Stack: []splotval.Value{prev, next},
		Now:   now,
	})
	r.mu.Lock()
	if err != nil {
		r.trap = err.Error()
		r.mu.Unlock()
		return
	}
	if suppressed {
		r.mu.Unlock()
		return
	}
	r.prevValues[idx] = next
	r.values[idx] = result.Truthy()
	composite := r.compositeLocked()
	wasComposite := r.composite
	var stateChanged bool
	if composite != wasComposite {
		r.composite = composite
		r.stateEnter = now
		stateChanged = true
	}
	shouldFire := stateChanged && composite
	if shouldFire {
		r.count++
		r.lastFire = now
		r.trap = ""
	}
	actions := r.actions
	resolver := r.resolver
	r.mu.Unlock()

	if shouldFire {
		for _, a := range actions {
			a.Dispatch(resolver)
		}
	}
}

// compositeLocked computes the match-mode combination over every
// non-skipped condition's last known satisfaction. Must be called with
// r.mu held.
func (r *Rule) compositeLocked() bool {
	any := false
	all := true
	seen := false
	for i, c := range r.conditions {
		if c.Skip {
			continue
		}
		seen = true
		v := r.values[i]
		if v {
			any = true
		} else {
			all = false
		}
	}
	if !seen {
		return false
	}
	if r.mode == MatchAny {
		return any
	}
	return all
}
