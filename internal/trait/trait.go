// Package trait implements the Trait runtime from spec §4.4: a container
// for properties grouped into STATE/CONFIG/METADATA sections, dispatching
// get/set/invoke and signalling value changes upward to the owning Thing.
package trait

import (
	"sync"

	"github.com/rakunlabs/splot/internal/splotval"
)

// PropertyDef declares one property a trait exposes, with its capability
// flags and (for STATE properties) an optional trait-local default.
type PropertyDef struct {
	Key      splotval.TypedKey
	Caps     splotval.Capability
	Default  splotval.Value
}

// MethodDef declares one method a trait exposes.
type MethodDef struct {
	Key    splotval.TypedKey
	Params []splotval.TypedKey
}

// ChangeFunc is the upward "did_change_value" signal to the owning Thing.
type ChangeFunc func(key splotval.TypedKey, value splotval.Value)

// ValidateFunc lets a concrete trait reject a set when its current
// internal state is incompatible with the incoming value
// (BadStateForPropertyValue), beyond plain type coercion.
type ValidateFunc func(key splotval.TypedKey, value splotval.Value) error

// InvokeFunc implements a trait's method dispatch.
type InvokeFunc func(method splotval.TypedKey, args map[string]splotval.Value) (splotval.Value, error)

// propState is the per-property state machine position from spec §4.4.
type propState int

const (
	stateStable propState = iota
	stateValidating
	stateApplied
	stateNotifying
)

// Trait is the runtime contract every concrete trait (OnOff, Level,
// Scene, ...) implements, usually by embedding *Base.
type Trait interface {
	ShortID() string
	OnGet(key splotval.TypedKey) (splotval.Value, error)
	OnSet(key splotval.TypedKey, value splotval.Value) error
	OnInvoke(method splotval.TypedKey, args map[string]splotval.Value) (splotval.Value, error)
	OnCanSave(key splotval.TypedKey) bool
	Properties() []PropertyDef
	Methods() []MethodDef
	SetChangeFunc(fn ChangeFunc)
}

// Base is an embeddable trait implementation covering the shared
// bookkeeping: property storage, capability checks, the validating ->
// applied -> notifying state machine, and the upward change signal.
// Concrete traits embed Base and supply Validate/Invoke hooks for their
// own semantics.
type Base struct {
	shortID  string
	mu       sync.RWMutex
	props    []PropertyDef
	methods  []MethodDef
	values   map[string]splotval.Value
	state    map[string]propState
	onChange ChangeFunc

	// Validate is called after type coercion succeeds, so a trait can
	// reject a set whose value is well-typed but incompatible with its
	// current internal state (BadStateForPropertyValue).
	Validate ValidateFunc
	// Invoke implements method dispatch; nil means no methods are
	// invocable even if Methods() lists some (MethodNotFound).
	Invoke InvokeFunc
}

// NewBase constructs a Base with the given short trait id and property
// declarations, seeding each property's stored value from its declared
// default.
func NewBase(shortID string, props []PropertyDef, methods []MethodDef) *Base {
	b := &Base{
		shortID: shortID,
		props:   props,
		methods: methods,
		values:  make(map[string]splotval.Value, len(props)),
		state:   make(map[string]propState, len(props)),
	}
	for _, p := range props {
		b.values[p.Key.HashName()] = p.Default
		b.state[p.Key.HashName()] = stateStable
	}
	return b
}

func (b *Base) ShortID() string              { return b.shortID }
func (b *Base) Properties() []PropertyDef    { return b.props }
func (b *Base) Methods() []MethodDef         { return b.methods }
func (b *Base) SetChangeFunc(fn ChangeFunc)  { b.onChange = fn }

func (b *Base) findProp(key splotval.TypedKey) (PropertyDef, bool) {
	for _, p := range b.props {
		if p.Key.Equal(key) {
			return p, true
		}
	}
	return PropertyDef{}, false
}

func (b *Base) findMethod(key splotval.TypedKey) (MethodDef, bool) {
	for _, m := range b.methods {
		if m.Key.Equal(key) {
			return m, true
		}
	}
	return MethodDef{}, false
}

// OnGet implements the trait runtime contract's read path.
func (b *Base) OnGet(key splotval.TypedKey) (splotval.Value, error) {
	def, ok := b.findProp(key)
	if !ok {
		return splotval.Value{}, splotval.NewError(splotval.ErrPropertyNotFound, "%s", key)
	}
	if !def.Caps.Has(splotval.CapRead) {
		return splotval.Value{}, splotval.NewError(splotval.ErrPropertyWriteOnly, "%s", key)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values[key.HashName()], nil
}

// OnSet implements the trait runtime contract's write path, including the
// stable -> validating -> applied -> notifying -> stable state machine. A
// failed validation leaves the property in stable.
func (b *Base) OnSet(key splotval.TypedKey, value splotval.Value) error {
	def, ok := b.findProp(key)
	if !ok {
		return splotval.NewError(splotval.ErrPropertyNotFound, "%s", key)
	}
	if !def.Caps.Has(splotval.CapWrite) {
		return splotval.NewError(splotval.ErrPropertyReadOnly, "%s", key)
	}
	if def.Caps.Has(splotval.CapConstant) {
		return splotval.NewError(splotval.ErrPropertyReadOnly, "%s is constant", key)
	}

	name := key.HashName()
	b.mu.Lock()
	b.state[name] = stateValidating
	b.mu.Unlock()

	coerced, err := splotval.Coerce(value, def.Key.Type)
	if err != nil {
		b.mu.Lock()
		b.state[name] = stateStable
		b.mu.Unlock()
		return splotval.NewError(splotval.ErrInvalidPropertyValue, "%s: %v", key, err)
	}
	if b.Validate != nil {
		if err := b.Validate(key, coerced); err != nil {
			b.mu.Lock()
			b.state[name] = stateStable
			b.mu.Unlock()
			return err
		}
	}

	b.mu.Lock()
	b.state[name] = stateApplied
	b.values[name] = coerced
	b.state[name] = stateNotifying
	b.mu.Unlock()

	if def.Caps.Has(splotval.CapObservable) && b.onChange != nil {
		b.onChange(key, coerced)
	}

	b.mu.Lock()
	b.state[name] = stateStable
	b.mu.Unlock()
	return nil
}

// SetRaw stores a value directly, bypassing capability checks and the
// state machine's validation step but still firing the change signal.
// Used by the owning Thing for trait-internal mutation (e.g. transition
// ticks, scene application) that should not be rejected as read-only.
func (b *Base) SetRaw(key splotval.TypedKey, value splotval.Value) {
	name := key.HashName()
	b.mu.Lock()
	b.values[name] = value
	b.mu.Unlock()
	def, ok := b.findProp(key)
	if ok && def.Caps.Has(splotval.CapObservable) && b.onChange != nil {
		b.onChange(key, value)
	}
}

// OnInvoke implements the trait runtime contract's method dispatch path.
func (b *Base) OnInvoke(method splotval.TypedKey, args map[string]splotval.Value) (splotval.Value, error) {
	if _, ok := b.findMethod(method); !ok {
		return splotval.Value{}, splotval.NewError(splotval.ErrMethodNotFound, "%s", method)
	}
	if b.Invoke == nil {
		return splotval.Value{}, splotval.NewError(splotval.ErrMethodNotFound, "%s has no invoker", method)
	}
	return b.Invoke(method, args)
}

// OnCanSave reports whether a property is declared SAVABLE (its READ flag
// is not consulted), per §4.10's "copy every SAVABLE CONFIG/METADATA property".
func (b *Base) OnCanSave(key splotval.TypedKey) bool {
	def, ok := b.findProp(key)
	if !ok {
		return false
	}
	return def.Caps.Has(splotval.CapSavable)
}

// Get is a convenience accessor bypassing capability checks, used by the
// owning Thing for bookkeeping (e.g. reading the immediate value during a
// transition) where the READ flag does not apply.
func (b *Base) Get(key splotval.TypedKey) splotval.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values[key.HashName()]
}
