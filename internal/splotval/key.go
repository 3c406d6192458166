package splotval

import "fmt"

// Section partitions a trait's properties by volatility and observability.
type Section int

const (
	SectionState Section = iota
	SectionConfig
	SectionMetadata
	// sectionFunc is not a property section; it names the method
	// namespace "f" used by method keys.
	sectionFunc
)

// ShortID returns the single-letter section code used in the URI grammar.
func (s Section) ShortID() string {
	switch s {
	case SectionState:
		return "s"
	case SectionConfig:
		return "c"
	case SectionMetadata:
		return "m"
	case sectionFunc:
		return "f"
	default:
		return "?"
	}
}

func (s Section) String() string {
	switch s {
	case SectionState:
		return "STATE"
	case SectionConfig:
		return "CONFIG"
	case SectionMetadata:
		return "METADATA"
	case sectionFunc:
		return "FUNC"
	default:
		return "UNKNOWN"
	}
}

// SectionFromShortID parses a single-letter section code.
func SectionFromShortID(s string) (Section, error) {
	switch s {
	case "s":
		return SectionState, nil
	case "c":
		return SectionConfig, nil
	case "m":
		return SectionMetadata, nil
	case "f":
		return sectionFunc, nil
	default:
		return 0, NewError(ErrInvalidSection, "unknown section %q", s)
	}
}

// KeyKind distinguishes the three TypedKey variants.
type KeyKind int

const (
	KeyProperty KeyKind = iota
	KeyMethod
	KeyParam
)

// Capability is a bit flag describing what a property supports.
type Capability uint16

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapObservable
	CapResettable
	CapConstant
	CapRequired
	CapSavable
	CapTransitionable
	CapNoMutate
)

func (c Capability) Has(flag Capability) bool { return c&flag != 0 }

// TypedKey is a value-typed identifier: a name, an expected type, and (for
// property keys) a section and owning trait short id.
type TypedKey struct {
	Kind    KeyKind
	Name    string
	Type    Kind
	Section Section
	Trait   string
}

// NewPropertyKey builds a property key "<section>/<trait>/<short>".
func NewPropertyKey(section Section, trait, short string, typ Kind) TypedKey {
	return TypedKey{Kind: KeyProperty, Name: short, Type: typ, Section: section, Trait: trait}
}

// NewMethodKey builds a method key "f/<trait>?<short>".
func NewMethodKey(trait, short string, typ Kind) TypedKey {
	return TypedKey{Kind: KeyMethod, Name: short, Type: typ, Section: sectionFunc, Trait: trait}
}

// NewParamKey builds a bare parameter key.
func NewParamKey(name string, typ Kind) TypedKey {
	return TypedKey{Kind: KeyParam, Name: name, Type: typ}
}

// String renders the key in its URI-path form for property/method keys, or
// the bare name for parameter keys.
func (k TypedKey) String() string {
	switch k.Kind {
	case KeyProperty:
		return fmt.Sprintf("%s/%s/%s", k.Section.ShortID(), k.Trait, k.Name)
	case KeyMethod:
		return fmt.Sprintf("f/%s?%s", k.Trait, k.Name)
	default:
		return k.Name
	}
}

// typeAssignable reports whether a value of kind `from` may stand in for a
// declared kind `to`. KindObject is the universal supertype.
func typeAssignable(from, to Kind) bool {
	return to == KindObject || from == KindObject || from == to
}

// Equal implements spec §4.1's key-equality rule: same name AND (one type
// is assignable from the other). This is deliberately asymmetric-safe so a
// base Object-typed key matches a specifically-typed one in either
// direction.
func (k TypedKey) Equal(o TypedKey) bool {
	if k.Name != o.Name || k.Kind != o.Kind {
		return false
	}
	if k.Kind == KeyProperty && k.Section != o.Section {
		return false
	}
	if k.Kind != KeyParam && k.Trait != o.Trait {
		return false
	}
	return typeAssignable(k.Type, o.Type) || typeAssignable(o.Type, k.Type)
}

// HashName is the hash key used by map-backed property tables: hashing
// uses the name alone, per spec §3.
func (k TypedKey) HashName() string { return k.Name }
