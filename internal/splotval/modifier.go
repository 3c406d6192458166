package splotval

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// MutationTag selects the at-most-one special mutation mode carried by a
// modifier set.
type MutationTag int

const (
	MutationNone MutationTag = iota
	MutationIncrement
	MutationToggle
	MutationInsert
	MutationRemove
)

// ModifierSet is the bag of tagged values accompanying a mutation
// operation: Duration, TransitionTarget, All, and exactly one mutation tag.
type ModifierSet struct {
	Duration         time.Duration
	HasDuration      bool
	TransitionTarget bool
	All              bool
	Mutation         MutationTag
}

// ParseQuery parses a modifier set from a URI query string per spec §6.
// `&`-separated keys: d=<seconds-or-duration>, tt, all, tog|inc|ins|rem
// (at most one mutation tag).
func ParseQuery(q string) (ModifierSet, error) {
	var ms ModifierSet
	if q == "" {
		return ms, nil
	}
	mutationSeen := false
	for _, part := range strings.Split(q, "&") {
		if part == "" {
			continue
		}
		key, val, hasVal := strings.Cut(part, "=")
		switch key {
		case "d":
			d, err := parseDurationModifier(val)
			if err != nil {
				return ModifierSet{}, NewError(ErrInvalidModifierList, "bad duration modifier %q: %v", val, err)
			}
			if d < 0 {
				d = 0
			}
			ms.Duration = d
			ms.HasDuration = true
		case "tt":
			ms.TransitionTarget = true
		case "all":
			ms.All = true
		case "tog", "inc", "ins", "rem":
			if mutationSeen {
				return ModifierSet{}, NewError(ErrInvalidModifierList, "more than one mutation tag present")
			}
			mutationSeen = true
			switch key {
			case "tog":
				ms.Mutation = MutationToggle
			case "inc":
				ms.Mutation = MutationIncrement
			case "ins":
				ms.Mutation = MutationInsert
			case "rem":
				ms.Mutation = MutationRemove
			}
		default:
			if hasVal {
				return ModifierSet{}, NewError(ErrInvalidModifierList, "unrecognized modifier key %q", key)
			}
			return ModifierSet{}, NewError(ErrInvalidModifierList, "unrecognized modifier key %q", key)
		}
	}
	return ms, nil
}

func parseDurationModifier(s string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return str2duration.ParseDuration(s)
}

// Encode renders the modifier set back to a query string. Together with
// ParseQuery this satisfies the round-trip invariant of spec §8:
// ParseQuery(ms.Encode()) == ms for every valid modifier set.
func (ms ModifierSet) Encode() string {
	var parts []string
	if ms.HasDuration {
		parts = append(parts, "d="+strconv.FormatFloat(ms.Duration.Seconds(), 'g', -1, 64))
	}
	if ms.TransitionTarget {
		parts = append(parts, "tt")
	}
	if ms.All {
		parts = append(parts, "all")
	}
	switch ms.Mutation {
	case MutationToggle:
		parts = append(parts, "tog")
	case MutationIncrement:
		parts = append(parts, "inc")
	case MutationInsert:
		parts = append(parts, "ins")
	case MutationRemove:
		parts = append(parts, "rem")
	}
	return strings.Join(parts, "&")
}

// Validate enforces the at-most-one-mutation-tag invariant for modifier
// sets constructed programmatically rather than parsed from a query.
func (ms ModifierSet) Validate() error {
	switch ms.Mutation {
	case MutationNone, MutationIncrement, MutationToggle, MutationInsert, MutationRemove:
		return nil
	default:
		return NewError(ErrInvalidModifierList, "unknown mutation tag %d", ms.Mutation)
	}
}

// ParseURLQuery is a convenience wrapper accepting a net/url.Values-style
// raw query (the form found after the '?' in a full URI).
func ParseURLQuery(raw string) (ModifierSet, error) {
	unescaped, err := url.QueryUnescape(raw)
	if err != nil {
		unescaped = raw
	}
	return ParseQuery(unescaped)
}
