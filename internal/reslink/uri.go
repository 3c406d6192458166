// Package reslink implements the Resource Link Manager from spec §4.7: URI
// resolution against local Things and Groups, plus a pluggable factory for
// remote-scheme URIs backed by a host-supplied transport.
package reslink

import (
	"net/url"
	"strings"

	"github.com/rakunlabs/splot/internal/splotval"
)

// LoopScheme designates the in-process loopback per spec §6.
const LoopScheme = "loop"

// ParsedURI is the decomposed form of a resource URI per spec §6's grammar:
// `<scheme>://<authority>/<thing-id>/` (or `g/<gid>/` in place of the
// thing-id), then `s|c|m/<trait>/<short>` for a property or
// `f/<trait>?<short>` for a method.
type ParsedURI struct {
	Raw       string
	Scheme    string
	Authority string

	GroupID string // set instead of ThingID when the group prefix is used
	ThingID string

	IsMethod bool
	Section  splotval.Section // valid only when !IsMethod
	Trait    string
	Short    string

	Mods splotval.ModifierSet
}

// Local reports whether the URI addresses the in-process loopback: scheme
// `loop` or no scheme at all (a bare absolute path).
func (p *ParsedURI) Local() bool {
	return p.Scheme == "" || p.Scheme == LoopScheme
}

// Parse decomposes a resource URI. raw may be a full `scheme://authority/...`
// URI or a bare absolute path (`/thing-id/s/trait/short`), both of which are
// "local" per spec §4.7.
func Parse(raw string) (*ParsedURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, splotval.NewError(splotval.ErrInvalidValue, "bad resource uri %q: %v", raw, err)
	}

	p := &ParsedURI{Raw: raw, Scheme: u.Scheme, Authority: u.Host}

	segments := splitPath(u.Path)
	i := 0
	if len(segments) >= 2 && segments[0] == "g" {
		p.GroupID = segments[1]
		i = 2
	} else if len(segments) >= 1 {
		p.ThingID = segments[0]
		i = 1
	}
	if i >= len(segments) {
		return nil, splotval.NewError(splotval.ErrInvalidValue, "resource uri %q missing section/method segment", raw)
	}

	sectionSeg := segments[i]
	i++
	query := u.RawQuery
	if sectionSeg == "f" {
		if i >= len(segments) {
			return nil, splotval.NewError(splotval.ErrInvalidValue, "resource uri %q missing method segment", raw)
		}
		p.IsMethod = true
		// url.Parse has already moved "?<short>[&modifiers]" into RawQuery.
		short, rest, _ := strings.Cut(query, "&")
		if short == "" {
			return nil, splotval.NewError(splotval.ErrInvalidValue, "resource uri %q: method segment must be <trait>?<short>", raw)
		}
		p.Trait, p.Short = segments[i], short
		query = rest
	} else {
		section, err := splotval.SectionFromShortID(sectionSeg)
		if err != nil {
			return nil, err
		}
		if i+1 >= len(segments) {
			return nil, splotval.NewError(splotval.ErrInvalidValue, "resource uri %q missing trait/short segments", raw)
		}
		p.Section = section
		p.Trait = segments[i]
		p.Short = segments[i+1]
	}

	mods, err := splotval.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	p.Mods = mods
	return p, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// PropertyKey builds the TypedKey a property URI addresses.
func (p *ParsedURI) PropertyKey() splotval.TypedKey {
	return splotval.NewPropertyKey(p.Section, p.Trait, p.Short, splotval.KindObject)
}

// MethodKey builds the TypedKey a method URI addresses.
func (p *ParsedURI) MethodKey() splotval.TypedKey {
	return splotval.NewMethodKey(p.Trait, p.Short, splotval.KindObject)
}
