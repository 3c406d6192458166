// Package tech implements the Technology Interface (spec §4.11): a
// per-protocol hosting registry for Things, native URI construction, and
// a discovery query builder. Grounded on the teacher's
// internal/service/at.go's named-provider registry pattern, generalized
// from "named LLM provider" to "hosted Thing".
package tech

import (
	"fmt"
	"net/url"

	"github.com/rakunlabs/splot/internal/reslink"
	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/thing"
)

// maxParentWalk bounds is_hosted's parent-chain walk per spec §4.11.
const maxParentWalk = 4

// Technology is the registry + URI-construction surface from spec §4.11.
type Technology struct {
	scheme    string
	authority string
	registry  *reslink.MapRegistry

	hosted map[string]hostEntry // uid -> entry
}

type hostEntry struct {
	thing   *thing.Thing
	native  bool
	isGroup bool
}

// New builds a Technology answering native URIs of the form
// "<scheme>://<authority>/...". scheme is typically "loop" for the
// in-process technology.
func New(scheme, authority string, registry *reslink.MapRegistry) *Technology {
	return &Technology{
		scheme:    scheme,
		authority: authority,
		registry:  registry,
		hosted:    make(map[string]hostEntry),
	}
}

// PrepareToHost runs any setup a Technology needs before accepting its
// first hosted Thing. The registry-backed Technology has none; it exists
// as a named hook so callers don't special-case it away.
func (tc *Technology) PrepareToHost() error { return nil }

// Host registers t with this Technology's Resource Link registry and
// marks it hosted. native marks whether t is implemented directly by this
// Technology (vs. proxied through to another one).
func (tc *Technology) Host(t *thing.Thing, native bool) error {
	if t == nil {
		return splotval.NewError(splotval.ErrTechnologyCannotHost, "nil thing")
	}
	tc.registry.AddThing(t)
	tc.hosted[t.UID()] = hostEntry{thing: t, native: native}
	return nil
}

// HostGroup is Host's Group counterpart: it also registers g for g/<gid>/
// URI resolution so discovery's must_be_group filter and the Resource
// Link Manager both see it.
func (tc *Technology) HostGroup(g *thing.Group, native bool) error {
	if g == nil {
		return splotval.NewError(splotval.ErrTechnologyCannotHost, "nil group")
	}
	tc.registry.AddGroup(g)
	tc.hosted[g.UID()] = hostEntry{thing: g.Thing, native: native, isGroup: true}
	return nil
}

// Unhost removes t from this Technology's registry.
func (tc *Technology) Unhost(t *thing.Thing) {
	if t == nil {
		return
	}
	delete(tc.hosted, t.UID())
	tc.registry.RemoveThing(t.UID())
}

// IsHosted reports whether t, or an ancestor within four parent links, is
// hosted by this Technology.
func (tc *Technology) IsHosted(t *thing.Thing) bool {
	cur := t
	for i := 0; cur != nil && i <= maxParentWalk; i++ {
		if _, ok := tc.hosted[cur.UID()]; ok {
			return true
		}
		cur = cur.Parent()
	}
	return false
}

// IsNative reports whether t is hosted natively (not proxied) by this
// Technology.
func (tc *Technology) IsNative(t *thing.Thing) bool {
	if t == nil {
		return false
	}
	entry, ok := tc.hosted[t.UID()]
	return ok && entry.native
}

// NativeURIForThing builds the thing-level URI from spec §6's grammar.
func (tc *Technology) NativeURIForThing(t *thing.Thing) string {
	return fmt.Sprintf("%s://%s/%s/", tc.scheme, tc.authority, t.UID())
}

// NativeURIForProperty builds a property (or method, when method=true) URI.
func (tc *Technology) NativeURIForProperty(t *thing.Thing, key splotval.TypedKey, method bool, mods splotval.ModifierSet) string {
	base := tc.NativeURIForThing(t)
	var path string
	if method {
		path = fmt.Sprintf("f/%s?%s", key.Trait, key.Name)
	} else {
		path = fmt.Sprintf("%s/%s/%s", key.Section.ShortID(), key.Trait, key.Name)
	}
	return withQuery(base+path, mods)
}

// NativeURIForSection builds a section URI (no trait/property segment).
func (tc *Technology) NativeURIForSection(t *thing.Thing, section splotval.Section, mods splotval.ModifierSet) string {
	base := tc.NativeURIForThing(t) + section.ShortID()
	return withQuery(base, mods)
}

func withQuery(base string, mods splotval.ModifierSet) string {
	q := mods.Encode()
	if q == "" {
		return base
	}
	return base + "?" + q
}

// RelativeURIForThing rebases uri, a local URI meaningful within this
// Technology, so it reads correctly as a property value on from — another
// Thing this Technology hosts. Per §9's open question, cross-technology
// rebasing is rejected rather than guessed at: both from and the URI's
// target must already be hosted here.
func (tc *Technology) RelativeURIForThing(from *thing.Thing, uri string) (string, error) {
	if from == nil || !tc.IsHosted(from) {
		return "", splotval.NewError(splotval.ErrUnacceptableThing, "rebase target thing is not hosted by this technology")
	}
	p, err := reslink.Parse(uri)
	if err != nil {
		return "", err
	}
	if !p.Local() {
		return "", splotval.NewError(splotval.ErrUnacceptableThing, "cannot rebase non-local uri %q", uri)
	}
	id := p.ThingID
	if id == "" {
		id = p.GroupID
	}
	if id == "" {
		return "", splotval.NewError(splotval.ErrUnacceptableThing, "uri %q names no thing", uri)
	}
	if _, ok := tc.hosted[id]; !ok {
		return "", splotval.NewError(splotval.ErrUnassociatedResource, "thing %q not hosted by this technology", id)
	}

	u, parseErr := url.Parse(uri)
	if parseErr != nil {
		return "", splotval.NewError(splotval.ErrInvalidValue, "rebase uri %q: %v", uri, parseErr)
	}
	rebased := url.URL{Scheme: tc.scheme, Host: tc.authority, Path: u.Path, RawQuery: u.RawQuery}
	return rebased.String(), nil
}

// HostedThings returns every Thing currently hosted, for Discover to walk.
func (tc *Technology) HostedThings() []*thing.Thing {
	out := make([]*thing.Thing, 0, len(tc.hosted))
	for _, e := range tc.hosted {
		out = append(out, e.thing)
	}
	return out
}
