package thing

import (
	"context"
	"strings"
	"sync"

	"github.com/rakunlabs/splot/internal/future"
	"github.com/rakunlabs/splot/internal/sched"
	"github.com/rakunlabs/splot/internal/splotval"
	"github.com/rakunlabs/splot/internal/trait"
)

// Group implements spec §4.8: a Thing whose STATE writes fan out by
// reference to every member Thing instead of being stored locally.
// CONFIG and METADATA stay Group-local and flow through the embedded
// Thing's ordinary trait machinery.
type Group struct {
	*Thing

	groupID  string
	reliable bool

	mu      sync.RWMutex
	members map[string]*Thing
}

// NewGroup constructs a Group Thing. When reliable is true a member write
// failure fails the fan-out future with an aggregate error; when false,
// failures are collected but the fan-out still reports success, matching
// the "never abort the fan-out" rule for best-effort groups.
func NewGroup(uid, groupID string, sch *sched.Scheduler, reliable bool, opts ...Option) *Group {
	g := &Group{
		groupID:  groupID,
		reliable: reliable,
		members:  make(map[string]*Thing),
	}
	groupTrait := trait.NewGroupTrait(g.invoke)
	g.Thing = New(uid, sch, []trait.Trait{groupTrait}, opts...)
	return g
}

// GroupID returns the Group's immutable identifier.
func (g *Group) GroupID() string { return g.groupID }

func (g *Group) invoke(method splotval.TypedKey, args map[string]splotval.Value) (splotval.Value, error) {
	uriVal, ok := args["uri"]
	if !ok {
		return splotval.Value{}, splotval.NewError(splotval.ErrInvalidMethodArguments, "uri is required")
	}
	uriURL, ok := uriVal.AsUri()
	if !ok || uriURL == nil {
		return splotval.Value{}, splotval.NewError(splotval.ErrInvalidMethodArguments, "uri must be a Uri value")
	}
	uri := uriURL.String()
	switch method.Name {
	case "add":
		return splotval.Null(), g.addMemberURI(uri)
	case "remove":
		return splotval.Null(), g.removeMemberURI(uri)
	default:
		return splotval.Value{}, splotval.NewError(splotval.ErrMethodNotFound, "%s", method)
	}
}

// AddMember registers m as a group member by reference. The Group does not
// take ownership: deleting the Group never deletes its members.
func (g *Group) AddMember(m *Thing) {
	g.mu.Lock()
	g.members[m.UID()] = m
	g.mu.Unlock()
	g.appendLocalMember(m.UID())
}

// RemoveMember drops m from the member set without deleting it.
func (g *Group) RemoveMember(uid string) {
	g.mu.Lock()
	delete(g.members, uid)
	g.mu.Unlock()
	g.removeLocalMember(uid)
}

// Members returns the current member set.
func (g *Group) Members() []*Thing {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Thing, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	return out
}

func (g *Group) addMemberURI(uri string) error {
	uid := memberUIDFromURI(uri)
	g.appendLocalMember(uid)
	return nil
}

func (g *Group) removeMemberURI(uri string) error {
	uid := memberUIDFromURI(uri)
	g.mu.Lock()
	delete(g.members, uid)
	g.mu.Unlock()
	g.removeLocalMember(uid)
	return nil
}

// memberUIDFromURI extracts the member's own id from its resource uri for
// CONF_LOCAL_MEMBERS bookkeeping; actual resolution to a *Thing happens
// through the resource link manager and is wired via AddMember.
func memberUIDFromURI(uri string) string {
	parts := strings.Split(strings.TrimRight(uri, "/"), "/")
	return parts[len(parts)-1]
}

func (g *Group) appendLocalMember(uid string) {
	tr, ok := g.Thing.Trait("grp")
	if !ok {
		return
	}
	cur, _ := tr.OnGet(trait.KeyLocalMembers)
	arr, _ := cur.AsArray()
	for _, e := range arr {
		if s, _ := e.AsStr(); s == uid {
			return
		}
	}
	_ = tr.OnSet(trait.KeyLocalMembers, splotval.Array(append(arr, splotval.Str(uid))))
}

func (g *Group) removeLocalMember(uid string) {
	tr, ok := g.Thing.Trait("grp")
	if !ok {
		return
	}
	cur, _ := tr.OnGet(trait.KeyLocalMembers)
	arr, _ := cur.AsArray()
	out := arr[:0:0]
	for _, e := range arr {
		if s, _ := e.AsStr(); s != uid {
			out = append(out, e)
		}
	}
	_ = tr.OnSet(trait.KeyLocalMembers, splotval.Array(out))
}

// GroupSetState fans a STATE set out to every current member, per spec
// §4.8: CONFIG/METADATA are never group-scoped, so callers must use the
// embedded Thing's SetProperty directly for those sections.
func (g *Group) GroupSetState(key splotval.TypedKey, value splotval.Value, mods splotval.ModifierSet) *future.Future {
	if key.Section != splotval.SectionState {
		return future.Failed(splotval.NewError(splotval.ErrGroupsNotSupported, "group fan-out applies to STATE only"))
	}
	return g.submit(func() (splotval.Value, error) {
		members := g.Members()
		var wg sync.WaitGroup
		var mu sync.Mutex
		var failed int
		var lastErr error
		for _, m := range members {
			wg.Add(1)
			go func(m *Thing) {
				defer wg.Done()
				f := m.SetProperty(key, value, mods)
				if _, err := f.Wait(context.Background()); err != nil {
					mu.Lock()
					failed++
					lastErr = err
					mu.Unlock()
				}
			}(m)
		}
		wg.Wait()
		if failed > 0 && g.reliable {
			return splotval.Value{}, splotval.NewError(splotval.ErrGroupNotAvailable, "%d/%d member writes failed: %v", failed, len(members), lastErr)
		}
		return value, nil
	})
}

// GroupSaveScene fans a scene save out to every member that has the Scene
// capability enabled, skipping members that don't.
func (g *Group) GroupSaveScene(sceneID string) {
	for _, m := range g.Members() {
		if m.scene != nil {
			m.scene.Save(sceneID)
		}
	}
}
