package automation

import (
	"github.com/rakunlabs/splot/internal/future"
	"github.com/rakunlabs/splot/internal/reslink"
	"github.com/rakunlabs/splot/internal/splotval"
)

// LinkResolver is the subset of reslink.Manager's contract automation
// consumes: turning a resource URI into a Link. Exists so tests can stub
// resolution without a full Registry.
type LinkResolver interface {
	Resolve(uri string) (reslink.Link, error)
}

// ActionMethod selects the mutation mode an Action dispatches, mirroring
// the modifier-set mutation tags from spec §6.
type ActionMethod string

const (
	ActionSet       ActionMethod = "set"
	ActionIncrement ActionMethod = "inc"
	ActionToggle    ActionMethod = "tog"
	ActionInsert    ActionMethod = "ins"
	ActionRemove    ActionMethod = "rem"
	ActionInvoke    ActionMethod = "invoke"
)

// Action is the (method, path, body) record from spec §4.9, dispatched via
// the Resource Link of path.
type Action struct {
	Method ActionMethod
	Path   string
	Body   splotval.Value
	Args   map[string]splotval.Value // used only when Method == ActionInvoke
}

// Dispatch resolves the Action's path and applies it.
func (a Action) Dispatch(resolver LinkResolver) *future.Future {
	link, err := resolver.Resolve(a.Path)
	if err != nil {
		return future.Failed(err)
	}
	switch a.Method {
	case ActionInvoke:
		return link.Invoke(a.Args)
	case ActionIncrement:
		return link.Apply(a.Body, splotval.ModifierSet{Mutation: splotval.MutationIncrement})
	case ActionToggle:
		return link.Apply(splotval.Null(), splotval.ModifierSet{Mutation: splotval.MutationToggle})
	case ActionInsert:
		return link.Apply(a.Body, splotval.ModifierSet{Mutation: splotval.MutationInsert})
	case ActionRemove:
		return link.Apply(a.Body, splotval.ModifierSet{Mutation: splotval.MutationRemove})
	default:
		return link.Apply(a.Body, splotval.ModifierSet{})
	}
}
