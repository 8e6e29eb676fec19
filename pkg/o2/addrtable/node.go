package addrtable

import "github.com/o2ensemble/o2/pkg/o2/types"

// nodeTag distinguishes the small closed set of concrete node kinds so the
// pattern tree can dispatch on a tag instead of deep type assertions.
type nodeTag int

const (
	tagHash nodeTag = iota
	tagHandler
	tagServices
)

// node is implemented by every hash/pattern-tree entry.
type node interface {
	tag() nodeTag
	nodeKey() string
}

// hashNode is an interior subtree: a named hash table of children, used
// both as the top-level service-name table and as interior pattern-tree
// levels below a service.
type hashNode struct {
	key string
	children *table
}

func newHashNode(key string) *hashNode {
	return &hashNode{key: key, children: newTable()}
}

func (n *hashNode) tag() nodeTag { return tagHash }
func (n *hashNode) nodeKey() string { return n.key }

// handlerEntry is a pattern-tree leaf: one installed Handler.
type handlerEntry struct {
	key string
	handler *types.Handler
}

func (n *handlerEntry) tag() nodeTag { return tagHandler }
func (n *handlerEntry) nodeKey() string { return n.key }

// serviceEntry is a top-level service-map entry: an ordered provider list
// (providers[0] is active, ordering invariant) plus the tap list.
type serviceEntry struct {
	name string
	providers []*provider
	taps []types.TapInfo
}

func (n *serviceEntry) tag() nodeTag { return tagServices }
func (n *serviceEntry) nodeKey() string { return n.name }

// provider binds a service to one concrete backing: a local subtree
// (hashNode), a single local handler, or a remote/OSC/lite proxy
// identified by a ProcessID for ordering.
type provider struct {
	identity types.ProcessID
	kind types.ProviderKind
	subtree *hashNode // ProviderLocal with nested addressing
	handler *types.Handler // ProviderLocal with a single leaf handler
	proxyRef interface{} // opaque handle into pkg/o2/proxy for remote/OSC/lite kinds
	properties types.Properties
}

// insertProvider inserts p into the entry's provider list, keeping it
// ordered with the lexicographically greatest identity first.
func (e *serviceEntry) insertProvider(p *provider) {
	for i, existing := range e.providers {
		if existing.identity.Less(p.identity) {
			e.providers = append(e.providers, nil)
			copy(e.providers[i+1:], e.providers[i:])
			e.providers[i] = p
			return
		}
	}
	e.providers = append(e.providers, p)
}

// active returns the current active provider, or nil if the
// service has none.
func (e *serviceEntry) active() *provider {
	if len(e.providers) == 0 {
		return nil
	}
	return e.providers[0]
}

// removeProvider removes the provider with the given identity, returning
// whether the removed provider had been active and the new active
// provider (nil if none remains).
func (e *serviceEntry) removeProvider(identity types.ProcessID) (wasActive bool, newActive *provider) {
	for i, p := range e.providers {
		if p.identity == identity {
			wasActive = i == 0
			e.providers = append(e.providers[:i], e.providers[i+1:]...)
			break
		}
	}
	return wasActive, e.active()
}
