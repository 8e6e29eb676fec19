package addrtable

import (
	"strings"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

// ProviderInfo is the addrtable package's exported view of a provider,
// handed to the dispatcher and proxy layer without leaking the internal
// node/table representation.
type ProviderInfo struct {
	Identity types.ProcessID
	Kind types.ProviderKind
	Handler *types.Handler // set only for a ProviderLocal flat (service-root) handler
	ProxyRef interface{} // opaque handle into pkg/o2/proxy for non-local kinds
	Properties types.Properties
}

func (p *provider) info() ProviderInfo {
	return ProviderInfo{
		Identity: p.identity,
		Kind: p.kind,
		Handler: p.handler,
		ProxyRef: p.proxyRef,
		Properties: p.properties,
	}
}

// AddressTable is the service map + full-path map + pattern tree, keyed
// off a single local process identity used to order inserted local
// providers against remote ones.
type AddressTable struct {
	local types.ProcessID
	services *table
	fullPath map[string]*types.Handler
}

// New builds an empty AddressTable for the given local process identity.
func New(local types.ProcessID) *AddressTable {
	return &AddressTable{
		local: local,
		services: newTable(),
		fullPath: make(map[string]*types.Handler),
	}
}

func (t *AddressTable) entryFor(name string, create bool) *serviceEntry {
	if n := t.services.get(name); n != nil {
		return n.(*serviceEntry)
	}
	if !create {
		return nil
	}
	e := &serviceEntry{name: name}
	t.services.put(name, e)
	return e
}

func (t *AddressTable) localProvider(e *serviceEntry, create bool) *provider {
	for _, p := range e.providers {
		if p.identity == t.local && p.kind == types.ProviderLocal {
			return p
		}
	}
	if !create {
		return nil
	}
	p := &provider{identity: t.local, kind: types.ProviderLocal}
	e.insertProvider(p)
	return p
}

// InstallHandler installs h at address (a literal "/svc/a/b" path, no
// wildcards) as a local handler. A flat service-root handler and a nested
// subtree are mutually exclusive for a given service's local provider;
// attempting to install one while the other already exists fails with
// ErrServiceConflict. Installing the same address twice silently replaces
// the existing handler. h.Address is set to address.
func (t *AddressTable) InstallHandler(address string, h *types.Handler) error {
	serviceName, segments, err := splitAddress(address)
	if err != nil {
		return err
	}
	h.Address = address
	e := t.entryFor(serviceName, true)
	p := t.localProvider(e, true)

	if len(segments) == 0 {
		if p.subtree != nil {
			return types.ErrServiceConflict
		}
		p.handler = h
		t.fullPath[address] = h
		return nil
	}

	if p.handler != nil {
		return types.ErrServiceConflict
	}
	if p.subtree == nil {
		p.subtree = newHashNode(serviceName)
	}

	cur := p.subtree
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur.children.put(seg, &handlerEntry{key: seg, handler: h})
			break
		}
		child := cur.children.get(seg)
		if child == nil {
			hn := newHashNode(seg)
			cur.children.put(seg, hn)
			cur = hn
		} else if hn, ok := child.(*hashNode); ok {
			cur = hn
		} else {
			return types.ErrServiceConflict
		}
	}
	t.fullPath[address] = h
	return nil
}

// InstallProvider adds a remote/OSC/lite-bridge provider for service,
// inserting it into the provider list per the active-provider ordering
// invariant, and reports whether the active provider changed.
func (t *AddressTable) InstallProvider(service string, identity types.ProcessID, kind types.ProviderKind, proxyRef interface{}, props types.Properties) (activeChanged bool) {
	e := t.entryFor(service, true)
	before := e.active()
	p := &provider{identity: identity, kind: kind, proxyRef: proxyRef, properties: props}
	e.insertProvider(p)
	after := e.active()
	return before != after
}

// RemoveProvider removes identity's provider from service. Returns whether
// the provider existed, whether it had been the active provider, and the
// new active provider (nil if none remains) — callers use this to decide
// whether an /_o2/si status broadcast is needed.
func (t *AddressTable) RemoveProvider(service string, identity types.ProcessID) (removed, wasActive bool, newActive *ProviderInfo) {
	e := t.entryFor(service, false)
	if e == nil {
		return false, false, nil
	}
	before := len(e.providers)
	wasActive, newActiveProvider := e.removeProvider(identity)
	removed = len(e.providers) != before
	if newActiveProvider != nil {
		info := newActiveProvider.info()
		newActive = &info
	}
	if len(e.providers) == 0 && len(e.taps) == 0 {
		t.services.remove(service)
		t.removeFullPathsFor(service)
	}
	return removed, wasActive, newActive
}

func (t *AddressTable) removeFullPathsFor(service string) {
	prefix := "/" + service
	for addr := range t.fullPath {
		if addr == prefix || strings.HasPrefix(addr, prefix+"/") {
			delete(t.fullPath, addr)
		}
	}
}

// ActiveProvider returns service's current active provider.
func (t *AddressTable) ActiveProvider(service string) (ProviderInfo, bool) {
	e := t.entryFor(service, false)
	if e == nil {
		return ProviderInfo{}, false
	}
	p := e.active()
	if p == nil {
		return ProviderInfo{}, false
	}
	return p.info(), true
}

// Providers returns every provider currently registered for service, in
// active-first order.
func (t *AddressTable) Providers(service string) []ProviderInfo {
	e := t.entryFor(service, false)
	if e == nil {
		return nil
	}
	out := make([]ProviderInfo, len(e.providers))
	for i, p := range e.providers {
		out[i] = p.info()
	}
	return out
}

// LocalServiceNames returns the name of every service this process
// provides locally, for advertising in a /_o2/sv reply.
func (t *AddressTable) LocalServiceNames() []string {
	var names []string
	t.services.each(func(key string, n node) {
		e, ok := n.(*serviceEntry)
		if !ok {
			return
		}
		for _, p := range e.providers {
			if p.identity == t.local && p.kind == types.ProviderLocal {
				names = append(names, e.name)
				return
			}
		}
	})
	return names
}

// AddTap attaches a tap to tappee, creating the tappee service entry
// (providerless) if it doesn't exist yet.
func (t *AddressTable) AddTap(tappee, tapperService string, tapperProcess types.ProcessID) {
	e := t.entryFor(tappee, true)
	e.taps = append(e.taps, types.TapInfo{TapperService: tapperService, TapperProcess: tapperProcess})
}

// RemoveTap detaches a previously-added tap, removing the tappee entry if
// it is left with no providers and no other taps.
func (t *AddressTable) RemoveTap(tappee, tapperService string, tapperProcess types.ProcessID) bool {
	e := t.entryFor(tappee, false)
	if e == nil {
		return false
	}
	for i, tap := range e.taps {
		if tap.TapperService == tapperService && tap.TapperProcess == tapperProcess {
			e.taps = append(e.taps[:i], e.taps[i+1:]...)
			if len(e.providers) == 0 && len(e.taps) == 0 {
				t.services.remove(tappee)
			}
			return true
		}
	}
	return false
}

// Taps returns every tap currently attached to service.
func (t *AddressTable) Taps(service string) []types.TapInfo {
	e := t.entryFor(service, false)
	if e == nil {
		return nil
	}
	return append([]types.TapInfo(nil), e.taps...)
}

// DispatchResult is the outcome of resolving an address: either a set of
// local handlers to invoke (more than one only when the address used a
// wildcard), or a remote/OSC/lite provider to forward the original
// message to.
type DispatchResult struct {
	Handlers []*types.Handler
	Remote *ProviderInfo
}

// Dispatch resolves address to either local handlers or a remote provider,
// six-step lookup.
func (t *AddressTable) Dispatch(address string) (DispatchResult, error) {
	if len(address) == 0 {
		return DispatchResult{}, types.ErrBadName
	}
	forceFullHash := false
	normalized := address
	if address[0] == '!' {
		forceFullHash = true
		normalized = "/" + address[1:]
	} else if address[0] != '/' {
		return DispatchResult{}, types.ErrBadName
	}

	serviceName, segments, err := splitAddress(normalized)
	if err != nil {
		return DispatchResult{}, err
	}

	e := t.entryFor(serviceName, false)
	if e == nil {
		return DispatchResult{}, types.ErrNoService
	}
	active := e.active()
	if active == nil {
		return DispatchResult{}, types.ErrNoService
	}
	if active.kind != types.ProviderLocal {
		info := active.info()
		return DispatchResult{Remote: &info}, nil
	}

	if len(segments) == 0 {
		if active.handler != nil {
			return DispatchResult{Handlers: []*types.Handler{active.handler}}, nil
		}
		return DispatchResult{}, types.ErrNoService
	}

	if forceFullHash || !addressHasWildcard(segments) {
		if h, ok := t.fullPath[normalized]; ok {
			return DispatchResult{Handlers: []*types.Handler{h}}, nil
		}
		if forceFullHash {
			return DispatchResult{}, nil
		}
	}

	if active.subtree == nil {
		return DispatchResult{}, nil
	}
	var matches []*types.Handler
	collectMatches(active.subtree, segments, &matches)
	return DispatchResult{Handlers: matches}, nil
}

func collectMatches(n *hashNode, segments []string, out *[]*types.Handler) {
	seg := segments[0]
	rest := segments[1:]
	n.children.each(func(key string, child node) {
		if !matchSegment(seg, key) {
			return
		}
		switch c := child.(type) {
		case *handlerEntry:
			if len(rest) == 0 {
				*out = append(*out, c.handler)
			}
		case *hashNode:
			if len(rest) > 0 {
				collectMatches(c, rest, out)
			}
		}
	})
}

func addressHasWildcard(segments []string) bool {
	for _, s := range segments {
		if hasWildcard(s) {
			return true
		}
	}
	return false
}

// splitAddress splits a normalized "/service/a/b" address into its service
// name and remaining path segments.
func splitAddress(address string) (service string, segments []string, err error) {
	if len(address) < 2 || address[0] != '/' {
		return "", nil, types.ErrBadName
	}
	rest := address[1:]
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return rest, nil, nil
	}
	service = rest[:idx]
	tail := rest[idx+1:]
	if tail == "" {
		return service, nil, nil
	}
	return service, strings.Split(tail, "/"), nil
}
