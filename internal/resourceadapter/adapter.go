// internal/resourceadapter/adapter.go
// Package resourceadapter implements the version-aware Resource Adapter (C8):
// translating a domain.Resource into the shape a peer at a given protocol
// version can parse, dropping what it cannot express.
//
// Per-version behavior is table-driven through internal/plugins, the
// teacher's runtime plugin registry (internal/plugins/registry.go):
// each version bucket registers a Strategy under plugins.Kind
// "resource_adapter", and Adapt looks the right one up instead of branching
// inline. This keeps the legacy glob transformer (the part spec.md singles
// out as behaviorally load-bearing, §9) isolated and independently testable
// in glob.go while still being swappable the way the teacher's
// encoder/sampler/exporter plugins are.
package resourceadapter

import (
	"fmt"

	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/plugins"
)

// Verdict is the adapter's disposition for one Resource.
type Verdict string

const (
	Cont Verdict = "cont"
	Drop Verdict = "drop"
)

// FilterEntry is one flattened {protocol, port_range_start, port_range_end}
// tuple. Start == End == 0 means "all ports for this protocol".
type FilterEntry struct {
	Protocol string
	PortRangeStart uint16
	PortRangeEnd   uint16
}

// ResourceView is the wire shape pushed to a Gateway or Client. Address,
// Name, and Filters are omitted (zero value) for the internet singleton.
type ResourceView struct {
	ID      string
	Type    string
	Name    string
	Address string
	Filters []FilterEntry
}

const adapterKind plugins.Kind = "resource_adapter"

// Strategy is what each version bucket registers: given a non-internet,
// already-validated Resource, produce its view or drop it.
type Strategy interface {
	plugins.Plugin
	Adapt(r domain.Resource) (ResourceView, Verdict)
}

func init() {
	plugins.Register(currentStrategy{})
	plugins.Register(legacyStrategy{})
}

// currentStrategy handles peers at version >= 1.2.0: pass-through with
// filters expanded to a flat list.
type currentStrategy struct{}

func (currentStrategy) Kind() plugins.Kind { return adapterKind }
func (currentStrategy) Name() string       { return "current" }
func (currentStrategy) Init() (any, error) { return nil, nil }
func (currentStrategy) Adapt(r domain.Resource) (ResourceView, Verdict) {
	return ResourceView{
		ID:      r.ID,
		Type:    string(r.Type),
		Name:    r.Name,
		Address: r.Address,
		Filters: expandFilters(r.Filters),
	}, Cont
}

// legacyStrategy handles peers at version < 1.2.0: only DNS addresses need
// glob rewriting; filters are not sent (legacy peers have no filter wire
// shape to receive them in).
type legacyStrategy struct{}

func (legacyStrategy) Kind() plugins.Kind { return adapterKind }
func (legacyStrategy) Name() string       { return "legacy" }
func (legacyStrategy) Init() (any, error) { return nil, nil }
func (legacyStrategy) Adapt(r domain.Resource) (ResourceView, Verdict) {
	address := r.Address
	if r.Type == domain.ResourceDNS {
		rewritten, ok := legacyGlob(r.Address)
		if !ok {
			return ResourceView{}, Drop
		}
		address = rewritten
	}
	return ResourceView{ID: r.ID, Type: string(r.Type), Name: r.Name, Address: address}, Cont
}

func strategy(name string) Strategy {
	p, ok := plugins.Lookup(adapterKind, name)
	if !ok {
		panic(fmt.Sprintf("resourceadapter: no strategy registered for %q", name))
	}
	s, ok := p.(Strategy)
	if !ok {
		panic(fmt.Sprintf("resourceadapter: plugin %q does not implement Strategy", name))
	}
	return s
}

// Adapt is the C8 entry point. The internet singleton's version gate
// (>= 1.3.0) is handled here since it is an invariant of the resource type
// itself, not a per-version rendering strategy.
func Adapt(r domain.Resource, peerVersion Version) (ResourceView, Verdict) {
	if r.Type == domain.ResourceInternet {
		if !peerVersion.AtLeast(v130) {
			return ResourceView{}, Drop
		}
		return ResourceView{ID: r.ID, Type: string(r.Type)}, Cont
	}

	if peerVersion.AtLeast(v120) {
		return strategy("current").Adapt(r)
	}
	return strategy("legacy").Adapt(r)
}

// expandFilters flattens Filters into one FilterEntry per explicit port or
// range; a filter with no explicit ports means "all ports" and is encoded as
// a single (0,0) entry.
func expandFilters(filters []domain.Filter) []FilterEntry {
	var out []FilterEntry
	for _, f := range filters {
		if len(f.Ports) == 0 {
			out = append(out, FilterEntry{Protocol: string(f.Protocol)})
			continue
		}
		for _, pr := range f.Ports {
			out = append(out, FilterEntry{Protocol: string(f.Protocol), PortRangeStart: pr.Start, PortRangeEnd: pr.End})
		}
	}
	return out
}
