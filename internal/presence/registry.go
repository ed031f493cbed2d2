// internal/presence/registry.go
// Package presence implements the Presence Registry (C3): three namespaces
// (Clients, Gateways, Relays) tracking who is currently connected. Each
// namespace is a map[id]entry guarded by its own mutex; when a holder
// disappears its entry is removed and a Diff is published on the namespace's
// per-account topic.
//
// The Relay namespace additionally satisfies the CRDT property in Invariant 7
// and is implemented separately in relay.go: its identifier is a pure
// function of a relay-chosen stamp_secret, so a restart naturally produces a
// new id without any coordination.
package presence

import (
	"sync"

	"github.com/Voskan/flarego/internal/pubsub"
)

// Diff is published whenever a namespace's membership for one account
// changes: ids that newly joined and ids that left.
type Diff struct {
	Joins  []string
	Leaves []string
}

// GatewayMeta is what a Gateway presence entry carries alongside its
// identity: the site it belongs to, so C6's gateway-selection rule
// (§4.6 "uniformly random among online gateways whose site_id appears
// among the resource's connections") can filter on it via OnlineIDsWhere.
type GatewayMeta struct {
	SiteID string
}

// entry is one namespace member.
type entry[M any] struct {
	id        string
	accountID string
	meta      M
	holderRef string // opaque identity of the connection holding this entry
}

// Namespace is a generic presence table for Clients or Gateways, keyed by an
// id the caller already knows (the client_id / gateway_id row id). Relays use
// the separate RelayNamespace below because their id is derived, not given.
type Namespace[M any] struct {
	bus        *pubsub.Bus
	topicPrefix string

	mu      sync.Mutex
	entries map[string]entry[M]
}

// NewNamespace returns a Namespace that publishes diffs as
// "{topicPrefix}{account_id}".
func NewNamespace[M any](bus *pubsub.Bus, topicPrefix string) *Namespace[M] {
	return &Namespace[M]{bus: bus, topicPrefix: topicPrefix, entries: make(map[string]entry[M])}
}

// Join registers id as online for accountID, replacing any prior holder of
// the same id (e.g. a reconnect racing a slow disconnect). holderRef
// identifies the connection so Leave can be a no-op if a newer Join already
// replaced it.
func (n *Namespace[M]) Join(id, accountID, holderRef string, meta M) {
	n.mu.Lock()
	_, existed := n.entries[id]
	n.entries[id] = entry[M]{id: id, accountID: accountID, meta: meta, holderRef: holderRef}
	n.mu.Unlock()

	if !existed {
		n.bus.Broadcast(n.topicPrefix+accountID, pubsub.Message{Event: "presence_diff", Data: Diff{Joins: []string{id}}})
	}
}

// Leave removes id if it is still held by holderRef (preventing a stale
// disconnect from evicting a newer reconnect) and publishes a Diff when it
// actually removed an entry.
func (n *Namespace[M]) Leave(id, holderRef string) {
	n.mu.Lock()
	e, ok := n.entries[id]
	if !ok || e.holderRef != holderRef {
		n.mu.Unlock()
		return
	}
	delete(n.entries, id)
	n.mu.Unlock()

	n.bus.Broadcast(n.topicPrefix+e.accountID, pubsub.Message{Event: "presence_diff", Data: Diff{Leaves: []string{id}}})
}

// Get returns the metadata for id, if online.
func (n *Namespace[M]) Get(id string) (M, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.entries[id]
	return e.meta, ok
}

// OnlineIDs returns every id currently online for accountID.
func (n *Namespace[M]) OnlineIDs(accountID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for id, e := range n.entries {
		if e.accountID == accountID {
			out = append(out, id)
		}
	}
	return out
}

// OnlineIDsWhere returns every id online for accountID whose metadata
// satisfies pred, e.g. filtering gateway presence by site_id for C6's
// gateway-selection rule.
func (n *Namespace[M]) OnlineIDsWhere(accountID string, pred func(M) bool) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for id, e := range n.entries {
		if e.accountID == accountID && pred(e.meta) {
			out = append(out, id)
		}
	}
	return out
}

// Count returns the number of online entries across all accounts; used by
// metrics.
func (n *Namespace[M]) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

// CountByAccount returns the online entry count per account_id, so metrics
// can set a per-account gauge without the caller needing its own account
// enumeration.
func (n *Namespace[M]) CountByAccount() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]int)
	for _, e := range n.entries {
		out[e.accountID]++
	}
	return out
}
