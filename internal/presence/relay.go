// internal/presence/relay.go
// RelayNamespace is the CRDT-flavoured presence table for Relays (Invariant
// 7, §4.3). A relay's identifier is derived from its stamp_secret, never
// assigned by the caller: RelayID(stampSecret) = hex(sha256(stampSecret))[:20].
// A relay that reconnects with the *same* stamp_secret therefore resolves to
// the same id and Join is a no-op join (no flicker in subscribers' eyes); a
// relay that restarts picks a new stamp_secret, so its old id leaves and its
// new id joins in the same debounce window (§4.7 handles the coalescing).
package presence

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Voskan/flarego/internal/pubsub"
)

// RelayMeta is what a Relay presence entry carries alongside its identity.
type RelayMeta struct {
	Type      string // "turn" or "stun"
	Addr      string
	Username  string
	Password  string
	ExpiresAt time.Time
	Lat       *float64
	Lon       *float64
}

// RelayID computes the CRDT identifier for a given stamp_secret. Two Join
// calls with the same stampSecret always resolve to the same id.
func RelayID(stampSecret string) string {
	sum := sha256.Sum256([]byte(stampSecret))
	return hex.EncodeToString(sum[:])[:20]
}

type relayEntry struct {
	id          string
	accountID   string
	stampSecret string
	holderRef   string
	meta        RelayMeta
}

// RelayNamespace tracks online relays keyed by their derived id.
type RelayNamespace struct {
	bus        *pubsub.Bus
	topicPrefix string

	mu      sync.Mutex
	entries map[string]relayEntry
}

// NewRelayNamespace returns a namespace publishing diffs as
// "{topicPrefix}{account_id}".
func NewRelayNamespace(bus *pubsub.Bus, topicPrefix string) *RelayNamespace {
	return &RelayNamespace{bus: bus, topicPrefix: topicPrefix, entries: make(map[string]relayEntry)}
}

// Join registers a relay connection identified by stampSecret. It returns the
// derived relay id. If an entry with this id already exists (same
// stamp_secret reconnecting) the metadata and holderRef are refreshed but no
// presence_diff is published — this is the "transient reconnect" case tested
// by spec.md §8 scenario 4.
func (n *RelayNamespace) Join(stampSecret, accountID, holderRef string, meta RelayMeta) string {
	id := RelayID(stampSecret)

	n.mu.Lock()
	_, existed := n.entries[id]
	n.entries[id] = relayEntry{id: id, accountID: accountID, stampSecret: stampSecret, holderRef: holderRef, meta: meta}
	n.mu.Unlock()

	if !existed {
		n.bus.Broadcast(n.topicPrefix+accountID, pubsub.Message{Event: "presence_diff", Data: Diff{Joins: []string{id}}})
	}
	return id
}

// Leave removes the relay identified by stampSecret if it is still held by
// holderRef. Restart semantics fall out for free: a restarted relay picks a
// new stamp_secret, so its Leave (under the old holderRef) removes the OLD
// id, and its subsequent Join (with the new stamp_secret) adds a NEW id —
// exactly the "old id in leaves, new id in joins" behavior Invariant 7 and
// §8's quantified property require.
func (n *RelayNamespace) Leave(stampSecret, holderRef string) {
	id := RelayID(stampSecret)

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

// RelayEntry is a read-only snapshot of one online relay, exported for the
// Relay Selector (C7).
type RelayEntry struct {
	ID   string
	Meta RelayMeta
}

// OnlineForAccount returns every relay currently online for accountID.
func (n *RelayNamespace) OnlineForAccount(accountID string) []RelayEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []RelayEntry
	for id, e := range n.entries {
		if e.accountID == accountID {
			out = append(out, RelayEntry{ID: id, Meta: e.meta})
		}
	}
	return out
}

// CountByAccount returns the online relay count per account_id, mirroring
// Namespace.CountByAccount for the presence_online gauges.
func (n *RelayNamespace) CountByAccount() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]int)
	for _, e := range n.entries {
		out[e.accountID]++
	}
	return out
}
