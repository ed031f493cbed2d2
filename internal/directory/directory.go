// internal/directory/directory.go
// Package directory is the "direct actor send" half of §5's cross-channel
// interaction rule ("all cross-channel interaction is by message passing via
// PubSub or direct actor sends"). PubSub (internal/pubsub) is topic fan-out;
// Directory is point-to-point delivery into one specific channel's mailbox,
// keyed by the entity id the sender already knows (a client_id or
// gateway_id) — the same map[chan]struct{} shape the teacher's PubSub bus
// uses, narrowed to exactly one sink per key instead of a set.
//
// Gateway Channels and Client Channels both register themselves here under
// their own id so the other side can reach them by id; in particular
// gatewaychannel reaches Client Channels without importing clientchannel.
package directory

import (
	"sync"

	"github.com/Voskan/flarego/internal/wire"
)

const mailboxSize = 64

// Directory is a process-wide registry of channel inboxes keyed by id.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]chan wire.Envelope
}

// New returns a ready-to-use Directory.
func New() *Directory {
	return &Directory{entries: make(map[string]chan wire.Envelope)}
}

// Register creates a mailbox for id and returns it plus an idempotent
// unregister func. Registering the same id twice replaces the prior
// mailbox — the owning channel is expected to register once at Join and
// unregister at shutdown.
func (d *Directory) Register(id string) (inbox <-chan wire.Envelope, unregister func()) {
	ch := make(chan wire.Envelope, mailboxSize)

	d.mu.Lock()
	d.entries[id] = ch
	d.mu.Unlock()

	var once sync.Once
	unregister = func() {
		once.Do(func() {
			d.mu.Lock()
			if cur, ok := d.entries[id]; ok && cur == ch {
				delete(d.entries, id)
			}
			d.mu.Unlock()
		})
	}
	return ch, unregister
}

// Forward posts env to id's mailbox. It reports false if id is not currently
// registered or its mailbox is full — the caller never blocks.
func (d *Directory) Forward(id string, env wire.Envelope) bool {
	d.mu.RLock()
	ch, ok := d.entries[id]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case ch <- env:
		return true
	default:
		return false
	}
}

// IsRegistered reports whether id currently has a live mailbox.
func (d *Directory) IsRegistered(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[id]
	return ok
}
