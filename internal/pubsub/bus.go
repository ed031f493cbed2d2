// internal/pubsub/bus.go
// Package pubsub implements the in-process topic broker (C2). It generalises
// the teacher gateway server's single `subs map[chan []byte]struct{}` fan-out
// (internal/gateway/server.go Subscribe/handleChunk) into a topic-keyed map of
// subscriber sets, one instance shared by every Gateway/Client Channel and the
// Change Stream dispatcher.
//
// Delivery is best-effort and in-process: no queueing beyond each
// subscriber's bounded mailbox, no persistence. A slow subscriber never blocks
// a publisher — Broadcast drops on a full channel rather than waiting, the
// same trade-off the teacher's handleChunk makes for WebSocket subscribers.
package pubsub

import (
	"sync"

	"github.com/Voskan/flarego/internal/logging"
)

// Message is the envelope carried on a topic. LSN is zero for messages that
// did not originate from the Change Stream (e.g. presence diffs).
type Message struct {
	Topic string
	Event string
	LSN   int64
	Data  any
}

// mailboxSize bounds each subscriber's channel. Chosen generously: the
// Change Stream is the only high-frequency publisher and each Channel drains
// its mailbox between messages (§5 scheduling model).
const mailboxSize = 256

// Bus is a fan-out topic broker. The zero value is not usable; use New.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Message]struct{}
}

// New returns a ready-to-use Bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[chan Message]struct{})}
}

// Subscribe registers the caller on topic and returns a receive-only channel
// plus an idempotent unsubscribe func. Subscribing to the same topic twice
// from the same caller yields two independent sinks (subscribe is not
// deduplicated by caller identity — callers that want idempotence must track
// their own registration, matching the teacher's Subscribe/unregister pair).
func (b *Bus) Subscribe(topic string) (<-chan Message, func()) {
	ch := make(chan Message, mailboxSize)

	b.mu.Lock()
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[chan Message]struct{})
		b.subs[topic] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[topic]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.subs, topic)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

// Broadcast delivers msg to every current subscriber of topic, in the order
// Broadcast is called for that topic. A subscriber whose mailbox is full is
// skipped rather than blocked.
func (b *Bus) Broadcast(topic string, msg Message) {
	msg.Topic = topic

	b.mu.RLock()
	set := b.subs[topic]
	// Snapshot under the read lock so we never send while holding it across a
	// potentially blocking channel op (there is none here since sends are
	// non-blocking, but copying keeps the lock window tight).
	sinks := make([]chan Message, 0, len(set))
	for ch := range set {
		sinks = append(sinks, ch)
	}
	b.mu.RUnlock()

	for _, ch := range sinks {
		select {
		case ch <- msg:
		default:
			logging.Sugar().Debugw("pubsub: dropping message to slow subscriber", "topic", topic, "event", msg.Event)
		}
	}
}

// SubscriberCount reports how many sinks are currently registered on topic;
// used by metrics and tests.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
