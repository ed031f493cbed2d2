// internal/changestream/change.go
// Package changestream consumes the ordered, LSN-tagged row mutation feed
// (C1) and dispatches each Change to per-table hooks, which translate raw
// rows into PubSub messages. Hooks are pure: they never write back to the
// database or to the Bus directly — Dispatcher.Run performs the publish so
// that hook unit tests never need a *pubsub.Bus.
package changestream

// Op is the row-level mutation kind carried by a Change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one row mutation from the external logical-replication reader,
// ordered by strictly increasing LSN.
type Change struct {
	LSN   int64
	Table string
	Op    Op
	Old   map[string]any
	New   map[string]any
}

// OutMessage is what a Hook hands back to Dispatcher.Run for publication: the
// PubSub topic/event plus a payload; Dispatcher.Apply stamps the Change's LSN
// on the published pubsub.Message. Hooks return zero or more
// of these per Change — §4.1 lists the five event kinds that fan out to
// account/resource/gateway/token/socket topics.
type OutMessage struct {
	Topic   string
	Event   string
	Payload any
}

// Hook translates one Change on its registered table into zero or more
// OutMessages. Hooks must be pure transformations over the row data they are
// given; they never perform I/O.
type Hook func(Change) []OutMessage
