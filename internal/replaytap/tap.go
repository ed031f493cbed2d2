// internal/replaytap/tap.go
// Package replaytap is an optional, best-effort recorder of recent wire
// pushes, used by `fzctl replay`/`fzctl record` and other ops tooling. It is
// never in the authoritative cache/pubsub path (§5 keeps those strictly
// in-process); a Tap is a side door a Channel's Run loop writes into after
// already sending an Envelope to its real Sink.
//
// Adapted from the teacher's internal/gateway/retention package: the same
// time-bounded ring buffer / Redis-list trade-off, generalised from opaque
// flamegraph byte chunks to wire.Envelope frames.
package replaytap

import "github.com/Voskan/flarego/internal/wire"

// Tap is a minimal interface required by ops tooling. Implementations MUST
// be safe for concurrent use by multiple goroutines.
type Tap interface {
	// Write records one outbound Envelope; implementations may ignore write
	// failures (a replay tap is a diagnostic aid, never load-bearing).
	Write(env wire.Envelope) error

	// ReadAll returns the currently retained envelopes, oldest to newest.
	ReadAll() []wire.Envelope
}

// SinkTap wraps a wire.Sink so every Send is mirrored into tap, letting a
// Channel's existing sink.Send(env) call sites double as recording points
// without threading a second Tap.Write call through each of them.
type SinkTap struct {
	Sink wire.Sink
	Tap  Tap
}

func (s SinkTap) Send(env wire.Envelope) {
	s.Sink.Send(env)
	_ = s.Tap.Write(env)
}
