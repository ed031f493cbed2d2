package wire

import "sync"

// Sink is the transport-side mailbox a channel posts outbound frames to. The
// channel's Send is a non-blocking post (§5 "wire writes are non-blocking");
// backpressure on a slow socket is the transport's problem, not the
// channel's.
type Sink interface {
	Send(Envelope)
}

// SinkFunc adapts a plain function to a Sink, for tests and small transports.
type SinkFunc func(Envelope)

func (f SinkFunc) Send(e Envelope) { f(e) }

// RecordingSink collects every Envelope sent to it, in order. Used by tests
// to capture a channel's outbound traffic. Safe for
// concurrent Send/Snapshot, since an actor's Run loop and its test both touch
// it from different goroutines.
type RecordingSink struct {
	mu   sync.Mutex
	Sent []Envelope
}

func (s *RecordingSink) Send(e Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, e)
}

// Snapshot returns a copy of the envelopes sent so far, safe to inspect from
// a goroutine other than the one calling Send.
func (s *RecordingSink) Snapshot() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Envelope, len(s.Sent))
	copy(out, s.Sent)
	return out
}
