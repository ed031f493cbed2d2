// internal/replaytap/inmem.go
// In-process ring buffer Tap, adapted from
// internal/gateway/retention.inMem: same time-bounded circular buffer with
// O(1) append and O(n) lazy expiry, suitable for a single control-plane
// instance.
package replaytap

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Voskan/flarego/internal/wire"
)

type inMem struct {
	retentionDur time.Duration

	mu     sync.RWMutex
	idx    int
	buf    [][]byte
	tsBuf  []time.Time
	filled bool
}

// NewInMem constructs a Tap keeping data for at most d (clamped to 1s).
// Capacity is fixed at 10 slots per retained second plus one, matching the
// teacher's heuristic; above roughly 10 pushes/sec older frames are
// overwritten before d has elapsed.
func NewInMem(d time.Duration) Tap {
	if d < time.Second {
		d = time.Second
	}
	capSlots := int(d.Seconds()*10) + 1
	return &inMem{
		retentionDur: d,
		buf:          make([][]byte, capSlots),
		tsBuf:        make([]time.Time, capSlots),
	}
}

func (r *inMem) Write(env wire.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.buf[r.idx] = b
	r.tsBuf[r.idx] = now
	r.idx = (r.idx + 1) % len(r.buf)
	if r.idx == 0 {
		r.filled = true
	}

	if !r.filled {
		return nil
	}
	cutoff := now.Add(-r.retentionDur)
	if r.tsBuf[r.idx].After(cutoff) {
		return nil
	}
	for i, ts := range r.tsBuf {
		if ts.Before(cutoff) {
			r.buf[i] = nil
			r.tsBuf[i] = time.Time{}
		}
	}
	return nil
}

func (r *inMem) ReadAll() []wire.Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []wire.Envelope
	decode := func(b []byte) {
		if b == nil {
			return
		}
		var env wire.Envelope
		if json.Unmarshal(b, &env) == nil {
			out = append(out, env)
		}
	}

	if !r.filled {
		for i := 0; i < r.idx; i++ {
			decode(r.buf[i])
		}
		return out
	}
	for i := r.idx; i < len(r.buf); i++ {
		decode(r.buf[i])
	}
	for i := 0; i < r.idx; i++ {
		decode(r.buf[i])
	}
	return out
}
