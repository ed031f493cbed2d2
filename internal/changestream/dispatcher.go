// internal/changestream/dispatcher.go
// Dispatcher registers per-table hooks and replays a Change sequence against
// them in strictly increasing LSN order, publishing whatever OutMessages the
// hooks produce onto the shared pubsub.Bus. The Dispatcher drops any Change
// whose LSN is not above its own watermark (see Apply); each Gateway/Client
// Channel (§5) additionally enforces "lsn <= last_lsn is dropped" against its
// own monotone LSN watermark.
package changestream

import (
	"context"
	"fmt"
	"sync"

	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/pubsub"
	"go.uber.org/zap"
)

// Dispatcher is safe for concurrent Register calls before Run starts; once
// Run is executing, Register should not be called from another goroutine.
type Dispatcher struct {
	bus *pubsub.Bus

	mu    sync.RWMutex
	hooks map[string][]Hook

	lastLSN int64
}

// New returns a Dispatcher that publishes onto bus.
func New(bus *pubsub.Bus) *Dispatcher {
	return &Dispatcher{bus: bus, hooks: make(map[string][]Hook)}
}

// Register adds hook for table. Multiple hooks per table are invoked in
// registration order.
func (d *Dispatcher) Register(table string, hook Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[table] = append(d.hooks[table], hook)
}

// LastLSN returns the highest LSN processed so far.
func (d *Dispatcher) LastLSN() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastLSN
}

// Apply processes a single Change: it is dropped if c.LSN is not strictly
// greater than the dispatcher's own watermark (defense in depth — the
// upstream replication reader is expected to already be ordered), otherwise
// every registered hook for c.Table runs and their OutMessages are broadcast.
func (d *Dispatcher) Apply(c Change) {
	d.mu.Lock()
	if c.LSN <= d.lastLSN {
		d.mu.Unlock()
		logging.Sugar().Debugw("changestream: dropping stale change", "lsn", c.LSN, "last_lsn", d.lastLSN)
		return
	}
	d.lastLSN = c.LSN
	hooks := d.hooks[c.Table]
	d.mu.Unlock()

	for _, hook := range hooks {
		for _, out := range hook(c) {
			d.bus.Broadcast(out.Topic, pubsub.Message{Event: out.Event, LSN: c.LSN, Data: out.Payload})
		}
	}
}

// Source yields Changes in increasing LSN order; Next blocks until the next
// change is available or ctx is done.
type Source interface {
	Next(ctx context.Context) (Change, error)
}

// Run consumes src until ctx is cancelled or src.Next returns a non-context
// error, applying each Change as it arrives. The caller is responsible for
// reconnecting src on error (§7: "the core does not retry external-database
// calls"); Run itself does not retry.
func (d *Dispatcher) Run(ctx context.Context, src Source) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("changestream: read next change: %w", err)
		}
		d.Apply(c)
		logging.Logger().Debug("changestream: applied change", zap.Int64("lsn", c.LSN), zap.String("table", c.Table), zap.String("op", string(c.Op)))
	}
}
