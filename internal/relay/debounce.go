// internal/relay/debounce.go
// Pusher coalesces relay presence churn into a single relays_presence push
// per debounce window (default 50ms, test-overridable — §4.7), and tracks the
// previously-pushed selection so it can compute disconnected_ids as a diff.
// Its Fire/TimerChan shape is meant to sit inside a Gateway Channel's actor
// select loop (§5's "explicit select over {wire_in, pubsub_in, timer_tick,
// shutdown}"): TimerChan returns nil whenever nothing is pending, so the
// select arm is simply absent until a presence diff arrives.
package relay

import (
	"time"

	"github.com/Voskan/flarego/internal/geo"
	"github.com/Voskan/flarego/internal/presence"
)

// DefaultDebounceWindow is the recommended coalescing window from §4.7.
const DefaultDebounceWindow = 50 * time.Millisecond

// Pusher is not safe for concurrent use; it is owned exclusively by one
// Gateway Channel actor, per §5's "no shared mutable state between channels".
type Pusher struct {
	sel    *Selector
	window time.Duration

	timer   *time.Timer
	pending bool

	prevIDs map[string]struct{}
}

// NewPusher returns a Pusher using sel for selection and window for
// debouncing. A zero window falls back to DefaultDebounceWindow.
func NewPusher(sel *Selector, window time.Duration) *Pusher {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Pusher{sel: sel, window: window, prevIDs: make(map[string]struct{})}
}

// NotifyPresenceChanged marks a pending recompute, (re)starting the debounce
// timer only if one is not already running — repeated churn within the
// window collapses into the single recompute at its end.
func (p *Pusher) NotifyPresenceChanged() {
	if p.pending {
		return
	}
	p.pending = true
	if p.timer == nil {
		p.timer = time.NewTimer(p.window)
		return
	}
	if !p.timer.Stop() {
		select {
		case <-p.timer.C:
		default:
		}
	}
	p.timer.Reset(p.window)
}

// TimerChan returns the debounce timer's channel, or nil if nothing is
// pending so a select statement simply never selects this arm.
func (p *Pusher) TimerChan() <-chan time.Time {
	if !p.pending {
		return nil
	}
	return p.timer.C
}

// View is the per-relay shape pushed to a Gateway, matching §4.7's
// {id, addr, type, username, password, expires_at}.
type View struct {
	ID        string
	Addr      string
	Type      string
	Username  string
	Password  string
	ExpiresAt time.Time
}

// PresenceUpdate carries an already-debounced relay churn result from a
// watcher goroutine (which owns the Pusher) to the Gateway Channel actor
// that must apply it. It is delivered as a pubsub.Message's Data field on
// the channel's own "gateway:<id>" topic, so HandleChangeEvent's type
// switch is the only place that ever touches the channel's relay state.
type PresenceUpdate struct {
	Connected       []View
	DisconnectedIDs []string
}

func toView(r presence.RelayEntry) View {
	return View{ID: r.ID, Addr: r.Meta.Addr, Type: r.Meta.Type, Username: r.Meta.Username, Password: r.Meta.Password, ExpiresAt: r.Meta.ExpiresAt}
}

// InitialSelect computes the first selection for a freshly joined channel.
// Per §4.7 this is sent as part of `init.relays`, never as a relays_presence
// push, so it does not go through the debounce timer.
func (p *Pusher) InitialSelect(gwLoc geo.LatLon, gwHasLoc bool, online []presence.RelayEntry, n int) []View {
	selected := p.sel.Select(gwLoc, gwHasLoc, online, n)
	p.prevIDs = idSet(selected)
	return toViews(selected)
}

// Fire recomputes the selection when the debounce timer elapses, returning
// the newly connected view list and the ids that fell out of the selection
// since the last Fire/InitialSelect.
func (p *Pusher) Fire(gwLoc geo.LatLon, gwHasLoc bool, online []presence.RelayEntry, n int) (connected []View, disconnectedIDs []string) {
	p.pending = false
	selected := p.sel.Select(gwLoc, gwHasLoc, online, n)
	newIDs := idSet(selected)

	for id := range p.prevIDs {
		if _, ok := newIDs[id]; !ok {
			disconnectedIDs = append(disconnectedIDs, id)
		}
	}
	p.prevIDs = newIDs
	return toViews(selected), disconnectedIDs
}

func idSet(relays []presence.RelayEntry) map[string]struct{} {
	ids := make(map[string]struct{}, len(relays))
	for _, r := range relays {
		ids[r.ID] = struct{}{}
	}
	return ids
}

func toViews(relays []presence.RelayEntry) []View {
	out := make([]View, len(relays))
	for i, r := range relays {
		out[i] = toView(r)
	}
	return out
}
