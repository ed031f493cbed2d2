package relay

import (
	"math/rand"
	"testing"
	"time"

	"github.com/Voskan/flarego/internal/geo"
	"github.com/Voskan/flarego/internal/presence"
)

func ptr(f float64) *float64 { return &f }

func TestSelectPrefersClosestLocatedRelays(t *testing.T) {
	sel := NewSelector(rand.New(rand.NewSource(1)))
	houston := geo.LatLon{Lat: 29.69, Lon: -95.90}

	relays := []presence.RelayEntry{
		{ID: "kansas", Meta: presence.RelayMeta{Lat: ptr(38), Lon: ptr(-97)}},
		{ID: "mexico", Meta: presence.RelayMeta{Lat: ptr(20.59), Lon: ptr(-100.39)}},
		{ID: "sydney", Meta: presence.RelayMeta{Lat: ptr(-33.87), Lon: ptr(151.21)}},
	}

	out := sel.Select(houston, true, relays, 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 relays, got %d", len(out))
	}
	for _, r := range out {
		if r.ID == "sydney" {
			t.Fatalf("expected Sydney excluded from closest-2 selection, got %#v", out)
		}
	}
}

func TestSelectPadsWithUnlocatedWhenShort(t *testing.T) {
	sel := NewSelector(rand.New(rand.NewSource(1)))
	relays := []presence.RelayEntry{
		{ID: "located1", Meta: presence.RelayMeta{Lat: ptr(10), Lon: ptr(10)}},
		{ID: "unlocated1", Meta: presence.RelayMeta{}},
		{ID: "unlocated2", Meta: presence.RelayMeta{}},
	}
	out := sel.Select(geo.LatLon{Lat: 0, Lon: 0}, true, relays, 3)
	if len(out) != 3 {
		t.Fatalf("expected all 3 relays selected, got %d", len(out))
	}
}

func TestPusherInitialSelectDoesNotDebounce(t *testing.T) {
	p := NewPusher(NewSelector(rand.New(rand.NewSource(1))), time.Hour)
	relays := []presence.RelayEntry{{ID: "r1", Meta: presence.RelayMeta{}}}
	views := p.InitialSelect(geo.LatLon{}, false, relays, 2)
	if len(views) != 1 || views[0].ID != "r1" {
		t.Fatalf("unexpected initial selection: %#v", views)
	}
	if p.TimerChan() != nil {
		t.Fatal("InitialSelect must not start the debounce timer")
	}
}

func TestPusherFireComputesDisconnectedIDs(t *testing.T) {
	p := NewPusher(NewSelector(rand.New(rand.NewSource(1))), time.Millisecond)
	r1 := presence.RelayEntry{ID: "r1", Meta: presence.RelayMeta{}}
	r2 := presence.RelayEntry{ID: "r2", Meta: presence.RelayMeta{}}

	p.InitialSelect(geo.LatLon{}, false, []presence.RelayEntry{r1, r2}, 2)

	p.NotifyPresenceChanged()
	<-p.TimerChan()
	connected, disconnected := p.Fire(geo.LatLon{}, false, []presence.RelayEntry{r1}, 2)

	if len(connected) != 1 || connected[0].ID != "r1" {
		t.Fatalf("expected only r1 connected, got %#v", connected)
	}
	if len(disconnected) != 1 || disconnected[0] != "r2" {
		t.Fatalf("expected r2 disconnected, got %#v", disconnected)
	}
}

func TestPusherCoalescesRepeatedNotifications(t *testing.T) {
	p := NewPusher(NewSelector(rand.New(rand.NewSource(1))), 20*time.Millisecond)
	p.NotifyPresenceChanged()
	first := p.timer
	p.NotifyPresenceChanged()
	if p.timer != first {
		t.Fatal("expected the same timer instance to be reused while pending")
	}
}
