package presence

import (
	"testing"

	"github.com/Voskan/flarego/internal/pubsub"
)

func TestNamespaceJoinLeavePublishesDiffs(t *testing.T) {
	bus := pubsub.New()
	ns := NewNamespace[struct{}](bus, "presence:client:")
	sink, unsub := bus.Subscribe("presence:client:acct1")
	defer unsub()

	ns.Join("c1", "acct1", "holder-a", struct{}{})
	diff := (<-sink).Data.(Diff)
	if len(diff.Joins) != 1 || diff.Joins[0] != "c1" {
		t.Fatalf("expected join diff for c1, got %#v", diff)
	}

	ns.Leave("c1", "holder-a")
	diff = (<-sink).Data.(Diff)
	if len(diff.Leaves) != 1 || diff.Leaves[0] != "c1" {
		t.Fatalf("expected leave diff for c1, got %#v", diff)
	}
}

func TestNamespaceLeaveIgnoresStaleHolder(t *testing.T) {
	bus := pubsub.New()
	ns := NewNamespace[struct{}](bus, "presence:gateway:")
	sink, unsub := bus.Subscribe("presence:gateway:acct1")
	defer unsub()

	ns.Join("gw1", "acct1", "holder-a", struct{}{})
	<-sink // drain join diff

	// A newer connection takes over the same gateway id.
	ns.Join("gw1", "acct1", "holder-b", struct{}{})
	select {
	case msg := <-sink:
		t.Fatalf("expected no diff for re-join with same id, got %#v", msg)
	default:
	}

	// The stale holder's disconnect must not evict the newer holder.
	ns.Leave("gw1", "holder-a")
	select {
	case msg := <-sink:
		t.Fatalf("expected stale Leave to be ignored, got %#v", msg)
	default:
	}
	if _, ok := ns.Get("gw1"); !ok {
		t.Fatal("expected gw1 to still be online")
	}
}

func TestRelayTransientReconnectDoesNotFlicker(t *testing.T) {
	bus := pubsub.New()
	rn := NewRelayNamespace(bus, "presence:relay:")
	sink, unsub := bus.Subscribe("presence:relay:acct1")
	defer unsub()

	id1 := rn.Join("stamp-S", "acct1", "conn-1", RelayMeta{Type: "turn"})
	diff := (<-sink).Data.(Diff)
	if diff.Joins[0] != id1 {
		t.Fatalf("expected initial join, got %#v", diff)
	}

	rn.Leave("stamp-S", "conn-1")
	diff = (<-sink).Data.(Diff)
	if len(diff.Leaves) != 1 {
		t.Fatalf("expected leave for disconnect, got %#v", diff)
	}

	id2 := rn.Join("stamp-S", "acct1", "conn-2", RelayMeta{Type: "turn"})
	if id2 != id1 {
		t.Fatalf("same stamp_secret must produce the same relay id: %s != %s", id1, id2)
	}
	diff = (<-sink).Data.(Diff)
	if diff.Joins[0] != id1 {
		t.Fatalf("expected rejoin with stable id, got %#v", diff)
	}
}

func TestRelayRestartRotatesIdentity(t *testing.T) {
	bus := pubsub.New()
	rn := NewRelayNamespace(bus, "presence:relay:")
	sink, unsub := bus.Subscribe("presence:relay:acct1")
	defer unsub()

	oldID := rn.Join("stamp-old", "acct1", "conn-1", RelayMeta{Type: "turn"})
	<-sink // join

	rn.Leave("stamp-old", "conn-1")
	leaveDiff := (<-sink).Data.(Diff)

	newID := rn.Join("stamp-new", "acct1", "conn-2", RelayMeta{Type: "turn"})
	joinDiff := (<-sink).Data.(Diff)

	if oldID == newID {
		t.Fatal("restart with a new stamp_secret must yield a different relay id")
	}
	if leaveDiff.Leaves[0] != oldID {
		t.Fatalf("expected leaves to contain old id %s, got %#v", oldID, leaveDiff)
	}
	if joinDiff.Joins[0] != newID {
		t.Fatalf("expected joins to contain new id %s, got %#v", newID, joinDiff)
	}
}
