package directory

import (
	"testing"

	"github.com/Voskan/flarego/internal/wire"
)

func TestForwardDeliversToRegisteredMailbox(t *testing.T) {
	d := New()
	inbox, unregister := d.Register("client1")
	defer unregister()

	if !d.Forward("client1", wire.Envelope{Event: "ping"}) {
		t.Fatal("expected delivery to registered mailbox")
	}
	select {
	case env := <-inbox:
		if env.Event != "ping" {
			t.Fatalf("unexpected envelope: %#v", env)
		}
	default:
		t.Fatal("expected envelope to be waiting in mailbox")
	}
}

func TestForwardToUnknownIDReturnsFalse(t *testing.T) {
	d := New()
	if d.Forward("nobody", wire.Envelope{}) {
		t.Fatal("expected forward to unregistered id to fail")
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	d := New()
	_, unregister := d.Register("client1")
	unregister()
	if d.Forward("client1", wire.Envelope{}) {
		t.Fatal("expected forward after unregister to fail")
	}
	if d.IsRegistered("client1") {
		t.Fatal("expected IsRegistered to be false after unregister")
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	d := New()
	_, unregister := d.Register("client1")
	unregister()
	unregister()
}

func TestRegisterTwiceReplacesMailbox(t *testing.T) {
	d := New()
	first, unregisterFirst := d.Register("client1")
	_, unregisterSecond := d.Register("client1")
	defer unregisterSecond()

	d.Forward("client1", wire.Envelope{Event: "hello"})
	select {
	case <-first:
		t.Fatal("first mailbox should no longer receive after re-register")
	default:
	}
	unregisterFirst() // must not evict the second registration
	if !d.IsRegistered("client1") {
		t.Fatal("expected second registration to still be live")
	}
}
