package clientchannel

import (
	"context"
	"testing"
	"time"

	"github.com/Voskan/flarego/internal/changestream"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/wire"
)

func TestRunDispatchesWireErrorsAsErrorEnvelopes(t *testing.T) {
	bus := pubsub.New()
	c, sink := newTestChannel(t, Deps{Bus: bus})

	ctx, cancel := context.WithCancel(context.Background())
	wireIn := make(chan wire.Envelope, 1)

	done := make(chan struct{})
	go func() {
		c.Run(ctx, wireIn, nil, time.Hour)
		close(done)
	}()

	env, _ := wire.Encode("client:client1", "made_up_event", "", nil)
	wireIn <- env

	deadline := time.After(time.Second)
	var sent []wire.Envelope
	for {
		sent = sink.Snapshot()
		if len(sent) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for error envelope")
		case <-time.After(time.Millisecond):
		}
	}
	if sent[0].Event != "error" {
		t.Fatalf("expected an error envelope, got %#v", sent[0])
	}

	cancel()
	<-done
}

func TestRunForwardsGatewayRepliesFromRepliesChannel(t *testing.T) {
	bus := pubsub.New()
	c, sink := newTestChannel(t, Deps{Bus: bus, Now: func() time.Time { return time.Unix(1000, 0) }})
	clientRef := c.newPendingRef(context.Background(), pendingRequestConnection, "r1", "gw1")

	ctx, cancel := context.WithCancel(context.Background())
	wireIn := make(chan wire.Envelope)
	repliesIn := make(chan wire.Envelope, 1)

	done := make(chan struct{})
	go func() {
		c.Run(ctx, wireIn, repliesIn, time.Hour)
		close(done)
	}()

	env, _ := wire.Encode("client:client1", "flow_authorized", "", inClientRefPayload{Ref: "internal", ClientRef: clientRef})
	repliesIn <- env

	deadline := time.After(time.Second)
	for {
		if len(sink.Snapshot()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for forwarded flow_authorized")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestRunStopsOnClientDeletedChangeEvent(t *testing.T) {
	bus := pubsub.New()
	c, _ := newTestChannel(t, Deps{Bus: bus})

	ctx := context.Background()
	wireIn := make(chan wire.Envelope)

	done := make(chan struct{})
	go func() {
		c.Run(ctx, wireIn, nil, time.Hour)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	bus.Broadcast("client:client1", pubsub.Message{Data: changestream.ClientDeleted{ClientID: "client1"}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after a client_deleted event")
	}
	if reason, terminated := c.Terminated(); !terminated || reason != "client_deleted" {
		t.Fatalf("expected terminated client_deleted, got terminated=%v reason=%q", terminated, reason)
	}
}

func TestRunSweepsPendingOnTick(t *testing.T) {
	bus := pubsub.New()
	fixedNow := time.Unix(10_000, 0)
	c, sink := newTestChannel(t, Deps{Bus: bus, Now: func() time.Time { return fixedNow }})
	c.newPendingRef(context.Background(), pendingRequestConnection, "r1", "gw1")

	ctx, cancel := context.WithCancel(context.Background())
	wireIn := make(chan wire.Envelope)
	done := make(chan struct{})
	go func() {
		c.Run(ctx, wireIn, nil, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if len(sink.Snapshot()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the sweep to surface offline")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}
