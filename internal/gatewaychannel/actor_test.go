package gatewaychannel

import (
	"context"
	"testing"
	"time"

	"github.com/Voskan/flarego/internal/directory"
	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"github.com/Voskan/flarego/internal/wire"
)

func TestRunDispatchesWireErrorsAsErrorEnvelopes(t *testing.T) {
	sink := &wire.RecordingSink{}
	bus := pubsub.New()
	gw := domain.Gateway{ID: "gw1", AccountID: "acct1"}
	acct := domain.Account{ID: "acct1", Active: true}
	tok := domain.Token{ID: "tok1"}
	c := New(gw, acct, tok, resourceadapter.ParseVersion("1.3.0"), sink, bus, directory.New(), staticOnline{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	wireIn := make(chan wire.Envelope, 1)

	done := make(chan struct{})
	go func() {
		c.Run(ctx, wireIn, nil, time.Hour)
		close(done)
	}()

	env, _ := wire.Encode("gateway:gw1", "made_up_event", "", nil)
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

func TestRunStopsOnGatewayDeletedChangeEvent(t *testing.T) {
	sink := &wire.RecordingSink{}
	bus := pubsub.New()
	gw := domain.Gateway{ID: "gw1", AccountID: "acct1"}
	acct := domain.Account{ID: "acct1", Active: true}
	tok := domain.Token{ID: "tok1"}
	c := New(gw, acct, tok, resourceadapter.ParseVersion("1.3.0"), sink, bus, directory.New(), staticOnline{}, nil)

	ctx := context.Background()
	wireIn := make(chan wire.Envelope)

	done := make(chan struct{})
	go func() {
		c.Run(ctx, wireIn, nil, time.Hour)
		close(done)
	}()

	// give Run a moment to attach its bus subscriptions before publishing.
	time.Sleep(10 * time.Millisecond)
	bus.Broadcast("gateway:gw1", pubsub.Message{Data: gatewayDeleted("gw1")})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after a gateway_deleted event")
	}
	if reason, terminated := c.Terminated(); !terminated || reason != "gateway_deleted" {
		t.Fatalf("expected terminated gateway_deleted, got terminated=%v reason=%q", terminated, reason)
	}
}

func TestRunPrunesCacheOnTick(t *testing.T) {
	sink := &wire.RecordingSink{}
	bus := pubsub.New()
	gw := domain.Gateway{ID: "gw1", AccountID: "acct1"}
	acct := domain.Account{ID: "acct1", Active: true}
	tok := domain.Token{ID: "tok1"}
	fixedNow := time.Unix(10_000, 0)
	c := New(gw, acct, tok, resourceadapter.ParseVersion("1.3.0"), sink, bus, directory.New(), staticOnline{}, func() time.Time { return fixedNow })

	res := resourceadapter.ResourceView{ID: "R"}
	c.PushAllowAccess("C", res, "P1", "", "", fixedNow.Add(-time.Second), nil)
	if got := c.CacheSnapshot("C", "R"); len(got) != 1 {
		t.Fatalf("expected one cache entry before prune, got %#v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wireIn := make(chan wire.Envelope)
	done := make(chan struct{})
	go func() {
		c.Run(ctx, wireIn, nil, 10*time.Millisecond)
		close(done)
	}()

	// Let several prune ticks fire, then stop the actor; CacheSnapshot is
	// only safe to read here because <-done happens-after the actor's last
	// mutation of c.cache.
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if got := c.CacheSnapshot("C", "R"); len(got) != 0 {
		t.Fatalf("expected the expired entry pruned by a tick, got %#v", got)
	}
}
