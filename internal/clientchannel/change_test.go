package clientchannel

import (
	"context"
	"testing"

	"github.com/Voskan/flarego/internal/changestream"
	"github.com/Voskan/flarego/internal/pubsub"
)

func resourceRow(id string) map[string]any {
	return map[string]any{"id": id, "account_id": "acct1", "type": "ip", "name": "r", "address": "10.0.0.1"}
}

func TestReactResourceCreatedPushesWhenAuthorized(t *testing.T) {
	c, sink := newTestChannel(t, Deps{Resolver: fakeResolver{allow: true}})
	c.HandleChangeEvent(context.Background(), pubsub.Message{
		Data: changestream.ResourceCreated{ResourceID: "r1", AccountID: "acct1", Row: resourceRow("r1")},
	})

	sent := sink.Snapshot()
	if len(sent) != 1 || sent[0].Event != "resource_created" {
		t.Fatalf("expected one resource_created push, got %#v", sent)
	}
}

func TestReactResourceCreatedSkipsWhenUnauthorized(t *testing.T) {
	c, sink := newTestChannel(t, Deps{Resolver: fakeResolver{allow: false}})
	c.HandleChangeEvent(context.Background(), pubsub.Message{
		Data: changestream.ResourceCreated{ResourceID: "r1", AccountID: "acct1", Row: resourceRow("r1")},
	})

	if len(sink.Snapshot()) != 0 {
		t.Fatal("expected no push when CanAccess denies")
	}
}

func TestReactResourceUpdatedPushesWhenStillAuthorized(t *testing.T) {
	c, sink := newTestChannel(t, Deps{Resolver: fakeResolver{allow: true}})
	c.HandleChangeEvent(context.Background(), pubsub.Message{
		Data: changestream.ResourceUpdated{ResourceID: "r1", AccountID: "acct1", Old: resourceRow("r1"), New: resourceRow("r1")},
	})

	sent := sink.Snapshot()
	if len(sent) != 1 || sent[0].Event != "resource_updated" {
		t.Fatalf("expected one resource_updated push, got %#v", sent)
	}
}

func TestReactResourceDeletedAlwaysPushes(t *testing.T) {
	c, sink := newTestChannel(t, Deps{Resolver: fakeResolver{allow: false}})
	c.HandleChangeEvent(context.Background(), pubsub.Message{
		Data: changestream.ResourceDeleted{ResourceID: "r1", AccountID: "acct1"},
	})

	sent := sink.Snapshot()
	if len(sent) != 1 || sent[0].Event != "resource_deleted" {
		t.Fatalf("expected one resource_deleted push regardless of authorization, got %#v", sent)
	}
}

func TestHandleChangeEventDropsStaleLSN(t *testing.T) {
	c, sink := newTestChannel(t, Deps{Resolver: fakeResolver{allow: false}})
	c.lastLSN = 10
	c.HandleChangeEvent(context.Background(), pubsub.Message{
		LSN:  5,
		Data: changestream.ResourceDeleted{ResourceID: "r1", AccountID: "acct1"},
	})
	if len(sink.Snapshot()) != 0 {
		t.Fatal("expected a stale LSN to be dropped silently")
	}
}

func TestHandleChangeEventTerminatesOnTokenDeleted(t *testing.T) {
	c, _ := newTestChannel(t, Deps{})
	c.HandleChangeEvent(context.Background(), pubsub.Message{Data: changestream.TokenDeleted{TokenID: "tok1"}})
	if _, terminated := c.Terminated(); !terminated {
		t.Fatal("expected termination on matching token_deleted")
	}
}

func TestHandleChangeEventTerminatesOnClientDeleted(t *testing.T) {
	c, _ := newTestChannel(t, Deps{})
	c.HandleChangeEvent(context.Background(), pubsub.Message{Data: changestream.ClientDeleted{ClientID: "client1"}})
	if _, terminated := c.Terminated(); !terminated {
		t.Fatal("expected termination on matching client_deleted")
	}
}

func TestHandleChangeEventIgnoresOtherAccountsTokenDeleted(t *testing.T) {
	c, _ := newTestChannel(t, Deps{})
	c.HandleChangeEvent(context.Background(), pubsub.Message{Data: changestream.TokenDeleted{TokenID: "other-token"}})
	if _, terminated := c.Terminated(); terminated {
		t.Fatal("expected no termination for an unrelated token")
	}
}
