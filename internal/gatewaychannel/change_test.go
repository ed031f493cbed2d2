package gatewaychannel

import (
	"testing"
	"time"

	"github.com/Voskan/flarego/internal/changestream"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"github.com/Voskan/flarego/internal/wire"
)

func TestResourceAddressChangePushesRejectAccessNotResourceUpdated(t *testing.T) {
	sink := &wire.RecordingSink{}
	c := newTestChannel(t, sink)
	res := resourceadapter.ResourceView{ID: "R", Type: "dns"}
	c.PushAllowAccess("C", res, "P1", "", "", time.Unix(1000, 0), nil)
	sink.Sent = nil

	old := map[string]any{"id": "R", "account_id": "acct1", "type": "dns", "address": "a.example.com", "ip_stack": "dual"}
	newRow := map[string]any{"id": "R", "account_id": "acct1", "type": "dns", "address": "b.example.com", "ip_stack": "dual"}
	c.HandleChangeEvent(pubsub.Message{LSN: 1, Data: changestream.ResourceUpdated{ResourceID: "R", AccountID: "acct1", Old: old, New: newRow}})

	if len(sink.Sent) != 1 || sink.Sent[0].Event != "reject_access" {
		t.Fatalf("expected a single reject_access push, got %#v", sink.Sent)
	}
	if got := c.CacheSnapshot("C", "R"); len(got) != 0 {
		t.Fatalf("expected cache entry cleared after addressing change, got %#v", got)
	}
}

func TestResourceFiltersChangeLegacyPeerDropsAdaptation(t *testing.T) {
	sink := &wire.RecordingSink{}
	gw := newTestChannel(t, sink)
	gw.PeerVersion = resourceadapter.ParseVersion("1.1.0")

	old := map[string]any{"id": "R", "account_id": "acct1", "type": "dns", "address": "example.*.com", "filters": []any{}}
	newRow := map[string]any{"id": "R", "account_id": "acct1", "type": "dns", "address": "example.*.com", "filters": []any{
		map[string]any{"protocol": "tcp"},
	}}
	gw.HandleChangeEvent(pubsub.Message{LSN: 1, Data: changestream.ResourceUpdated{ResourceID: "R", AccountID: "acct1", Old: old, New: newRow}})

	if len(sink.Sent) != 0 {
		t.Fatalf("expected adaptation to drop and suppress the push, got %#v", sink.Sent)
	}
}

func TestResourceFiltersChangeCurrentPeerPushesResourceUpdated(t *testing.T) {
	sink := &wire.RecordingSink{}
	c := newTestChannel(t, sink)
	c.PeerVersion = resourceadapter.ParseVersion("1.3.0")

	old := map[string]any{"id": "R", "account_id": "acct1", "type": "ip", "address": "10.0.0.5", "filters": []any{}}
	newRow := map[string]any{"id": "R", "account_id": "acct1", "type": "ip", "address": "10.0.0.5", "filters": []any{
		map[string]any{"protocol": "tcp", "ports": []any{map[string]any{"start": 443, "end": 443}}},
	}}
	c.HandleChangeEvent(pubsub.Message{LSN: 1, Data: changestream.ResourceUpdated{ResourceID: "R", AccountID: "acct1", Old: old, New: newRow}})

	if len(sink.Sent) != 1 || sink.Sent[0].Event != "resource_updated" {
		t.Fatalf("expected one resource_updated push, got %#v", sink.Sent)
	}
}

func TestAccountSlugChangedResendsInit(t *testing.T) {
	sink := &wire.RecordingSink{}
	c := newTestChannel(t, sink)
	c.Join("acme", InterfaceConfig{IPv4: "100.64.0.1"}, nil, MasqueradeConfig{})
	sink.Sent = nil

	c.HandleChangeEvent(pubsub.Message{Data: changestream.AccountSlugChanged{AccountID: "acct1", NewSlug: "acme-new"}})

	if len(sink.Sent) != 1 || sink.Sent[0].Event != "init" {
		t.Fatalf("expected init resend, got %#v", sink.Sent)
	}
	var payload struct {
		AccountSlug string `json:"account_slug"`
	}
	if err := sink.Sent[0].Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.AccountSlug != "acme-new" {
		t.Fatalf("expected resent init to carry new slug, got %q", payload.AccountSlug)
	}
}

func TestTokenDeletedTerminatesSocket(t *testing.T) {
	sink := &wire.RecordingSink{}
	c := newTestChannel(t, sink)

	c.HandleChangeEvent(pubsub.Message{Data: changestream.TokenDeleted{TokenID: "tok1"}})

	if _, terminated := c.Terminated(); !terminated {
		t.Fatal("expected channel to terminate on matching token deletion")
	}
}
