package clientchannel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Voskan/flarego/internal/directory"
	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/presence"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"github.com/Voskan/flarego/internal/wire"
)

func TestHandleRequestConnectionPostsCommandOnSuccess(t *testing.T) {
	dir := directory.New()
	gwInbox, unregister := dir.Register("gw1")
	defer unregister()

	res := fakeResources{byID: map[string]domain.Resource{
		"r1": {ID: "r1", AccountID: "acct1", Type: domain.ResourceIP, Address: "10.0.0.1"},
	}}
	conns := fakeConnections{sites: map[string][]string{"r1": {"siteA"}}}
	pres := fakeGatewayPresence{entries: map[string]presence.GatewayMeta{"gw1": {SiteID: "siteA"}}}
	resolver := fakeResolver{pa: domain.PolicyAuthorization{ID: "pa1", ExpiresAt: time.Unix(5000, 0)}}

	c, _ := newTestChannel(t, Deps{Gateways: dir, Resources: res, Connections: conns, GatewayPres: pres, Resolver: resolver})

	in := requestConnectionIn{ResourceID: "r1", Peer: peerIn{IPv4: "100.64.0.2", PublicKey: "pk"}}
	payload, _ := json.Marshal(in)
	env := wire.Envelope{Topic: "client:client1", Event: "request_connection", Payload: payload}

	reply, wireErr := c.HandleWire(context.Background(), env)
	if wireErr != nil {
		t.Fatalf("unexpected wire error: %v", wireErr)
	}
	if reply != nil {
		t.Fatalf("expected a nil (async) reply, got %#v", reply)
	}
	if len(c.pending) != 1 {
		t.Fatalf("expected exactly one pending entry, got %d", len(c.pending))
	}

	select {
	case got := <-gwInbox:
		var cmd requestConnectionCommandOut
		if err := json.Unmarshal(got.Payload, &cmd); err != nil {
			t.Fatal(err)
		}
		if cmd.Kind != "request_connection" || cmd.ClientID != "client1" || cmd.Resource.ID != "r1" {
			t.Fatalf("unexpected command: %#v", cmd)
		}
		if cmd.PolicyAuthID != "pa1" {
			t.Fatalf("expected the resolved policy_authorization id, got %q", cmd.PolicyAuthID)
		}
	default:
		t.Fatal("expected a command to land in gw1's mailbox")
	}
}

func TestHandleRequestConnectionRejectsUnknownResource(t *testing.T) {
	c, _ := newTestChannel(t, Deps{Resources: fakeResources{}})
	in := requestConnectionIn{ResourceID: "missing"}
	payload, _ := json.Marshal(in)
	env := wire.Envelope{Event: "request_connection", Payload: payload}

	_, wireErr := c.HandleWire(context.Background(), env)
	if wireErr == nil || wireErr.Reason != domain.ReasonNotFound {
		t.Fatalf("expected not_found, got %#v", wireErr)
	}
}

func TestHandleRequestConnectionOfflineWhenNoGatewaySelectable(t *testing.T) {
	res := fakeResources{byID: map[string]domain.Resource{
		"r1": {ID: "r1", AccountID: "acct1", Type: domain.ResourceIP, Address: "10.0.0.1"},
	}}
	c, _ := newTestChannel(t, Deps{Resources: res, Connections: fakeConnections{}, GatewayPres: fakeGatewayPresence{}})

	in := requestConnectionIn{ResourceID: "r1"}
	payload, _ := json.Marshal(in)
	env := wire.Envelope{Event: "request_connection", Payload: payload}

	_, wireErr := c.HandleWire(context.Background(), env)
	if wireErr == nil || wireErr.Reason != domain.ReasonOffline {
		t.Fatalf("expected offline, got %#v", wireErr)
	}
}

func TestHandleRequestConnectionSurfacesResolverRejection(t *testing.T) {
	res := fakeResources{byID: map[string]domain.Resource{
		"r1": {ID: "r1", AccountID: "acct1", Type: domain.ResourceIP, Address: "10.0.0.1"},
	}}
	conns := fakeConnections{sites: map[string][]string{"r1": {"siteA"}}}
	pres := fakeGatewayPresence{entries: map[string]presence.GatewayMeta{"gw1": {SiteID: "siteA"}}}
	resolver := fakeResolver{reason: domain.ReasonUnauthorized}

	c, _ := newTestChannel(t, Deps{Resources: res, Connections: conns, GatewayPres: pres, Resolver: resolver})

	in := requestConnectionIn{ResourceID: "r1"}
	payload, _ := json.Marshal(in)
	env := wire.Envelope{Event: "request_connection", Payload: payload}

	_, wireErr := c.HandleWire(context.Background(), env)
	if wireErr == nil || wireErr.Reason != domain.ReasonUnauthorized {
		t.Fatalf("expected unauthorized, got %#v", wireErr)
	}
	if len(c.pending) != 0 {
		t.Fatal("expected no pending entry on rejection")
	}
}

func TestHandleCreateFlowPopulatesClientDeviceAndSubjectFields(t *testing.T) {
	dir := directory.New()
	gwInbox, unregister := dir.Register("gw1")
	defer unregister()

	res := fakeResources{byID: map[string]domain.Resource{
		"r1": {ID: "r1", AccountID: "acct1", Type: domain.ResourceIP, Address: "10.0.0.1"},
	}}
	conns := fakeConnections{sites: map[string][]string{"r1": {"siteA"}}}
	pres := fakeGatewayPresence{entries: map[string]presence.GatewayMeta{"gw1": {SiteID: "siteA"}}}
	resolver := fakeResolver{pa: domain.PolicyAuthorization{ID: "pa1", ExpiresAt: time.Unix(5000, 0)}}

	client := domain.Client{
		ID: "client1", AccountID: "acct1", ActorID: "actor1",
		LastSeenVersion:   "1.4.2",
		LastSeenUserAgent: "FirezoneClient/1.4.2 (iPhone; iOS 17.4.1)",
	}
	actor := domain.Actor{ID: "actor1", AccountID: "acct1", Email: "a@example.com", Name: "A", AuthProviderID: "idp-123"}
	c := New(client, domain.Account{ID: "acct1", Active: true}, actor, domain.Token{ID: "tok1"},
		resourceadapter.ParseVersion("1.3.0"),
		Deps{Gateways: dir, Resources: res, Connections: conns, GatewayPres: pres, Resolver: resolver})

	in := createFlowIn{ResourceID: "r1"}
	payload, _ := json.Marshal(in)
	env := wire.Envelope{Topic: "client:client1", Event: "create_flow", Payload: payload}

	_, wireErr := c.HandleWire(context.Background(), env)
	if wireErr != nil {
		t.Fatalf("unexpected wire error: %v", wireErr)
	}

	select {
	case got := <-gwInbox:
		var cmd authorizeFlowCommandOut
		if err := json.Unmarshal(got.Payload, &cmd); err != nil {
			t.Fatal(err)
		}
		if cmd.Client.Version != "1.4.2" {
			t.Fatalf("expected client.version %q, got %q", "1.4.2", cmd.Client.Version)
		}
		if cmd.Client.DeviceOSName != "iOS" || cmd.Client.DeviceOSVersion != "17.4.1" {
			t.Fatalf("expected device_os_name/version parsed from the user agent, got %q/%q", cmd.Client.DeviceOSName, cmd.Client.DeviceOSVersion)
		}
		if cmd.Subject.AuthProviderID != "idp-123" {
			t.Fatalf("expected subject.auth_provider_id %q, got %q", "idp-123", cmd.Subject.AuthProviderID)
		}
	default:
		t.Fatal("expected a command to land in gw1's mailbox")
	}
}

func TestHandleUnknownEventIsRejected(t *testing.T) {
	c, _ := newTestChannel(t, Deps{})
	_, wireErr := c.HandleWire(context.Background(), wire.Envelope{Event: "nonsense"})
	if wireErr == nil || wireErr.Reason != domain.ReasonUnknownMessage {
		t.Fatalf("expected unknown_message, got %#v", wireErr)
	}
}
