package clientchannel

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/Voskan/flarego/internal/authz"
	"github.com/Voskan/flarego/internal/directory"
	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/presence"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"github.com/Voskan/flarego/internal/wire"
)

type fakeResolver struct {
	allow  bool
	pa     domain.PolicyAuthorization
	reason domain.Reason
}

func (f fakeResolver) Resolve(_ context.Context, _ authz.Request) (domain.PolicyAuthorization, domain.Reason) {
	return f.pa, f.reason
}

func (f fakeResolver) CanAccess(_ context.Context, _ authz.Request) bool { return f.allow }

type fakeResources struct {
	byID map[string]domain.Resource
	all  []domain.Resource
}

func (f fakeResources) ResourceByID(_ context.Context, _, resourceID string) (domain.Resource, bool, error) {
	r, ok := f.byID[resourceID]
	return r, ok, nil
}

func (f fakeResources) ResourcesForAccount(_ context.Context, _ string) ([]domain.Resource, error) {
	return f.all, nil
}

type fakeConnections struct {
	sites map[string][]string
}

func (f fakeConnections) SiteIDsForResource(_ context.Context, resourceID string) ([]string, error) {
	return f.sites[resourceID], nil
}

type fakeGatewayPresence struct {
	entries map[string]presence.GatewayMeta
}

func (f fakeGatewayPresence) OnlineIDsWhere(_ string, pred func(presence.GatewayMeta) bool) []string {
	var out []string
	for id, m := range f.entries {
		if pred(m) {
			out = append(out, id)
		}
	}
	return out
}

func newTestChannel(t *testing.T, deps Deps) (*Channel, *wire.RecordingSink) {
	t.Helper()
	sink := &wire.RecordingSink{}
	if deps.Sink == nil {
		deps.Sink = sink
	}
	c := New(
		domain.Client{ID: "client1", AccountID: "acct1", ActorID: "actor1"},
		domain.Account{ID: "acct1", Active: true},
		domain.Actor{ID: "actor1", AccountID: "acct1"},
		domain.Token{ID: "tok1"},
		resourceadapter.ParseVersion("1.3.0"),
		deps,
	)
	return c, sink
}

func TestJoinPushesOnlyAuthorizedResources(t *testing.T) {
	res := fakeResources{all: []domain.Resource{
		{ID: "r1", AccountID: "acct1", Type: domain.ResourceIP, Address: "10.0.0.1"},
		{ID: "r2", AccountID: "acct1", Type: domain.ResourceIP, Address: "10.0.0.2"},
	}}
	c, sink := newTestChannel(t, Deps{Resolver: fakeResolver{allow: true}, Resources: res})
	c.Join(context.Background())

	sent := sink.Snapshot()
	if len(sent) != 1 || sent[0].Event != "authorized_resources" {
		t.Fatalf("expected one authorized_resources push, got %#v", sent)
	}
}

func TestJoinSkipsWhenResolverDenies(t *testing.T) {
	res := fakeResources{all: []domain.Resource{
		{ID: "r1", AccountID: "acct1", Type: domain.ResourceIP, Address: "10.0.0.1"},
	}}
	c, sink := newTestChannel(t, Deps{Resolver: fakeResolver{allow: false}, Resources: res})
	c.Join(context.Background())

	var p authorizedResourcesPayload
	sent := sink.Snapshot()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one push, got %d", len(sent))
	}
	if err := sent[0].Decode(&p); err != nil {
		t.Fatal(err)
	}
	if len(p.Resources) != 0 {
		t.Fatalf("expected zero resources when resolver denies all, got %#v", p.Resources)
	}
}

func TestSelectGatewayPicksAmongOnlineInSite(t *testing.T) {
	conns := fakeConnections{sites: map[string][]string{"r1": {"siteA"}}}
	pres := fakeGatewayPresence{entries: map[string]presence.GatewayMeta{
		"gw1": {SiteID: "siteA"},
		"gw2": {SiteID: "siteB"},
	}}
	c, _ := newTestChannel(t, Deps{Connections: conns, GatewayPres: pres, Rng: rand.New(rand.NewSource(1))})

	gw, ok := c.SelectGateway(context.Background(), "r1")
	if !ok || gw != "gw1" {
		t.Fatalf("expected gw1 (the only online gateway in siteA), got %q ok=%v", gw, ok)
	}
}

func TestSelectGatewayOfflineWhenNoSiteMatch(t *testing.T) {
	conns := fakeConnections{sites: map[string][]string{"r1": {"siteA"}}}
	pres := fakeGatewayPresence{entries: map[string]presence.GatewayMeta{"gw2": {SiteID: "siteB"}}}
	c, _ := newTestChannel(t, Deps{Connections: conns, GatewayPres: pres})

	_, ok := c.SelectGateway(context.Background(), "r1")
	if ok {
		t.Fatal("expected no gateway to qualify")
	}
}

func TestSelectGatewayOfflineWhenNoConnections(t *testing.T) {
	conns := fakeConnections{sites: map[string][]string{}}
	pres := fakeGatewayPresence{entries: map[string]presence.GatewayMeta{"gw1": {SiteID: "siteA"}}}
	c, _ := newTestChannel(t, Deps{Connections: conns, GatewayPres: pres})

	_, ok := c.SelectGateway(context.Background(), "r1")
	if ok {
		t.Fatal("expected offline when the resource has no site connections")
	}
}

func TestSweepPendingSurfacesTimeout(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c, sink := newTestChannel(t, Deps{Now: func() time.Time { return now }})
	c.newPendingRef(context.Background(), pendingRequestConnection, "r1", "gw1")

	c.sweepPending(now.Add(defaultPendingDeadline + time.Second))

	sent := sink.Snapshot()
	if len(sent) != 1 || sent[0].Event != "offline" {
		t.Fatalf("expected one offline push, got %#v", sent)
	}
	var p offlinePayload
	if err := sent[0].Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.ResourceID != "r1" || p.Reason != string(domain.ReasonTimeout) {
		t.Fatalf("unexpected offline payload: %#v", p)
	}
	if len(c.pending) != 0 {
		t.Fatal("expected pending entry to be discarded after sweep")
	}
}

func TestSweepPendingLeavesUnexpiredEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c, sink := newTestChannel(t, Deps{Now: func() time.Time { return now }})
	c.newPendingRef(context.Background(), pendingRequestConnection, "r1", "gw1")

	c.sweepPending(now.Add(time.Second))

	if len(sink.Snapshot()) != 0 {
		t.Fatal("expected no push before the deadline elapses")
	}
	if len(c.pending) != 1 {
		t.Fatal("expected the pending entry to remain")
	}
}

func TestTerminateIsIdempotent(t *testing.T) {
	c, sink := newTestChannel(t, Deps{})
	c.Terminate("token_deleted")
	c.Terminate("client_deleted")

	if reason, terminated := c.Terminated(); !terminated || reason != "token_deleted" {
		t.Fatalf("expected first reason to stick, got %q terminated=%v", reason, terminated)
	}
	if len(sink.Snapshot()) != 1 {
		t.Fatal("expected exactly one disconnect push")
	}
}

func TestPostCommandDeliversViaGatewayDirectory(t *testing.T) {
	dir := directory.New()
	inbox, unregister := dir.Register("gw1")
	defer unregister()

	c, _ := newTestChannel(t, Deps{Gateways: dir})
	env, _ := wire.Encode(gatewayCommandTopic, "request_connection", "", nil)
	c.postCommand("gw1", env)

	select {
	case got := <-inbox:
		if got.Event != "request_connection" {
			t.Fatalf("unexpected forwarded envelope: %#v", got)
		}
	default:
		t.Fatal("expected command to land in gw1's mailbox")
	}
}
