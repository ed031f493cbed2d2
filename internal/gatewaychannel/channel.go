// internal/gatewaychannel/channel.go
// Package gatewaychannel implements the Gateway Channel (C5) — one instance
// per connected Gateway, the "heart of the core" per §4.5. A Channel is a
// single-goroutine-sequential actor: every exported method here is meant to
// be called only from the actor loop in actor.go (or, for tests, serially),
// never concurrently — matching §5's "no locks are needed" design.
package gatewaychannel

import (
	"time"

	"github.com/Voskan/flarego/internal/directory"
	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/relay"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"github.com/Voskan/flarego/internal/wire"
	"go.uber.org/zap"
)

// cacheKey identifies one (client, resource) pair tracked in the cache.
type cacheKey struct {
	ClientID   string
	ResourceID string
}

// pendingKind distinguishes the two full-handshake flows so logging/metrics
// can tell them apart; behaviorally they are routed identically.
type pendingKind string

const (
	pendingRequestConnection pendingKind = "request_connection"
	pendingAuthorizeFlow     pendingKind = "authorize_flow"
)

// pendingRef is what a Channel remembers between pushing a full-handshake
// message to the Gateway and receiving its flow_authorized/connection_ready
// reply, so the reply can be routed back to the originating Client Channel.
type pendingRef struct {
	Kind       pendingKind
	ClientID   string
	ResourceID string
	// ClientRef is the correlation id the originating Client Channel minted
	// for its own pending-deadline tracking; it is opaque to this Channel
	// and is echoed back unchanged on the eventual reply so the Client
	// Channel can look its own pending state up without learning this
	// Channel's internal ref.
	ClientRef string
}

// Channel owns one connected Gateway's state. The zero value is not usable;
// construct with New.
type Channel struct {
	Gateway     domain.Gateway
	Account     domain.Account
	Token       domain.Token
	PeerVersion resourceadapter.Version

	sink      wire.Sink
	bus       *pubsub.Bus
	clients   *directory.Directory
	clientsOnline OnlineChecker
	now       func() time.Time

	lastLSN int64
	cache   map[cacheKey]map[string]int64 // policy_authorization_id -> expires_at unix

	pending map[string]pendingRef

	// lastIface/lastRelays/lastMasquerade are remembered from the last `init`
	// push so reactAccountSlugChanged (§4.5 reaction #3) can resend init with
	// only the slug changed.
	lastIface      InterfaceConfig
	lastRelays     []relay.View
	lastMasquerade MasqueradeConfig

	terminated        bool
	terminationReason string

	changeFeed   chan pubsub.Message
	resourceSubs map[string]func()
	unsubAccount func()
	unsubToken   func()
	unsubGateway func()
}

// OnlineChecker answers whether clientID is currently online within
// accountID, per the Presence Registry (C3). Scoped to an interface so
// Channel does not need to know the concrete presence metadata type.
type OnlineChecker interface {
	OnlineIDs(accountID string) []string
}

// New constructs a Channel. sink is the transport-facing outbound mailbox;
// clients is the shared direct-send directory used to forward messages to
// Client Channels without gatewaychannel importing clientchannel.
func New(gw domain.Gateway, account domain.Account, token domain.Token, peerVersion resourceadapter.Version, sink wire.Sink, bus *pubsub.Bus, clients *directory.Directory, clientsOnline OnlineChecker, now func() time.Time) *Channel {
	if now == nil {
		now = time.Now
	}
	return &Channel{
		Gateway: gw, Account: account, Token: token, PeerVersion: peerVersion,
		sink: sink, bus: bus, clients: clients, clientsOnline: clientsOnline, now: now,
		cache:   make(map[cacheKey]map[string]int64),
		pending: make(map[string]pendingRef),
	}
}

// Join sends the one-time `init` push (§4.5 step 1). relays is the initial
// selection computed by relay.Pusher.InitialSelect, not a debounced push.
func (c *Channel) Join(accountSlug string, iface InterfaceConfig, relays []relay.View, masquerade MasqueradeConfig) {
	c.pushInit(accountSlug, iface, relays, masquerade)
}

func (c *Channel) pushInit(accountSlug string, iface InterfaceConfig, relays []relay.View, masquerade MasqueradeConfig) {
	c.lastIface, c.lastRelays, c.lastMasquerade = iface, relays, masquerade

	env, err := wire.Encode("gateway:"+c.Gateway.ID, "init", "", initPayload{
		AccountSlug: accountSlug, Interface: iface, Relays: relays, Config: masquerade,
	})
	if err != nil {
		logging.Logger().Error("gatewaychannel: encode init", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

// PushRelaysPresence sends a debounced relay churn push (§4.7).
func (c *Channel) PushRelaysPresence(connected []relay.View, disconnectedIDs []string) {
	c.lastRelays = connected

	env, err := wire.Encode("gateway:"+c.Gateway.ID, "relays_presence", "", relaysPresencePayload{
		Connected: connected, DisconnectedIDs: disconnectedIDs,
	})
	if err != nil {
		logging.Logger().Error("gatewaychannel: encode relays_presence", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

// recordAuthorization adds a cache entry and ensures the Channel is
// subscribed to resource:{resourceID} so future resource_updated/deleted
// reactions for it are observed.
func (c *Channel) recordAuthorization(clientID, resourceID, policyAuthID string, expiresAt time.Time) {
	key := cacheKey{ClientID: clientID, ResourceID: resourceID}
	if c.cache[key] == nil {
		c.cache[key] = make(map[string]int64)
	}
	c.cache[key][policyAuthID] = expiresAt.Unix()
	c.ensureResourceSubscribed(resourceID)
}

// ensureResourceSubscribed subscribes to resource:{resourceID} the first time
// it is cached against, fanning deliveries into changeFeed alongside the
// account/token/gateway topics attached by Run. A no-op before Run has
// attached the bus (changeFeed is nil in that case, matching unit tests that
// drive HandleChangeEvent directly).
func (c *Channel) ensureResourceSubscribed(resourceID string) {
	if c.changeFeed == nil || c.bus == nil {
		return
	}
	if _, ok := c.resourceSubs[resourceID]; ok {
		return
	}
	sub, unsub := c.bus.Subscribe("resource:" + resourceID)
	c.resourceSubs[resourceID] = unsub
	feed := c.changeFeed
	go func() {
		for msg := range sub {
			feed <- msg
		}
	}()
}

// maybeUnsubscribeResource drops the resource:{resourceID} subscription once
// no cache entry references it any longer.
func (c *Channel) maybeUnsubscribeResource(resourceID string) {
	if c.changeFeed == nil {
		return
	}
	for key := range c.cache {
		if key.ResourceID == resourceID {
			return
		}
	}
	if unsub, ok := c.resourceSubs[resourceID]; ok {
		unsub()
		delete(c.resourceSubs, resourceID)
	}
}

func toResourceView(v resourceadapter.ResourceView) resourceView {
	filters := make([]filterEntry, len(v.Filters))
	for i, f := range v.Filters {
		filters[i] = filterEntry{Protocol: f.Protocol, PortRangeStart: f.PortRangeStart, PortRangeEnd: f.PortRangeEnd}
	}
	return resourceView{ID: v.ID, Type: v.Type, Name: v.Name, Address: v.Address, Filters: filters}
}

// PushAllowAccess pushes `allow_access` for an existing-tunnel access grant
// and records the backing authorization in the cache.
func (c *Channel) PushAllowAccess(clientID string, resource resourceadapter.ResourceView, policyAuthID string, clientIPv4, clientIPv6 string, expiresAt time.Time, clientPayload []byte) {
	c.recordAuthorization(clientID, resource.ID, policyAuthID, expiresAt)

	ref := wire.NewRef()
	env, err := wire.Encode("gateway:"+c.Gateway.ID, "allow_access", ref, allowAccessPayload{
		Ref: ref, Resource: toResourceView(resource), ClientID: clientID,
		ClientIPv4: clientIPv4, ClientIPv6: clientIPv6, ExpiresAt: unixOrZero(expiresAt),
		ClientPayload: clientPayload,
	})
	if err != nil {
		logging.Logger().Error("gatewaychannel: encode allow_access", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

// PushRequestConnection starts the full-handshake path: it records a pending
// ref so the eventual connection_ready reply can be routed back to clientID.
// clientRef is the originating Client Channel's own correlation id (may be
// empty when called outside that flow, e.g. directly from tests) and is
// echoed back verbatim on the eventual reply.
func (c *Channel) PushRequestConnection(clientID string, resource resourceadapter.ResourceView, policyAuthID string, expiresAt time.Time, peer ClientPeer, clientPayload []byte, clientRef string) string {
	c.recordAuthorization(clientID, resource.ID, policyAuthID, expiresAt)

	ref := wire.NewRef()
	c.pending[ref] = pendingRef{Kind: pendingRequestConnection, ClientID: clientID, ResourceID: resource.ID, ClientRef: clientRef}

	payload := requestConnectionPayload{Ref: ref, Resource: toResourceView(resource)}
	payload.Client.ID = clientID
	payload.Client.Peer = peer
	payload.Client.Payload = clientPayload

	env, err := wire.Encode("gateway:"+c.Gateway.ID, "request_connection", ref, payload)
	if err != nil {
		logging.Logger().Error("gatewaychannel: encode request_connection", zap.Error(err))
		delete(c.pending, ref)
		return ""
	}
	c.sink.Send(env)
	return ref
}

// PushAuthorizeFlow starts the pre-exchanged-ICE handshake path analogous to
// PushRequestConnection, awaiting a flow_authorized reply. See
// PushRequestConnection for clientRef's role.
func (c *Channel) PushAuthorizeFlow(clientID string, resource resourceadapter.ResourceView, policyAuthID string, expiresAt time.Time, client AuthorizeFlowClient, subject AuthorizeFlowSubject, clientICE, gatewayICE ICECredentials, clientRef string) string {
	c.recordAuthorization(clientID, resource.ID, policyAuthID, expiresAt)
	client.ID = clientID

	ref := wire.NewRef()
	c.pending[ref] = pendingRef{Kind: pendingAuthorizeFlow, ClientID: clientID, ResourceID: resource.ID, ClientRef: clientRef}

	env, err := wire.Encode("gateway:"+c.Gateway.ID, "authorize_flow", ref, authorizeFlowPayload{
		Ref: ref, Resource: toResourceView(resource), Client: client, Subject: subject,
		ClientICECredentials: clientICE, GatewayICECredentials: gatewayICE,
	})
	if err != nil {
		logging.Logger().Error("gatewaychannel: encode authorize_flow", zap.Error(err))
		delete(c.pending, ref)
		return ""
	}
	c.sink.Send(env)
	return ref
}

// PruneCache drops cache entries whose expiry has passed. Silent: no wire
// pushes, per §4.5 ("its purpose is bounded memory, not notification").
func (c *Channel) PruneCache(now time.Time) int {
	cutoff := now.Unix()
	evicted := 0
	for key, byPA := range c.cache {
		for paID, expiresAt := range byPA {
			if expiresAt <= cutoff {
				delete(byPA, paID)
				evicted++
			}
		}
		if len(byPA) == 0 {
			delete(c.cache, key)
		}
	}
	return evicted
}

// CacheSize reports the number of (client, resource) pairs currently
// tracked, for the flarego_gatewaychannel_cache_entries gauge.
func (c *Channel) CacheSize() int {
	return len(c.cache)
}

// CacheSnapshot returns the cached policy_authorization ids for (clientID,
// resourceID), for tests and metrics. The returned map must not be mutated.
func (c *Channel) CacheSnapshot(clientID, resourceID string) map[string]int64 {
	return c.cache[cacheKey{ClientID: clientID, ResourceID: resourceID}]
}
