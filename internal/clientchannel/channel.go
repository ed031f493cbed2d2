// internal/clientchannel/channel.go
// Package clientchannel implements the Client Channel (C6) — one instance
// per connected Client, issuing connection requests, receiving ICE/handshake
// replies forwarded from Gateway Channels, and pushing resource list
// updates. Like gatewaychannel.Channel, it is a single-goroutine-sequential
// actor: every exported method here is meant to be called only from the
// actor loop in actor.go (or serially, in tests).
package clientchannel

import (
	"context"
	"math/rand"
	"time"

	"github.com/Voskan/flarego/internal/authz"
	"github.com/Voskan/flarego/internal/directory"
	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/gatewaychannel"
	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/presence"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"github.com/Voskan/flarego/internal/tracing"
	"github.com/Voskan/flarego/internal/wire"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AccessResolver is the subset of *authz.Resolver this Channel needs:
// Resolve for a fresh connection request, CanAccess for filtering pushes to
// resources the client's actor is still authorized for (§4.6).
type AccessResolver interface {
	Resolve(ctx context.Context, req authz.Request) (domain.PolicyAuthorization, domain.Reason)
	CanAccess(ctx context.Context, req authz.Request) bool
}

// ResourceStore resolves resource ids to rows, scoped to the caller's
// account by construction.
type ResourceStore interface {
	ResourceByID(ctx context.Context, accountID, resourceID string) (domain.Resource, bool, error)
	ResourcesForAccount(ctx context.Context, accountID string) ([]domain.Resource, error)
}

// ResourceConnectionsStore answers which sites serve a resource, per the
// resource_connections table (§9's persistent state layout).
type ResourceConnectionsStore interface {
	SiteIDsForResource(ctx context.Context, resourceID string) ([]string, error)
}

// GatewayPresence answers which gateways are currently online, filterable by
// metadata — satisfied by *presence.Namespace[presence.GatewayMeta].
type GatewayPresence interface {
	OnlineIDsWhere(accountID string, pred func(presence.GatewayMeta) bool) []string
}

// pendingKind distinguishes the two full-handshake flows this Channel can
// originate.
type pendingKind string

const (
	pendingRequestConnection pendingKind = "request_connection"
	pendingAuthorizeFlow     pendingKind = "authorize_flow"
)

// pendingRequest is what this Channel remembers between posting a command to
// a Gateway Channel and either its reply arriving or its deadline expiring
// (§5's "configurable deadline, recommended 30s").
type pendingRequest struct {
	Kind       pendingKind
	ResourceID string
	GatewayID  string
	Deadline   time.Time
	Span       trace.Span // non-nil when c.tracer is configured; ended on reply or timeout
}

// Channel owns one connected Client's state. The zero value is not usable;
// construct with New.
type Channel struct {
	Client  domain.Client
	Account domain.Account
	Actor   domain.Actor
	Token   domain.Token

	PeerVersion resourceadapter.Version

	sink     wire.Sink
	bus      *pubsub.Bus
	gateways *directory.Directory // posts command envelopes to Gateway Channels
	replies  *directory.Directory // this Channel's own inbox for forwarded gateway replies

	resolver    AccessResolver
	resources   ResourceStore
	connections ResourceConnectionsStore
	gatewayPres GatewayPresence
	tracer      *tracing.HandshakeTracer // nil disables handshake spans; every use checks for nil first

	now func() time.Time
	rng *rand.Rand

	pending map[string]pendingRequest // keyed by locally-minted clientRef

	lastLSN int64

	terminated        bool
	terminationReason string

	changeFeed   chan pubsub.Message
	unsubAccount func()
	unsubToken   func()
	unsubClient  func()
}

// Deps bundles the collaborators New needs, since the list is long enough
// that a positional constructor would be unreadable at call sites.
type Deps struct {
	Sink        wire.Sink
	Bus         *pubsub.Bus
	Gateways    *directory.Directory
	Replies     *directory.Directory
	Resolver    AccessResolver
	Resources   ResourceStore
	Connections ResourceConnectionsStore
	GatewayPres GatewayPresence
	Tracer      *tracing.HandshakeTracer // optional; nil disables span correlation for this Channel's handshakes
	Now         func() time.Time
	Rng         *rand.Rand
}

// New constructs a Channel. rng defaults to a source seeded from the current
// time (tests inject a seeded one for determinism).
func New(client domain.Client, account domain.Account, actor domain.Actor, token domain.Token, peerVersion resourceadapter.Version, deps Deps) *Channel {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	rng := deps.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Channel{
		Client: client, Account: account, Actor: actor, Token: token, PeerVersion: peerVersion,
		sink: deps.Sink, bus: deps.Bus, gateways: deps.Gateways, replies: deps.Replies,
		resolver: deps.Resolver, resources: deps.Resources, connections: deps.Connections, gatewayPres: deps.GatewayPres,
		tracer: deps.Tracer,
		now:    now, rng: rng,
		pending: make(map[string]pendingRequest),
	}
}

// Join sends the one-time `authorized_resources` push (§4.6): every resource
// in the account the client's actor currently has at least one matching
// policy for, adapted to PeerVersion.
func (c *Channel) Join(ctx context.Context) {
	all, err := c.resources.ResourcesForAccount(ctx, c.Account.ID)
	if err != nil {
		logging.Logger().Error("clientchannel: list resources", zap.Error(err))
		return
	}
	var views []resourceView
	for _, r := range all {
		if !c.canAccess(ctx, r) {
			continue
		}
		view, verdict := resourceadapter.Adapt(r, c.PeerVersion)
		if verdict != resourceadapter.Cont {
			continue
		}
		views = append(views, toResourceView(view))
	}
	env, err := wire.Encode("client:"+c.Client.ID, "authorized_resources", "", authorizedResourcesPayload{Resources: views})
	if err != nil {
		logging.Logger().Error("clientchannel: encode authorized_resources", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

func (c *Channel) canAccess(ctx context.Context, r domain.Resource) bool {
	return c.resolver.CanAccess(ctx, authz.Request{
		Client:   c.Client,
		Resource: r,
		Subject:  domain.Subject{Account: c.Account, Actor: c.Actor, Token: c.Token},
	})
}

// SelectGateway implements §4.6's gateway-selection rule: uniformly random
// among online gateways whose site_id appears among the resource's
// connections. ok is false (with no error) if no gateway qualifies, which
// callers surface as `offline`.
func (c *Channel) SelectGateway(ctx context.Context, resourceID string) (gatewayID string, ok bool) {
	siteIDs, err := c.connections.SiteIDsForResource(ctx, resourceID)
	if err != nil || len(siteIDs) == 0 {
		return "", false
	}
	sites := make(map[string]struct{}, len(siteIDs))
	for _, s := range siteIDs {
		sites[s] = struct{}{}
	}
	online := c.gatewayPres.OnlineIDsWhere(c.Account.ID, func(m presence.GatewayMeta) bool {
		_, in := sites[m.SiteID]
		return in
	})
	if len(online) == 0 {
		return "", false
	}
	return online[c.rng.Intn(len(online))], true
}

// defaultPendingDeadline is §5's recommended 30s.
const defaultPendingDeadline = 30 * time.Second

// newPendingRef mints a correlation id for a fresh command post and remembers
// it for the deadline sweep in actor.go. When a tracer is configured, the ref
// also opens a span bracketing the request's round trip to the Gateway
// Channel; it is ended by endPendingSpan once the reply arrives or the entry
// is reaped by sweepPending.
func (c *Channel) newPendingRef(ctx context.Context, kind pendingKind, resourceID, gatewayID string) string {
	ref := wire.NewRef()
	var span trace.Span
	if c.tracer != nil {
		_, span = c.tracer.StartHandshake(ctx, ref, string(kind))
	}
	c.pending[ref] = pendingRequest{Kind: kind, ResourceID: resourceID, GatewayID: gatewayID, Deadline: c.now().Add(defaultPendingDeadline), Span: span}
	return ref
}

// endPendingSpan closes ref's handshake span (if any) and forgets it from
// the tracer's ref table. ok distinguishes a clean reply from a timeout so
// the span records the right status.
func (c *Channel) endPendingSpan(ref string, pr pendingRequest, ok bool) {
	if c.tracer != nil {
		c.tracer.Forget(ref)
	}
	if pr.Span == nil {
		return
	}
	if !ok {
		pr.Span.SetStatus(codes.Error, "timeout")
	}
	pr.Span.End()
}

// postCommand forwards env to gatewayID's command inbox via the
// gateway-command Directory. A delivery failure (gateway not registered, or
// its mailbox full) is treated the same as it never replying: the pending
// entry stays and is later reaped as `offline`/`timeout` by the sweep.
func (c *Channel) postCommand(gatewayID string, env wire.Envelope) {
	if !c.gateways.Forward(gatewayID, env) {
		logging.Sugar().Warnw("clientchannel: gateway command not delivered", "client_id", c.Client.ID, "gateway_id", gatewayID)
	}
}

func (c *Channel) pushOffline(resourceID, reason string) {
	env, err := wire.Encode("client:"+c.Client.ID, "offline", "", offlinePayload{ResourceID: resourceID, Reason: reason})
	if err != nil {
		logging.Logger().Error("clientchannel: encode offline", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

// sweepPending discards every pending ref past its deadline, surfacing
// `offline`/`timeout` to the Client for each (§5).
func (c *Channel) sweepPending(now time.Time) {
	for ref, pr := range c.pending {
		if now.Before(pr.Deadline) {
			continue
		}
		delete(c.pending, ref)
		c.endPendingSpan(ref, pr, false)
		c.pushOffline(pr.ResourceID, string(domain.ReasonTimeout))
	}
}

// Terminate tears the channel down (token/client deletion, §4.5 reactions
// #4/#5 mirrored for the client side). Idempotent.
func (c *Channel) Terminate(reason string) {
	if c.terminated {
		return
	}
	c.terminated = true
	c.terminationReason = reason
	env, err := wire.Encode("client:"+c.Client.ID, "disconnect", "", struct {
		Reason string `json:"reason"`
	}{Reason: reason})
	if err != nil {
		logging.Logger().Error("clientchannel: encode disconnect", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

// Terminated reports whether Terminate has been called and why.
func (c *Channel) Terminated() (reason string, terminated bool) {
	return c.terminationReason, c.terminated
}

// gatewayCommandTopic re-exports gatewaychannel.CommandTopic so callers
// constructing command envelopes do not need a second import alias.
const gatewayCommandTopic = gatewaychannel.CommandTopic

// wireClientPush encodes an envelope addressed to this Channel's own Client.
func wireClientPush(clientID, event string, payload any) (wire.Envelope, error) {
	return wire.Encode("client:"+clientID, event, "", payload)
}
