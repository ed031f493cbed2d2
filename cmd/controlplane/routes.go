// cmd/controlplane/routes.go
// HTTP routing and the three websocket upgrade handlers (§6): this is where
// a bearer-authenticated connection actually becomes a running
// gatewaychannel.Channel / clientchannel.Channel actor. Grounded on the
// teacher's internal/gateway/listener.go (one handler per upgrade kind,
// closing over the shared server state) generalised from the teacher's
// single agent-facing socket to this module's three roles.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/flarego/internal/clientchannel"
	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/gatewaychannel"
	"github.com/Voskan/flarego/internal/geo"
	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/metrics"
	"github.com/Voskan/flarego/internal/presence"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/relay"
	"github.com/Voskan/flarego/internal/replaytap"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"github.com/Voskan/flarego/internal/transport"
	"github.com/Voskan/flarego/internal/util"
	"github.com/Voskan/flarego/internal/wire"
)

// debugWatchTopic is an internal-only pubsub topic every connection's
// outbound frame is mirrored onto, for `fzctl watch` (SPEC_FULL §D) to tail
// live wire traffic. It never reaches a real Client/Gateway/Relay.
const debugWatchTopic = "debug_watch"

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/debug/replay", s.handleDebugReplay)
	mux.HandleFunc("/debug/watch", s.handleDebugWatch)
	mux.HandleFunc("/gateway/websocket", s.handleGatewayUpgrade)
	mux.HandleFunc("/client/websocket", s.handleClientUpgrade)
	mux.HandleFunc("/relay/websocket", s.handleRelayUpgrade)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleDebugReplay serves the tap's retained frames as a JSON array, polled
// by `fzctl record`'s fetchReplay (SPEC_FULL §D).
func (s *Server) handleDebugReplay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(w).Encode(s.tap.ReadAll())
}

// handleDebugWatch streams every live outbound frame as NDJSON until the
// client disconnects, optionally restricted to one topic. Fed by
// debugSink.Send alongside each Channel's real socket write and its
// replaytap recording.
func (s *Server) handleDebugWatch(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	sub, unsub := s.bus.Subscribe(debugWatchTopic)
	defer unsub()

	w.Header().Set("content-type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			env, ok := msg.Data.(wire.Envelope)
			if !ok || (topic != "" && env.Topic != topic) {
				continue
			}
			b, err := json.Marshal(env)
			if err != nil {
				continue
			}
			_, _ = w.Write(b)
			_, _ = w.Write([]byte("\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// debugSink fans every outbound frame out three ways: the real transport
// socket, the replay tap, and the live debug_watch topic. Channels only ever
// see a plain wire.Sink, matching §5's "wire writes are non-blocking"
// contract regardless of how many side doors are listening.
type debugSink struct {
	transport wire.Sink
	tap       replaytap.Tap
	bus       *pubsub.Bus
}

func (d debugSink) Send(env wire.Envelope) {
	d.transport.Send(env)
	_ = d.tap.Write(env)
	d.bus.Broadcast(debugWatchTopic, pubsub.Message{Event: "frame", Data: env})
}

// authenticate resolves the bearer token on r, verifying it and checking
// that the backing Token row is of the expected kind; a mismatch is reported
// as unauthenticated rather than invalid_token since the signature did verify.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, want domain.TokenType) (transport.Identity, bool) {
	tokenStr, _ := transport.ExtractBearerToken(r)
	identity, reason := s.authenticator.Authenticate(r.Context(), tokenStr)
	if reason != "" {
		transport.RejectUpgrade(w, reason)
		return transport.Identity{}, false
	}
	if identity.Token.Type != want {
		transport.RejectUpgrade(w, domain.ReasonUnauthenticated)
		return transport.Identity{}, false
	}
	return identity, true
}

// peerVersion resolves the connecting peer's protocol version from the
// `version` query parameter, falling back to lastSeen (the row's own
// last_seen_version from a prior connection) when absent.
func peerVersion(r *http.Request, lastSeen string) resourceadapter.Version {
	v := r.URL.Query().Get("version")
	if v == "" {
		v = lastSeen
	}
	return resourceadapter.ParseVersion(v)
}

// handleGatewayUpgrade authenticates a gateway-typed bearer token, upgrades
// the connection, and drives a gatewaychannel.Channel actor for its
// lifetime. Relay selection for the `init` push and subsequent
// `relays_presence` pushes is owned by a private watcher goroutine so the
// debounced relay.Pusher is never touched from more than one goroutine,
// matching the actor-isolation design relay.Pusher's own doc comment
// assumes.
func (s *Server) handleGatewayUpgrade(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r, domain.TokenGateway)
	if !ok {
		return
	}
	gw, found, err := s.store.GatewayByID(r.Context(), identity.Token.SubjectID)
	if err != nil || !found || gw.AccountID != identity.Account.ID {
		transport.RejectUpgrade(w, domain.ReasonInvalidToken)
		return
	}

	sock, err := transport.Upgrade(w, r)
	if err != nil {
		logging.Logger().Debug("controlplane: gateway upgrade failed", zap.Error(err))
		return
	}
	version := peerVersion(r, gw.LastSeenVersion)

	channel := gatewaychannel.New(gw, identity.Account, identity.Token, version, debugSink{transport: sock, tap: s.tap, bus: s.bus}, s.bus, s.clientsDir, s.clientsOnline, time.Now)

	cmdIn, unregisterCmd := s.gatewaysDir.Register(gw.ID)
	holderRef := util.MustNew()
	s.gatewaysOnline.Join(gw.ID, gw.AccountID, holderRef, presence.GatewayMeta{SiteID: gw.SiteID})

	gwLoc, gwHasLoc := geo.LatLon{}, gw.HasLocation()
	if gwHasLoc {
		gwLoc = geo.LatLon{Lat: *gw.Lat, Lon: *gw.Lon}
	}
	pusher := relay.NewPusher(s.selector, s.cfg.RelayDebounceWindow)
	initial := pusher.InitialSelect(gwLoc, gwHasLoc, s.relaysOnline.OnlineForAccount(gw.AccountID), s.cfg.RelayCount)

	iface := gatewaychannel.InterfaceConfig{IPv4: gw.IPv4Address, IPv6: gw.IPv6Address}
	masquerade := gatewaychannel.MasqueradeConfig{IPv4MasqueradeEnabled: true, IPv6MasqueradeEnabled: gw.IPv6Address != ""}
	channel.Join(identity.Account.Slug, iface, initial, masquerade)

	watchCtx, stopWatch := context.WithCancel(r.Context())
	go s.watchRelayPresence(watchCtx, gw.ID, gw.AccountID, pusher, gwLoc, gwHasLoc)

	channel.Run(r.Context(), sock.Inbox(), cmdIn, s.cfg.PruneCacheInterval)

	stopWatch()
	unregisterCmd()
	s.gatewaysOnline.Leave(gw.ID, holderRef)
	sock.Close()
}

// watchRelayPresence owns one Gateway's debounced relay.Pusher for the
// lifetime of its connection: it subscribes to this account's relay
// presence diffs and, once the debounce window elapses, recomputes the
// selection and publishes it on the Gateway's own "gateway:{id}" topic so
// HandleChangeEvent applies it from the single actor goroutine that already
// owns c.lastRelays.
func (s *Server) watchRelayPresence(ctx context.Context, gatewayID, accountID string, pusher *relay.Pusher, gwLoc geo.LatLon, gwHasLoc bool) {
	sub, unsub := s.bus.Subscribe(relayPresenceTopicPrefix + accountID)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub:
			pusher.NotifyPresenceChanged()
		case <-pusher.TimerChan():
			connected, disconnected := pusher.Fire(gwLoc, gwHasLoc, s.relaysOnline.OnlineForAccount(accountID), s.cfg.RelayCount)
			metrics.ObserveRelayChurn(len(connected), len(disconnected))
			s.bus.Broadcast("gateway:"+gatewayID, pubsub.Message{Event: "relays_presence", Data: relay.PresenceUpdate{Connected: connected, DisconnectedIDs: disconnected}})
		}
	}
}

// handleClientUpgrade authenticates a client-typed bearer token, upgrades
// the connection, and drives a clientchannel.Channel actor for its
// lifetime.
func (s *Server) handleClientUpgrade(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r, domain.TokenClient)
	if !ok {
		return
	}
	client, found, err := s.store.ClientByID(r.Context(), identity.Token.SubjectID)
	if err != nil || !found || client.AccountID != identity.Account.ID {
		transport.RejectUpgrade(w, domain.ReasonInvalidToken)
		return
	}
	actor, found, err := s.store.ActorByID(r.Context(), client.ActorID)
	if err != nil || !found {
		transport.RejectUpgrade(w, domain.ReasonInvalidToken)
		return
	}

	sock, err := transport.Upgrade(w, r)
	if err != nil {
		logging.Logger().Debug("controlplane: client upgrade failed", zap.Error(err))
		return
	}
	version := peerVersion(r, client.LastSeenVersion)

	repliesIn, unregisterReplies := s.clientsDir.Register(client.ID)
	channel := clientchannel.New(client, identity.Account, actor, identity.Token, version, clientchannel.Deps{
		Sink:        debugSink{transport: sock, tap: s.tap, bus: s.bus},
		Bus:         s.bus,
		Gateways:    s.gatewaysDir,
		Replies:     s.clientsDir,
		Resolver:    s.resolver,
		Resources:   s.store,
		Connections: s.store,
		GatewayPres: s.gatewaysOnline,
		Tracer:      s.tracer,
		Now:         time.Now,
	})

	holderRef := util.MustNew()
	s.clientsOnline.Join(client.ID, client.AccountID, holderRef, struct{}{})

	channel.Join(r.Context())
	channel.Run(r.Context(), sock.Inbox(), repliesIn, s.cfg.SweepInterval)

	unregisterReplies()
	s.clientsOnline.Leave(client.ID, holderRef)
	sock.Close()
}

// handleRelayUpgrade authenticates a relay-typed bearer token, joins the
// CRDT-keyed Relay presence namespace under the relay row's own
// stamp_secret, and otherwise just keeps the socket alive: relay churn is
// driven entirely by presence Join/Leave, observed by each Gateway
// Channel's own watchRelayPresence goroutine, so this handler does not run
// a full actor loop of its own.
func (s *Server) handleRelayUpgrade(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authenticate(w, r, domain.TokenRelay)
	if !ok {
		return
	}
	rel, found, err := s.store.RelayByID(r.Context(), identity.Token.SubjectID)
	if err != nil || !found {
		transport.RejectUpgrade(w, domain.ReasonInvalidToken)
		return
	}

	sock, err := transport.Upgrade(w, r)
	if err != nil {
		logging.Logger().Debug("controlplane: relay upgrade failed", zap.Error(err))
		return
	}

	holderRef := util.MustNew()
	meta := presence.RelayMeta{
		Type: string(rel.Type), Addr: rel.Addr, Username: rel.Username, Password: rel.Password,
		ExpiresAt: rel.ExpiresAt, Lat: rel.Lat, Lon: rel.Lon,
	}
	relayID := s.relaysOnline.Join(rel.StampSecret, identity.Account.ID, holderRef, meta)
	logging.Sugar().Infow("controlplane: relay online", "relay_id", relayID, "account_id", identity.Account.ID)

	// A relay has no inbound protocol of its own in this design; block until
	// the socket closes so presence Leave fires at the right time.
	for range sock.Inbox() {
	}

	s.relaysOnline.Leave(rel.StampSecret, holderRef)
	sock.Close()
}

