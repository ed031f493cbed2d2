// internal/gatewaychannel/wire_in.go
// Inbound wire message handling for the Gateway Channel (§4.5's "Inbound
// wire messages" table).
package gatewaychannel

import (
	"encoding/json"

	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/wire"
)

type refOnlyPayload struct {
	Ref string `json:"ref"`
}

type connectionReadyInPayload struct {
	Ref            string          `json:"ref"`
	GatewayPayload json.RawMessage `json:"gateway_payload"`
}

// clientRefPayload and connectionReadyOutPayload are the client-facing
// shapes forwarded via the Directory, carrying the originating Client
// Channel's own correlation id (pendingRef.ClientRef) alongside this
// Channel's ref so the Client Channel need not learn the latter.
type clientRefPayload struct {
	Ref       string `json:"ref"`
	ClientRef string `json:"client_ref,omitempty"`
}

type connectionReadyOutPayload struct {
	Ref            string          `json:"ref"`
	ClientRef      string          `json:"client_ref,omitempty"`
	GatewayPayload json.RawMessage `json:"gateway_payload"`
}

type iceBroadcastInPayload struct {
	ClientIDs  []string          `json:"client_ids"`
	Candidates []json.RawMessage `json:"candidates"`
}

// HandleWire dispatches one inbound frame from the Gateway per the §4.5
// table. A nil reply means "no reply" (the table's "none"); a non-nil
// *domain.WireError means the caller should encode {error, reason} on the
// request's own ref.
func (c *Channel) HandleWire(env wire.Envelope) (reply *wire.Envelope, wireErr *domain.WireError) {
	switch env.Event {
	case "flow_authorized":
		return c.handleFlowAuthorized(env)
	case "connection_ready":
		return c.handleConnectionReady(env)
	case "broadcast_ice_candidates":
		c.handleBroadcastICE(env, "ice_candidates")
		return nil, nil
	case "broadcast_invalidated_ice_candidates":
		c.handleBroadcastICE(env, "invalidated_ice_candidates")
		return nil, nil
	default:
		return nil, domain.NewWireError(domain.ReasonUnknownMessage)
	}
}

func (c *Channel) handleFlowAuthorized(env wire.Envelope) (*wire.Envelope, *domain.WireError) {
	var p refOnlyPayload
	if err := env.Decode(&p); err != nil || p.Ref == "" {
		return nil, domain.NewWireError(domain.ReasonInvalidRef)
	}
	pr, ok := c.pending[p.Ref]
	if !ok {
		return nil, domain.NewWireError(domain.ReasonInvalidRef)
	}
	delete(c.pending, p.Ref)

	out, err := wire.Encode("client:"+pr.ClientID, "flow_authorized", p.Ref, clientRefPayload{Ref: p.Ref, ClientRef: pr.ClientRef})
	if err == nil {
		c.clients.Forward(pr.ClientID, out)
	}
	ack, _ := wire.Encode("gateway:"+c.Gateway.ID, "ok", env.Ref, nil)
	return &ack, nil
}

func (c *Channel) handleConnectionReady(env wire.Envelope) (*wire.Envelope, *domain.WireError) {
	var p connectionReadyInPayload
	if err := env.Decode(&p); err != nil || p.Ref == "" {
		return nil, domain.NewWireError(domain.ReasonInvalidRef)
	}
	pr, ok := c.pending[p.Ref]
	if !ok {
		return nil, domain.NewWireError(domain.ReasonInvalidRef)
	}
	delete(c.pending, p.Ref)

	out, err := wire.Encode("client:"+pr.ClientID, "connection_ready", p.Ref, connectionReadyOutPayload{
		Ref: p.Ref, ClientRef: pr.ClientRef, GatewayPayload: p.GatewayPayload,
	})
	if err == nil {
		c.clients.Forward(pr.ClientID, out)
	}
	ack, _ := wire.Encode("gateway:"+c.Gateway.ID, "ok", env.Ref, nil)
	return &ack, nil
}

// handleBroadcastICE implements both ICE-candidate broadcast variants: same
// routing ("For each client_id whose Client Channel is online in this
// account"), different outbound event name.
func (c *Channel) handleBroadcastICE(env wire.Envelope, outEvent string) {
	var p iceBroadcastInPayload
	if err := env.Decode(&p); err != nil || len(p.ClientIDs) == 0 {
		return
	}
	online := make(map[string]struct{})
	if c.clientsOnline != nil {
		for _, id := range c.clientsOnline.OnlineIDs(c.Account.ID) {
			online[id] = struct{}{}
		}
	}
	for _, clientID := range p.ClientIDs {
		if _, ok := online[clientID]; !ok {
			continue
		}
		out, err := wire.Encode("client:"+clientID, outEvent, "", struct {
			From       string            `json:"from"`
			Candidates []json.RawMessage `json:"candidates"`
		}{From: c.Gateway.ID, Candidates: p.Candidates})
		if err != nil {
			continue
		}
		c.clients.Forward(clientID, out)
	}
}
