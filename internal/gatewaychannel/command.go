// internal/gatewaychannel/command.go
// Commands are the direct-actor-send half of cross-channel interaction
// (§5: "all cross-channel interaction is by message passing via PubSub or
// direct actor sends"). A Client Channel that has resolved an access
// decision cannot call a Gateway Channel's Push methods directly — that
// would be a second goroutine mutating this actor's state — so it instead
// posts a command envelope through the shared gateway-command Directory,
// and this Channel's own Run loop applies it on its own goroutine.
package gatewaychannel

import (
	"encoding/json"
	"time"

	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"go.uber.org/zap"
)

// CommandTopic is the topic a clientchannel.Channel forwards command
// envelopes to, via the gateway-command Directory registered under the
// Gateway's id.
const CommandTopic = "gateway_cmd"

type resourceFields struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	IPStack   string `json:"ip_stack"`
	Filters   []struct {
		Protocol string `json:"protocol"`
		Ports    []struct {
			Start uint16 `json:"start"`
			End   uint16 `json:"end"`
		} `json:"ports"`
	} `json:"filters"`
}

func (f resourceFields) toResource() domain.Resource {
	r := domain.Resource{
		ID: f.ID, AccountID: f.AccountID, Type: domain.ResourceType(f.Type),
		Name: f.Name, Address: f.Address, IPStack: domain.IPStack(f.IPStack),
	}
	for _, filter := range f.Filters {
		df := domain.Filter{Protocol: domain.Protocol(filter.Protocol)}
		for _, p := range filter.Ports {
			df.Ports = append(df.Ports, domain.PortRange{Start: p.Start, End: p.End})
		}
		r.Filters = append(r.Filters, df)
	}
	return r
}

// requestConnectionCommand asks this Gateway Channel to push
// `request_connection` to its Gateway on behalf of a resolved access grant.
type requestConnectionCommand struct {
	ClientID      string          `json:"client_id"`
	Resource      resourceFields  `json:"resource"`
	PolicyAuthID  string          `json:"policy_authorization_id"`
	ExpiresAt     int64           `json:"expires_at"`
	Peer          ClientPeer      `json:"peer"`
	ClientPayload json.RawMessage `json:"client_payload,omitempty"`
	ClientRef     string          `json:"client_ref"`
}

// authorizeFlowCommand is the authorize_flow analogue of
// requestConnectionCommand, for the pre-exchanged-ICE path.
type authorizeFlowCommand struct {
	ClientID     string               `json:"client_id"`
	Resource     resourceFields       `json:"resource"`
	PolicyAuthID string               `json:"policy_authorization_id"`
	ExpiresAt    int64                `json:"expires_at"`
	Client       AuthorizeFlowClient  `json:"client"`
	Subject      AuthorizeFlowSubject `json:"subject"`
	ClientICE    ICECredentials       `json:"client_ice_credentials"`
	GatewayICE   ICECredentials       `json:"gateway_ice_credentials"`
	ClientRef    string               `json:"client_ref"`
}

// commandEnvelope decodes only the discriminator; HandleCommand decodes into
// it first, then decodes the whole payload again into the typed command.
type commandEnvelope struct {
	Kind string `json:"kind"`
}

// HandleCommand applies a cross-channel command posted by a Client Channel.
// Adaptation to this Gateway's own PeerVersion happens here, not on the
// client side, since only this actor knows its PeerVersion; a Drop verdict
// surfaces as a reject_access push to this Gateway rather than silently doing
// nothing. Nothing is sent back to the Client Channel; its pending entry is
// reaped by its own deadline sweep.
func (c *Channel) HandleCommand(payload []byte) {
	var disc commandEnvelope
	if err := json.Unmarshal(payload, &disc); err != nil {
		logging.Logger().Error("gatewaychannel: decode command envelope", zap.Error(err))
		return
	}
	switch disc.Kind {
	case "request_connection":
		var cmd requestConnectionCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			logging.Logger().Error("gatewaychannel: decode request_connection command", zap.Error(err))
			return
		}
		view, verdict := resourceadapter.Adapt(cmd.Resource.toResource(), c.PeerVersion)
		if verdict != resourceadapter.Cont {
			c.pushRejectAccess(cmd.ClientID, cmd.Resource.ID)
			return
		}
		c.PushRequestConnection(cmd.ClientID, view, cmd.PolicyAuthID, time.Unix(cmd.ExpiresAt, 0), cmd.Peer, cmd.ClientPayload, cmd.ClientRef)
	case "authorize_flow":
		var cmd authorizeFlowCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			logging.Logger().Error("gatewaychannel: decode authorize_flow command", zap.Error(err))
			return
		}
		view, verdict := resourceadapter.Adapt(cmd.Resource.toResource(), c.PeerVersion)
		if verdict != resourceadapter.Cont {
			c.pushRejectAccess(cmd.ClientID, cmd.Resource.ID)
			return
		}
		c.PushAuthorizeFlow(cmd.ClientID, view, cmd.PolicyAuthID, time.Unix(cmd.ExpiresAt, 0), cmd.Client, cmd.Subject, cmd.ClientICE, cmd.GatewayICE, cmd.ClientRef)
	default:
		logging.Sugar().Warnw("gatewaychannel: unknown command kind", "gateway_id", c.Gateway.ID, "kind", disc.Kind)
	}
}
