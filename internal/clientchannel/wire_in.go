// internal/clientchannel/wire_in.go
// Inbound wire message handling for the Client Channel (§4.6): messages
// arriving from the Client itself. Replies forwarded back from a Gateway
// Channel arrive on a separate path (gateway_reply.go), since they are
// posted via the replies Directory rather than this Channel's own wireIn.
package clientchannel

import (
	"context"
	"encoding/json"

	"github.com/Voskan/flarego/internal/authz"
	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"github.com/Voskan/flarego/internal/useragent"
	"github.com/Voskan/flarego/internal/wire"
)

// HandleWire dispatches one inbound frame from the Client. A nil reply means
// "no reply yet" — the full-handshake paths reply asynchronously once the
// selected Gateway answers (see gateway_reply.go).
func (c *Channel) HandleWire(ctx context.Context, env wire.Envelope) (reply *wire.Envelope, wireErr *domain.WireError) {
	switch env.Event {
	case "request_connection":
		return c.handleRequestConnection(ctx, env)
	case "create_flow":
		return c.handleCreateFlow(ctx, env)
	default:
		return nil, domain.NewWireError(domain.ReasonUnknownMessage)
	}
}

// resolveAndSelect runs the shared first half of both handshake paths:
// resource lookup, adaptation to PeerVersion, authorization, and gateway
// selection when the Client did not pin one.
func (c *Channel) resolveAndSelect(ctx context.Context, resourceID, pinnedGatewayID string) (domain.Resource, domain.PolicyAuthorization, string, *domain.WireError) {
	resource, ok, err := c.resources.ResourceByID(ctx, c.Account.ID, resourceID)
	if err != nil {
		return domain.Resource{}, domain.PolicyAuthorization{}, "", domain.NewWireError(domain.ReasonInternalError)
	}
	if !ok {
		return domain.Resource{}, domain.PolicyAuthorization{}, "", domain.NewWireError(domain.ReasonNotFound)
	}
	if _, verdict := resourceadapter.Adapt(resource, c.PeerVersion); verdict != resourceadapter.Cont {
		return domain.Resource{}, domain.PolicyAuthorization{}, "", domain.NewWireError(domain.ReasonNotFound)
	}

	gatewayID := pinnedGatewayID
	if gatewayID == "" {
		selected, ok := c.SelectGateway(ctx, resourceID)
		if !ok {
			return domain.Resource{}, domain.PolicyAuthorization{}, "", domain.NewWireError(domain.ReasonOffline)
		}
		gatewayID = selected
	}

	pa, reason := c.resolver.Resolve(ctx, authz.Request{
		Client:    c.Client,
		Resource:  resource,
		GatewayID: gatewayID,
		Subject:   domain.Subject{Account: c.Account, Actor: c.Actor, Token: c.Token},
	})
	if reason != "" {
		return domain.Resource{}, domain.PolicyAuthorization{}, "", domain.NewWireError(reason)
	}
	return resource, pa, gatewayID, nil
}

func (c *Channel) handleRequestConnection(ctx context.Context, env wire.Envelope) (*wire.Envelope, *domain.WireError) {
	var in requestConnectionIn
	if err := env.Decode(&in); err != nil || in.ResourceID == "" {
		return nil, domain.NewWireError(domain.ReasonUnknownMessage)
	}

	resource, pa, gatewayID, wireErr := c.resolveAndSelect(ctx, in.ResourceID, in.GatewayID)
	if wireErr != nil {
		return nil, wireErr
	}

	clientRef := c.newPendingRef(ctx, pendingRequestConnection, in.ResourceID, gatewayID)
	cmd := requestConnectionCommandOut{
		Kind: "request_connection", ClientID: c.Client.ID, Resource: toResourceFieldsOut(resource),
		PolicyAuthID: pa.ID, ExpiresAt: pa.ExpiresAt.Unix(), ClientRef: clientRef,
		ClientPayload: in.ClientPayload,
	}
	cmd.Peer.IPv4 = in.Peer.IPv4
	cmd.Peer.IPv6 = in.Peer.IPv6
	cmd.Peer.PublicKey = in.Peer.PublicKey
	cmd.Peer.PersistentKeepalive = in.Peer.PersistentKeepalive
	cmd.Peer.PresharedKey = in.Peer.PresharedKey

	payload, err := json.Marshal(cmd)
	if err != nil {
		delete(c.pending, clientRef)
		return nil, domain.NewWireError(domain.ReasonInternalError)
	}
	commandEnv, _ := wire.Encode(gatewayCommandTopic, "request_connection", "", json.RawMessage(payload))
	c.postCommand(gatewayID, commandEnv)
	return nil, nil
}

func (c *Channel) handleCreateFlow(ctx context.Context, env wire.Envelope) (*wire.Envelope, *domain.WireError) {
	var in createFlowIn
	if err := env.Decode(&in); err != nil || in.ResourceID == "" {
		return nil, domain.NewWireError(domain.ReasonUnknownMessage)
	}

	resource, pa, gatewayID, wireErr := c.resolveAndSelect(ctx, in.ResourceID, "")
	if wireErr != nil {
		return nil, wireErr
	}

	clientRef := c.newPendingRef(ctx, pendingAuthorizeFlow, in.ResourceID, gatewayID)
	cmd := authorizeFlowCommandOut{
		Kind: "authorize_flow", ClientID: c.Client.ID, Resource: toResourceFieldsOut(resource),
		PolicyAuthID: pa.ID, ExpiresAt: pa.ExpiresAt.Unix(), ClientRef: clientRef,
	}
	cmd.Client.IPv4 = c.Client.IPv4Address
	cmd.Client.IPv6 = c.Client.IPv6Address
	cmd.Client.PublicKey = c.Client.PublicKey
	cmd.Client.Version = c.Client.LastSeenVersion
	cmd.Client.DeviceSerial = in.DeviceSerial
	cmd.Client.DeviceUUID = in.DeviceUUID
	cmd.Client.IdentifierForVendor = in.IdentifierForVendor
	cmd.Client.FirebaseInstallationID = in.FirebaseInstallationID
	cmd.Client.DeviceOSName, cmd.Client.DeviceOSVersion = useragent.Parse(c.Client.LastSeenUserAgent)
	cmd.Subject.AuthProviderID = c.Actor.AuthProviderID
	cmd.Subject.ActorID = c.Actor.ID
	cmd.Subject.ActorEmail = c.Actor.Email
	cmd.Subject.ActorName = c.Actor.Name
	cmd.ClientICE.Username = in.ClientICEUsername
	cmd.ClientICE.Password = in.ClientICEPassword
	cmd.GatewayICE.Username = in.GatewayICEUsername
	cmd.GatewayICE.Password = in.GatewayICEPassword

	payload, err := json.Marshal(cmd)
	if err != nil {
		delete(c.pending, clientRef)
		return nil, domain.NewWireError(domain.ReasonInternalError)
	}
	commandEnv, _ := wire.Encode(gatewayCommandTopic, "authorize_flow", "", json.RawMessage(payload))
	c.postCommand(gatewayID, commandEnv)
	return nil, nil
}
