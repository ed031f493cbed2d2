// internal/gatewaychannel/change.go
// Change-event reactions (§4.5's numbered list) and the prune timer. Messages
// arrive as pubsub.Message values whose Data is one of the typed structs
// internal/changestream/hooks.go publishes; HandleChangeEvent is the single
// entry point the owning actor feeds every subscribed topic's deliveries
// into.
package gatewaychannel

import (
	"github.com/Voskan/flarego/internal/changestream"
	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/relay"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"go.uber.org/zap"
)

// HandleChangeEvent applies the LSN-ordering invariant (§5: "any event with
// lsn <= last_lsn is silently dropped") and dispatches to the matching
// reaction. msg.LSN is zero for non-change-stream messages (e.g. a
// relay.PresenceUpdate); those skip the LSN check and leave lastLSN as is.
func (c *Channel) HandleChangeEvent(msg pubsub.Message) {
	if msg.LSN != 0 {
		if msg.LSN <= c.lastLSN {
			logging.Sugar().Debugw("gatewaychannel: dropping stale change", "gateway_id", c.Gateway.ID, "lsn", msg.LSN, "last_lsn", c.lastLSN)
			return
		}
		c.lastLSN = msg.LSN
	}

	switch data := msg.Data.(type) {
	case changestream.PolicyAuthorizationDeleted:
		if data.GatewayID == c.Gateway.ID {
			c.reactPolicyAuthorizationDeleted(data)
		}
	case changestream.ResourceUpdated:
		c.reactResourceUpdated(data)
	case changestream.AccountSlugChanged:
		if data.AccountID == c.Account.ID {
			c.reactAccountSlugChanged(data)
		}
	case changestream.GatewayDeleted:
		if data.GatewayID == c.Gateway.ID {
			c.Terminate("gateway_deleted")
		}
	case changestream.TokenDeleted:
		if data.TokenID == c.Token.ID {
			c.Terminate("token_deleted")
		}
	case relay.PresenceUpdate:
		// Published by a per-gateway relay watcher that owns the debounced
		// relay.Pusher; this is the only point that calls PushRelaysPresence,
		// preserving single-actor ownership of c.lastRelays.
		c.PushRelaysPresence(data.Connected, data.DisconnectedIDs)
	}
}

// reactPolicyAuthorizationDeleted implements §4.5 reaction #1.
func (c *Channel) reactPolicyAuthorizationDeleted(data changestream.PolicyAuthorizationDeleted) {
	key := cacheKey{ClientID: data.ClientID, ResourceID: data.ResourceID}
	byPA, ok := c.cache[key]
	if !ok {
		return
	}
	if _, tracked := byPA[data.ID]; !tracked {
		return
	}
	delete(byPA, data.ID)

	if len(byPA) == 0 {
		delete(c.cache, key)
		c.maybeUnsubscribeResource(data.ResourceID)
		c.pushRejectAccess(data.ClientID, data.ResourceID)
		return
	}
	c.pushAccessExpiryUpdated(data.ClientID, data.ResourceID, maxExpiry(byPA))
}

// reactResourceUpdated implements §4.5 reaction #2.
func (c *Channel) reactResourceUpdated(data changestream.ResourceUpdated) {
	if addressingChanged(data.Old, data.New) {
		for key := range c.cache {
			if key.ResourceID == data.ResourceID {
				delete(c.cache, key)
				c.pushRejectAccess(key.ClientID, key.ResourceID)
			}
		}
		c.maybeUnsubscribeResource(data.ResourceID)
		return
	}
	if !rowFieldDiffers(data.Old, data.New, "filters") {
		return
	}
	resource, ok := resourceFromRow(data.New)
	if !ok {
		return
	}
	view, verdict := resourceadapter.Adapt(resource, c.PeerVersion)
	if verdict != resourceadapter.Cont {
		return
	}
	c.pushResourceUpdated(view)
}

// reactAccountSlugChanged implements §4.5 reaction #3.
func (c *Channel) reactAccountSlugChanged(data changestream.AccountSlugChanged) {
	c.pushInit(data.NewSlug, c.lastIface, c.lastRelays, c.lastMasquerade)
}

// Terminate implements §4.5 reactions #4/#5: tear the channel down, sending
// the socket-disconnect broadcast. Idempotent.
func (c *Channel) Terminate(reason string) {
	if c.terminated {
		return
	}
	c.terminated = true
	c.terminationReason = reason
	env, err := wireDisconnectEnvelope(c.Gateway.ID, reason)
	if err != nil {
		logging.Logger().Error("gatewaychannel: encode disconnect", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

// Terminated reports whether Terminate has been called and why.
func (c *Channel) Terminated() (reason string, terminated bool) {
	return c.terminationReason, c.terminated
}

func (c *Channel) pushRejectAccess(clientID, resourceID string) {
	env, err := encodeGatewayPush(c.Gateway.ID, "reject_access", rejectAccessPayload{ClientID: clientID, ResourceID: resourceID})
	if err != nil {
		logging.Logger().Error("gatewaychannel: encode reject_access", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

func (c *Channel) pushAccessExpiryUpdated(clientID, resourceID string, expiresAt int64) {
	env, err := encodeGatewayPush(c.Gateway.ID, "access_authorization_expiry_updated", accessExpiryUpdatedPayload{
		ClientID: clientID, ResourceID: resourceID, ExpiresAt: expiresAt,
	})
	if err != nil {
		logging.Logger().Error("gatewaychannel: encode access_authorization_expiry_updated", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

func (c *Channel) pushResourceUpdated(view resourceadapter.ResourceView) {
	env, err := encodeGatewayPush(c.Gateway.ID, "resource_updated", resourceUpdatedPayload{Resource: toResourceView(view)})
	if err != nil {
		logging.Logger().Error("gatewaychannel: encode resource_updated", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

func maxExpiry(byPA map[string]int64) int64 {
	var max int64
	for _, v := range byPA {
		if v > max {
			max = v
		}
	}
	return max
}

// lastIface/lastRelays/lastMasquerade are Channel fields (channel.go);
// addressing-field/row-decoding helpers live in rowdiff.go.
