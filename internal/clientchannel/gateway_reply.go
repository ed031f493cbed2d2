// internal/clientchannel/gateway_reply.go
// Handles frames arriving on this Channel's own inbox in the replies
// Directory — forwarded by a Gateway Channel's wire_in.go (flow_authorized,
// connection_ready), plus the ICE-candidate broadcasts relayed verbatim.
package clientchannel

import (
	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/wire"
	"go.uber.org/zap"
)

// HandleGatewayReply applies one frame forwarded from a Gateway Channel.
// flow_authorized/connection_ready are correlated against this Channel's own
// pending map and rewritten into the Client-facing shape; everything else
// (ice_candidates, invalidated_ice_candidates) passes through
// unchanged — it was already addressed to this Client by the sender.
func (c *Channel) HandleGatewayReply(env wire.Envelope) {
	switch env.Event {
	case "flow_authorized":
		c.handleFlowAuthorizedReply(env)
	case "connection_ready":
		c.handleConnectionReadyReply(env)
	default:
		c.sink.Send(env)
	}
}

func (c *Channel) handleFlowAuthorizedReply(env wire.Envelope) {
	var p inClientRefPayload
	if err := env.Decode(&p); err != nil || p.ClientRef == "" {
		logging.Logger().Error("clientchannel: decode flow_authorized reply", zap.Error(err))
		return
	}
	pr, ok := c.pending[p.ClientRef]
	if !ok {
		return // already reaped by the deadline sweep
	}
	delete(c.pending, p.ClientRef)
	c.endPendingSpan(p.ClientRef, pr, true)

	out, err := wire.Encode("client:"+c.Client.ID, "flow_created", "", flowCreatedOut{ResourceID: pr.ResourceID})
	if err != nil {
		logging.Logger().Error("clientchannel: encode flow_created", zap.Error(err))
		return
	}
	c.sink.Send(out)
}

func (c *Channel) handleConnectionReadyReply(env wire.Envelope) {
	var p inConnectionReadyPayload
	if err := env.Decode(&p); err != nil || p.ClientRef == "" {
		logging.Logger().Error("clientchannel: decode connection_ready reply", zap.Error(err))
		return
	}
	pr, ok := c.pending[p.ClientRef]
	if !ok {
		return
	}
	delete(c.pending, p.ClientRef)
	c.endPendingSpan(p.ClientRef, pr, true)

	out, err := wire.Encode("client:"+c.Client.ID, "connection_ready", "", connectionReadyOut{
		ResourceID: pr.ResourceID, GatewayPayload: p.GatewayPayload,
	})
	if err != nil {
		logging.Logger().Error("clientchannel: encode connection_ready", zap.Error(err))
		return
	}
	c.sink.Send(out)
}
