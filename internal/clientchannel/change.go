// internal/clientchannel/change.go
// Change-event reactions for the Client Channel (§4.6): resource
// create/update/delete visibility, observed via the account:{account_id}
// topic, plus token/client deletion teardown mirroring gatewaychannel's
// reactions #4/#5.
package clientchannel

import (
	"context"

	"github.com/Voskan/flarego/internal/changerow"
	"github.com/Voskan/flarego/internal/changestream"
	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/resourceadapter"
	"go.uber.org/zap"
)

// HandleChangeEvent applies the LSN-ordering invariant (§5) and dispatches to
// the matching reaction, mirroring gatewaychannel.Channel.HandleChangeEvent.
func (c *Channel) HandleChangeEvent(ctx context.Context, msg pubsub.Message) {
	if msg.LSN != 0 {
		if msg.LSN <= c.lastLSN {
			logging.Sugar().Debugw("clientchannel: dropping stale change", "client_id", c.Client.ID, "lsn", msg.LSN, "last_lsn", c.lastLSN)
			return
		}
		c.lastLSN = msg.LSN
	}

	switch data := msg.Data.(type) {
	case changestream.ResourceCreated:
		c.reactResourceCreated(ctx, data)
	case changestream.ResourceUpdated:
		c.reactResourceUpdated(ctx, data)
	case changestream.ResourceDeleted:
		c.reactResourceDeleted(data)
	case changestream.TokenDeleted:
		if data.TokenID == c.Token.ID {
			c.Terminate("token_deleted")
		}
	case changestream.ClientDeleted:
		if data.ClientID == c.Client.ID {
			c.Terminate("client_deleted")
		}
	}
}

// reactResourceCreated pushes resource_created only if the client's actor is
// currently authorized for the new resource (§4.6).
func (c *Channel) reactResourceCreated(ctx context.Context, data changestream.ResourceCreated) {
	resource, ok := changerow.ResourceFromRow(data.Row)
	if !ok || !c.canAccess(ctx, resource) {
		return
	}
	view, verdict := resourceadapter.Adapt(resource, c.PeerVersion)
	if verdict != resourceadapter.Cont {
		return
	}
	c.pushResourceCreated(view)
}

// reactResourceUpdated re-checks authorization against the new row and
// pushes resource_updated when access still holds; an access loss is simply
// not pushed (the Client never learns of a resource it cannot see).
func (c *Channel) reactResourceUpdated(ctx context.Context, data changestream.ResourceUpdated) {
	resource, ok := changerow.ResourceFromRow(data.New)
	if !ok || !c.canAccess(ctx, resource) {
		return
	}
	view, verdict := resourceadapter.Adapt(resource, c.PeerVersion)
	if verdict != resourceadapter.Cont {
		return
	}
	c.pushResourceUpdated(view)
}

func (c *Channel) reactResourceDeleted(data changestream.ResourceDeleted) {
	c.pushResourceDeleted(data.ResourceID)
}

func (c *Channel) pushResourceCreated(view resourceadapter.ResourceView) {
	env, err := wireClientPush(c.Client.ID, "resource_created", resourceCreatedPayload{Resource: toResourceView(view)})
	if err != nil {
		logging.Logger().Error("clientchannel: encode resource_created", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

func (c *Channel) pushResourceUpdated(view resourceadapter.ResourceView) {
	env, err := wireClientPush(c.Client.ID, "resource_updated", resourceUpdatedPayload{Resource: toResourceView(view)})
	if err != nil {
		logging.Logger().Error("clientchannel: encode resource_updated", zap.Error(err))
		return
	}
	c.sink.Send(env)
}

func (c *Channel) pushResourceDeleted(resourceID string) {
	env, err := wireClientPush(c.Client.ID, "resource_deleted", resourceDeletedPayload{ResourceID: resourceID})
	if err != nil {
		logging.Logger().Error("clientchannel: encode resource_deleted", zap.Error(err))
		return
	}
	c.sink.Send(env)
}
