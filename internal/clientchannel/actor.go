// internal/clientchannel/actor.go
// Run is the Client Channel's actor loop, the C6 analogue of
// gatewaychannel.Channel.Run: a single goroutine that owns a Channel
// exclusively, reading from its wire inbox, its forwarded-reply inbox, its
// multiplexed change feed, and a pending-deadline sweep timer.
package clientchannel

import (
	"context"
	"time"

	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/wire"
	"go.uber.org/zap"
)

// defaultSweepInterval governs how often pending refs are checked against
// their deadline; it need not match defaultPendingDeadline exactly, only be
// small enough that a 30s deadline is never missed by much.
const defaultSweepInterval = 5 * time.Second

func (c *Channel) attachBus() {
	c.changeFeed = make(chan pubsub.Message, 256)

	forward := func(topic string) func() {
		sub, unsub := c.bus.Subscribe(topic)
		feed := c.changeFeed
		go func() {
			for msg := range sub {
				feed <- msg
			}
		}()
		return unsub
	}
	c.unsubAccount = forward("account:" + c.Account.ID)
	c.unsubToken = forward("token:" + c.Token.ID)
	c.unsubClient = forward("client:" + c.Client.ID)
}

func (c *Channel) detachBus() {
	if c.unsubAccount != nil {
		c.unsubAccount()
	}
	if c.unsubToken != nil {
		c.unsubToken()
	}
	if c.unsubClient != nil {
		c.unsubClient()
	}
}

// Run drives the Channel until ctx is cancelled or wireIn is closed.
// repliesIn is this Channel's own inbox in the replies Directory (registered
// by the caller under c.Client.ID before calling Run); sweepInterval <= 0
// selects defaultSweepInterval. Exactly one goroutine may call Run for a
// given Channel.
func (c *Channel) Run(ctx context.Context, wireIn <-chan wire.Envelope, repliesIn <-chan wire.Envelope, sweepInterval time.Duration) {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	c.attachBus()
	defer c.detachBus()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-wireIn:
			if !ok {
				return
			}
			c.dispatchWire(ctx, env)

		case env, ok := <-repliesIn:
			if !ok {
				repliesIn = nil
				continue
			}
			c.HandleGatewayReply(env)

		case msg := <-c.changeFeed:
			c.HandleChangeEvent(ctx, msg)
			if _, terminated := c.Terminated(); terminated {
				return
			}

		case now := <-ticker.C:
			c.sweepPending(now)
		}
	}
}

func (c *Channel) dispatchWire(ctx context.Context, env wire.Envelope) {
	reply, wireErr := c.HandleWire(ctx, env)
	if wireErr != nil {
		errEnv, err := wire.Encode(env.Topic, "error", env.Ref, wire.ErrorPayload{Reason: string(wireErr.Reason)})
		if err != nil {
			logging.Logger().Error("clientchannel: encode error reply", zap.Error(err))
			return
		}
		c.sink.Send(errEnv)
		return
	}
	if reply != nil {
		c.sink.Send(*reply)
	}
}
