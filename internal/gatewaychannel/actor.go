// internal/gatewaychannel/actor.go
// Run is the Gateway Channel's actor loop: a single goroutine that owns a
// Channel exclusively, reading from its wire inbox, its multiplexed change
// feed, and a prune timer, per §5/§9's "no locks are needed" coroutine
// design. Everything else in this package assumes it is only ever called
// from this loop (or serially, in tests).
package gatewaychannel

import (
	"context"
	"time"

	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/pubsub"
	"github.com/Voskan/flarego/internal/wire"
	"go.uber.org/zap"
)

const defaultPruneInterval = 45 * time.Second

// attachBus subscribes the Channel to its three static topics
// (account/token/gateway) and prepares the resource-subscription map and the
// shared changeFeed everything fans into. Must be called before Run.
func (c *Channel) attachBus() {
	c.changeFeed = make(chan pubsub.Message, 256)
	c.resourceSubs = make(map[string]func())

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
	c.unsubGateway = forward("gateway:" + c.Gateway.ID)
}

func (c *Channel) detachBus() {
	if c.unsubAccount != nil {
		c.unsubAccount()
	}
	if c.unsubToken != nil {
		c.unsubToken()
	}
	if c.unsubGateway != nil {
		c.unsubGateway()
	}
	for _, unsub := range c.resourceSubs {
		unsub()
	}
}

// Run drives the Channel until ctx is cancelled, wireIn is closed, or a
// change event causes Terminate to be called. cmdIn receives cross-channel
// commands from Client Channels (see command.go); it may be nil if this
// Channel is being driven without the command Directory wired up.
// pruneInterval <= 0 selects defaultPruneInterval. Exactly one goroutine may
// call Run for a given Channel.
func (c *Channel) Run(ctx context.Context, wireIn <-chan wire.Envelope, cmdIn <-chan wire.Envelope, pruneInterval time.Duration) {
	if pruneInterval <= 0 {
		pruneInterval = defaultPruneInterval
	}
	c.attachBus()
	defer c.detachBus()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-wireIn:
			if !ok {
				return
			}
			c.dispatchWire(env)

		case cmd, ok := <-cmdIn:
			if !ok {
				cmdIn = nil
				continue
			}
			c.HandleCommand(cmd.Payload)

		case msg := <-c.changeFeed:
			c.HandleChangeEvent(msg)
			if _, terminated := c.Terminated(); terminated {
				return
			}

		case now := <-ticker.C:
			c.PruneCache(now)
		}
	}
}

func (c *Channel) dispatchWire(env wire.Envelope) {
	reply, wireErr := c.HandleWire(env)
	if wireErr != nil {
		errEnv, err := wire.Encode(env.Topic, "error", env.Ref, wire.ErrorPayload{Reason: string(wireErr.Reason)})
		if err != nil {
			logging.Logger().Error("gatewaychannel: encode error reply", zap.Error(err))
			return
		}
		c.sink.Send(errEnv)
		return
	}
	if reply != nil {
		c.sink.Send(*reply)
	}
}
