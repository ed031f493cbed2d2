package clientchannel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Voskan/flarego/internal/wire"
)

func TestHandleGatewayReplyConnectionReadyCorrelatesAndForwards(t *testing.T) {
	c, sink := newTestChannel(t, Deps{Now: func() time.Time { return time.Unix(1000, 0) }})
	clientRef := c.newPendingRef(context.Background(), pendingRequestConnection, "r1", "gw1")

	in := inConnectionReadyPayload{Ref: "gw-internal-ref", ClientRef: clientRef, GatewayPayload: json.RawMessage(`{"sdp":"x"}`)}
	payload, _ := json.Marshal(in)
	c.HandleGatewayReply(wire.Envelope{Event: "connection_ready", Payload: payload})

	if len(c.pending) != 0 {
		t.Fatal("expected the pending entry to be consumed")
	}
	sent := sink.Snapshot()
	if len(sent) != 1 || sent[0].Event != "connection_ready" {
		t.Fatalf("expected one connection_ready push, got %#v", sent)
	}
	var out connectionReadyOut
	if err := sent[0].Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ResourceID != "r1" {
		t.Fatalf("expected resource_id r1, got %q", out.ResourceID)
	}
}

func TestHandleGatewayReplyFlowAuthorizedCorrelatesAndForwards(t *testing.T) {
	c, sink := newTestChannel(t, Deps{Now: func() time.Time { return time.Unix(1000, 0) }})
	clientRef := c.newPendingRef(context.Background(), pendingAuthorizeFlow, "r2", "gw1")

	in := inClientRefPayload{Ref: "gw-internal-ref", ClientRef: clientRef}
	payload, _ := json.Marshal(in)
	c.HandleGatewayReply(wire.Envelope{Event: "flow_authorized", Payload: payload})

	sent := sink.Snapshot()
	if len(sent) != 1 || sent[0].Event != "flow_created" {
		t.Fatalf("expected one flow_created push, got %#v", sent)
	}
}

func TestHandleGatewayReplyUnknownRefIsIgnored(t *testing.T) {
	c, sink := newTestChannel(t, Deps{})
	in := inClientRefPayload{Ref: "x", ClientRef: "never-issued"}
	payload, _ := json.Marshal(in)
	c.HandleGatewayReply(wire.Envelope{Event: "flow_authorized", Payload: payload})

	if len(sink.Snapshot()) != 0 {
		t.Fatal("expected no push for an unknown/already-reaped ref")
	}
}

func TestHandleGatewayReplyPassesThroughOtherEvents(t *testing.T) {
	c, sink := newTestChannel(t, Deps{})
	env := wire.Envelope{Topic: "client:client1", Event: "ice_candidates", Payload: json.RawMessage(`{"candidates":[]}`)}
	c.HandleGatewayReply(env)

	sent := sink.Snapshot()
	if len(sent) != 1 || sent[0].Event != "ice_candidates" {
		t.Fatalf("expected the envelope to pass through unchanged, got %#v", sent)
	}
}
