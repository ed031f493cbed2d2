package gatewaychannel

import "github.com/Voskan/flarego/internal/wire"

func encodeGatewayPush(gatewayID, event string, payload any) (wire.Envelope, error) {
	return wire.Encode("gateway:"+gatewayID, event, "", payload)
}

type disconnectPayload struct {
	Reason string `json:"reason"`
}

func wireDisconnectEnvelope(gatewayID, reason string) (wire.Envelope, error) {
	return wire.Encode("gateway:"+gatewayID, "disconnect", "", disconnectPayload{Reason: reason})
}
