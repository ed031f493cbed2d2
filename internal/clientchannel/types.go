// internal/clientchannel/types.go
// Wire payload shapes for the Client Channel's inbound/outbound traffic
// (§4.6), mirroring internal/gatewaychannel/types.go's approach: plain
// structs with json tags rather than generated code.
package clientchannel

import (
	"encoding/json"

	"github.com/Voskan/flarego/internal/resourceadapter"
)

// resourceView mirrors resourceadapter.ResourceView's wire shape, kept local
// so this package's JSON tags are the single source of truth for the wire
// format, the same reasoning gatewaychannel applies to its own resourceView.
type resourceView struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Name    string        `json:"name,omitempty"`
	Address string        `json:"address,omitempty"`
	Filters []filterEntry `json:"filters,omitempty"`
}

type filterEntry struct {
	Protocol       string `json:"protocol"`
	PortRangeStart uint16 `json:"port_range_start"`
	PortRangeEnd   uint16 `json:"port_range_end"`
}

func toResourceView(v resourceadapter.ResourceView) resourceView {
	filters := make([]filterEntry, len(v.Filters))
	for i, f := range v.Filters {
		filters[i] = filterEntry{Protocol: f.Protocol, PortRangeStart: f.PortRangeStart, PortRangeEnd: f.PortRangeEnd}
	}
	return resourceView{ID: v.ID, Type: v.Type, Name: v.Name, Address: v.Address, Filters: filters}
}

type authorizedResourcesPayload struct {
	Resources []resourceView `json:"resources"`
}

type resourceCreatedPayload struct {
	Resource resourceView `json:"resource"`
}

type resourceUpdatedPayload struct {
	Resource resourceView `json:"resource"`
}

type resourceDeletedPayload struct {
	ResourceID string `json:"resource_id"`
}

// requestConnectionIn is the inbound shape of `request_connection` from the
// Client itself (§4.6).
type requestConnectionIn struct {
	ResourceID         string          `json:"resource_id"`
	GatewayID          string          `json:"gateway_id,omitempty"`
	ClientPayload      json.RawMessage `json:"client_payload,omitempty"`
	ClientPresharedKey string          `json:"client_preshared_key,omitempty"`
	Peer               peerIn          `json:"peer"`
}

type peerIn struct {
	IPv4                string `json:"ipv4"`
	IPv6                string `json:"ipv6"`
	PublicKey           string `json:"public_key"`
	PersistentKeepalive int    `json:"persistent_keepalive"`
	PresharedKey        string `json:"preshared_key"`
}

// createFlowIn is the inbound shape of `create_flow` (pre-exchanged-ICE
// path).
type createFlowIn struct {
	ResourceID             string `json:"resource_id"`
	DeviceSerial           string `json:"device_serial"`
	DeviceUUID             string `json:"device_uuid"`
	IdentifierForVendor    string `json:"identifier_for_vendor"`
	FirebaseInstallationID string `json:"firebase_installation_id"`
	ClientICEUsername      string `json:"client_ice_username"`
	ClientICEPassword      string `json:"client_ice_password"`
	GatewayICEUsername     string `json:"gateway_ice_username"`
	GatewayICEPassword     string `json:"gateway_ice_password"`
}

// connectionReadyOut/flowCreatedOut are what the Client Channel finally
// hands to the Client once the selected Gateway has replied. ResourceID is
// the correlation the Client itself can match against its own
// request_connection/create_flow call, since that call carries no ref of
// its own.
type connectionReadyOut struct {
	ResourceID     string          `json:"resource_id"`
	GatewayPayload json.RawMessage `json:"gateway_payload"`
}

type flowCreatedOut struct {
	ResourceID string `json:"resource_id"`
}

// inClientRefPayload/inConnectionReadyPayload mirror the shapes
// gatewaychannel forwards via the replies Directory (its clientRefPayload
// and connectionReadyOutPayload), decoded here to recover ClientRef.
type inClientRefPayload struct {
	Ref       string `json:"ref"`
	ClientRef string `json:"client_ref"`
}

type inConnectionReadyPayload struct {
	Ref            string          `json:"ref"`
	ClientRef      string          `json:"client_ref"`
	GatewayPayload json.RawMessage `json:"gateway_payload"`
}

type offlinePayload struct {
	ResourceID string `json:"resource_id"`
	Reason     string `json:"reason"`
}
