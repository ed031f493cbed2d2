// internal/gatewaychannel/types.go
// Wire payload shapes for the Gateway Channel's outbound pushes (§4.5). Kept
// as plain structs with json tags rather than generated code, matching the
// JSON-over-websocket transport this module settled on (see DESIGN.md on the
// dropped grpc/protobuf dependency).
package gatewaychannel

import (
	"encoding/json"
	"time"

	"github.com/Voskan/flarego/internal/relay"
)

// InterfaceConfig is the gateway's own tunnel-interface addressing, echoed
// back in `init`.
type InterfaceConfig struct {
	IPv4 string `json:"ipv4"`
	IPv6 string `json:"ipv6"`
}

// MasqueradeConfig toggles NAT masquerading per address family.
type MasqueradeConfig struct {
	IPv4MasqueradeEnabled bool `json:"ipv4_masquerade_enabled"`
	IPv6MasqueradeEnabled bool `json:"ipv6_masquerade_enabled"`
}

// ICECredentials is a WebRTC/ICE candidate-authentication pair exchanged
// through the control plane so Client and Gateway can connect peer-to-peer.
type ICECredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ClientPeer is the addressing/crypto material of a Client forwarded to a
// Gateway on the full-handshake `request_connection` path.
type ClientPeer struct {
	IPv4               string `json:"ipv4"`
	IPv6               string `json:"ipv6"`
	PublicKey          string `json:"public_key"`
	PersistentKeepalive int   `json:"persistent_keepalive"`
	PresharedKey       string `json:"preshared_key"`
}

// AuthorizeFlowClient is the richer client shape carried by `authorize_flow`
// (pre-exchanged-ICE path), including device identity fields used for
// device-posture checks on the gateway side.
type AuthorizeFlowClient struct {
	ID                     string `json:"id"`
	IPv4                   string `json:"ipv4"`
	IPv6                   string `json:"ipv6"`
	PresharedKey           string `json:"preshared_key"`
	PublicKey              string `json:"public_key"`
	Version                string `json:"version"`
	DeviceSerial           string `json:"device_serial"`
	DeviceUUID             string `json:"device_uuid"`
	IdentifierForVendor    string `json:"identifier_for_vendor"`
	FirebaseInstallationID string `json:"firebase_installation_id"`
	DeviceOSName           string `json:"device_os_name"`
	DeviceOSVersion        string `json:"device_os_version"`
}

// AuthorizeFlowSubject is the authenticated principal behind the flow,
// carried alongside AuthorizeFlowClient.
type AuthorizeFlowSubject struct {
	AuthProviderID string `json:"auth_provider_id"`
	ActorID        string `json:"actor_id"`
	ActorEmail     string `json:"actor_email"`
	ActorName      string `json:"actor_name"`
}

// RelayView is re-exported from internal/relay so callers constructing an
// `init` payload do not need a second import alias.
type RelayView = relay.View

type initPayload struct {
	AccountSlug string           `json:"account_slug"`
	Interface   InterfaceConfig  `json:"interface"`
	Relays      []RelayView      `json:"relays"`
	Config      MasqueradeConfig `json:"config"`
}

type relaysPresencePayload struct {
	Connected       []RelayView `json:"connected"`
	DisconnectedIDs []string    `json:"disconnected_ids"`
}

type allowAccessPayload struct {
	Ref          string          `json:"ref"`
	Resource     resourceView    `json:"resource"`
	ClientID     string          `json:"client_id"`
	ClientIPv4   string          `json:"client_ipv4"`
	ClientIPv6   string          `json:"client_ipv6"`
	ExpiresAt    int64           `json:"expires_at"`
	ClientPayload json.RawMessage `json:"client_payload,omitempty"`
}

type requestConnectionPayload struct {
	Ref      string       `json:"ref"`
	Resource resourceView `json:"resource"`
	Client   struct {
		ID      string          `json:"id"`
		Peer    ClientPeer      `json:"peer"`
		Payload json.RawMessage `json:"payload,omitempty"`
	} `json:"client"`
}

type authorizeFlowPayload struct {
	Ref                   string               `json:"ref"`
	Resource              resourceView         `json:"resource"`
	Client                AuthorizeFlowClient  `json:"client"`
	Subject               AuthorizeFlowSubject `json:"subject"`
	ClientICECredentials  ICECredentials       `json:"client_ice_credentials"`
	GatewayICECredentials ICECredentials       `json:"gateway_ice_credentials"`
}

type resourceUpdatedPayload struct {
	Resource resourceView `json:"resource"`
}

type rejectAccessPayload struct {
	ClientID   string `json:"client_id"`
	ResourceID string `json:"resource_id"`
}

type accessExpiryUpdatedPayload struct {
	ClientID   string `json:"client_id"`
	ResourceID string `json:"resource_id"`
	ExpiresAt  int64  `json:"expires_at"`
}

// resourceView mirrors resourceadapter.ResourceView's wire shape; redeclared
// here (rather than imported) so this package's JSON tags are the single
// source of truth for the wire format. Built from a resourceadapter.ResourceView
// by toResourceView.
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

// unixOrZero converts a time.Time to a unix-seconds int64, 0 for the zero value.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
