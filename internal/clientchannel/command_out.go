// internal/clientchannel/command_out.go
// Mirrors of gatewaychannel's command payload shapes (internal/gatewaychannel
// /command.go's requestConnectionCommand/authorizeFlowCommand/resourceFields),
// kept local so neither package needs to export wire-internal types to the
// other — the same reasoning both packages already apply to their own
// resourceView mirrors.
package clientchannel

import (
	"encoding/json"

	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/internal/gatewaychannel"
)

type resourceFieldsOut struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	IPStack   string `json:"ip_stack"`
	Filters   []struct {
		Protocol string `json:"protocol"`
		Ports    []struct {
			Start uint16 `json:"start"`
			End   uint16 `json:"end"`
		} `json:"ports"`
	} `json:"filters"`
}

func toResourceFieldsOut(r domain.Resource) resourceFieldsOut {
	f := resourceFieldsOut{ID: r.ID, AccountID: r.AccountID, Type: string(r.Type), Name: r.Name, Address: r.Address, IPStack: string(r.IPStack)}
	for _, filter := range r.Filters {
		var out struct {
			Protocol string `json:"protocol"`
			Ports    []struct {
				Start uint16 `json:"start"`
				End   uint16 `json:"end"`
			} `json:"ports"`
		}
		out.Protocol = string(filter.Protocol)
		for _, p := range filter.Ports {
			out.Ports = append(out.Ports, struct {
				Start uint16 `json:"start"`
				End   uint16 `json:"end"`
			}{Start: p.Start, End: p.End})
		}
		f.Filters = append(f.Filters, out)
	}
	return f
}

type requestConnectionCommandOut struct {
	Kind          string                    `json:"kind"`
	ClientID      string                    `json:"client_id"`
	Resource      resourceFieldsOut         `json:"resource"`
	PolicyAuthID  string                    `json:"policy_authorization_id"`
	ExpiresAt     int64                     `json:"expires_at"`
	Peer          gatewaychannel.ClientPeer `json:"peer"`
	ClientPayload json.RawMessage           `json:"client_payload,omitempty"`
	ClientRef     string                    `json:"client_ref"`
}

type authorizeFlowCommandOut struct {
	Kind         string                              `json:"kind"`
	ClientID     string                              `json:"client_id"`
	Resource     resourceFieldsOut                   `json:"resource"`
	PolicyAuthID string                              `json:"policy_authorization_id"`
	ExpiresAt    int64                               `json:"expires_at"`
	Client       gatewaychannel.AuthorizeFlowClient  `json:"client"`
	Subject      gatewaychannel.AuthorizeFlowSubject `json:"subject"`
	ClientICE    gatewaychannel.ICECredentials       `json:"client_ice_credentials"`
	GatewayICE   gatewaychannel.ICECredentials       `json:"gateway_ice_credentials"`
	ClientRef    string                              `json:"client_ref"`
}
