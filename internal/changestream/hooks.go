// internal/changestream/hooks.go
// Default hook set translating the five row mutations §4.1 calls out by name
// into typed PubSub payloads on the topics Gateway/Client Channels subscribe
// to. Hooks are pure: all they do is shape `c.Old`/`c.New` into a typed
// struct and pick topics; Dispatcher.Apply does the actual broadcast.
package changestream

import "fmt"

// PolicyAuthorizationDeleted is published on resource:{resource_id} and
// gateway:{gateway_id} when a policy_authorizations row is deleted.
type PolicyAuthorizationDeleted struct {
	ID         string
	ClientID   string
	ResourceID string
	GatewayID  string
}

// ResourceUpdated carries both the old and new row so subscribers can diff
// address/type/ip_stack/filters themselves (§4.5 reaction #2).
type ResourceUpdated struct {
	ResourceID string
	AccountID  string
	Old        map[string]any
	New        map[string]any
}

// ResourceCreated is published on account:{account_id} when a resources row
// is inserted, so Client Channels can re-check authorization and push
// resource_created (§4.6).
type ResourceCreated struct {
	ResourceID string
	AccountID  string
	Row        map[string]any
}

// ResourceDeleted is published on account:{account_id} and
// resource:{resource_id} when a resources row is deleted.
type ResourceDeleted struct {
	ResourceID string
	AccountID  string
}

// AccountSlugChanged is published on account:{id} (§4.5 reaction #3).
type AccountSlugChanged struct {
	AccountID string
	NewSlug   string
}

// GatewayDeleted is published on gateway:{id} (§4.5 reaction #4).
type GatewayDeleted struct {
	GatewayID string
}

// ClientDeleted is published on client:{id}, the Client Channel analogue of
// GatewayDeleted.
type ClientDeleted struct {
	ClientID string
}

// TokenDeleted is published on token:{id} and socket:{token_id} (§4.5
// reaction #5 and the transport-level disconnect broadcast).
type TokenDeleted struct {
	TokenID string
}

func str(row map[string]any, key string) string {
	v, _ := row[key].(string)
	return v
}

// RegisterDefaultHooks wires the six table hooks onto d. table names match
// §6's indicative schema.
func RegisterDefaultHooks(d *Dispatcher) {
	d.Register("policy_authorizations", func(c Change) []OutMessage {
		if c.Op != OpDelete {
			return nil
		}
		id := str(c.Old, "id")
		clientID := str(c.Old, "client_id")
		resourceID := str(c.Old, "resource_id")
		gatewayID := str(c.Old, "gateway_id")
		payload := PolicyAuthorizationDeleted{ID: id, ClientID: clientID, ResourceID: resourceID, GatewayID: gatewayID}
		return []OutMessage{
			{Topic: fmt.Sprintf("resource:%s", resourceID), Event: "policy_authorization_deleted", Payload: payload},
			{Topic: fmt.Sprintf("gateway:%s", gatewayID), Event: "policy_authorization_deleted", Payload: payload},
		}
	})

	d.Register("resources", func(c Change) []OutMessage {
		switch c.Op {
		case OpInsert:
			resourceID := str(c.New, "id")
			accountID := str(c.New, "account_id")
			return []OutMessage{
				{Topic: fmt.Sprintf("account:%s", accountID), Event: "resource_created", Payload: ResourceCreated{ResourceID: resourceID, AccountID: accountID, Row: c.New}},
			}
		case OpUpdate:
			resourceID := str(c.New, "id")
			accountID := str(c.New, "account_id")
			payload := ResourceUpdated{ResourceID: resourceID, AccountID: accountID, Old: c.Old, New: c.New}
			return []OutMessage{
				{Topic: fmt.Sprintf("resource:%s", resourceID), Event: "resource_updated", Payload: payload},
				{Topic: fmt.Sprintf("account:%s", accountID), Event: "resource_updated", Payload: payload},
			}
		case OpDelete:
			resourceID := str(c.Old, "id")
			accountID := str(c.Old, "account_id")
			payload := ResourceDeleted{ResourceID: resourceID, AccountID: accountID}
			return []OutMessage{
				{Topic: fmt.Sprintf("resource:%s", resourceID), Event: "resource_deleted", Payload: payload},
				{Topic: fmt.Sprintf("account:%s", accountID), Event: "resource_deleted", Payload: payload},
			}
		default:
			return nil
		}
	})

	d.Register("accounts", func(c Change) []OutMessage {
		if c.Op != OpUpdate {
			return nil
		}
		oldSlug := str(c.Old, "slug")
		newSlug := str(c.New, "slug")
		if oldSlug == newSlug {
			return nil
		}
		accountID := str(c.New, "id")
		return []OutMessage{
			{Topic: fmt.Sprintf("account:%s", accountID), Event: "account_slug_changed", Payload: AccountSlugChanged{AccountID: accountID, NewSlug: newSlug}},
		}
	})

	d.Register("gateways", func(c Change) []OutMessage {
		if c.Op != OpDelete {
			return nil
		}
		gatewayID := str(c.Old, "id")
		return []OutMessage{
			{Topic: fmt.Sprintf("gateway:%s", gatewayID), Event: "gateway_deleted", Payload: GatewayDeleted{GatewayID: gatewayID}},
		}
	})

	d.Register("clients", func(c Change) []OutMessage {
		if c.Op != OpDelete {
			return nil
		}
		clientID := str(c.Old, "id")
		return []OutMessage{
			{Topic: fmt.Sprintf("client:%s", clientID), Event: "client_deleted", Payload: ClientDeleted{ClientID: clientID}},
		}
	})

	d.Register("tokens", func(c Change) []OutMessage {
		if c.Op != OpDelete {
			return nil
		}
		tokenID := str(c.Old, "id")
		payload := TokenDeleted{TokenID: tokenID}
		return []OutMessage{
			{Topic: fmt.Sprintf("token:%s", tokenID), Event: "token_deleted", Payload: payload},
			{Topic: fmt.Sprintf("socket:%s", tokenID), Event: "token_deleted", Payload: payload},
		}
	})
}
