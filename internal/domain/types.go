// internal/domain/types.go
// Package domain holds the entity shapes the control-plane core reads,
// caches, and pushes over the wire. Entities are stored flat and keyed by id;
// a reference to another entity is always an id string, never a pointer, so
// the graph of Resource/Policy/PolicyAuthorization/Client/Gateway backrefs
// never forms an actual Go reference cycle.
package domain

import "time"

// ResourceType enumerates the address grammars a Resource may use.
type ResourceType string

const (
	ResourceDNS      ResourceType = "dns"
	ResourceIP       ResourceType = "ip"
	ResourceCIDR     ResourceType = "cidr"
	ResourceInternet ResourceType = "internet"
)

// IPStack constrains which address families a DNS resource resolves to.
type IPStack string

const (
	IPStackDual     IPStack = "dual"
	IPStackV4Only   IPStack = "ipv4_only"
	IPStackV6Only   IPStack = "ipv6_only"
)

// Protocol is one of the three filterable L4 protocols.
type Protocol string

const (
	ProtoTCP  Protocol = "tcp"
	ProtoUDP  Protocol = "udp"
	ProtoICMP Protocol = "icmp"
)

// PortRange is an inclusive [Start,End] range; Start == End for a single port.
type PortRange struct {
	Start uint16
	End   uint16
}

// Filter restricts traffic to a Resource by protocol and port ranges. An
// empty Ports slice on a non-ICMP protocol means "all ports for this
// protocol". An empty Filters slice on a Resource means allow-all.
type Filter struct {
	Protocol Protocol
	Ports    []PortRange
}

// Resource is a protected destination a Client may tunnel to through a
// Gateway. The `internet` type is a singleton per account (Invariant 3: it
// cannot be deleted).
type Resource struct {
	ID        string
	AccountID string
	Type      ResourceType
	Name      string
	Address   string // grammar depends on Type; empty for ResourceInternet
	IPStack   IPStack
	Filters   []Filter

	ReplacedByResourceID string // set when this row was replaced (§9 resource replace-on-connection-change)

	DeletedAt  *time.Time
	DisabledAt *time.Time
}

// IsInternet reports whether r is the account's internet singleton.
func (r Resource) IsInternet() bool { return r.Type == ResourceInternet }

// Account is the tenant scope. Every other entity in this package is
// account-scoped; cross-account reads are a programming error (Invariant 1/2).
type Account struct {
	ID     string
	Slug   string
	Active bool
}

// Policy permits {group -> resource}.
type Policy struct {
	ID              string
	AccountID       string
	ResourceID      string
	GroupID         string
	SessionDuration time.Duration
	DisabledAt      *time.Time
}

// Enabled reports whether the policy currently grants access.
func (p Policy) Enabled() bool { return p.DisabledAt == nil }

// Group is a named collection of Actors.
type Group struct {
	ID        string
	AccountID string
}

// Membership assigns an Actor to a Group.
type Membership struct {
	ID        string
	AccountID string
	GroupID   string
	ActorID   string
}

// ActorType distinguishes human users from service principals.
type ActorType string

const (
	ActorUser           ActorType = "user"
	ActorServiceAccount ActorType = "service_account"
)

// Actor is an authenticated principal.
type Actor struct {
	ID             string
	AccountID      string
	Type           ActorType
	Email          string
	Name           string
	AuthProviderID string
}

// Client is an end-user device.
type Client struct {
	ID                string
	AccountID         string
	ActorID           string
	IPv4Address       string
	IPv6Address       string
	PublicKey         string
	VerifiedAt        *time.Time
	LastSeenVersion   string
	LastSeenUserAgent string

	DeviceSerial            string
	DeviceUUID              string
	IdentifierForVendor     string
	FirebaseInstallationID  string
}

// Gateway is a data-plane forwarder node.
type Gateway struct {
	ID          string
	AccountID   string
	SiteID      string
	IPv4Address string
	IPv6Address string
	PublicKey   string

	LastSeenVersion string
	Lat             *float64
	Lon             *float64
}

// HasLocation reports whether the gateway reported an approximate geo fix.
func (g Gateway) HasLocation() bool { return g.Lat != nil && g.Lon != nil }

// RelayType distinguishes STUN-only helpers from full TURN relays.
type RelayType string

const (
	RelaySTUN RelayType = "stun"
	RelayTURN RelayType = "turn"
)

// Relay is a STUN/TURN helper. Its identifier is a pure function of
// StampSecret (Invariant 7): hash(stamp_secret). A relay that restarts
// generates a new StampSecret and therefore a new logical identity.
type Relay struct {
	ID          string
	StampSecret string
	Type        RelayType
	Addr        string // IPv4 or IPv6 literal, port included
	Username    string
	Password    string
	ExpiresAt   time.Time
	Lat         *float64
	Lon         *float64
}

// HasLocation reports whether the relay has a known geo fix.
func (r Relay) HasLocation() bool { return r.Lat != nil && r.Lon != nil }

// TokenType enumerates the channel kinds a bearer Token may authenticate.
type TokenType string

const (
	TokenClient     TokenType = "client"
	TokenGateway    TokenType = "gateway"
	TokenRelay      TokenType = "relay"
	TokenBrowser    TokenType = "browser"
	TokenEmail      TokenType = "email"
	TokenAPIClient  TokenType = "api_client"
)

// Token is a bearer secret granting a channel.
type Token struct {
	ID        string
	Type      TokenType
	AccountID string
	SubjectID string
	ExpiresAt time.Time
	DeletedAt *time.Time
}

// Expired reports whether t is no longer usable as of now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now) || t.DeletedAt != nil
}

// Subject is the authenticated envelope presented to the Authorization
// Resolver: the account, actor, credential and token behind one connection.
type Subject struct {
	Account Account
	Actor   Actor
	Token   Token
}

// PolicyAuthorization is the decision record produced by the Authorization
// Resolver (C4). Its lifecycle mirrors the decision: it is destroyed when any
// contributing row is deleted or disabled.
type PolicyAuthorization struct {
	ID           string
	ClientID     string
	ResourceID   string
	GatewayID    string
	PolicyID     string
	MembershipID string
	TokenID      string
	ExpiresAt    time.Time
}
