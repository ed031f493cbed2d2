// internal/store/memory.go
// Package store supplies the persistence side of the read interfaces
// scattered across authz, transport, clientchannel and cmd/controlplane
// (PolicyStore, MembershipStore, AuthorizationStore, AccountStore,
// TokenStore, ResourceStore, ResourceConnectionsStore). The control-plane
// PURPOSE section keeps the actual admin CRUD surface and its backing
// database out of scope; Memory exists only so cmd/controlplane has a real,
// concurrency-safe collaborator to wire those interfaces to, the way the
// teacher's internal/gateway/retention package gives Gateway Channels a
// Store interface with both an in-memory and a Redis implementation. Here
// only the in-memory side is needed: every row lives for the lifetime of the
// process, there is no separate admin API mutating it concurrently with a
// real database.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Voskan/flarego/internal/domain"
)

// Memory is a single flat, mutex-guarded store for every entity table the
// control plane reads at runtime. It satisfies every read interface those
// packages declare (authz.PolicyStore/MembershipStore/AuthorizationStore,
// transport.AccountStore/TokenStore, clientchannel.ResourceStore/
// ResourceConnectionsStore) without those packages importing this one.
type Memory struct {
	mu sync.RWMutex

	accounts     map[string]domain.Account
	actors       map[string]domain.Actor
	tokens       map[string]domain.Token
	resources    map[string]domain.Resource
	policies     map[string]domain.Policy
	groups       map[string]domain.Group
	memberships  map[string]domain.Membership
	gateways     map[string]domain.Gateway
	clients      map[string]domain.Client
	relays       map[string]domain.Relay
	authorizations map[string]domain.PolicyAuthorization

	// resourceSites maps resourceID -> site ids serving it, the in-memory
	// analogue of the resource_connections table (§9).
	resourceSites map[string][]string
}

// NewMemory returns an empty store. Seed with the Put*/helper methods before
// serving traffic; there is no implicit demo data.
func NewMemory() *Memory {
	return &Memory{
		accounts:       make(map[string]domain.Account),
		actors:         make(map[string]domain.Actor),
		tokens:         make(map[string]domain.Token),
		resources:      make(map[string]domain.Resource),
		policies:       make(map[string]domain.Policy),
		groups:         make(map[string]domain.Group),
		memberships:    make(map[string]domain.Membership),
		gateways:       make(map[string]domain.Gateway),
		clients:        make(map[string]domain.Client),
		relays:         make(map[string]domain.Relay),
		authorizations: make(map[string]domain.PolicyAuthorization),
		resourceSites:  make(map[string][]string),
	}
}

// -- seeding / admin-ish helpers (no REST surface; fixtures are wired up by
// calling these directly) --

func (m *Memory) PutAccount(a domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

func (m *Memory) PutActor(a domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actors[a.ID] = a
}

func (m *Memory) PutToken(t domain.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
}

func (m *Memory) PutResource(r domain.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.ID] = r
}

func (m *Memory) PutPolicy(p domain.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.ID] = p
}

func (m *Memory) PutGroup(g domain.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
}

func (m *Memory) PutMembership(mm domain.Membership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships[mm.ID] = mm
}

func (m *Memory) PutGateway(g domain.Gateway) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateways[g.ID] = g
}

func (m *Memory) PutClient(c domain.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
}

func (m *Memory) PutRelay(r domain.Relay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relays[r.ID] = r
}

// RelayByID looks up a relay's static metadata row by id (the Token's
// SubjectID for a relay-typed token), analogous to GatewayByID/ClientByID.
func (m *Memory) RelayByID(_ context.Context, relayID string) (domain.Relay, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.relays[relayID]
	return r, ok, nil
}

// SetResourceSites records which sites serve resourceID, replacing any prior
// mapping, mirroring a resource_connections row rewrite.
func (m *Memory) SetResourceSites(resourceID string, siteIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(siteIDs))
	copy(cp, siteIDs)
	m.resourceSites[resourceID] = cp
}

// -- transport.AccountStore / transport.TokenStore --

func (m *Memory) AccountByID(_ context.Context, accountID string) (domain.Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	return a, ok, nil
}

func (m *Memory) TokenByID(_ context.Context, tokenID string) (domain.Token, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[tokenID]
	if !ok || t.DeletedAt != nil {
		return domain.Token{}, false, nil
	}
	return t, true, nil
}

// ActorByID is not part of any collaborator interface but is convenient for
// cmd/controlplane's upgrade handlers, which must resolve the Actor behind a
// client Subject themselves (the Token row alone only names SubjectID).
func (m *Memory) ActorByID(_ context.Context, actorID string) (domain.Actor, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actors[actorID]
	return a, ok, nil
}

func (m *Memory) ClientByID(_ context.Context, clientID string) (domain.Client, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[clientID]
	return c, ok, nil
}

func (m *Memory) GatewayByID(_ context.Context, gatewayID string) (domain.Gateway, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gateways[gatewayID]
	return g, ok, nil
}

// -- clientchannel.ResourceStore --

func (m *Memory) ResourceByID(_ context.Context, accountID, resourceID string) (domain.Resource, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[resourceID]
	if !ok || r.AccountID != accountID || r.DeletedAt != nil {
		return domain.Resource{}, false, nil
	}
	return r, true, nil
}

func (m *Memory) ResourcesForAccount(_ context.Context, accountID string) ([]domain.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Resource
	for _, r := range m.resources {
		if r.AccountID == accountID && r.DeletedAt == nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -- clientchannel.ResourceConnectionsStore --

func (m *Memory) SiteIDsForResource(_ context.Context, resourceID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sites := m.resourceSites[resourceID]
	out := make([]string, len(sites))
	copy(out, sites)
	return out, nil
}

// -- authz.PolicyStore / authz.MembershipStore / authz.AuthorizationStore --

func (m *Memory) EnabledPoliciesForResource(_ context.Context, accountID, resourceID string) ([]domain.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Policy
	for _, p := range m.policies {
		if p.AccountID == accountID && p.ResourceID == resourceID && p.Enabled() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) FindMembership(_ context.Context, actorID, groupID string) (domain.Membership, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mm := range m.memberships {
		if mm.ActorID == actorID && mm.GroupID == groupID {
			return mm, true, nil
		}
	}
	return domain.Membership{}, false, nil
}

func (m *Memory) Insert(_ context.Context, pa domain.PolicyAuthorization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorizations[pa.ID] = pa
	return nil
}

// PolicyAuthorizationsExpiringBefore supports an ops sweep (cmd/controlplane
// may run one alongside the per-Channel expiry pushes) that reaps stale
// authorization rows the way a real database would via a cron/TTL index.
func (m *Memory) PolicyAuthorizationsExpiringBefore(cutoff time.Time) []domain.PolicyAuthorization {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.PolicyAuthorization
	for _, pa := range m.authorizations {
		if pa.ExpiresAt.Before(cutoff) {
			out = append(out, pa)
		}
	}
	return out
}
