// internal/authz/resolver.go
// Package authz implements the Authorization Resolver (C4): given a
// (client, resource) request under an authenticated Subject, evaluate active
// policies and group memberships to produce a PolicyAuthorization or a
// rejection reason.
//
// The Resolver depends only on small read interfaces (PolicyStore,
// MembershipStore, AuthorizationStore) rather than a concrete database
// client, so §4.4's algorithm is unit-testable with in-memory fakes — the
// same separation the teacher draws between internal/gateway/retention.Store
// (an interface) and its two implementations.
package authz

import (
	"context"
	"time"

	"github.com/Voskan/flarego/internal/domain"
)

// PolicyStore fetches enabled policies for a resource within an account.
type PolicyStore interface {
	EnabledPoliciesForResource(ctx context.Context, accountID, resourceID string) ([]domain.Policy, error)
}

// MembershipStore looks up the Membership (if any) binding an actor to a
// group, so a successful resolution can record which membership granted it.
type MembershipStore interface {
	FindMembership(ctx context.Context, actorID, groupID string) (domain.Membership, bool, error)
}

// AuthorizationStore persists the resulting PolicyAuthorization. Insertion
// and any related multi-row mutation run in a single transaction and
// broadcast only after commit (§5's shared-resource policy); that
// transactional boundary is the caller's responsibility, not the Resolver's.
type AuthorizationStore interface {
	Insert(ctx context.Context, pa domain.PolicyAuthorization) error
}

// Request is the Resolver's input: the (client, resource) pair under a
// specific Subject and the Gateway that would serve the tunnel.
type Request struct {
	Client    domain.Client
	Resource  domain.Resource
	Subject   domain.Subject
	GatewayID string
}

// Resolver evaluates access requests per §4.4.
type Resolver struct {
	policies       PolicyStore
	memberships    MembershipStore
	authorizations AuthorizationStore
	newID          func() string
	now            func() time.Time
}

// New returns a Resolver. newID generates PolicyAuthorization ids (typically
// util.New, a ULID generator); now defaults to time.Now if nil.
func New(policies PolicyStore, memberships MembershipStore, authorizations AuthorizationStore, newID func() string, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{policies: policies, memberships: memberships, authorizations: authorizations, newID: newID, now: now}
}

// match runs §4.4's policy/membership evaluation (steps common to Resolve
// and CanAccess) without side effects: it picks the matching policy whose
// computed expiry is latest, the same rule both callers need.
func (r *Resolver) match(ctx context.Context, req Request, now time.Time) (domain.Policy, domain.Membership, time.Time, domain.Reason) {
	if !req.Subject.Account.Active {
		return domain.Policy{}, domain.Membership{}, time.Time{}, domain.ReasonAccountDisabled
	}
	// Invariant 1: a PolicyAuthorization's client and resource must share an
	// account_id. A mismatch here is a malformed or malicious request, not a
	// bug in our own state, so it is rejected as not_found rather than
	// crashing the channel or leaking whether the resource exists elsewhere.
	if req.Client.AccountID != req.Resource.AccountID || req.Subject.Account.ID != req.Resource.AccountID {
		return domain.Policy{}, domain.Membership{}, time.Time{}, domain.ReasonNotFound
	}
	if req.Subject.Token.Expired(now) {
		return domain.Policy{}, domain.Membership{}, time.Time{}, domain.ReasonExpired
	}

	policies, err := r.policies.EnabledPoliciesForResource(ctx, req.Resource.AccountID, req.Resource.ID)
	if err != nil {
		return domain.Policy{}, domain.Membership{}, time.Time{}, domain.ReasonInternalError
	}
	if len(policies) == 0 {
		return domain.Policy{}, domain.Membership{}, time.Time{}, domain.ReasonNotFound
	}

	var (
		bestPolicy     domain.Policy
		bestMembership domain.Membership
		bestExpiry     time.Time
		found          bool
	)
	for _, p := range policies {
		m, ok, err := r.memberships.FindMembership(ctx, req.Subject.Actor.ID, p.GroupID)
		if err != nil {
			return domain.Policy{}, domain.Membership{}, time.Time{}, domain.ReasonInternalError
		}
		if !ok {
			continue
		}
		expiry := req.Subject.Token.ExpiresAt
		if policyExpiry := now.Add(p.SessionDuration); policyExpiry.Before(expiry) {
			expiry = policyExpiry
		}
		if !found || expiry.After(bestExpiry) {
			bestPolicy, bestMembership, bestExpiry, found = p, m, expiry, true
		}
	}
	if !found {
		return domain.Policy{}, domain.Membership{}, time.Time{}, domain.ReasonUnauthorized
	}
	if !bestExpiry.After(now) {
		return domain.Policy{}, domain.Membership{}, time.Time{}, domain.ReasonExpired
	}
	return bestPolicy, bestMembership, bestExpiry, ""
}

// Resolve implements §4.4's five-step algorithm. On success it has already
// called AuthorizationStore.Insert; callers must not insert again.
func (r *Resolver) Resolve(ctx context.Context, req Request) (domain.PolicyAuthorization, domain.Reason) {
	now := r.now()
	bestPolicy, bestMembership, bestExpiry, reason := r.match(ctx, req, now)
	if reason != "" {
		return domain.PolicyAuthorization{}, reason
	}

	pa := domain.PolicyAuthorization{
		ID:           r.newID(),
		ClientID:     req.Client.ID,
		ResourceID:   req.Resource.ID,
		GatewayID:    req.GatewayID,
		PolicyID:     bestPolicy.ID,
		MembershipID: bestMembership.ID,
		TokenID:      req.Subject.Token.ID,
		ExpiresAt:    bestExpiry,
	}
	if err := r.authorizations.Insert(ctx, pa); err != nil {
		return domain.PolicyAuthorization{}, domain.ReasonInternalError
	}
	return pa, ""
}

// CanAccess reports whether Subject currently has a matching enabled policy
// for (client, resource), without creating a PolicyAuthorization. Used by
// the Client Channel to filter resource_created/resource_updated pushes to
// resources the connected actor is actually authorized for (§4.6).
func (r *Resolver) CanAccess(ctx context.Context, req Request) bool {
	_, _, _, reason := r.match(ctx, req, r.now())
	return reason == ""
}
