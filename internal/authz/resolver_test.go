package authz

import (
	"context"
	"testing"
	"time"

	"github.com/Voskan/flarego/internal/domain"
)

type fakePolicies struct {
	byResource map[string][]domain.Policy
}

func (f fakePolicies) EnabledPoliciesForResource(_ context.Context, _, resourceID string) ([]domain.Policy, error) {
	var out []domain.Policy
	for _, p := range f.byResource[resourceID] {
		if p.Enabled() {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeMemberships struct {
	byActorGroup map[[2]string]domain.Membership
}

func (f fakeMemberships) FindMembership(_ context.Context, actorID, groupID string) (domain.Membership, bool, error) {
	m, ok := f.byActorGroup[[2]string{actorID, groupID}]
	return m, ok, nil
}

type fakeAuthorizations struct {
	inserted []domain.PolicyAuthorization
}

func (f *fakeAuthorizations) Insert(_ context.Context, pa domain.PolicyAuthorization) error {
	f.inserted = append(f.inserted, pa)
	return nil
}

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func baseRequest(now time.Time) Request {
	return Request{
		Client:    domain.Client{ID: "client1", AccountID: "acct1"},
		Resource:  domain.Resource{ID: "res1", AccountID: "acct1"},
		GatewayID: "gw1",
		Subject: domain.Subject{
			Account: domain.Account{ID: "acct1", Active: true},
			Actor:   domain.Actor{ID: "actor1", AccountID: "acct1"},
			Token:   domain.Token{ID: "tok1", AccountID: "acct1", ExpiresAt: now.Add(time.Hour)},
		},
	}
}

func TestResolveGrantsAccessForMatchingMembership(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)

	policies := fakePolicies{byResource: map[string][]domain.Policy{
		"res1": {{ID: "pol1", AccountID: "acct1", ResourceID: "res1", GroupID: "grp1", SessionDuration: 30 * time.Minute}},
	}}
	memberships := fakeMemberships{byActorGroup: map[[2]string]domain.Membership{
		{"actor1", "grp1"}: {ID: "mem1", AccountID: "acct1", GroupID: "grp1", ActorID: "actor1"},
	}}
	authorizations := &fakeAuthorizations{}

	r := New(policies, memberships, authorizations, func() string { return "pa1" }, fixedNow(now))
	pa, reason := r.Resolve(context.Background(), req)
	if reason != "" {
		t.Fatalf("expected success, got reason %q", reason)
	}
	if pa.ID != "pa1" || pa.PolicyID != "pol1" || pa.MembershipID != "mem1" {
		t.Fatalf("unexpected PolicyAuthorization: %#v", pa)
	}
	wantExpiry := now.Add(30 * time.Minute)
	if !pa.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v (policy session shorter than token), got %v", wantExpiry, pa.ExpiresAt)
	}
	if len(authorizations.inserted) != 1 {
		t.Fatalf("expected exactly one insert, got %d", len(authorizations.inserted))
	}
}

func TestResolveRejectsDisabledAccount(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)
	req.Subject.Account.Active = false

	r := New(fakePolicies{}, fakeMemberships{}, &fakeAuthorizations{}, func() string { return "x" }, fixedNow(now))
	_, reason := r.Resolve(context.Background(), req)
	if reason != domain.ReasonAccountDisabled {
		t.Fatalf("expected account_disabled, got %q", reason)
	}
}

func TestResolveRejectsCrossAccountMismatch(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)
	req.Resource.AccountID = "acct2"

	r := New(fakePolicies{}, fakeMemberships{}, &fakeAuthorizations{}, func() string { return "x" }, fixedNow(now))
	_, reason := r.Resolve(context.Background(), req)
	if reason != domain.ReasonNotFound {
		t.Fatalf("expected not_found for cross-account mismatch, got %q", reason)
	}
}

func TestResolveRejectsExpiredToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)
	req.Subject.Token.ExpiresAt = now.Add(-time.Minute)

	r := New(fakePolicies{}, fakeMemberships{}, &fakeAuthorizations{}, func() string { return "x" }, fixedNow(now))
	_, reason := r.Resolve(context.Background(), req)
	if reason != domain.ReasonExpired {
		t.Fatalf("expected expired, got %q", reason)
	}
}

func TestResolveRejectsNoPolicies(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)

	r := New(fakePolicies{}, fakeMemberships{}, &fakeAuthorizations{}, func() string { return "x" }, fixedNow(now))
	_, reason := r.Resolve(context.Background(), req)
	if reason != domain.ReasonNotFound {
		t.Fatalf("expected not_found when no enabled policies exist, got %q", reason)
	}
}

func TestResolveRejectsNoMatchingMembership(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)
	policies := fakePolicies{byResource: map[string][]domain.Policy{
		"res1": {{ID: "pol1", AccountID: "acct1", ResourceID: "res1", GroupID: "grp1", SessionDuration: time.Hour}},
	}}

	r := New(policies, fakeMemberships{}, &fakeAuthorizations{}, func() string { return "x" }, fixedNow(now))
	_, reason := r.Resolve(context.Background(), req)
	if reason != domain.ReasonUnauthorized {
		t.Fatalf("expected unauthorized, got %q", reason)
	}
}

func TestResolvePicksLatestExpiringMatchingPolicy(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)
	policies := fakePolicies{byResource: map[string][]domain.Policy{
		"res1": {
			{ID: "pol_short", AccountID: "acct1", ResourceID: "res1", GroupID: "grp_short", SessionDuration: 5 * time.Minute},
			{ID: "pol_long", AccountID: "acct1", ResourceID: "res1", GroupID: "grp_long", SessionDuration: 50 * time.Minute},
		},
	}}
	memberships := fakeMemberships{byActorGroup: map[[2]string]domain.Membership{
		{"actor1", "grp_short"}: {ID: "mem_short", GroupID: "grp_short", ActorID: "actor1"},
		{"actor1", "grp_long"}:  {ID: "mem_long", GroupID: "grp_long", ActorID: "actor1"},
	}}

	r := New(policies, memberships, &fakeAuthorizations{}, func() string { return "pa1" }, fixedNow(now))
	pa, reason := r.Resolve(context.Background(), req)
	if reason != "" {
		t.Fatalf("expected success, got %q", reason)
	}
	if pa.PolicyID != "pol_long" {
		t.Fatalf("expected the longer-lived policy to win, got %q", pa.PolicyID)
	}
}

func TestCanAccessMirrorsResolveWithoutInserting(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)
	policies := fakePolicies{byResource: map[string][]domain.Policy{
		"res1": {{ID: "pol1", AccountID: "acct1", ResourceID: "res1", GroupID: "grp1", SessionDuration: 30 * time.Minute}},
	}}
	memberships := fakeMemberships{byActorGroup: map[[2]string]domain.Membership{
		{"actor1", "grp1"}: {ID: "mem1", GroupID: "grp1", ActorID: "actor1"},
	}}
	authorizations := &fakeAuthorizations{}

	r := New(policies, memberships, authorizations, func() string { return "pa1" }, fixedNow(now))
	if !r.CanAccess(context.Background(), req) {
		t.Fatal("expected CanAccess to report true for a matching membership")
	}
	if len(authorizations.inserted) != 0 {
		t.Fatalf("expected CanAccess not to insert a PolicyAuthorization, got %d", len(authorizations.inserted))
	}
}

func TestCanAccessFalseForNoMatchingMembership(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)
	policies := fakePolicies{byResource: map[string][]domain.Policy{
		"res1": {{ID: "pol1", AccountID: "acct1", ResourceID: "res1", GroupID: "grp1", SessionDuration: time.Hour}},
	}}

	r := New(policies, fakeMemberships{}, &fakeAuthorizations{}, func() string { return "x" }, fixedNow(now))
	if r.CanAccess(context.Background(), req) {
		t.Fatal("expected CanAccess to report false with no matching membership")
	}
}

func TestResolveRejectsWhenBestPolicyExpiryAlreadyPast(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	req := baseRequest(now)
	req.Subject.Token.ExpiresAt = now.Add(time.Hour)
	policies := fakePolicies{byResource: map[string][]domain.Policy{
		"res1": {{ID: "pol1", AccountID: "acct1", ResourceID: "res1", GroupID: "grp1", SessionDuration: 0}},
	}}
	memberships := fakeMemberships{byActorGroup: map[[2]string]domain.Membership{
		{"actor1", "grp1"}: {ID: "mem1", GroupID: "grp1", ActorID: "actor1"},
	}}

	r := New(policies, memberships, &fakeAuthorizations{}, func() string { return "x" }, fixedNow(now))
	_, reason := r.Resolve(context.Background(), req)
	if reason != domain.ReasonExpired {
		t.Fatalf("expected expired when session_duration is zero, got %q", reason)
	}
}
