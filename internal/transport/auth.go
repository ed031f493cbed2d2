// internal/transport/auth.go
// Upgrade-time authentication (§6): resolve a bearer token string into the
// domain rows a Channel needs to construct itself, or a Reason explaining why
// the upgrade is rejected.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/Voskan/flarego/internal/domain"
	"github.com/Voskan/flarego/pkg/auth"
)

// AccountStore looks up the tenant an authenticated token belongs to.
type AccountStore interface {
	AccountByID(ctx context.Context, accountID string) (domain.Account, bool, error)
}

// TokenStore looks up a Token row by id, so deletion/expiry can be checked
// against the database rather than trusting the JWT's own exp claim alone.
type TokenStore interface {
	TokenByID(ctx context.Context, tokenID string) (domain.Token, bool, error)
}

// Identity is everything an upgrade handler resolves from a bearer token
// before constructing a Gateway/Client Channel.
type Identity struct {
	Token   domain.Token
	Account domain.Account
}

// Authenticator verifies a bearer token string end to end: JWT signature and
// expiry, then the backing Token row (covers revocation: a deleted token's
// signature still verifies, but TokenByID no longer finds it) and the
// owning Account's active flag.
type Authenticator struct {
	Verifier *auth.Verifier
	Tokens   TokenStore
	Accounts AccountStore
}

// Authenticate maps tokenStr to an Identity or a rejection Reason from the
// §6 taxonomy (invalid_token, missing_token, account_disabled, expired).
func (a *Authenticator) Authenticate(ctx context.Context, tokenStr string) (Identity, domain.Reason) {
	if tokenStr == "" {
		return Identity{}, domain.ReasonMissingToken
	}

	claims, err := a.Verifier.ParseAndVerify(tokenStr)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return Identity{}, domain.ReasonExpired
		}
		return Identity{}, domain.ReasonInvalidToken
	}

	tokenID, _ := claims["sub"].(string)
	token, ok, err := a.Tokens.TokenByID(ctx, tokenID)
	if err != nil || !ok || token.DeletedAt != nil {
		return Identity{}, domain.ReasonInvalidToken
	}
	if token.Expired(time.Now()) {
		return Identity{}, domain.ReasonExpired
	}

	account, ok, err := a.Accounts.AccountByID(ctx, token.AccountID)
	if err != nil || !ok {
		return Identity{}, domain.ReasonInvalidToken
	}
	if !account.Active {
		return Identity{}, domain.ReasonAccountDisabled
	}

	return Identity{Token: token, Account: account}, ""
}
