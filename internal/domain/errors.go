// internal/domain/errors.go
// Wire-level error taxonomy (§7). Channels never leak stack traces to a peer:
// expected failures become a Reason value replied on the request's own ref.
// Programming errors (e.g. cross-account row leakage) are NOT represented
// here — callers should panic or call a channel's fail-fast teardown instead
// of inventing a Reason for them.
package domain

// Reason is the closed set of wire-level rejection reasons.
type Reason string

const (
	ReasonNotFound        Reason = "not_found"
	ReasonUnauthorized    Reason = "unauthorized"
	ReasonAccountDisabled Reason = "account_disabled"
	ReasonExpired         Reason = "expired"
	ReasonInvalidToken    Reason = "invalid_token"
	ReasonMissingToken    Reason = "missing_token"
	ReasonInvalidRef      Reason = "invalid_ref"
	ReasonUnknownMessage  Reason = "unknown_message"
	ReasonRateLimit       Reason = "rate_limit"
	ReasonInternalError   Reason = "internal_error"
	ReasonUnauthenticated Reason = "unauthenticated"

	// ReasonOffline is returned when no gateway is available to serve a
	// resource (§4.6 "gateway selection... if none online, reject with
	// offline"). A Gateway reply that never arrives is ReasonTimeout instead.
	ReasonOffline Reason = "offline"
	// ReasonTimeout marks a pending request_connection/authorize_flow ref
	// that exceeded its deadline (§5 "recommended 30s") before the Gateway
	// replied, distinct from offline (no gateway ever existed to ask).
	ReasonTimeout Reason = "timeout"

	// ReasonCannotDeleteInternetResource is the spelling picked for the open
	// question in spec.md §9 ("cant_" vs "cannot_"); see DESIGN.md.
	ReasonCannotDeleteInternetResource Reason = "cannot_delete_internet_resource"
)

// WireError is the {error, reason} tuple replied on a request's ref.
type WireError struct {
	Reason Reason
}

func (e *WireError) Error() string { return string(e.Reason) }

// NewWireError constructs a *WireError, the canonical way to reject an
// inbound wire message without tearing down the channel.
func NewWireError(r Reason) *WireError { return &WireError{Reason: r} }

// HTTPStatus maps a Reason to the HTTP upgrade rejection status + message
// from §6. Reasons outside the upgrade path return (0, "").
func (r Reason) HTTPStatus() (code int, message string, retryAfter bool) {
	switch r {
	case ReasonInvalidToken:
		return 401, "Invalid token", false
	case ReasonMissingToken:
		return 401, "Missing token", false
	case ReasonAccountDisabled:
		return 403, "The account is disabled", false
	case ReasonUnauthenticated:
		return 403, "Forbidden", false
	case ReasonRateLimit:
		return 503, "Service Unavailable", true
	default:
		return 0, "", false
	}
}
