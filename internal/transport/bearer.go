// internal/transport/bearer.go
// Bearer token extraction for the websocket upgrade (§6): the
// `x-authorization: Bearer <token>` header takes precedence; the `token`
// query parameter is a fallback used only when the header is absent or
// empty.
package transport

import (
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// ExtractBearerToken applies the §6 precedence rule and reports whether any
// token was found at all.
func ExtractBearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("x-authorization"); h != "" {
		if strings.HasPrefix(h, bearerPrefix) {
			return strings.TrimPrefix(h, bearerPrefix), true
		}
		return h, true
	}
	if p := r.URL.Query().Get("token"); p != "" {
		return p, true
	}
	return "", false
}
