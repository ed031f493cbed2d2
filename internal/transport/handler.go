// internal/transport/handler.go
// RejectUpgrade writes the §6 HTTP rejection response for a failed bearer
// authentication, so cmd/controlplane's two upgrade handlers (gateway,
// client) share one mapping instead of duplicating status codes.
package transport

import (
	"net/http"
	"strconv"

	"github.com/Voskan/flarego/internal/domain"
)

// RejectUpgrade writes the status/body/headers §6 specifies for reason. A
// reason with no HTTP mapping (e.g. expired, which Authenticate can return)
// gets 401 "Invalid token".
func RejectUpgrade(w http.ResponseWriter, reason domain.Reason) {
	code, message, retryAfter := reason.HTTPStatus()
	if code == 0 {
		code, message = http.StatusUnauthorized, "Invalid token"
	}
	if retryAfter {
		w.Header().Set("retry-after", strconv.Itoa(1))
	}
	http.Error(w, message, code)
}
