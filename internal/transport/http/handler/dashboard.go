package handler

import (
	"net/http"

	"github.com/go-api-accounts/internal/transport/http/middleware"
)

// Dashboard serves the role-specific landing endpoints. Access control is
// done by middleware.RequireRole on the route.
func Dashboard(area string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeJSON(w, http.StatusOK, UserEnvelope{User: id.User, Message: "welcome to the " + area + " dashboard"})
	}
}
