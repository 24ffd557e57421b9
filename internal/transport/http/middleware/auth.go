package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-api-accounts/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionCookie is the cookie carrying the session handle.
const SessionCookie = "session_id"

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Session *domain.Session
	User    *domain.User
}

// SessionResolver maps a session handle to its session and identity.
type SessionResolver interface {
	Current(ctx context.Context, sessionID string) (*domain.Session, *domain.User, error)
}

// SessionID returns the session handle from the session cookie or, failing
// that, from an "Authorization: Bearer" header. Empty when neither is set.
func SessionID(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// Auth returns middleware that resolves the session and injects the identity into context.
func Auth(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := SessionID(r)
			if sid == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing session")
				return
			}
			sess, u, err := resolver.Current(r.Context(), sid)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					slog.ErrorContext(r.Context(), "session lookup failed", "err", err)
					writeJSONError(w, http.StatusInternalServerError, "internal server error")
					return
				}
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired session")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &Identity{Session: sess, User: u})))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the authenticated identity from the request context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil && id.User != nil
}
