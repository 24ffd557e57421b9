package handler

import (
	"net/http"
	"time"

	"github.com/go-api-accounts/internal/application/account"
	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/transport/http/middleware"
)

// CookieConfig controls the session cookie written on login.
type CookieConfig struct {
	Domain string
	Secure bool
}

// SessionHandler handles login, logout and current-session endpoints.
type SessionHandler struct {
	svc     account.Service
	cookies CookieConfig
}

func NewSessionHandler(svc account.Service, cookies CookieConfig) *SessionHandler {
	return &SessionHandler{svc: svc, cookies: cookies}
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	// An already signed-in caller may post an empty body.
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	res, err := h.svc.Login(r.Context(), middleware.SessionID(r), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if !res.Resumed {
		h.setCookie(w, res.Session)
	}
	writeJSON(w, http.StatusOK, LoginEnvelope{
		Destination: res.Destination,
		Resumed:     res.Resumed,
		Session:     res.Session,
		User:        res.User,
		Message:     "logged in",
	})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), middleware.SessionID(r)); err != nil {
		httpError(w, r, err)
		return
	}
	h.clearCookie(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{
		Session:     id.Session,
		User:        id.User,
		Destination: domain.DestinationFor(id.User.Role),
	})
}

func (h *SessionHandler) setCookie(w http.ResponseWriter, s *domain.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    s.SessionID,
		Path:     "/",
		Domain:   h.cookies.Domain,
		Expires:  time.Unix(s.ExpiresAt, 0).UTC(),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *SessionHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
