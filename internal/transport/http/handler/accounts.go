package handler

import (
	"net/http"

	"github.com/go-api-accounts/internal/application/account"
	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// AccountHandler handles registration, activation and password endpoints.
type AccountHandler struct {
	svc account.Service
}

func NewAccountHandler(svc account.Service) *AccountHandler { return &AccountHandler{svc: svc} }

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserEnvelope{
		User:    u,
		Message: "registration successful, check your email to activate your account",
	})
}

// Activate handles the link sent by email: GET /activate/{uidb64}/{token}.
func (h *AccountHandler) Activate(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ActivateLink(r.Context(), chi.URLParam(r, "uidb64"), chi.URLParam(r, "token"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	msg := "account activated, you can now log in"
	if out == account.AlreadyActive {
		msg = "account already activated"
	}
	writeJSON(w, http.StatusOK, ActivationEnvelope{Status: out.String(), Message: msg})
}

func (h *AccountHandler) ResendActivation(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendActivationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.ResendActivation(r.Context(), req.Email); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, MessageEnvelope{
		Message: "if the account exists and is not active, a new activation email is on its way",
	})
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.ChangePassword(r.Context(), id.User.UserID, req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password changed"})
}
