package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-api-accounts/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// UserEnvelope wraps responses that return one account.
type UserEnvelope struct {
	User    *domain.User `json:"user,omitempty"`
	Message string       `json:"message,omitempty"`
}

// LoginEnvelope wraps login responses. Destination is the role-based
// landing tag: "seller", "customer" or "home".
type LoginEnvelope struct {
	Destination string          `json:"destination"`
	Resumed     bool            `json:"resumed,omitempty"`
	Session     *domain.Session `json:"session,omitempty"`
	User        *domain.User    `json:"user,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Session     *domain.Session `json:"session,omitempty"`
	User        *domain.User    `json:"user,omitempty"`
	Destination string          `json:"destination,omitempty"`
}

// ActivationEnvelope wraps activation responses.
type ActivationEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return errors.New("empty request body")
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}
