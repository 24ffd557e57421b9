package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrValidation            = errors.New("validation failed")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrNotFound              = errors.New("not found")
	ErrInvalidToken          = errors.New("invalid or expired activation token")
	ErrInvalidActivationLink = errors.New("invalid activation link")
	ErrAlreadyActive         = errors.New("account already active")
	ErrStaleRecord           = errors.New("record changed since it was read")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrNotActivated          = errors.New("account not activated")
	ErrDelivery              = errors.New("notification delivery failed")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
)
