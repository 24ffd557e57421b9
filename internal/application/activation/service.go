// Package activation issues and verifies stateless account-activation tokens.
//
// A token is a compact HS256 JWT carrying the identity id (sub), the time of
// issuance (iat) and a fingerprint of the identity's mutable state (fp).
// Nothing is persisted: validity is re-derived from the identity's current
// state, so changing the password or activating the account implicitly
// invalidates every outstanding token.
package activation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/go-api-accounts/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the expiry window applied when none is configured.
const DefaultTTL = 24 * time.Hour

// maxClockSkew bounds how far in the future an issuance time may lie.
const maxClockSkew = time.Minute

// Result is the outcome of Verify.
type Result int

const (
	Valid Result = iota
	Expired
	Tampered
	Mismatched
)

func (r Result) String() string {
	switch r {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case Tampered:
		return "tampered"
	case Mismatched:
		return "mismatched"
	default:
		return "unknown(" + strconv.Itoa(int(r)) + ")"
	}
}

type claims struct {
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// Service issues and verifies activation tokens. It holds no mutable state
// and is safe for concurrent use.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock injects the time source (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(secret []byte, ttl time.Duration, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("activation secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue returns a token bound to u's id and current state.
func (s *Service) Issue(u *domain.User) (string, error) {
	c := claims{
		Fingerprint: s.fingerprint(u),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  u.UserID,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Verify checks token against u's current state. The signature is checked
// first, then the identity binding, then the expiry window.
func (s *Service) Verify(u *domain.User, token string) Result {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || c.IssuedAt == nil {
		return Tampered
	}
	if c.Subject != u.UserID || !hmac.Equal([]byte(c.Fingerprint), []byte(s.fingerprint(u))) {
		return Mismatched
	}
	now := s.now()
	issued := c.IssuedAt.Time
	if issued.After(now.Add(maxClockSkew)) {
		return Tampered
	}
	if now.Sub(issued) > s.ttl {
		return Expired
	}
	return Valid
}

// fingerprint summarises the fields whose change must invalidate a token.
func (s *Service) fingerprint(u *domain.User) string {
	mac := hmac.New(sha256.New, s.secret)
	for _, part := range []string{"activation", u.UserID, u.Email, u.PasswordHash, strconv.FormatBool(u.IsActive)} {
		mac.Write([]byte(part))
		mac.Write([]byte{0})
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
