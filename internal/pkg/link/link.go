// Package link encodes and decodes the identity segment of activation links.
package link

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-api-accounts/internal/domain"
)

// EncodeID returns the URL-safe, unpadded base64 form of an identity id.
func EncodeID(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

// DecodeID reverses EncodeID. Padded input is accepted. Every decode
// failure wraps domain.ErrInvalidActivationLink.
func DecodeID(uidb64 string) (string, error) {
	s := strings.TrimRight(uidb64, "=")
	if s == "" {
		return "", fmt.Errorf("empty identity segment: %w", domain.ErrInvalidActivationLink)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("decode identity segment: %w", domain.ErrInvalidActivationLink)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("identity segment is not utf-8: %w", domain.ErrInvalidActivationLink)
	}
	return string(b), nil
}

// Activation builds the absolute activation URL for base, identity and token.
func Activation(base, userID, token string) string {
	return fmt.Sprintf("%s/v1/activate/%s/%s", strings.TrimRight(base, "/"), EncodeID(userID), token)
}
