package mailtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivation(t *testing.T) {
	body, err := Activation("https://shop.example.com/v1/activate/abc/tok")
	require.NoError(t, err)
	assert.Contains(t, body, "https://shop.example.com/v1/activate/abc/tok")
	assert.Contains(t, body, "confirm your email")
}

func TestActivation_DoesNotEscapeLink(t *testing.T) {
	body, err := Activation("https://x.example.com/a?b=1&c=2")
	require.NoError(t, err)
	assert.Contains(t, body, "a?b=1&c=2")
}
