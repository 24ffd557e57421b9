package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_IsValidAndUnique(t *testing.T) {
	a, b := New(), New()
	assert.True(t, Valid(a))
	assert.True(t, Valid(b))
	assert.NotEqual(t, a, b)
}

func TestValid_Rejects(t *testing.T) {
	assert.False(t, Valid(""))
	assert.False(t, Valid("not-a-ulid"))
	assert.False(t, Valid("42"))
}
