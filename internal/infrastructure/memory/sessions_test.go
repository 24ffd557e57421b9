package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-api-accounts/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_Lifecycle(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	sess := &domain.Session{SessionID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	require.NoError(t, s.Create(ctx, sess))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Get(ctx, "s1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.NoError(t, s.Delete(ctx, "s1"))
}

func TestSessionStore_ExpiredIsNotFound(t *testing.T) {
	s := NewSessionStore()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &domain.Session{SessionID: "s1", ExpiresAt: now.Unix()}))

	_, err := s.Get(ctx, "s1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
