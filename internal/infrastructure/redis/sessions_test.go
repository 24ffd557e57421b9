package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-api-accounts/internal/domain"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "session:abc", key("abc"))
}

func TestTTLUntil(t *testing.T) {
	now := time.Unix(1000, 0)
	assert.Equal(t, 30*time.Second, ttlUntil(1030, now))
	assert.LessOrEqual(t, ttlUntil(1000, now), time.Duration(0))
}

func TestCreate_RejectsExpiredSession(t *testing.T) {
	// The client is never contacted for an already expired session.
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	s := NewSessionStore(rdb)
	s.now = func() time.Time { return time.Unix(2000, 0) }
	err := s.Create(context.Background(), &domain.Session{SessionID: "s1", ExpiresAt: 1999})
	assert.ErrorContains(t, err, "already expired")
}
