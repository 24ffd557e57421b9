// Package redis stores sessions as JSON values with key expiry
// (SESSION_DRIVER=redis).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-api-accounts/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// NewClient initializes a redis client and pings it.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

type SessionStore struct {
	rdb goredis.Cmdable
	now func() time.Time
}

func NewSessionStore(rdb goredis.Cmdable) *SessionStore {
	return &SessionStore{rdb: rdb, now: time.Now}
}

func (s *SessionStore) Create(ctx context.Context, sess *domain.Session) error {
	ttl := ttlUntil(sess.ExpiresAt, s.now())
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", sess.SessionID)
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.rdb.Set(ctx, key(sess.SessionID), b, ttl).Err()
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	b, err := s.rdb.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var sess domain.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Expired(s.now()) {
		return nil, fmt.Errorf("session expired: %w", domain.ErrNotFound)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, key(sessionID)).Err()
}

func key(sessionID string) string { return keyPrefix + sessionID }

func ttlUntil(expiresAt int64, now time.Time) time.Duration {
	return time.Unix(expiresAt, 0).Sub(now)
}
