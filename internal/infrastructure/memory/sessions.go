package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-api-accounts/internal/domain"
)

// SessionStore keeps sessions in a map. Expired entries are treated as
// missing and removed lazily on read.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.Session), now: time.Now}
}

func (s *SessionStore) Create(_ context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = *sess
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	if sess.Expired(s.now()) {
		delete(s.sessions, sessionID)
		return nil, fmt.Errorf("session expired: %w", domain.ErrNotFound)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
