// Package memory provides mutex-guarded in-process stores. They back
// STORE_DRIVER=memory / SESSION_DRIVER=memory and the flow tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-api-accounts/internal/domain"
)

// UserStore keeps identity records in maps keyed by id and email.
// Records are copied on the way in and out so callers never share state
// with the store.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *UserStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return fmt.Errorf("create user: %w", domain.ErrDuplicateEmail)
	}
	if _, ok := s.byID[u.UserID]; ok {
		return fmt.Errorf("user %s already exists", u.UserID)
	}
	now := s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.byID[u.UserID] = *u
	s.byEmail[u.Email] = u.UserID
	return nil
}

func (s *UserStore) Get(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	userID, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return s.Get(ctx, userID)
}

// Update persists email, name and password hash. The activation flag is
// only ever changed by MarkActive.
func (s *UserStore) Update(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[u.UserID]
	if !ok {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if u.Email != cur.Email {
		if _, taken := s.byEmail[u.Email]; taken {
			return fmt.Errorf("update user: %w", domain.ErrDuplicateEmail)
		}
		delete(s.byEmail, cur.Email)
		s.byEmail[u.Email] = cur.UserID
	}
	cur.Email = u.Email
	cur.Name = u.Name
	cur.PasswordHash = u.PasswordHash
	cur.UpdatedAt = s.now().UTC()
	s.byID[cur.UserID] = cur
	u.UpdatedAt = cur.UpdatedAt
	return nil
}

// MarkActive atomically flips is_active from false to true, provided email
// and password hash still match u.
func (s *UserStore) MarkActive(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[u.UserID]
	if !ok {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if cur.IsActive {
		return domain.ErrAlreadyActive
	}
	if cur.Email != u.Email || cur.PasswordHash != u.PasswordHash {
		return fmt.Errorf("user %s: %w", u.UserID, domain.ErrStaleRecord)
	}
	cur.IsActive = true
	cur.UpdatedAt = s.now().UTC()
	s.byID[u.UserID] = cur
	return nil
}

// Len returns the number of stored records.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
