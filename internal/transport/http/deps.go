package http

import (
	"context"

	"github.com/go-api-accounts/internal/application/activation"
	"github.com/go-api-accounts/internal/application/notification"
	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/transport/http/middleware"
)

// UserRepository is the minimal interface the router requires from a credential store.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	// MarkActive atomically flips is_active from false to true while email and
	// password hash still match u. Returns domain.ErrAlreadyActive when another
	// caller got there first and domain.ErrStaleRecord when the record changed.
	MarkActive(ctx context.Context, u *domain.User) error
}

// SessionRepository is the minimal interface the router requires from a session store.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// Notifier queues activation emails without blocking the request.
type Notifier interface {
	Enqueue(msg notification.ActivationEmail) bool
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    UserRepository
	SessionRepo SessionRepository
	Tokens      *activation.Service
	Notifier    Notifier
	// RateLimiter guards the public credential endpoints. The caller owns
	// it and calls Stop on shutdown.
	RateLimiter *middleware.RateLimiter
	BcryptCost  int // zero means bcrypt.DefaultCost
}
