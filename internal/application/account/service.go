// Package account drives the account lifecycle: registration, activation,
// login and logout.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-api-accounts/internal/application/activation"
	"github.com/go-api-accounts/internal/application/notification"
	"github.com/go-api-accounts/internal/domain"
	"github.com/go-api-accounts/internal/pkg/id"
	"github.com/go-api-accounts/internal/pkg/link"
	pkgtoken "github.com/go-api-accounts/internal/pkg/token"
	"github.com/go-api-accounts/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// ActivationOutcome reports what an activation attempt did.
type ActivationOutcome int

const (
	Activated ActivationOutcome = iota + 1
	AlreadyActive
)

func (o ActivationOutcome) String() string {
	switch o {
	case Activated:
		return "activated"
	case AlreadyActive:
		return "already_active"
	default:
		return "none"
	}
}

// LoginResult is returned by a successful Login. Resumed is true when the
// caller already held a live session and no new one was created.
type LoginResult struct {
	Session     *domain.Session
	User        *domain.User
	Destination string
	Resumed     bool
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	Activate(ctx context.Context, userID, token string) (ActivationOutcome, error)
	ActivateLink(ctx context.Context, uidb64, token string) (ActivationOutcome, error)
	ResendActivation(ctx context.Context, email string) error
	Login(ctx context.Context, currentSessionID string, req domain.LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	Current(ctx context.Context, sessionID string) (*domain.Session, *domain.User, error)
	ChangePassword(ctx context.Context, userID string, req domain.ChangePasswordRequest) error
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	// MarkActive flips is_active only while the stored email and password
	// hash still equal u's, i.e. the record the token was verified against.
	MarkActive(ctx context.Context, u *domain.User) error
}

type sessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

type tokenService interface {
	Issue(u *domain.User) (string, error)
	Verify(u *domain.User, token string) activation.Result
}

type activationNotifier interface {
	Enqueue(msg notification.ActivationEmail) bool
}

type service struct {
	users      userStore
	sessions   sessionStore
	tokens     tokenService
	notifier   activationNotifier
	siteURL    string
	sessionTTL time.Duration
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

type ServiceDeps struct {
	UserRepo    userStore
	SessionRepo sessionStore
	Tokens      tokenService
	Notifier    activationNotifier
	SiteURL     string
	SessionTTL  time.Duration
	BcryptCost  int              // zero means bcrypt.DefaultCost
	Now         func() time.Time // nil means time.Now
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		users:      deps.UserRepo,
		sessions:   deps.SessionRepo,
		tokens:     deps.Tokens,
		notifier:   deps.Notifier,
		siteURL:    strings.TrimRight(deps.SiteURL, "/"),
		sessionTTL: deps.SessionTTL,
		bcryptCost: deps.BcryptCost,
		now:        deps.Now,
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 14 * 24 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	// Compared against on unknown emails so both login failures cost one bcrypt run.
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.bcryptCost)
	return s
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	req.Email = domain.NormalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(&req); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("register %s: %w", req.Email, domain.ErrDuplicateEmail)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hashPassword("Password", req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		IsActive:     false,
		Role:         req.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "account registered", "user_id", u.UserID, "role", u.Role)

	s.sendActivation(ctx, u)
	return u, nil
}

// sendActivation issues a token and queues the email. Failures are logged;
// the registration itself has already succeeded.
func (s *service) sendActivation(ctx context.Context, u *domain.User) {
	tok, err := s.tokens.Issue(u)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue activation token", "user_id", u.UserID, "err", err)
		return
	}
	msg := notification.ActivationEmail{
		UserID: u.UserID,
		To:     u.Email,
		Link:   link.Activation(s.siteURL, u.UserID, tok),
	}
	if !s.notifier.Enqueue(msg) {
		slog.WarnContext(ctx, "activation email not queued", "user_id", u.UserID)
	}
}

func (s *service) Activate(ctx context.Context, userID, token string) (ActivationOutcome, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u.IsActive {
		return AlreadyActive, nil
	}

	if r := s.tokens.Verify(u, token); r != activation.Valid {
		slog.InfoContext(ctx, "activation token rejected", "user_id", userID, "reason", r.String())
		return 0, fmt.Errorf("activation token %s: %w", r, domain.ErrInvalidToken)
	}

	if err := s.users.MarkActive(ctx, u); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyActive):
			return AlreadyActive, nil
		case errors.Is(err, domain.ErrStaleRecord):
			slog.InfoContext(ctx, "activation token rejected", "user_id", userID, "reason", activation.Mismatched.String())
			return 0, fmt.Errorf("activation token %s: %w", activation.Mismatched, domain.ErrInvalidToken)
		}
		return 0, fmt.Errorf("activate user: %w", err)
	}
	slog.InfoContext(ctx, "account activated", "user_id", userID)
	return Activated, nil
}

// ActivateLink decodes the identity segment of an emailed link and activates.
// An unknown identity is reported as an invalid link.
func (s *service) ActivateLink(ctx context.Context, uidb64, token string) (ActivationOutcome, error) {
	userID, err := link.DecodeID(uidb64)
	if err != nil {
		return 0, err
	}
	if !id.Valid(userID) {
		return 0, fmt.Errorf("malformed identity %q: %w", userID, domain.ErrInvalidActivationLink)
	}
	out, err := s.Activate(ctx, userID, token)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("%w: %w", domain.ErrInvalidActivationLink, err)
	}
	return out, err
}

// ResendActivation queues a fresh activation email. Unknown and already
// active addresses succeed silently so the endpoint does not reveal which accounts exist.
func (s *service) ResendActivation(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if err := validate.Var("Email", email, "required,email"); err != nil {
		return err
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup email: %w", err)
	}
	if u.IsActive {
		return nil
	}
	s.sendActivation(ctx, u)
	return nil
}

func (s *service) Login(ctx context.Context, currentSessionID string, req domain.LoginRequest) (*LoginResult, error) {
	if currentSessionID != "" {
		sess, u, err := s.Current(ctx, currentSessionID)
		switch {
		case err == nil:
			return &LoginResult{Session: sess, User: u, Destination: domain.DestinationFor(u.Role), Resumed: true}, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	email := domain.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("both email and password are required: %w", domain.ErrValidation)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, fmt.Errorf("login %s: %w", u.UserID, domain.ErrNotActivated)
	}

	sessionID, err := pkgtoken.NewSessionID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &domain.Session{
		SessionID: sessionID,
		UserID:    u.UserID,
		Role:      u.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL).Unix(),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.InfoContext(ctx, "login", "user_id", u.UserID, "role", u.Role)
	return &LoginResult{Session: sess, User: u, Destination: domain.DestinationFor(u.Role)}, nil
}

// Logout removes the session. Unknown and empty ids are not an error.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Current resolves a session handle to the session and its identity.
// Missing, expired or orphaned sessions return domain.ErrNotFound.
func (s *service) Current(ctx context.Context, sessionID string) (*domain.Session, *domain.User, error) {
	if sessionID == "" {
		return nil, nil, fmt.Errorf("no session: %w", domain.ErrNotFound)
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Expired(s.now()) {
		return nil, nil, fmt.Errorf("session expired: %w", domain.ErrNotFound)
	}
	u, err := s.users.Get(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	return sess, u, nil
}

// ChangePassword replaces the password hash. Any activation token issued
// before the change stops verifying.
func (s *service) ChangePassword(ctx context.Context, userID string, req domain.ChangePasswordRequest) error {
	if err := validate.Struct(&req); err != nil {
		return err
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return domain.ErrInvalidCredentials
	}
	hash, err := s.hashPassword("NewPassword", req.NewPassword)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	slog.InfoContext(ctx, "password changed", "user_id", userID)
	return nil
}

// hashPassword bcrypts password. The validator counts characters while
// bcrypt caps input at 72 bytes, so multi-byte passwords can still be
// rejected here; that is reported against field as a validation error.
func (s *service) hashPassword(field, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("field '%s' exceeds 72 bytes: %w", field, domain.ErrValidation)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
