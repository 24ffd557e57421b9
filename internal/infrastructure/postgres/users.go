package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-api-accounts/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, name, password_hash, is_active, role, created_at, updated_at`

// UserRepo stores identity records in the users table.
type UserRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool, now: time.Now}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	now := r.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.UserID, u.Email, u.Name, u.PasswordHash, u.IsActive, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user: %w", domain.ErrDuplicateEmail)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// Update writes email, name and password hash. is_active is left alone.
func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = r.now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET email = $2, name = $3, password_hash = $4, updated_at = $5 WHERE id = $1`,
		u.UserID, u.Email, u.Name, u.PasswordHash, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user: %w", domain.ErrDuplicateEmail)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkActive flips is_active only if it is still false and email and
// password hash still match u; the row lock taken by UPDATE serialises
// concurrent callers.
func (r *UserRepo) MarkActive(ctx context.Context, u *domain.User) error {
	tag, err := r.pool.Exec(ctx, markActiveSQL, u.UserID, r.now().UTC(), u.Email, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var active bool
	err = r.pool.QueryRow(ctx, `SELECT is_active FROM users WHERE id = $1`, u.UserID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if active {
		return domain.ErrAlreadyActive
	}
	return fmt.Errorf("user %s: %w", u.UserID, domain.ErrStaleRecord)
}

const markActiveSQL = `UPDATE users SET is_active = TRUE, updated_at = $2
	WHERE id = $1 AND is_active = FALSE AND email = $3 AND password_hash = $4`

func (r *UserRepo) queryOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.UserID, &u.Email, &u.Name, &u.PasswordHash, &u.IsActive, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
