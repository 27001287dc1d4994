package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/requestping/requestping/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

const userColumns = `id, email, password_hash, monthly_request_limit, created_at, last_login_at`

// CreateUser inserts a new user into the database.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, monthly_request_limit, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.MonthlyRequestLimit,
		user.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return user, nil
}

// EnsureUser returns the user with user.ID, creating it on first sight.
// Identities issued by the external identity service arrive this way.
func (r *Repository) EnsureUser(ctx context.Context, user *model.User) (*model.User, error) {
	existing, err := r.GetUserByID(ctx, user.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if err := r.CreateUser(ctx, user); err != nil {
		// Handle race condition - another request may have created it
		if errors.Is(err, ErrEmailExists) {
			return r.GetUserByID(ctx, user.ID)
		}
		return nil, err
	}

	return user, nil
}

// TouchLastLogin records a successful authentication.
func (r *Repository) TouchLastLogin(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.MonthlyRequestLimit,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
