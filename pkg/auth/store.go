package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// oidcPasswordPlaceholder is hashed into accounts created via OIDC. The
// plaintext is a known constant, so a password login supplying it succeeds
// against such accounts. Deployments that need to close that off must
// rotate these rows to random secrets.
const oidcPasswordPlaceholder = "oidc-user"

// Store persists user accounts
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string, firstName, lastName *string) (*User, error)
	GetActiveByEmail(ctx context.Context, email string) (*User, error)
	GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetOrCreateOIDCUser(ctx context.Context, email string, firstName, lastName *string) (*User, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateUser inserts a new active user. Returns ErrUserExists when the email
// is already taken.
func (s *PostgresStore) CreateUser(ctx context.Context, email, passwordHash string, firstName, lastName *string) (*User, error) {
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.IsActive, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetActiveByEmail retrieves an active user by email. Returns ErrUserNotFound
// for missing or deactivated accounts.
func (s *PostgresStore) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, is_active, created_at, updated_at
		FROM users
		WHERE email = $1 AND is_active = true
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// GetActiveByID retrieves an active user by ID
func (s *PostgresStore) GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, is_active, created_at, updated_at
		FROM users
		WHERE id = $1 AND is_active = true
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetOrCreateOIDCUser returns the user matching the provider-asserted email,
// creating an account with a placeholder password hash when none exists. The
// lookup ignores is_active so a deactivated account is not silently recreated.
func (s *PostgresStore) GetOrCreateOIDCUser(ctx context.Context, email string, firstName, lastName *string) (*User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, is_active, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	user, err := s.scanUser(s.db.QueryRowContext(ctx, query, email))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(oidcPasswordPlaceholder), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder password: %w", err)
	}

	return s.CreateUser(ctx, email, string(hash), firstName, lastName)
}

func (s *PostgresStore) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName,
		&user.LastName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
