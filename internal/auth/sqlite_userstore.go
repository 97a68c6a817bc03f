package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteUserStore implements UserStore against the same sqlite handle
// storage.SQLiteStore manages, reading the users table it migrates.
type SQLiteUserStore struct {
	db *sql.DB
}

func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

func (s *SQLiteUserStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, display_name FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth: lookup user: %w", err)
	}
	if !checkPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

// CreateUser provisions a new account, hashing password. Used by
// operator tooling / seed scripts, not by the wire protocol.
func (s *SQLiteUserStore) CreateUser(ctx context.Context, id, email, password, displayName string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id, email, password_hash, display_name) VALUES (?, ?, ?, ?)`,
		id, email, hash, displayName)
	if err != nil {
		return fmt.Errorf("auth: create user: %w", err)
	}
	return nil
}
