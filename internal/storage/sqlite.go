package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo — matches the pack's sqlite repos
)

// SQLiteStore is the default PresenceStore, backing both client
// presence and (via the schema it creates) the revoked-token table
// auth.JWTValidator reads from, plus a users table for
// auth.SQLiteUserStore. One handle, three concerns — mirrors
// llm-gateway's single DynamoDB client serving multiple store types
// (internal/store/dynamodb.go, internal/store/model.go,
// internal/store/usage.go all share one *dynamodb.Client shape, just
// different tables).
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if absent) a sqlite database at path and
// ensures the schema exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY races

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for auth.NewJWTValidator /
// auth.NewSQLiteUserStore, which read different tables on the same
// connection.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS clients (
			client_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			last_seen TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS revoked_tokens (
			token_id TEXT PRIMARY KEY,
			revoked_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertOnline(ctx context.Context, clientID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (client_id, user_id, status, last_seen)
		VALUES (?, ?, 'online', ?)
		ON CONFLICT(client_id) DO UPDATE SET user_id = excluded.user_id, status = 'online', last_seen = excluded.last_seen
	`, clientID, userID, time.Now())
	if err != nil {
		return fmt.Errorf("storage: upsert online %s: %w", clientID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkOffline(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE clients SET status = 'offline', last_seen = ? WHERE client_id = ?`, time.Now(), clientID)
	if err != nil {
		return fmt.Errorf("storage: mark offline %s: %w", clientID, err)
	}
	return nil
}
