// Package auth implements the login/session half of the control
// plane: user authentication, session-token minting, and token
// validation. Grounded on llm-gateway's TenantStore interface shape
// (internal/store/dynamodb.go), generalized from API-key lookup to
// email/password authentication.
package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned by UserStore.Authenticate when the
// email is unknown or the password does not match. It is intentionally
// indistinguishable to callers from "unknown user" to avoid leaking
// which emails are registered.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// User is a registered account, backing the Login message variant.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
}

// UserStore authenticates email/password pairs against durable
// storage.
type UserStore interface {
	Authenticate(ctx context.Context, email, password string) (*User, error)
}

// HashPassword is used by account provisioning (not exposed over the
// wire protocol, but needed by any seed/admin tooling that creates
// users).
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
