package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// ErrValidatorUnavailable distinguishes a storage failure from an
// invalid token: callers must be able to tell "the store is down"
// apart from "this token is invalid".
var ErrValidatorUnavailable = errors.New("auth: token store unavailable")

// TokenValidator is the external contract: validate(token) -> bool,
// succeeding iff the token exists, is active, and unexpired.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (bool, error)
}

// JWTValidator checks the JWT signature and expiry locally, then runs
// two further checks in turn: when a Redis client is configured, the
// token's jti must be present in the existence index populated at
// issuance (a missing key rejects the token, so tokens do not survive
// a Redis flush); then the durable revoked_tokens table in sqlite must
// not list it. A Redis or sqlite error is reported as
// ErrValidatorUnavailable, not as an invalid token.
type JWTValidator struct {
	signingKey []byte
	redis      *redis.Client
	db         *sql.DB
}

func NewJWTValidator(signingKey []byte, redisClient *redis.Client, db *sql.DB) *JWTValidator {
	return &JWTValidator{signingKey: signingKey, redis: redisClient, db: db}
}

func (v *JWTValidator) Validate(ctx context.Context, token string) (bool, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return false, nil
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || c.ID == "" {
		return false, nil
	}

	if v.redis != nil {
		exists, err := v.redis.Exists(ctx, redisTokenKey(c.ID)).Result()
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrValidatorUnavailable, err)
		}
		if exists == 0 {
			return false, nil
		}
	}

	revoked, err := v.isRevoked(ctx, c.ID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrValidatorUnavailable, err)
	}
	return !revoked, nil
}

func (v *JWTValidator) isRevoked(ctx context.Context, jti string) (bool, error) {
	if v.db == nil {
		return false, nil
	}
	var count int
	err := v.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM revoked_tokens WHERE token_id = ?`, jti).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Revoke marks jti as revoked, for administrative disconnect or
// password-change flows. Not reachable from the wire protocol today;
// exposed for the admin API / operator tooling.
func (v *JWTValidator) Revoke(ctx context.Context, jti string) error {
	if v.db == nil {
		return nil
	}
	_, err := v.db.ExecContext(ctx, `INSERT OR IGNORE INTO revoked_tokens (token_id, revoked_at) VALUES (?, CURRENT_TIMESTAMP)`, jti)
	return err
}
