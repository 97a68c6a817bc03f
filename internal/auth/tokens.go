package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTokenTTL matches the session lifetime minted on password
// login.
const DefaultTokenTTL = 24 * time.Hour

// claims is the JWT payload. The core treats the minted string as an
// opaque bytestring; the JWT structure is an implementation detail of
// token minting/validation, never exposed on the wire Message.
type claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer mints session tokens on successful password login and
// registers them in Redis so the validator has an O(1) existence index
// to check in addition to the JWT signature — the authoritative source
// for whether a token is still valid is the external store, not the
// JWT signature alone.
type TokenIssuer struct {
	signingKey []byte
	redis      *redis.Client
	ttl        time.Duration
}

func NewTokenIssuer(signingKey []byte, redisClient *redis.Client) *TokenIssuer {
	return &TokenIssuer{signingKey: signingKey, redis: redisClient, ttl: DefaultTokenTTL}
}

// Issue mints a signed JWT for userID/email and records it in Redis
// with a matching TTL.
func (i *TokenIssuer) Issue(ctx context.Context, userID, email string) (string, error) {
	jti := uuid.NewString()
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}

	if i.redis != nil {
		key := redisTokenKey(jti)
		if err := i.redis.Set(ctx, key, userID, i.ttl).Err(); err != nil {
			return "", fmt.Errorf("auth: cache token: %w", err)
		}
	}
	return signed, nil
}

func redisTokenKey(jti string) string {
	return fmt.Sprintf("modelgate:session:%s", jti)
}
