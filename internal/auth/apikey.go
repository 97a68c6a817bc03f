package auth

import (
	"context"
	"crypto/subtle"
)

// StaticAPIKeyValidator implements TokenValidator by comparing the
// presented value for equality against one configured shared secret.
// This is the public router's auth model: a single static API key,
// not a signed/expiring session token — distinct from JWTValidator,
// which guards the control-plane session instead.
type StaticAPIKeyValidator struct {
	key string
}

func NewStaticAPIKeyValidator(key string) *StaticAPIKeyValidator {
	return &StaticAPIKeyValidator{key: key}
}

// Validate reports whether token equals the configured key, using a
// constant-time comparison so response timing doesn't leak how many
// leading bytes matched.
func (v *StaticAPIKeyValidator) Validate(_ context.Context, token string) (bool, error) {
	if v.key == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(v.key)) == 1, nil
}
