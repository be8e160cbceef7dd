package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const resetTokenPurpose = "password_reset"

// ResetTokens issues and validates the signed, short-lived tokens that
// authorize a password reset. Tokens are HS256 JWTs bound to the user
// ID; possession of an unexpired token is the only proof required, so
// the TTL is kept short.
type ResetTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewResetTokens creates a reset token issuer. A nil clock defaults to
// time.Now.
func NewResetTokens(secret []byte, ttl time.Duration, clock func() time.Time) *ResetTokens {
	if clock == nil {
		clock = time.Now
	}
	return &ResetTokens{secret: secret, ttl: ttl, now: clock}
}

// Issue creates a reset token for a user.
func (rt *ResetTokens) Issue(userID string) (string, error) {
	now := rt.now()
	claims := jwt.MapClaims{
		"sub":     userID,
		"purpose": resetTokenPurpose,
		"iat":     now.Unix(),
		"exp":     now.Add(rt.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(rt.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return signed, nil
}

// Validate checks a reset token and returns the user ID it authorizes.
func (rt *ResetTokens) Validate(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) { return rt.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(rt.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResetTokenInvalid, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrResetTokenInvalid
	}
	if purpose, _ := claims["purpose"].(string); purpose != resetTokenPurpose {
		return "", ErrResetTokenInvalid
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrResetTokenInvalid
	}
	return sub, nil
}
