// Package auth verifies the bearer tokens presented by application owners on
// the app-management endpoints. API keys for the relay endpoints are handled
// by the directory; this is only the owner-facing surface.
package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"push-relay/pkg/errors"
)

// OwnerVerifier validates HS256 owner tokens and extracts the owner identity.
type OwnerVerifier struct {
	secret []byte
}

func NewOwnerVerifier(secret string) *OwnerVerifier {
	return &OwnerVerifier{secret: []byte(secret)}
}

// Verify parses and validates an owner token and returns its subject.
func (v *OwnerVerifier) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", errors.ErrInvalidCredentials
	}
	if claims.Subject == "" {
		return "", errors.ErrInvalidCredentials
	}
	return claims.Subject, nil
}
