package auth_test

import (
	"testing"
	"time"

	"push-relay/internal/auth"
	"push-relay/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "owner-secret"

func signedToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestVerify(t *testing.T) {
	v := auth.NewOwnerVerifier(testSecret)

	token := signedToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "owner-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	owner, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", owner)
}

func TestVerifyRejects(t *testing.T) {
	v := auth.NewOwnerVerifier(testSecret)

	t.Run("wrong secret", func(t *testing.T) {
		token := signedToken(t, "other-secret", jwt.RegisteredClaims{Subject: "owner-1"})
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})

	t.Run("expired", func(t *testing.T) {
		token := signedToken(t, testSecret, jwt.RegisteredClaims{
			Subject:   "owner-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		})
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signedToken(t, testSecret, jwt.RegisteredClaims{})
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not.a.token")
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})
}
