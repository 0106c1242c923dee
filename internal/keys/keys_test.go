package keys_test

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"push-relay/internal/keys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return buf
}

func TestNormalize(t *testing.T) {
	raw := randomBytes(t, 32)
	canonical := base64.RawURLEncoding.EncodeToString(raw)

	tests := []struct {
		name  string
		input string
	}{
		{"canonical url-safe", canonical},
		{"padded url-safe", base64.URLEncoding.EncodeToString(raw)},
		{"standard alphabet", base64.StdEncoding.EncodeToString(raw)},
		{"unpadded standard", base64.RawStdEncoding.EncodeToString(raw)},
		{"surrounding whitespace", "  " + canonical + "\n"},
		{"interior whitespace", canonical[:10] + " \t" + canonical[10:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := keys.Normalize(keys.FieldAuth, tt.input)
			require.NoError(t, err)
			assert.Equal(t, canonical, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	once, err := keys.Normalize(keys.FieldAuth, base64.StdEncoding.EncodeToString(randomBytes(t, 24)))
	require.NoError(t, err)

	twice, err := keys.Normalize(keys.FieldAuth, once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"only whitespace", " \t\n"},
		{"only padding", "===="},
		{"illegal characters", "abc$def"},
		{"interior padding", "ab=cd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := keys.Normalize(keys.FieldAuth, tt.input)
			var kmErr *keys.InvalidKeyMaterialError
			require.ErrorAs(t, err, &kmErr)
			assert.Equal(t, keys.FieldAuth, kmErr.Field)
		})
	}
}

func TestValidatePublicKeyLength(t *testing.T) {
	for _, n := range []int{64, 66} {
		input := base64.RawURLEncoding.EncodeToString(randomBytes(t, n))
		_, err := keys.ValidatePublicKey(input)
		var kmErr *keys.InvalidKeyMaterialError
		require.ErrorAs(t, err, &kmErr, "length %d should be rejected", n)
		assert.Equal(t, keys.FieldP256dh, kmErr.Field)
		assert.Contains(t, kmErr.Reason, "65")
	}

	valid := base64.StdEncoding.EncodeToString(randomBytes(t, 65))
	got, err := keys.ValidatePublicKey(valid)
	require.NoError(t, err)
	assert.False(t, strings.ContainsAny(got, "+/="))
}

func TestValidateAuthSecretLength(t *testing.T) {
	_, err := keys.ValidateAuthSecret(base64.RawURLEncoding.EncodeToString(randomBytes(t, 15)))
	var kmErr *keys.InvalidKeyMaterialError
	require.ErrorAs(t, err, &kmErr)
	assert.Equal(t, keys.FieldAuth, kmErr.Field)

	got, err := keys.ValidateAuthSecret(base64.RawURLEncoding.EncodeToString(randomBytes(t, 16)))
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

// Both alphabets must normalize to the same canonical value.
func TestNormalizeRoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		raw := randomBytes(t, 16+i)
		std := base64.StdEncoding.EncodeToString(raw)
		url := base64.RawURLEncoding.EncodeToString(raw)

		fromStd, err := keys.Normalize(keys.FieldAuth, std)
		require.NoError(t, err)
		fromURL, err := keys.Normalize(keys.FieldAuth, url)
		require.NoError(t, err)

		assert.Equal(t, fromURL, fromStd)
	}
}
