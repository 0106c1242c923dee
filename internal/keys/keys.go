// Package keys normalizes and validates the key material carried by push
// subscriptions: the p256dh public key and the auth secret. Both arrive in
// either standard base64 (+/ with = padding) or base64url (-_ with optional
// padding); the canonical form persisted and sent downstream is unpadded
// base64url.
package keys

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Field names reported in validation errors.
const (
	FieldP256dh = "p256dh"
	FieldAuth   = "auth"
)

const (
	// An uncompressed P-256 point: 0x04 prefix + two 32-byte coordinates.
	publicKeyLength = 65
	minAuthLength   = 16
)

// InvalidKeyMaterialError reports which field failed validation and why.
type InvalidKeyMaterialError struct {
	Field  string
	Reason string
}

func (e *InvalidKeyMaterialError) Error() string {
	return fmt.Sprintf("invalid key material for %q: %s", e.Field, e.Reason)
}

var b64Canonicalizer = strings.NewReplacer("+", "-", "/", "_")

// Normalize strips whitespace, accepts either base64 alphabet and returns the
// canonical unpadded base64url encoding. Normalizing an already-canonical
// value is a no-op, so it is safe to run again on stored values before every
// delivery attempt.
func Normalize(field, value string) (string, error) {
	raw, err := decode(field, value)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ValidatePublicKey normalizes a p256dh value and enforces that it decodes to
// exactly 65 bytes.
func ValidatePublicKey(value string) (string, error) {
	raw, err := decode(FieldP256dh, value)
	if err != nil {
		return "", err
	}
	if len(raw) != publicKeyLength {
		return "", &InvalidKeyMaterialError{
			Field:  FieldP256dh,
			Reason: fmt.Sprintf("must decode to %d bytes, got %d", publicKeyLength, len(raw)),
		}
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// ValidateAuthSecret normalizes an auth secret and enforces a minimum decoded
// length of 16 bytes.
func ValidateAuthSecret(value string) (string, error) {
	raw, err := decode(FieldAuth, value)
	if err != nil {
		return "", err
	}
	if len(raw) < minAuthLength {
		return "", &InvalidKeyMaterialError{
			Field:  FieldAuth,
			Reason: fmt.Sprintf("must decode to at least %d bytes, got %d", minAuthLength, len(raw)),
		}
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decode(field, value string) ([]byte, error) {
	stripped := strings.Join(strings.Fields(value), "")
	stripped = strings.TrimRight(stripped, "=")
	canonical := b64Canonicalizer.Replace(stripped)

	raw, err := base64.RawURLEncoding.DecodeString(canonical)
	if err != nil {
		return nil, &InvalidKeyMaterialError{Field: field, Reason: "not valid base64"}
	}
	if len(raw) == 0 {
		return nil, &InvalidKeyMaterialError{Field: field, Reason: "decodes to zero bytes"}
	}
	return raw, nil
}
