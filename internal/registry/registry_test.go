package registry_test

import (
	"testing"

	"push-relay/internal/registry"
	"push-relay/pkg/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidateEndpoint(t *testing.T) {
	valid := []string{
		"https://fcm.googleapis.com/fcm/send/abc123",
		"https://updates.push.services.mozilla.com/wpush/v2/token",
		"http://localhost:8080/push",
	}
	for _, endpoint := range valid {
		assert.NoError(t, registry.ValidateEndpoint(endpoint), endpoint)
	}

	invalid := []string{
		"",
		"not a url",
		"/relative/path",
		"ftp://example.com/push",
		"https://",
	}
	for _, endpoint := range invalid {
		err := registry.ValidateEndpoint(endpoint)
		assert.ErrorIs(t, err, errors.ErrValidation, endpoint)
	}
}
