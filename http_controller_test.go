package dualauth_test

import (
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	dualauth "github.com/goliatone/go-dualauth"
)

func TestErrorToStatus(t *testing.T) {
	t.Run("maps sentinels to their http codes", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
		}{
			{dualauth.ErrTokenMalformed, fiber.StatusBadRequest},
			{dualauth.ErrTokenExpired, fiber.StatusUnauthorized},
			{dualauth.ErrTokenRevoked, fiber.StatusUnauthorized},
			{dualauth.ErrAlreadyBlacklisted, fiber.StatusNotFound},
			{dualauth.ErrUserNotFound, fiber.StatusUnauthorized},
			{dualauth.ErrPermissionDenied, fiber.StatusForbidden},
			{dualauth.ErrNoCredential, fiber.StatusUnauthorized},
			{dualauth.ErrLegacyTokenInvalid, fiber.StatusUnauthorized},
			{dualauth.ErrLegacyTokenDisabled, fiber.StatusUnauthorized},
		}

		for _, tc := range cases {
			status, message := dualauth.ErrorToStatus(tc.err)
			assert.Equal(t, tc.status, status, tc.err.Error())
			assert.NotEmpty(t, message)
		}
	})

	t.Run("unknown errors fall back to 500 with a safe message", func(t *testing.T) {
		status, message := dualauth.ErrorToStatus(errors.New("pq: connection refused"))

		assert.Equal(t, fiber.StatusInternalServerError, status)
		assert.Equal(t, "internal server error", message)
		assert.NotContains(t, message, "pq:")
	})
}

func TestTokenControllerPayloads(t *testing.T) {
	t.Run("rotate requires the refresh token", func(t *testing.T) {
		assert.Error(t, dualauth.TokenRotatePayload{}.Validate())
		assert.NoError(t, dualauth.TokenRotatePayload{Refresh: "a.b.c"}.Validate())
	})

	t.Run("revoke requires the token", func(t *testing.T) {
		assert.Error(t, dualauth.TokenRevokePayload{}.Validate())
		assert.NoError(t, dualauth.TokenRevokePayload{Token: "a.b"}.Validate())
	})
}

func TestNewTokenController(t *testing.T) {
	codec := dualauth.NewTokenCodec(newTestConfig())
	lifecycle := dualauth.NewTokenLifecycle(codec, newFakeTokenStore())
	policies := dualauth.NewPolicyService(newFakePolicyStore())

	t.Run("panics without a lifecycle", func(t *testing.T) {
		assert.Panics(t, func() {
			dualauth.NewTokenController(
				dualauth.WithControllerPolicies(policies),
			)
		})
	})

	t.Run("panics without a policy service", func(t *testing.T) {
		assert.Panics(t, func() {
			dualauth.NewTokenController(
				dualauth.WithControllerLifecycle(lifecycle),
			)
		})
	})

	t.Run("builds with default routes", func(t *testing.T) {
		controller := dualauth.NewTokenController(
			dualauth.WithControllerLifecycle(lifecycle),
			dualauth.WithControllerPolicies(policies),
		)

		assert.Equal(t, "/api/tokens", controller.Routes.Tokens)
		assert.Equal(t, "/api/tokens/rotate", controller.Routes.TokenRotate)
		assert.Equal(t, "/api/tokens/blacklist", controller.Routes.TokenBlacklist)
		assert.Equal(t, "/api/tokens/settings", controller.Routes.Settings)
	})
}
