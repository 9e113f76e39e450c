package dualauth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dualauth "github.com/goliatone/go-dualauth"
)

func TestRevokeTokenHandler(t *testing.T) {
	codec := dualauth.NewTokenCodec(newTestConfig())

	t.Run("revokes a truncated token", func(t *testing.T) {
		store := newFakeTokenStore()
		lifecycle := dualauth.NewTokenLifecycle(codec, store)
		user := newTestUser(nil)

		token, err := lifecycle.Issue(context.Background(), user)
		require.NoError(t, err)

		handler := dualauth.NewRevokeTokenHandler(lifecycle)
		err = handler.Execute(context.Background(), dualauth.RevokeTokenMessage{
			Token: token.Truncated(),
		})

		require.NoError(t, err)
		assert.True(t, dualauth.IsTokenRevokedError(
			lifecycle.CheckNotBlacklisted(context.Background(), token.JTI()),
		))
	})

	t.Run("accepts the full signed token", func(t *testing.T) {
		store := newFakeTokenStore()
		lifecycle := dualauth.NewTokenLifecycle(codec, store)
		user := newTestUser(nil)

		token, err := lifecycle.Issue(context.Background(), user)
		require.NoError(t, err)

		signed, err := lifecycle.FullJWT(token)
		require.NoError(t, err)

		handler := dualauth.NewRevokeTokenHandler(lifecycle)
		err = handler.Execute(context.Background(), dualauth.RevokeTokenMessage{
			Token: signed,
		})

		require.NoError(t, err)
		assert.True(t, dualauth.IsTokenRevokedError(
			lifecycle.CheckNotBlacklisted(context.Background(), token.JTI()),
		))
	})

	t.Run("duplicate revocation surfaces already blacklisted", func(t *testing.T) {
		store := newFakeTokenStore()
		lifecycle := dualauth.NewTokenLifecycle(codec, store)
		user := newTestUser(nil)

		token, err := lifecycle.Issue(context.Background(), user)
		require.NoError(t, err)

		handler := dualauth.NewRevokeTokenHandler(lifecycle)
		message := dualauth.RevokeTokenMessage{Token: token.Truncated()}

		require.NoError(t, handler.Execute(context.Background(), message))

		err = handler.Execute(context.Background(), message)

		assert.Error(t, err)
		assert.True(t, dualauth.IsAlreadyBlacklistedError(err))
	})

	t.Run("fails fast on a cancelled context", func(t *testing.T) {
		store := newFakeTokenStore()
		lifecycle := dualauth.NewTokenLifecycle(codec, store)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		handler := dualauth.NewRevokeTokenHandler(lifecycle)
		err := handler.Execute(ctx, dualauth.RevokeTokenMessage{Token: "a.b"})

		assert.Error(t, err)
	})
}

func TestIssueTokenHandler_CancelledContext(t *testing.T) {
	codec := dualauth.NewTokenCodec(newTestConfig())
	lifecycle := dualauth.NewTokenLifecycle(codec, newFakeTokenStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := dualauth.NewIssueTokenHandler(nil, lifecycle)
	err := handler.Execute(ctx, dualauth.IssueTokenMessage{UserID: "not-a-uuid"})

	assert.Error(t, err)
}
