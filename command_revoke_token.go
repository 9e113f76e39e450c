package dualauth

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// RevokeTokenMessage requests the blacklisting of a refresh token. Token may
// be either the full signed JWT or the truncated storage form; full tokens
// are truncated before lookup.
type RevokeTokenMessage struct {
	Token string `json:"token" example:"eyJhbGciOi.eyJzdWIiOi" doc:"Refresh token to revoke, full or truncated"`
}

type RevokeTokenHandler struct {
	lifecycle *TokenLifecycle
	logger    Logger
}

// NewRevokeTokenHandler creates a handler with sane defaults.
func NewRevokeTokenHandler(lifecycle *TokenLifecycle) *RevokeTokenHandler {
	return &RevokeTokenHandler{
		lifecycle: lifecycle,
		logger:    defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RevokeTokenHandler) WithLogger(logger Logger) *RevokeTokenHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RevokeTokenHandler) Execute(ctx context.Context, event RevokeTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token revocation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RevokeTokenHandler) execute(ctx context.Context, event RevokeTokenMessage) error {
	stored := event.Token

	if strings.Count(stored, ".") == 2 {
		truncated, err := TruncateToken(stored)
		if err != nil {
			return err
		}
		stored = truncated
	}

	return h.lifecycle.RevokeRaw(ctx, stored)
}
