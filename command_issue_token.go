package dualauth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// IssueTokenMessage requests a new refresh token for a user. OnResponse, when
// set, receives the signed wire token; the handler itself never returns the
// plaintext.
type IssueTokenMessage struct {
	UserID     string `json:"user_id" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"User ID to issue the token for"`
	OnResponse func(token *RefreshToken, signed string) `json:"-"`
}

type IssueTokenHandler struct {
	repo      RepositoryManager
	lifecycle *TokenLifecycle
	logger    Logger
}

// NewIssueTokenHandler creates a handler with sane defaults.
func NewIssueTokenHandler(repo RepositoryManager, lifecycle *TokenLifecycle) *IssueTokenHandler {
	return &IssueTokenHandler{
		repo:      repo,
		lifecycle: lifecycle,
		logger:    defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *IssueTokenHandler) WithLogger(logger Logger) *IssueTokenHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *IssueTokenHandler) Execute(ctx context.Context, event IssueTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during token issuance",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *IssueTokenHandler) execute(ctx context.Context, event IssueTokenMessage) error {
	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user id").
			WithCode(goerrors.CodeBadRequest)
	}

	user, err := h.repo.Users().GetByID(ctx, userID)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return goerrors.New(ErrUserNotFound.Message, ErrUserNotFound.Category).
				WithTextCode(ErrUserNotFound.TextCode).
				WithCode(ErrUserNotFound.Code)
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user")
	}

	token, err := h.lifecycle.Issue(ctx, user)
	if err != nil {
		return err
	}

	signed, err := h.lifecycle.FullJWT(token)
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(token, signed)
	}

	return nil
}
