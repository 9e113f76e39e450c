package dualauth

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterTokenRoutes mounts the token and policy settings endpoints.
func RegisterTokenRoutes[T any](app router.Router[T], opts ...TokenControllerOption) {

	controller := NewTokenController(opts...)

	app.Get(controller.Routes.Tokens, controller.TokenList).
		SetName("api-tokens.list")

	app.Post(controller.Routes.Tokens, controller.TokenCreate).
		SetName("api-tokens.create")

	app.Post(controller.Routes.TokenRotate, controller.TokenRotate).
		SetName("api-tokens.rotate")

	app.Post(controller.Routes.TokenBlacklist, controller.TokenRevoke).
		SetName("api-tokens.blacklist")

	app.Get(controller.Routes.Settings, controller.SettingsShow).
		SetName("api-token-settings.get")

	app.Post(controller.Routes.Settings, controller.SettingsUpdate).
		SetName("api-token-settings.post")
}

type TokenControllerRoutes struct {
	Tokens         string
	TokenRotate    string
	TokenBlacklist string
	Settings       string
}

type TokenController struct {
	Debug     bool
	Logger    Logger
	Lifecycle *TokenLifecycle
	Policies  *PolicyService
	Routes    *TokenControllerRoutes
}

type TokenControllerOption func(*TokenController) *TokenController

// WithControllerLifecycle sets the token lifecycle manager
func WithControllerLifecycle(lifecycle *TokenLifecycle) TokenControllerOption {
	return func(c *TokenController) *TokenController {
		c.Lifecycle = lifecycle
		return c
	}
}

// WithControllerPolicies sets the policy service
func WithControllerPolicies(policies *PolicyService) TokenControllerOption {
	return func(c *TokenController) *TokenController {
		c.Policies = policies
		return c
	}
}

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) TokenControllerOption {
	return func(c *TokenController) *TokenController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug enables debug payload dumps
func WithControllerDebug(debug bool) TokenControllerOption {
	return func(c *TokenController) *TokenController {
		c.Debug = debug
		return c
	}
}

func NewTokenController(opts ...TokenControllerOption) *TokenController {
	c := &TokenController{
		Logger: defLogger{},
		Routes: &TokenControllerRoutes{
			Tokens:         "/api/tokens",
			TokenRotate:    "/api/tokens/rotate",
			TokenBlacklist: "/api/tokens/blacklist",
			Settings:       "/api/tokens/settings",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Lifecycle == nil {
		panic("Missing TokenLifecycle in token controller...")
	}

	if c.Policies == nil {
		panic("Missing PolicyService in token controller...")
	}

	return c
}

// TokenList returns the caller's active refresh tokens in their truncated
// form. The signed wire token is only ever returned at creation.
func (a *TokenController) TokenList(ctx router.Context) error {
	user, ok := FromContext(ctx.Context())
	if !ok {
		return unauthenticated(ctx)
	}

	tokens, err := a.Lifecycle.ListActive(ctx.Context(), user.ID)
	if err != nil {
		a.Logger.Error("token list error: ", "error", err)
		return a.renderError(ctx, err)
	}

	response := make([]map[string]any, 0, len(tokens))
	for _, token := range tokens {
		response = append(response, map[string]any{
			"token":      token.Truncated(),
			"created_at": token.Claims().IssuedAt(),
			"expires_at": token.ExpiresAt(),
		})
	}

	if a.Debug {
		fmt.Println("======= TOKEN LIST ======")
		fmt.Println(print.MaybePrettyJSON(response))
		fmt.Println("=========================")
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"tokens": response,
	})
}

// TokenCreate issues a new refresh token and returns the signed JWT.
func (a *TokenController) TokenCreate(ctx router.Context) error {
	user, ok := FromContext(ctx.Context())
	if !ok {
		return unauthenticated(ctx)
	}

	token, err := a.Lifecycle.Issue(ctx.Context(), user)
	if err != nil {
		a.Logger.Error("token create error: ", "error", err)
		return a.renderError(ctx, err)
	}

	signed, err := a.Lifecycle.FullJWT(token)
	if err != nil {
		a.Logger.Error("token sign error: ", "error", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, map[string]any{
		"token":      signed,
		"expires_at": token.ExpiresAt(),
	})
}

// TokenRotatePayload carries the refresh token to exchange
type TokenRotatePayload struct {
	Refresh string `form:"refresh" json:"refresh"`
}

// Validate will run validation rules
func (r TokenRotatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Refresh,
			validation.Required,
		),
	)
}

// TokenRotate exchanges a live refresh token for a new one, blacklisting the
// old token in the same request.
func (a *TokenController) TokenRotate(ctx router.Context) error {
	user, ok := FromContext(ctx.Context())
	if !ok {
		return unauthenticated(ctx)
	}

	payload := new(TokenRotatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("token rotate parse payload: ", "error", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]string{
			"error": "failed to parse payload",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	claims, err := a.Lifecycle.codec.Validate(payload.Refresh)
	if err != nil {
		a.Logger.Info("token rotate verification failed", "error", err)
		return a.renderError(ctx, err)
	}

	if !claims.IsRefresh() || claims.UserID() != user.ID.String() {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "refresh token does not belong to the caller",
		})
	}

	truncated, err := TruncateToken(payload.Refresh)
	if err != nil {
		return a.renderError(ctx, err)
	}

	if err := a.Lifecycle.RevokeRaw(ctx.Context(), truncated); err != nil {
		a.Logger.Error("token rotate revoke error: ", "error", err)
		return a.renderError(ctx, err)
	}

	token, err := a.Lifecycle.Issue(ctx.Context(), user)
	if err != nil {
		a.Logger.Error("token rotate issue error: ", "error", err)
		return a.renderError(ctx, err)
	}

	signed, err := a.Lifecycle.FullJWT(token)
	if err != nil {
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"token":      signed,
		"expires_at": token.ExpiresAt(),
	})
}

// TokenRevokePayload carries the token to blacklist, full or truncated
type TokenRevokePayload struct {
	Token string `form:"token" json:"token"`
}

// Validate will run validation rules
func (r TokenRevokePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Token,
			validation.Required,
		),
	)
}

// TokenRevoke blacklists a token. Revoking an already blacklisted token
// reports not found.
func (a *TokenController) TokenRevoke(ctx router.Context) error {
	if _, ok := FromContext(ctx.Context()); !ok {
		return unauthenticated(ctx)
	}

	payload := new(TokenRevokePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("token revoke parse payload: ", "error", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]string{
			"error": "failed to parse payload",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	revoke := NewRevokeTokenHandler(a.Lifecycle).WithLogger(a.Logger)
	if err := revoke.Execute(ctx.Context(), RevokeTokenMessage{Token: payload.Token}); err != nil {
		a.Logger.Info("token revoke error", "error", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "revoked",
	})
}

// SettingsShow returns the caller organization's auth policy.
func (a *TokenController) SettingsShow(ctx router.Context) error {
	user, policy, err := a.policyForRequest(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	allowed, err := a.Policies.CanView(ctx.Context(), policy, user)
	if err != nil {
		return a.renderError(ctx, err)
	}

	if !allowed {
		return ctx.JSON(fiber.StatusForbidden, map[string]string{
			"error": ErrPermissionDenied.Message,
		})
	}

	return ctx.JSON(router.StatusOK, policy)
}

// SettingsUpdate applies a partial policy update.
func (a *TokenController) SettingsUpdate(ctx router.Context) error {
	user, policy, err := a.policyForRequest(ctx)
	if err != nil {
		return a.renderError(ctx, err)
	}

	payload := new(PolicyUpdate)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("settings update parse payload: ", "error", err)
		return ctx.JSON(fiber.StatusBadRequest, map[string]string{
			"error": "failed to parse payload",
		})
	}

	if a.Debug {
		fmt.Println("======= POLICY UPDATE ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	updated, err := a.Policies.Update(ctx.Context(), policy.OrganizationID, user, *payload)
	if err != nil {
		a.Logger.Info("settings update error", "error", err)
		return a.renderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, updated)
}

func (a *TokenController) policyForRequest(ctx router.Context) (*User, *AuthPolicy, error) {
	user, ok := FromContext(ctx.Context())
	if !ok || user.ActiveOrganizationID == nil {
		return nil, nil, goerrors.New(ErrNoCredential.Message, ErrNoCredential.Category).
			WithTextCode(ErrNoCredential.TextCode).
			WithCode(ErrNoCredential.Code)
	}

	policy, err := a.Policies.Get(ctx.Context(), *user.ActiveOrganizationID)
	if err != nil {
		return nil, nil, err
	}

	return user, policy, nil
}

func (a *TokenController) renderError(ctx router.Context, err error) error {
	status, message := ErrorToStatus(err)
	return ctx.JSON(status, map[string]string{
		"error": message,
	})
}

// ErrorToStatus maps an error to an HTTP status code and a safe message.
func ErrorToStatus(err error) (int, string) {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code, richErr.Message
	}
	return fiber.StatusInternalServerError, "internal server error"
}

func unauthenticated(ctx router.Context) error {
	return ctx.JSON(router.StatusUnauthorized, map[string]string{
		"error": "authentication required",
	})
}
