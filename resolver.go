package dualauth

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// CredentialKind discriminates how a credential was presented.
type CredentialKind string

const (
	CredentialNone   CredentialKind = ""
	CredentialLegacy CredentialKind = "legacy"
	CredentialBearer CredentialKind = "bearer"
)

// Credential is a single presented credential.
type Credential struct {
	Kind  CredentialKind
	Value string
}

// CredentialFromHeader parses an Authorization header value. "Token <key>"
// carries a legacy opaque key, "Bearer <jwt>" a signed JWT. Anything else is
// no credential.
func CredentialFromHeader(header string) Credential {
	scheme, value, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || value == "" {
		return Credential{}
	}

	switch strings.ToLower(scheme) {
	case "token":
		return Credential{Kind: CredentialLegacy, Value: value}
	case "bearer":
		return Credential{Kind: CredentialBearer, Value: value}
	default:
		return Credential{}
	}
}

// Outcome is the resolver's verdict on a single credential.
type Outcome string

const (
	// OutcomeAbstain means this credential establishes nothing; the caller
	// may try the next authentication scheme.
	OutcomeAbstain Outcome = "abstain"
	// OutcomeReject means the credential was recognized and must be refused;
	// no further scheme should run.
	OutcomeReject Outcome = "reject"
	// OutcomeAuthenticate means the credential established an identity.
	OutcomeAuthenticate Outcome = "authenticate"
)

// Resolution is the result of resolving one credential. Err is set only for
// Reject and names the refusal reason; User is set only for Authenticate.
type Resolution struct {
	Outcome Outcome
	User    *User
	Err     error
}

func abstain() Resolution {
	return Resolution{Outcome: OutcomeAbstain}
}

func reject(err error) Resolution {
	return Resolution{Outcome: OutcomeReject, Err: err}
}

func authenticate(user *User) Resolution {
	return Resolution{Outcome: OutcomeAuthenticate, User: user}
}

// Resolver turns a single credential into a Resolution. It consults the
// owner organization's policy to decide whether the credential's scheme is
// still honored. Resolve never returns an error; refusals travel inside the
// Resolution so the composition layer decides finality.
type Resolver struct {
	codec         *TokenCodec
	lifecycle     *TokenLifecycle
	users         UserStore
	legacy        *LegacyTokens
	policies      *PolicyService
	lenientLegacy bool
	logger        Logger
	activity      ActivitySink
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithLenientLegacy makes a disabled legacy scheme abstain instead of
// rejecting, letting another credential in the chain authenticate. The
// default is the strict phase-out behavior: a legacy key presented to an
// organization that moved on is refused outright.
func WithLenientLegacy() ResolverOption {
	return func(r *Resolver) {
		r.lenientLegacy = true
	}
}

// WithResolverLogger sets the resolver logger
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverActivitySink forwards auth events to the given sink
func WithResolverActivitySink(sink ActivitySink) ResolverOption {
	return func(r *Resolver) {
		r.activity = normalizeActivitySink(sink)
	}
}

// NewResolver creates a dual auth resolver
func NewResolver(codec *TokenCodec, lifecycle *TokenLifecycle, users UserStore, legacy *LegacyTokens, policies *PolicyService, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		codec:     codec,
		lifecycle: lifecycle,
		users:     users,
		legacy:    legacy,
		policies:  policies,
		logger:    defLogger{},
		activity:  noopActivitySink{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve inspects one credential and returns a Resolution.
func (r *Resolver) Resolve(ctx context.Context, cred Credential) Resolution {
	switch cred.Kind {
	case CredentialLegacy:
		return r.resolveLegacy(ctx, cred.Value)
	case CredentialBearer:
		return r.resolveBearer(ctx, cred.Value)
	default:
		return abstain()
	}
}

func (r *Resolver) resolveLegacy(ctx context.Context, key string) Resolution {
	user, err := r.legacy.Lookup(ctx, key)
	if err != nil {
		r.logger.Info("legacy token rejected", "error", err)
		return reject(err)
	}

	policy, err := r.policyForUser(ctx, user)
	if err != nil {
		r.logger.Info("legacy auth aborted, policy unavailable", "user_id", user.ID.String(), "error", err)
		return abstain()
	}

	if policy != nil && (!policy.LegacyTokensEnabled || policy.JWTTokensEnabled) {
		if r.lenientLegacy {
			r.logger.Info("legacy token ignored, organization requires JWT", "user_id", user.ID.String())
			return abstain()
		}
		r.recordAuth(ctx, ActivityEventAuthRejected, user, map[string]any{"scheme": "legacy"})
		return reject(ErrLegacyTokenDisabled)
	}

	// every legacy success is logged loudly until the scheme is retired
	r.logger.Warn("deprecated legacy token authentication used", "user_id", user.ID.String())
	r.recordAuth(ctx, ActivityEventLegacyTokenUsed, user, nil)

	return authenticate(user)
}

func (r *Resolver) resolveBearer(ctx context.Context, raw string) Resolution {
	claims, err := r.codec.Validate(raw)
	if err != nil {
		r.logger.Info("bearer token failed verification", "error", err)
		return abstain()
	}

	if claims.TokenType != TokenTypeRefresh && claims.TokenType != TokenTypeAccess {
		r.logger.Info("bearer token has unknown token_type", "token_type", claims.TokenType)
		return abstain()
	}

	if err := r.lifecycle.CheckNotBlacklisted(ctx, claims.JTI()); err != nil {
		if IsTokenRevokedError(err) {
			r.logger.Info("bearer token rejected, revoked", "jti", claims.JTI())
			return reject(err)
		}
		r.logger.Info("bearer auth aborted, blacklist unavailable", "jti", claims.JTI(), "error", err)
		return abstain()
	}

	userID, err := claims.UserUUID()
	if err != nil {
		r.logger.Info("bearer token carries invalid user id", "uid", claims.UserID())
		return abstain()
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			r.recordAuth(ctx, ActivityEventAuthRejected, nil, map[string]any{"scheme": "bearer", "uid": claims.UserID()})
			return reject(ErrUserNotFound)
		}
		r.logger.Info("bearer auth aborted, user lookup failed", "error", err)
		return abstain()
	}

	policy, err := r.policyForUser(ctx, user)
	if err != nil {
		r.logger.Info("bearer auth aborted, policy unavailable", "user_id", user.ID.String(), "error", err)
		return abstain()
	}

	if policy != nil && !policy.APITokensEnabled {
		r.logger.Info("bearer token ignored, organization has API tokens disabled", "user_id", user.ID.String())
		return abstain()
	}

	r.recordAuth(ctx, ActivityEventJWTAuthSuccess, user, map[string]any{"jti": claims.JTI()})

	return authenticate(user)
}

// policyForUser loads the policy of the user's active organization. Users
// without an organization have no policy to consult.
func (r *Resolver) policyForUser(ctx context.Context, user *User) (*AuthPolicy, error) {
	if user.ActiveOrganizationID == nil {
		return nil, nil
	}
	return r.policies.Get(ctx, *user.ActiveOrganizationID)
}

func (r *Resolver) recordAuth(ctx context.Context, eventType ActivityEventType, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Metadata:  metadata,
	}
	if user != nil {
		event.Actor = ActorRef{ID: user.ID.String(), Type: "user"}
		event.UserID = user.ID.String()
	}
	if err := r.activity.Record(ctx, event); err != nil {
		r.logger.Error("failed to record activity event", "event", string(eventType), "error", err)
	}
}

// Authenticator walks a credential chain through the resolver. The first
// Authenticate wins, any Reject is final, and a chain that only abstains
// fails with ErrNoCredential.
type Authenticator struct {
	resolver *Resolver
}

// NewAuthenticator creates the credential chain composition
func NewAuthenticator(resolver *Resolver) *Authenticator {
	return &Authenticator{resolver: resolver}
}

// Authenticate resolves credentials in order and returns the established
// user.
func (a *Authenticator) Authenticate(ctx context.Context, creds ...Credential) (*User, error) {
	for _, cred := range creds {
		res := a.resolver.Resolve(ctx, cred)
		switch res.Outcome {
		case OutcomeAuthenticate:
			return res.User, nil
		case OutcomeReject:
			err := res.Err
			if err == nil {
				err = ErrNoCredential
			}
			return nil, err
		}
	}

	return nil, errors.New(ErrNoCredential.Message, ErrNoCredential.Category).
		WithTextCode(ErrNoCredential.TextCode).
		WithCode(ErrNoCredential.Code)
}
