package dualauth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

const (
	defRefreshTokenTTL = 30 * 24 * time.Hour
	defAccessTokenTTL  = time.Hour
)

// RefreshToken is an issued, persisted refresh token.
type RefreshToken struct {
	claims    *APITokenClaims
	truncated string
}

// Claims returns the token claims
func (t *RefreshToken) Claims() *APITokenClaims {
	return t.claims
}

// JTI returns the token's unique identifier
func (t *RefreshToken) JTI() string {
	return t.claims.JTI()
}

// UserID returns the subject user ID
func (t *RefreshToken) UserID() string {
	return t.claims.UserID()
}

// Truncated returns the two segment storage encoding
func (t *RefreshToken) Truncated() string {
	return t.truncated
}

// ExpiresAt returns the expiration time
func (t *RefreshToken) ExpiresAt() time.Time {
	return t.claims.Expires()
}

// TokenLifecycle issues, lists, and revokes API tokens against a TokenStore.
type TokenLifecycle struct {
	codec            *TokenCodec
	tokens           TokenStore
	refreshTTL       time.Duration
	accessTTL        time.Duration
	idempotentRevoke bool
	now              func() time.Time
	logger           Logger
	activity         ActivitySink
}

// TokenLifecycleOption configures a TokenLifecycle
type TokenLifecycleOption func(*TokenLifecycle)

// WithRefreshTTL overrides the refresh token lifetime
func WithRefreshTTL(ttl time.Duration) TokenLifecycleOption {
	return func(m *TokenLifecycle) {
		if ttl > 0 {
			m.refreshTTL = ttl
		}
	}
}

// WithAccessTTL overrides the access token lifetime
func WithAccessTTL(ttl time.Duration) TokenLifecycleOption {
	return func(m *TokenLifecycle) {
		if ttl > 0 {
			m.accessTTL = ttl
		}
	}
}

// WithLifecycleClock injects a clock, mostly for tests
func WithLifecycleClock(clock func() time.Time) TokenLifecycleOption {
	return func(m *TokenLifecycle) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithLifecycleLogger sets the lifecycle logger
func WithLifecycleLogger(logger Logger) TokenLifecycleOption {
	return func(m *TokenLifecycle) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLifecycleActivitySink forwards token events to the given sink
func WithLifecycleActivitySink(sink ActivitySink) TokenLifecycleOption {
	return func(m *TokenLifecycle) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithIdempotentRevoke makes duplicate revocations succeed silently instead
// of returning ErrAlreadyBlacklisted.
//
// Deprecated: kept for callers migrating off the swallow-duplicates behavior;
// new code should handle ErrAlreadyBlacklisted.
func WithIdempotentRevoke() TokenLifecycleOption {
	return func(m *TokenLifecycle) {
		m.idempotentRevoke = true
	}
}

// NewTokenLifecycle creates a lifecycle manager over the given codec and store
func NewTokenLifecycle(codec *TokenCodec, tokens TokenStore, opts ...TokenLifecycleOption) *TokenLifecycle {
	m := &TokenLifecycle{
		codec:      codec,
		tokens:     tokens,
		refreshTTL: defRefreshTokenTTL,
		accessTTL:  defAccessTokenTTL,
		now:        time.Now,
		logger:     defLogger{},
		activity:   noopActivitySink{},
	}

	if codec.refreshTTL > 0 {
		m.refreshTTL = codec.refreshTTL
	}

	if codec.accessTTL > 0 {
		m.accessTTL = codec.accessTTL
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *TokenLifecycle) newClaims(userID string, tokenType string, ttl time.Duration) *APITokenClaims {
	now := m.now()
	claims := &APITokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    m.codec.issuer,
			Audience:  jwt.ClaimStrings(m.codec.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:       userID,
		TokenType: tokenType,
	}
	return claims
}

// Issue creates a refresh token for the user, persisting its truncated
// encoding as an outstanding record. The signed wire form is available via
// FullJWT.
func (m *TokenLifecycle) Issue(ctx context.Context, user *User) (*RefreshToken, error) {
	claims := m.newClaims(user.ID.String(), TokenTypeRefresh, m.refreshTTL)

	truncated, err := m.codec.EncodeTruncated(claims)
	if err != nil {
		return nil, err
	}

	expiresAt := claims.Expires()
	record := &OutstandingToken{
		ID:        uuid.New(),
		JTI:       claims.JTI(),
		UserID:    user.ID,
		TokenType: TokenTypeRefresh,
		Token:     truncated,
		ExpiresAt: &expiresAt,
	}

	if _, err := m.tokens.CreateOutstanding(ctx, record); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist issued token").
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{"jti": claims.JTI()})
	}

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventTokenIssued,
		Actor:     ActorRef{ID: user.ID.String(), Type: "user"},
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"jti": claims.JTI()},
	})

	return &RefreshToken{claims: claims, truncated: truncated}, nil
}

// FullJWT returns the signed three segment encoding of an issued token.
// Signing the same claims reproduces the signature the truncated encoding
// dropped, so the result always extends Truncated by one segment.
func (m *TokenLifecycle) FullJWT(token *RefreshToken) (string, error) {
	return m.codec.EncodeFull(token.claims)
}

// AccessToken derives a short lived signed access token from a refresh token.
// The access token reuses the parent's jti so blacklist checks on either kill
// both; it is never persisted.
func (m *TokenLifecycle) AccessToken(ctx context.Context, refresh *RefreshToken) (string, time.Time, error) {
	if err := m.CheckNotBlacklisted(ctx, refresh.JTI()); err != nil {
		return "", time.Time{}, err
	}

	claims := m.newClaims(refresh.UserID(), TokenTypeAccess, m.accessTTL)
	claims.RegisteredClaims.ID = refresh.JTI()

	signed, err := m.codec.EncodeFull(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, claims.Expires(), nil
}

// ListActive returns the user's outstanding refresh tokens that are neither
// expired nor blacklisted. Stored rows that fail rehydration are skipped with
// a debug log; one bad row never fails the listing.
func (m *TokenLifecycle) ListActive(ctx context.Context, userID uuid.UUID) ([]*RefreshToken, error) {
	records, err := m.tokens.ListOutstandingByUser(ctx, userID, m.now())
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list outstanding tokens").
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{"user_id": userID.String()})
	}

	out := make([]*RefreshToken, 0, len(records))
	for _, record := range records {
		stored, err := m.codec.Rehydrate(record.Token)
		if err != nil {
			m.logger.Debug("skipping unreadable stored token", "jti", record.JTI, "error", err)
			continue
		}
		out = append(out, &RefreshToken{claims: stored.Claims(), truncated: record.Token})
	}

	return out, nil
}

// Revoke blacklists an issued token.
func (m *TokenLifecycle) Revoke(ctx context.Context, token *RefreshToken) error {
	return m.revokeJTI(ctx, token.JTI(), token.UserID())
}

// RevokeRaw blacklists a token given its truncated storage encoding.
func (m *TokenLifecycle) RevokeRaw(ctx context.Context, stored string) error {
	token, err := m.codec.Rehydrate(stored)
	if err != nil {
		return err
	}

	if record, err := m.tokens.GetOutstandingByJTI(ctx, token.JTI()); err != nil {
		if !repository.IsRecordNotFound(err) {
			return errors.Wrap(err, errors.CategoryInternal, "failed to load outstanding token").
				WithCode(errors.CodeInternal).
				WithMetadata(map[string]any{"jti": token.JTI()})
		}
		m.logger.Debug("revoking token with no outstanding record", "jti", token.JTI())
	} else if record.Token != stored {
		return errors.New(ErrTokenMalformed.Message, ErrTokenMalformed.Category).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code).
			WithMetadata(map[string]any{"reason": "stored token mismatch"})
	}

	return m.revokeJTI(ctx, token.JTI(), token.Claims().UserID())
}

func (m *TokenLifecycle) revokeJTI(ctx context.Context, jti, userID string) error {
	if err := m.tokens.Blacklist(ctx, jti, m.now()); err != nil {
		if IsAlreadyBlacklistedError(err) {
			if m.idempotentRevoke {
				m.logger.Debug("token already blacklisted, swallowing duplicate revoke", "jti", jti)
				return nil
			}
			return err
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to blacklist token").
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{"jti": jti})
	}

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventTokenRevoked,
		Actor:     ActorRef{ID: userID, Type: "user"},
		UserID:    userID,
		Metadata:  map[string]any{"jti": jti},
	})

	return nil
}

// CheckNotBlacklisted returns ErrTokenRevoked if the jti is blacklisted.
func (m *TokenLifecycle) CheckNotBlacklisted(ctx context.Context, jti string) error {
	blacklisted, err := m.tokens.IsBlacklisted(ctx, jti)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to check blacklist").
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{"jti": jti})
	}

	if blacklisted {
		return errors.New(ErrTokenRevoked.Message, ErrTokenRevoked.Category).
			WithTextCode(ErrTokenRevoked.TextCode).
			WithCode(ErrTokenRevoked.Code).
			WithMetadata(map[string]any{"jti": jti})
	}

	return nil
}

func (m *TokenLifecycle) recordActivity(ctx context.Context, event ActivityEvent) {
	event.OccurredAt = m.now()
	if err := m.activity.Record(ctx, event); err != nil {
		m.logger.Error("failed to record activity event", "event", string(event.EventType), "error", err)
	}
}
