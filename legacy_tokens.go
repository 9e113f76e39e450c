package dualauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// legacyKeyBytes is the entropy behind an opaque legacy key, rendered as a
// 40 character hex string on the wire.
const legacyKeyBytes = 20

// GenerateLegacyKey mints a new opaque legacy API key.
func GenerateLegacyKey() (string, error) {
	buf := make([]byte, legacyKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate token key").
			WithCode(errors.CodeInternal)
	}
	return hex.EncodeToString(buf), nil
}

// DigestLegacyKey hashes a legacy key for storage and lookup. Only digests
// are ever persisted.
func DigestLegacyKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// LegacyTokens issues and resolves opaque pre JWT API keys during the
// migration window.
type LegacyTokens struct {
	store    LegacyTokenStore
	users    UserStore
	now      func() time.Time
	logger   Logger
	activity ActivitySink
}

// LegacyTokensOption configures a LegacyTokens service
type LegacyTokensOption func(*LegacyTokens)

// WithLegacyClock injects a clock, mostly for tests
func WithLegacyClock(clock func() time.Time) LegacyTokensOption {
	return func(l *LegacyTokens) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLegacyLogger sets the service logger
func WithLegacyLogger(logger Logger) LegacyTokensOption {
	return func(l *LegacyTokens) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLegacyActivitySink forwards legacy token events to the given sink
func WithLegacyActivitySink(sink ActivitySink) LegacyTokensOption {
	return func(l *LegacyTokens) {
		l.activity = normalizeActivitySink(sink)
	}
}

// NewLegacyTokens creates the legacy token service
func NewLegacyTokens(store LegacyTokenStore, users UserStore, opts ...LegacyTokensOption) *LegacyTokens {
	l := &LegacyTokens{
		store:    store,
		users:    users,
		now:      time.Now,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Issue creates a legacy key for the user and returns its plaintext exactly
// once. Only the digest is stored.
func (l *LegacyTokens) Issue(ctx context.Context, user *User) (string, error) {
	key, err := GenerateLegacyKey()
	if err != nil {
		return "", err
	}

	digest := DigestLegacyKey(key)

	record := &LegacyToken{
		UserID: user.ID,
		Digest: digest,
	}

	// stable row ID derived from the digest so re-imports stay idempotent
	if id, err := hashid.NewUUID(digest); err == nil {
		record.ID = id
	} else {
		record.ID = uuid.New()
	}

	if _, err := l.store.Create(ctx, record); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to persist legacy token").
			WithCode(errors.CodeInternal)
	}

	return key, nil
}

// Lookup resolves a legacy key to its owning user. Unknown keys map to
// ErrLegacyTokenInvalid and keys whose owner is gone to ErrUserNotFound, so
// callers never learn whether a rejected key ever existed.
func (l *LegacyTokens) Lookup(ctx context.Context, key string) (*User, error) {
	digest := DigestLegacyKey(key)

	record, err := l.store.GetByDigest(ctx, digest)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrLegacyTokenInvalid
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up legacy token").
			WithCode(errors.CodeInternal)
	}

	user, err := l.users.GetByID(ctx, record.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to resolve legacy token user").
			WithCode(errors.CodeInternal)
	}

	if err := l.store.Touch(ctx, record.ID, l.now()); err != nil {
		l.logger.Warn("failed to update legacy token last_used_at", "id", record.ID.String(), "error", err)
	}

	return user, nil
}
