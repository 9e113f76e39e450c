package dualauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds token options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetRefreshTokenExpiration() int
	GetAccessTokenExpiration() int
}

// TokenStore persists outstanding refresh tokens and their blacklist entries.
type TokenStore interface {
	CreateOutstanding(ctx context.Context, record *OutstandingToken) (*OutstandingToken, error)
	GetOutstandingByJTI(ctx context.Context, jti string) (*OutstandingToken, error)
	ListOutstandingByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*OutstandingToken, error)
	Blacklist(ctx context.Context, jti string, at time.Time) error
	IsBlacklisted(ctx context.Context, jti string) (bool, error)
}

// PolicyStore persists per organization auth policies.
type PolicyStore interface {
	GetByOrganization(ctx context.Context, orgID uuid.UUID) (*AuthPolicy, error)
	Create(ctx context.Context, policy *AuthPolicy) (*AuthPolicy, error)
	CreateTx(ctx context.Context, tx bun.IDB, policy *AuthPolicy) (*AuthPolicy, error)
	Update(ctx context.Context, policy *AuthPolicy) (*AuthPolicy, error)
	IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error)
	MemberRole(ctx context.Context, orgID, userID uuid.UUID) (UserRole, error)
}

// UserStore resolves users by primary key.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// LegacyTokenStore persists opaque legacy token digests.
type LegacyTokenStore interface {
	Create(ctx context.Context, record *LegacyToken) (*LegacyToken, error)
	GetByDigest(ctx context.Context, digest string) (*LegacyToken, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
