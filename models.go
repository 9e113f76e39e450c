package dualauth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleGuest is an guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember us a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is an admin role (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// Token type discriminator carried in the token_type claim.
const (
	TokenTypeRefresh = "refresh"
	TokenTypeAccess  = "access"
)

// User is the user model
type User struct {
	bun.BaseModel        `bun:"table:users,alias:usr"`
	ID                   uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role                 UserRole       `bun:"user_role,notnull" json:"user_role,omitempty"`
	Username             string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email                string         `bun:"email,notnull,unique" json:"email,omitempty"`
	ActiveOrganizationID *uuid.UUID     `bun:"active_organization_id,nullzero,type:uuid" json:"active_organization_id,omitempty"`
	ActiveOrganization   *Organization  `bun:"rel:has-one,join:active_organization_id=id" json:"active_organization,omitempty"`
	Metadata             map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt            *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt            *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt            *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Organization is the tenant model
type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:org"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Title         string     `bun:"title,notnull" json:"title,omitempty"`
	CreatedByID   *uuid.UUID `bun:"created_by_id,nullzero,type:uuid" json:"created_by_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// OrganizationMember links users to organizations with a role.
type OrganizationMember struct {
	bun.BaseModel  `bun:"table:organization_members,alias:orgm"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	OrganizationID uuid.UUID  `bun:"organization_id,notnull,type:uuid" json:"organization_id,omitempty"`
	UserID         uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Role           UserRole   `bun:"member_role,notnull" json:"member_role,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// AuthPolicy holds the per organization authentication flags. Exactly one row
// per organization, created lazily on first read.
type AuthPolicy struct {
	bun.BaseModel       `bun:"table:auth_policies,alias:pol"`
	OrganizationID      uuid.UUID     `bun:"organization_id,pk,type:uuid" json:"organization_id,omitempty"`
	Organization        *Organization `bun:"rel:has-one,join:organization_id=id" json:"organization,omitempty"`
	LegacyTokensEnabled bool          `bun:"legacy_tokens_enabled,notnull" json:"legacy_tokens_enabled"`
	JWTTokensEnabled    bool          `bun:"jwt_tokens_enabled,notnull" json:"jwt_tokens_enabled"`
	APITokensEnabled    bool          `bun:"api_tokens_enabled,notnull" json:"api_tokens_enabled"`
	CreatedAt           *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// LegacyPolicyDefaults returns the policy for organizations that predate JWT
// tokens: keep legacy keys working, nothing modern enabled yet.
func LegacyPolicyDefaults(orgID uuid.UUID) *AuthPolicy {
	return &AuthPolicy{
		OrganizationID:      orgID,
		LegacyTokensEnabled: true,
		JWTTokensEnabled:    false,
		APITokensEnabled:    false,
	}
}

// ModernPolicyDefaults returns the policy for newly created organizations:
// JWT only, legacy keys never honored.
func ModernPolicyDefaults(orgID uuid.UUID) *AuthPolicy {
	return &AuthPolicy{
		OrganizationID:      orgID,
		LegacyTokensEnabled: false,
		JWTTokensEnabled:    true,
		APITokensEnabled:    true,
	}
}

// OutstandingToken records every issued refresh token by jti. The token
// column holds the truncated encoding, never the signed form.
type OutstandingToken struct {
	bun.BaseModel `bun:"table:outstanding_tokens,alias:ot"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	JTI           string     `bun:"jti,notnull,unique" json:"jti,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	TokenType     string     `bun:"token_type,notnull" json:"token_type,omitempty"`
	Token         string     `bun:"token,notnull" json:"token,omitempty"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// BlacklistedToken marks an outstanding token as revoked.
type BlacklistedToken struct {
	bun.BaseModel `bun:"table:blacklisted_tokens,alias:bt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	TokenJTI      string     `bun:"token_jti,notnull,unique" json:"token_jti,omitempty"`
	BlacklistedAt *time.Time `bun:"blacklisted_at,nullzero,default:current_timestamp" json:"blacklisted_at,omitempty"`
}

// LegacyToken stores the digest of an opaque pre-JWT API key. The plaintext
// key is only ever shown once, at issuance.
type LegacyToken struct {
	bun.BaseModel `bun:"table:legacy_tokens,alias:lt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Digest        string     `bun:"digest,notnull,unique" json:"digest,omitempty"`
	LastUsedAt    *time.Time `bun:"last_used_at,nullzero" json:"last_used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}
