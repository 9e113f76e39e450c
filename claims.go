package dualauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// APITokenClaims are the claims carried by both refresh and access tokens.
// The uid claim mirrors sub; token_type discriminates the two token kinds so
// an access token can never be replayed where a refresh token is expected.
type APITokenClaims struct {
	jwt.RegisteredClaims
	UID       string `json:"uid,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// JTI returns the token's unique identifier
func (c *APITokenClaims) JTI() string {
	return c.RegisteredClaims.ID
}

// UserID returns the user ID, preferring the uid claim over sub
func (c *APITokenClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// UserUUID parses the user ID claim into a uuid
func (c *APITokenClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID())
}

// Expires returns the expiration time
func (c *APITokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *APITokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// IsRefresh reports whether the claims describe a refresh token
func (c *APITokenClaims) IsRefresh() bool {
	return c.TokenType == TokenTypeRefresh
}

func ensureTokenID(c *APITokenClaims) {
	if c.RegisteredClaims.ID == "" {
		c.RegisteredClaims.ID = uuid.NewString()
	}
}
